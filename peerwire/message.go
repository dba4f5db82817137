package peerwire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ID identifies a peer wire message kind, per BEP-3.
type ID uint8

const (
	Choke ID = iota
	Unchoke
	Interested
	NotInterested
	Have
	BitfieldID
	Request
	Piece
	Cancel
	Port
)

// Message is a single peer wire protocol message. A KeepAlive is
// represented as a nil *Message rather than a Message with a
// sentinel ID, since it carries no ID byte on the wire at all.
type Message struct {
	ID      ID
	Payload []byte
}

// UnknownMessageIDError reports a message ID byte outside BEP-3's range.
type UnknownMessageIDError struct{ Got byte }

func (e *UnknownMessageIDError) Error() string {
	return "peerwire: unknown message id"
}

// ReadMessage reads one message from r. A nil Message with a nil
// error denotes a keep-alive.
func ReadMessage(r io.Reader) (*Message, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, errors.Wrap(err, "peerwire: reading message length")
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length == 0 {
		return nil, nil
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "peerwire: reading message body")
	}
	id := ID(buf[0])
	if id > Port {
		return nil, &UnknownMessageIDError{Got: buf[0]}
	}
	return &Message{ID: id, Payload: buf[1:]}, nil
}

// Encode renders m to its wire form: a 4-byte big-endian length
// (counting the ID byte) followed by the ID and payload.
func (m *Message) Encode() []byte {
	length := uint32(len(m.Payload) + 1)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf, length)
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	return buf
}

// KeepAliveMessage renders the zero-length keep-alive frame.
func KeepAliveMessage() []byte {
	return []byte{0, 0, 0, 0}
}

func simple(id ID) []byte {
	return (&Message{ID: id}).Encode()
}

// ChokeMessage, UnchokeMessage, InterestedMessage and
// NotInterestedMessage carry no payload.
func ChokeMessage() []byte         { return simple(Choke) }
func UnchokeMessage() []byte       { return simple(Unchoke) }
func InterestedMessage() []byte    { return simple(Interested) }
func NotInterestedMessage() []byte { return simple(NotInterested) }

// HaveMessage announces possession of piece index.
func HaveMessage(index int) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(index))
	return (&Message{ID: Have, Payload: payload}).Encode()
}

// BitfieldMessage carries a peer's full have-map.
func BitfieldMessage(bf Bitfield) []byte {
	return (&Message{ID: BitfieldID, Payload: bf}).Encode()
}

// RequestMessage asks for a block: piece index, byte offset within
// the piece, and block length.
func RequestMessage(index, begin, length int) []byte {
	return requestLike(Request, index, begin, length)
}

// CancelMessage withdraws a previously sent request.
func CancelMessage(index, begin, length int) []byte {
	return requestLike(Cancel, index, begin, length)
}

func requestLike(id ID, index, begin, length int) []byte {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	binary.BigEndian.PutUint32(payload[8:12], uint32(length))
	return (&Message{ID: id, Payload: payload}).Encode()
}

// PieceMessage carries a downloaded block: piece index, byte offset, data.
func PieceMessage(index, begin int, data []byte) []byte {
	payload := make([]byte, 8+len(data))
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	copy(payload[8:], data)
	return (&Message{ID: Piece, Payload: payload}).Encode()
}

// Block is a parsed Request or Cancel payload.
type Block struct {
	Index  int
	Begin  int
	Length int
}

// ParseBlock parses a Request/Cancel payload.
func ParseBlock(payload []byte) (Block, error) {
	if len(payload) != 12 {
		return Block{}, errors.Errorf("peerwire: request payload length %d, want 12", len(payload))
	}
	return Block{
		Index:  int(binary.BigEndian.Uint32(payload[0:4])),
		Begin:  int(binary.BigEndian.Uint32(payload[4:8])),
		Length: int(binary.BigEndian.Uint32(payload[8:12])),
	}, nil
}

// PieceBlock is a parsed Piece payload.
type PieceBlock struct {
	Index int
	Begin int
	Data  []byte
}

// ParsePieceBlock parses a Piece payload.
func ParsePieceBlock(payload []byte) (PieceBlock, error) {
	if len(payload) < 8 {
		return PieceBlock{}, errors.Errorf("peerwire: piece payload length %d, want at least 8", len(payload))
	}
	return PieceBlock{
		Index: int(binary.BigEndian.Uint32(payload[0:4])),
		Begin: int(binary.BigEndian.Uint32(payload[4:8])),
		Data:  payload[8:],
	}, nil
}

// ParseHave parses a Have payload.
func ParseHave(payload []byte) (int, error) {
	if len(payload) != 4 {
		return 0, errors.Errorf("peerwire: have payload length %d, want 4", len(payload))
	}
	return int(binary.BigEndian.Uint32(payload)), nil
}
