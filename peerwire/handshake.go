package peerwire

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Protocol is the pstr field every BEP-3 handshake carries.
const Protocol = "BitTorrent protocol"

// HandshakeSize is the fixed wire length of a handshake message:
// 1 (pstrlen) + len(Protocol) + 8 (reserved) + 20 (info hash) + 20 (peer id).
const HandshakeSize = 1 + len(Protocol) + 8 + 20 + 20

// Handshake is the BEP-3 connection handshake.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// Encode renders the handshake to its 68-byte wire form. The reserved
// extension-bits field is left zero: extended messaging and DHT are
// out of scope.
func (h Handshake) Encode() []byte {
	buf := make([]byte, HandshakeSize)
	buf[0] = byte(len(Protocol))
	copy(buf[1:], Protocol)
	copy(buf[1+len(Protocol)+8:], h.InfoHash[:])
	copy(buf[1+len(Protocol)+8+20:], h.PeerID[:])
	return buf
}

// ShortReadError reports a handshake that did not arrive at full size.
type ShortReadError struct{ Got int }

func (e *ShortReadError) Error() string {
	return "peerwire: short handshake read"
}

// ProtocolMismatchError reports a handshake naming a different pstr.
type ProtocolMismatchError struct{ Got string }

func (e *ProtocolMismatchError) Error() string {
	return "peerwire: unexpected protocol string: " + e.Got
}

// ReadHandshake reads and decodes a 68-byte handshake from r, and
// validates that the protocol name matches. The reserved extension
// bytes are skipped: this client negotiates no extensions.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	buf := make([]byte, HandshakeSize)
	if n, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, &ShortReadError{Got: n}
		}
		return nil, errors.Wrap(err, "peerwire: reading handshake")
	}
	pstrLen := int(buf[0])
	if 1+pstrLen+8+20+20 != HandshakeSize || pstrLen != len(Protocol) {
		return nil, &ProtocolMismatchError{Got: string(buf[1:min(1+pstrLen, len(buf))])}
	}
	if !bytes.Equal(buf[1:1+pstrLen], []byte(Protocol)) {
		return nil, &ProtocolMismatchError{Got: string(buf[1 : 1+pstrLen])}
	}
	h := &Handshake{}
	copy(h.InfoHash[:], buf[1+pstrLen+8:1+pstrLen+8+20])
	copy(h.PeerID[:], buf[1+pstrLen+8+20:])
	return h, nil
}
