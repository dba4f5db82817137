// Package peer manages a single outbound TCP connection to one peer:
// dialing, the handshake exchange, and framed message I/O.
package peer

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"net"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/pkg/errors"

	"github.com/dkovacs/go-leech/internal/log"
	"github.com/dkovacs/go-leech/peerwire"
)

// IDPrefix identifies this client in the 20-byte peer id, Azureus-style.
const IDPrefix = "-GL0010-"

// NewPeerID generates a random 20-byte peer id with IDPrefix.
func NewPeerID() ([20]byte, error) {
	var id [20]byte
	copy(id[:], IDPrefix)
	if _, err := rand.Read(id[len(IDPrefix):]); err != nil {
		return id, errors.Wrap(err, "peer: generating peer id")
	}
	return id, nil
}

// Session is an established, handshaken connection to one peer.
type Session struct {
	Addr     string
	PeerID   [20]byte
	conn     net.Conn
	Bitfield peerwire.Bitfield
	Choked   bool

	// Clock sources deadline computation, so tests can substitute a
	// fake clock instead of sleeping real time to exercise timeouts.
	Clock clock.Clock
}

// Dial connects to addr and performs the BEP-3 handshake. Reading the
// bitfield (or any other) message the peer sends afterward is left to
// the caller; Session starts with an empty fallback bitfield sized by
// numPieces, since a peer may legitimately have no pieces at all.
func Dial(addr string, infoHash, myID [20]byte, numPieces int, dialTimeout time.Duration) (*Session, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		log.Debugf("peer: dialing %s failed: %s", addr, err)
		return nil, errors.Wrapf(err, "peer: dialing %s", addr)
	}

	hs := peerwire.Handshake{InfoHash: infoHash, PeerID: myID}
	if _, err := conn.Write(hs.Encode()); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "peer: sending handshake")
	}

	conn.SetReadDeadline(time.Now().Add(dialTimeout))
	got, err := peerwire.ReadHandshake(conn)
	if err != nil {
		conn.Close()
		log.Debugf("peer: handshake with %s failed: %s", addr, err)
		return nil, errors.Wrapf(err, "peer: reading handshake from %s", addr)
	}
	if !bytes.Equal(got.InfoHash[:], infoHash[:]) {
		conn.Close()
		return nil, fmt.Errorf("peer: %s handshake has wrong info hash", addr)
	}
	conn.SetReadDeadline(time.Time{})
	log.Debugf("peer: handshake with %s complete", addr)

	s := &Session{
		Addr:     addr,
		PeerID:   got.PeerID,
		conn:     conn,
		Bitfield: peerwire.NewBitfield(numPieces),
		Choked:   true,
		Clock:    clock.New(),
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// SetDeadline forwards to the underlying connection; used to bound
// each piece download so a stalled peer doesn't hang the session.
func (s *Session) SetDeadline(t time.Time) error {
	return s.conn.SetDeadline(t)
}

// Deadline computes a deadline d from now, via Clock rather than
// time.Now so tests can control it with a fake clock.
func (s *Session) Deadline(d time.Duration) time.Time {
	if s.Clock == nil {
		return time.Now().Add(d)
	}
	return s.Clock.Now().Add(d)
}

// SendInterested tells the peer we want data. A leecher never seeds,
// so it has no occasion to send Unchoke of its own.
func (s *Session) SendInterested() error {
	_, err := s.conn.Write(peerwire.InterestedMessage())
	return errors.Wrap(err, "peer: sending interested")
}

// SendRequest requests one block.
func (s *Session) SendRequest(index, begin, length int) error {
	_, err := s.conn.Write(peerwire.RequestMessage(index, begin, length))
	return errors.Wrap(err, "peer: sending request")
}

// SendHave announces a newly completed piece.
func (s *Session) SendHave(index int) error {
	_, err := s.conn.Write(peerwire.HaveMessage(index))
	return errors.Wrap(err, "peer: sending have")
}

// ReadMessage reads and applies the next non-keepalive message,
// updating Choked/Bitfield as a side effect, and returns it for the
// caller to act on (a Piece message, typically).
func (s *Session) ReadMessage() (*peerwire.Message, error) {
	for {
		msg, err := peerwire.ReadMessage(s.conn)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			continue // keep-alive
		}
		switch msg.ID {
		case peerwire.Choke:
			s.Choked = true
			log.Debugf("peer: %s choked us", s.Addr)
		case peerwire.Unchoke:
			s.Choked = false
			log.Debugf("peer: %s unchoked us", s.Addr)
		case peerwire.Have:
			index, err := peerwire.ParseHave(msg.Payload)
			if err != nil {
				return nil, err
			}
			s.Bitfield.Set(index)
		case peerwire.BitfieldID:
			s.Bitfield = peerwire.Bitfield(msg.Payload)
		}
		return msg, nil
	}
}
