package peerwire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeEncodeDecodeRoundTrip(t *testing.T) {
	var hash [20]byte
	var id [20]byte
	copy(hash[:], "aaaaaaaaaaaaaaaaaaaa")
	copy(id[:], "-GL0001-bbbbbbbbbbbb")
	h := Handshake{InfoHash: hash, PeerID: id}

	encoded := h.Encode()
	require.Len(t, encoded, HandshakeSize)

	got, err := ReadHandshake(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, h.InfoHash, got.InfoHash)
	assert.Equal(t, h.PeerID, got.PeerID)
}

func TestReadHandshakeShort(t *testing.T) {
	_, err := ReadHandshake(bytes.NewReader([]byte{19, 'B'}))
	require.Error(t, err)
}

func TestReadHandshakeWrongProtocol(t *testing.T) {
	buf := make([]byte, HandshakeSize)
	buf[0] = 19
	copy(buf[1:], "Not BitTorrent prot")
	_, err := ReadHandshake(bytes.NewReader(buf))
	require.Error(t, err)
	var mismatch *ProtocolMismatchError
	require.ErrorAs(t, err, &mismatch)
}
