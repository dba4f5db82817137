package download

import (
	"context"
	"crypto/sha1"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkovacs/go-leech/config"
	"github.com/dkovacs/go-leech/peer"
	"github.com/dkovacs/go-leech/peerwire"
	"github.com/dkovacs/go-leech/torrentfile"
)

// servePeer plays the remote side of a one-piece download: handshake,
// bitfield, unchoke, and answering every request with its piece data.
func servePeer(t *testing.T, infoHash [20]byte, pieceData []byte, blockSize int64) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		if _, err := peerwire.ReadHandshake(conn); err != nil {
			return
		}
		var remoteID [20]byte
		copy(remoteID[:], "-XX0001-bbbbbbbbbbbb")
		hs := peerwire.Handshake{InfoHash: infoHash, PeerID: remoteID}
		conn.Write(hs.Encode())

		bf := peerwire.NewBitfield(1)
		bf.Set(0)
		conn.Write(peerwire.BitfieldMessage(bf))

		msg, err := peerwire.ReadMessage(conn) // Interested
		if err != nil || msg.ID != peerwire.Interested {
			return
		}
		conn.Write(peerwire.UnchokeMessage())

		size := int64(len(pieceData))
		numBlocks := int((size + blockSize - 1) / blockSize)
		for i := 0; i < numBlocks; i++ {
			msg, err := peerwire.ReadMessage(conn)
			if err != nil || msg == nil || msg.ID != peerwire.Request {
				return
			}
			block, err := peerwire.ParseBlock(msg.Payload)
			if err != nil {
				return
			}
			data := pieceData[block.Begin : block.Begin+block.Length]
			conn.Write(peerwire.PieceMessage(block.Index, block.Begin, data))
		}

		peerwire.ReadMessage(conn) // Have
	}()
	return ln
}

func TestDownloaderSinglePieceEndToEnd(t *testing.T) {
	pieceData := []byte("the quick brown fox jumps over the lazy dog!!!")
	hash := sha1.Sum(pieceData)

	var infoHash [20]byte
	copy(infoHash[:], "aaaaaaaaaaaaaaaaaaaa")

	cfg := config.Default()
	cfg.BlockSize = 16
	cfg.PeerReadDeadline = 5 * time.Second

	ln := servePeer(t, infoHash, pieceData, int64(cfg.BlockSize))
	defer ln.Close()

	var myID [20]byte
	s, err := peer.Dial(ln.Addr().String(), infoHash, myID, 1, time.Second)
	require.NoError(t, err)
	defer s.Close()

	info := &torrentfile.Info{
		PieceLength: int64(len(pieceData)),
		Pieces:      [][20]byte{hash},
		TotalLength: int64(len(pieceData)),
	}

	outPath := filepath.Join(t.TempDir(), "out.download")
	out, err := OpenOutput(outPath, info.TotalLength)
	require.NoError(t, err)
	defer out.Close()

	events := make(chan Event, 8)
	d := New(s, info, out, cfg, events)

	require.NoError(t, d.Run(context.Background()))

	written, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, pieceData, written)

	var gotComplete, gotDone bool
	for {
		select {
		case ev := <-events:
			if ev.Kind == PieceCompleted {
				gotComplete = true
				assert.Equal(t, 0, ev.PieceIndex)
			}
			if ev.Kind == DownloadComplete {
				gotDone = true
			}
			continue
		default:
		}
		break
	}
	assert.True(t, gotComplete)
	assert.True(t, gotDone)
}

func TestDownloadPieceRejectsMissingPiece(t *testing.T) {
	s := &peer.Session{Bitfield: peerwire.NewBitfield(1)}
	info := &torrentfile.Info{PieceLength: 10, Pieces: [][20]byte{{}}, TotalLength: 10}
	d := New(s, info, nil, config.Default(), nil)

	err := d.downloadPiece(context.Background(), 0)
	require.Error(t, err)
	var missing *PeerMissingPieceError
	require.ErrorAs(t, err, &missing)
}
