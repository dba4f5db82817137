// Package download implements the core piece-assembly engine: driving
// a single peer session through initialization, sequential per-piece
// block pipelining, SHA-1 verification, and offset writes to the
// output file.
package download

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/dkovacs/go-leech/config"
	"github.com/dkovacs/go-leech/internal/log"
	"github.com/dkovacs/go-leech/peer"
	"github.com/dkovacs/go-leech/peerwire"
	"github.com/dkovacs/go-leech/torrentfile"
)

// Downloader drives one peer session to completion against a single
// torrent descriptor, writing verified pieces to an OutputFile.
type Downloader struct {
	session *peer.Session
	info    *torrentfile.Info
	out     *OutputFile
	cfg     config.Config
	events  chan<- Event

	completed peerwire.Bitfield
}

// New builds a Downloader. events may be nil to discard progress notifications.
func New(session *peer.Session, info *torrentfile.Info, out *OutputFile, cfg config.Config, events chan<- Event) *Downloader {
	return &Downloader{
		session:   session,
		info:      info,
		out:       out,
		cfg:       cfg,
		events:    events,
		completed: peerwire.NewBitfield(len(info.Pieces)),
	}
}

// Run executes the initialization phase followed by the sequential
// piece loop. ctx cancellation is checked at each piece boundary and
// at each block-wait iteration, per the cooperative cancellation
// contract: an in-flight blocking read is never interrupted, only the
// next opportunity to notice cancellation.
func (d *Downloader) Run(ctx context.Context) error {
	if err := d.initialize(); err != nil {
		log.Warnf("download: %s initialization failed: %s", d.session.Addr, err)
		Emit(d.events, Event{Kind: Error, Err: err})
		return err
	}
	log.Infof("download: %s unchoked, starting %d pieces", d.session.Addr, len(d.info.Pieces))
	Emit(d.events, Event{Kind: DownloadStarted, TotalPieces: len(d.info.Pieces), TotalSize: d.info.TotalLength})

	total := len(d.info.Pieces)
	var downloaded int64
	for p := 0; p < total; p++ {
		if err := ctx.Err(); err != nil {
			Emit(d.events, Event{Kind: DownloadStopped, TotalPieces: total, DownloadedSize: downloaded, TotalSize: d.info.TotalLength})
			return &CancelledError{}
		}

		if err := d.downloadPiece(ctx, p); err != nil {
			var cancelled *CancelledError
			if errors.As(err, &cancelled) {
				Emit(d.events, Event{Kind: DownloadStopped, TotalPieces: total, DownloadedSize: downloaded, TotalSize: d.info.TotalLength})
				return err
			}
			log.Warnf("download: %s piece %d failed: %s", d.session.Addr, p, err)
			Emit(d.events, Event{Kind: Error, PieceIndex: p, Err: err})
			return err
		}
		downloaded += d.info.PieceSize(p)
		log.Debugf("download: %s piece %d/%d complete", d.session.Addr, p+1, total)
		Emit(d.events, Event{
			Kind:           PieceCompleted,
			PieceIndex:     p,
			TotalPieces:    total,
			DownloadedSize: downloaded,
			TotalSize:      d.info.TotalLength,
		})
	}

	log.Infof("download: %s complete", d.session.Addr)
	Emit(d.events, Event{Kind: DownloadComplete, TotalPieces: total, DownloadedSize: downloaded, TotalSize: d.info.TotalLength})
	return nil
}

// initialize sends Interested and waits for Unchoke, tolerating
// Bitfield/Have/Choke messages against a fixed message budget.
func (d *Downloader) initialize() error {
	if err := d.session.SendInterested(); err != nil {
		return err
	}
	for i := 0; i < d.cfg.InitBudget; i++ {
		if !d.session.Choked {
			return nil
		}
		if _, err := d.session.ReadMessage(); err != nil {
			return errors.Wrap(err, "download: init phase")
		}
	}
	if !d.session.Choked {
		return nil
	}
	return &NeverUnchokedError{Budget: d.cfg.InitBudget}
}

// downloadPiece requests and assembles a single piece, verifies it,
// and writes it to the output file.
func (d *Downloader) downloadPiece(ctx context.Context, index int) error {
	if !d.session.Bitfield.Has(index) {
		return &PeerMissingPieceError{Piece: index}
	}

	size := d.info.PieceSize(index)
	buf := NewPieceBuffer(index, size)

	blockSize := int64(d.cfg.BlockSize)
	numBlocks := int((size + blockSize - 1) / blockSize)

	if err := d.session.SetDeadline(d.session.Deadline(d.cfg.PeerReadDeadline)); err != nil {
		return errors.Wrap(err, "download: setting peer deadline")
	}
	defer d.session.SetDeadline(time.Time{})

	for begin := int64(0); begin < size; begin += blockSize {
		length := blockSize
		if begin+length > size {
			length = size - begin
		}
		if err := d.session.SendRequest(index, int(begin), int(length)); err != nil {
			return err
		}
	}

	msgCap := 2 * numBlocks
	for i := 0; !buf.Complete(); i++ {
		if i >= msgCap {
			return &TooManyMessagesError{Piece: index, Cap: msgCap}
		}
		if err := ctx.Err(); err != nil {
			return &CancelledError{}
		}

		msg, err := d.session.ReadMessage()
		if err != nil {
			return err
		}
		if msg == nil {
			continue
		}
		switch msg.ID {
		case peerwire.Choke:
			return &ChokedMidPieceError{Piece: index}
		case peerwire.Piece:
			pb, err := peerwire.ParsePieceBlock(msg.Payload)
			if err != nil {
				return err
			}
			if pb.Index != index {
				continue
			}
			if int64(pb.Begin)+int64(len(pb.Data)) > size {
				return errors.Errorf("download: piece %d received block past its bound", index)
			}
			buf.Insert(int64(pb.Begin), pb.Data)
		}
	}

	data := buf.Bytes()
	if !d.info.VerifyPiece(index, data) {
		return &HashMismatchError{Piece: index}
	}

	offset := int64(index) * d.info.PieceLength
	if err := d.out.WritePiece(offset, data); err != nil {
		return err
	}
	d.completed.Set(index)

	if err := d.session.SendHave(index); err != nil {
		return err
	}
	return nil
}
