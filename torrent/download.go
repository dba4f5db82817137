// Package torrent wires the bencode, torrentfile, tracker, peer and
// download packages into the control flow spec.md describes: parse
// the descriptor, announce to the tracker, then try peers in list
// order, handshaking with each and driving it through the download,
// until one completes the download.
package torrent

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/dkovacs/go-leech/config"
	"github.com/dkovacs/go-leech/download"
	"github.com/dkovacs/go-leech/internal/log"
	"github.com/dkovacs/go-leech/peer"
	"github.com/dkovacs/go-leech/torrentfile"
	"github.com/dkovacs/go-leech/tracker"
)

// NoUsablePeerError reports that every peer the tracker returned
// failed, either at the handshake or during the download.
type NoUsablePeerError struct{ Tried int }

func (e *NoUsablePeerError) Error() string {
	return "torrent: no peer from the tracker's list completed the download"
}

// Download fetches the torrent at torrentPath into outputDir,
// reporting progress on events (nil is fine; delivery is best-effort).
func Download(ctx context.Context, torrentPath, outputDir string, cfg config.Config, events chan<- download.Event) error {
	desc, err := torrentfile.Open(torrentPath)
	if err != nil {
		return err
	}
	download.Emit(events, download.Event{Kind: download.TorrentParsed, TotalPieces: len(desc.Info.Pieces), TotalSize: desc.Info.TotalLength})

	myID, err := peer.NewPeerID()
	if err != nil {
		return err
	}

	trackerClient := tracker.NewClient()
	trackerClient.Timeout = cfg.TrackerTimeout

	var lastErr error
	for _, announce := range desc.Announce {
		resp, err := trackerClient.Announce(ctx, announce, tracker.Request{
			InfoHash: desc.InfoHash,
			PeerID:   myID,
			Port:     6881,
			Left:     desc.Info.TotalLength,
			Compact:  true,
			NumWant:  cfg.TrackerNumWant,
			Event:    tracker.EventStarted,
		})
		if err != nil {
			lastErr = err
			log.Warnf("torrent: announce to %s failed: %s", announce, err)
			continue
		}
		download.Emit(events, download.Event{Kind: download.TrackerResponse, Interval: resp.Interval, NumPeers: len(resp.Peers)})
		return downloadFromPeers(ctx, desc, &desc.Info, resp.Peers, myID, outputDir, cfg, events)
	}
	if lastErr != nil {
		return errors.Wrap(lastErr, "torrent: every tracker failed")
	}
	return errors.New("torrent: descriptor has no usable announce URL")
}

func downloadFromPeers(
	ctx context.Context,
	desc *torrentfile.Descriptor,
	info *torrentfile.Info,
	peers []tracker.Peer,
	myID [20]byte,
	outputDir string,
	cfg config.Config,
	events chan<- download.Event,
) error {
	outPath := filepath.Join(outputDir, info.Name+".download")
	out, err := download.OpenOutput(outPath, info.TotalLength)
	if err != nil {
		return err
	}
	defer out.Close()

	numPieces := len(info.Pieces)
	tried := 0
	for _, p := range peers {
		if err := ctx.Err(); err != nil {
			return err
		}
		tried++
		addr := p.Addr()
		log.Infof("torrent: connecting to peer %s", addr)
		download.Emit(events, download.Event{Kind: download.ConnectingToPeer, Addr: addr})
		session, err := peer.Dial(addr, desc.InfoHash, myID, numPieces, cfg.PeerDialTimeout)
		if err != nil {
			log.Warnf("torrent: peer %s failed handshake: %s", addr, err)
			download.Emit(events, download.Event{Kind: download.PeerConnectionFailed, Addr: addr, Err: err})
			continue
		}
		log.Infof("torrent: connected to peer %s", addr)
		download.Emit(events, download.Event{Kind: download.PeerConnected, Addr: addr})

		d := download.New(session, info, out, cfg, events)
		err = d.Run(ctx)
		session.Close()
		if err != nil {
			log.Warnf("torrent: download via %s failed: %s", addr, err)
			continue
		}
		return nil
	}
	return &NoUsablePeerError{Tried: tried}
}
