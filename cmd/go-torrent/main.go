package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dkovacs/go-leech/config"
	"github.com/dkovacs/go-leech/download"
	"github.com/dkovacs/go-leech/internal/log"
	"github.com/dkovacs/go-leech/torrent"
)

func usage() {
	fmt.Printf(`%s [options] <torrent-file>

    torrent-file     Path of the torrent file

    -o output-dir    Optional: path of the output directory.
                     Defaults to the current directory.
    -dev             Optional: use human-readable development logging
                     instead of the default JSON production encoding.
`, os.Args[0])
	os.Exit(2)
}

func main() {
	var outPath string
	var dev bool
	flag.Usage = usage
	flag.StringVar(&outPath, "o", "", "")
	flag.BoolVar(&dev, "dev", false, "")
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
	}
	if outPath == "" {
		outPath, _ = os.Getwd()
	}

	cfg := config.Default()
	cfg.LogDevelopment = dev
	if err := log.Configure(cfg.LogDevelopment); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	events := make(chan download.Event, cfg.EventBufferSize)
	go printProgress(events)

	err := torrent.Download(context.Background(), flag.Arg(0), outPath, cfg, events)
	close(events)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func printProgress(events <-chan download.Event) {
	for ev := range events {
		switch ev.Kind {
		case download.TorrentParsed:
			fmt.Printf("torrent parsed: %d pieces, %d bytes\n", ev.TotalPieces, ev.TotalSize)
		case download.TrackerResponse:
			fmt.Printf("tracker returned %d peers, interval %ds\n", ev.NumPeers, ev.Interval)
		case download.ConnectingToPeer:
			fmt.Printf("connecting to %s\n", ev.Addr)
		case download.PeerConnected:
			fmt.Printf("connected to %s\n", ev.Addr)
		case download.PeerConnectionFailed:
			fmt.Printf("peer %s failed: %s\n", ev.Addr, ev.Err)
		case download.DownloadStarted:
			fmt.Println("download started")
		case download.PieceCompleted:
			fmt.Printf("piece %d/%d complete (%d/%d bytes)\n",
				ev.PieceIndex+1, ev.TotalPieces, ev.DownloadedSize, ev.TotalSize)
		case download.DownloadComplete:
			fmt.Println("download complete")
		case download.DownloadStopped:
			fmt.Println("download stopped")
		case download.Error:
			fmt.Printf("error: %s\n", ev.Err)
		}
	}
}
