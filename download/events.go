package download

// EventKind distinguishes the progress events emitted during a download.
type EventKind int

const (
	// TorrentParsed is emitted once a .torrent file has been decoded
	// into a descriptor, before any network I/O.
	TorrentParsed EventKind = iota
	// TrackerResponse is emitted after a successful tracker announce.
	TrackerResponse
	// ConnectingToPeer is emitted before a TCP dial + handshake attempt.
	ConnectingToPeer
	// PeerConnected is emitted once a handshake with a peer succeeds.
	PeerConnected
	// PeerConnectionFailed is emitted when a dial or handshake attempt
	// fails; the client moves on to the next peer in the list.
	PeerConnectionFailed
	// DownloadStarted is emitted once the peer session is initialized
	// (unchoked) and the piece loop is about to begin.
	DownloadStarted
	// PieceCompleted is emitted once a piece is verified and written to
	// disk, in ascending piece-index order.
	PieceCompleted
	// DownloadComplete is emitted once after the last piece is written.
	DownloadComplete
	// DownloadStopped is emitted when a download ends early via
	// cooperative cancellation.
	DownloadStopped
	// Error is emitted on a fatal protocol or I/O error that ends the
	// download (e.g. a failed hash verification, a choked mid-piece).
	Error
)

// Event is a single best-effort progress notification. Not every field
// is meaningful for every Kind; see the EventKind doc comments above.
type Event struct {
	Kind           EventKind
	PieceIndex     int
	TotalPieces    int
	DownloadedSize int64
	TotalSize      int64

	// Addr is the peer address for ConnectingToPeer/PeerConnected/
	// PeerConnectionFailed.
	Addr string

	// Interval is the tracker's announce interval, for TrackerResponse.
	Interval int
	// NumPeers is the number of peers returned, for TrackerResponse.
	NumPeers int

	// Err carries the failure for PeerConnectionFailed and Error.
	Err error
}

// Emit sends an event on ch without blocking the caller: a slow or
// absent consumer must never stall piece assembly or peer trial.
// ch may be nil, in which case Emit is a no-op.
func Emit(ch chan<- Event, ev Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}
