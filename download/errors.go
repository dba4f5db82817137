package download

import "fmt"

// NeverUnchokedError reports an initialization budget exhausted while
// still choked.
type NeverUnchokedError struct{ Budget int }

func (e *NeverUnchokedError) Error() string {
	return fmt.Sprintf("download: peer never unchoked within %d messages", e.Budget)
}

// PeerMissingPieceError reports a peer whose bitfield lacks a piece
// we are about to request.
type PeerMissingPieceError struct{ Piece int }

func (e *PeerMissingPieceError) Error() string {
	return fmt.Sprintf("download: peer does not have piece %d", e.Piece)
}

// ChokedMidPieceError reports a Choke received while a piece was in flight.
type ChokedMidPieceError struct{ Piece int }

func (e *ChokedMidPieceError) Error() string {
	return fmt.Sprintf("download: peer choked mid-piece %d", e.Piece)
}

// HashMismatchError reports a piece whose SHA-1 didn't match the descriptor.
type HashMismatchError struct{ Piece int }

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("download: piece %d failed hash verification", e.Piece)
}

// CancelledError reports cooperative cancellation via context.
type CancelledError struct{}

func (e *CancelledError) Error() string {
	return "download: cancelled"
}

// TooManyMessagesError reports the safety cap on per-piece message
// reads being exceeded without completing the piece buffer.
type TooManyMessagesError struct {
	Piece int
	Cap   int
}

func (e *TooManyMessagesError) Error() string {
	return fmt.Sprintf("download: piece %d did not complete within %d messages", e.Piece, e.Cap)
}
