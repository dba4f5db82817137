package download

// PieceBuffer accumulates blocks for one in-flight piece. Blocks may
// arrive in any order and duplicate begin-offsets are idempotent:
// the first write at an offset wins, later ones are dropped.
type PieceBuffer struct {
	Index    int
	Size     int64
	data     []byte
	received int64
	seen     map[int64]bool
}

// NewPieceBuffer allocates a buffer for piece index sized to size bytes.
func NewPieceBuffer(index int, size int64) *PieceBuffer {
	return &PieceBuffer{
		Index: index,
		Size:  size,
		data:  make([]byte, size),
		seen:  make(map[int64]bool),
	}
}

// Insert writes block at begin if that offset hasn't been seen yet.
func (b *PieceBuffer) Insert(begin int64, block []byte) {
	if b.seen[begin] {
		return
	}
	b.seen[begin] = true
	copy(b.data[begin:], block)
	b.received += int64(len(block))
}

// Complete reports whether every byte of the piece has been received.
func (b *PieceBuffer) Complete() bool {
	return b.received >= b.Size
}

// Bytes returns the assembled piece data.
func (b *PieceBuffer) Bytes() []byte {
	return b.data
}
