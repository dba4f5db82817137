// Package torrentfile interprets a parsed bencode tree into a typed
// torrent descriptor, including the single-file/multi-file layout and
// the per-piece SHA-1 digests.
package torrentfile

import (
	"crypto/sha1"
	"net/url"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/dkovacs/go-leech/bencode"
)

// hashLength is 20 bytes: one SHA-1 digest per piece.
const hashLength = 20

// File describes one sub-file of a (possibly multi-file) torrent.
type File struct {
	Path        string // path relative to the torrent's output directory
	Length      int64
	CumOffset   int64 // offset of this file's first byte within the concatenated layout
}

// Info is the interpreted "info" dictionary of a torrent file.
type Info struct {
	Name        string
	PieceLength int64
	Pieces      [][hashLength]byte
	Files       []File // len==1 for single-file torrents
	TotalLength int64
}

// Multi reports whether the descriptor has more than one file.
func (inf *Info) Multi() bool {
	return len(inf.Files) > 1
}

// PieceSize returns the size of piece i: PieceLength for every piece
// but the last, whose size is TotalLength mod PieceLength (or
// PieceLength itself when that remainder is zero).
func (inf *Info) PieceSize(i int) int64 {
	if i < len(inf.Pieces)-1 {
		return inf.PieceLength
	}
	if rem := inf.TotalLength % inf.PieceLength; rem != 0 {
		return rem
	}
	return inf.PieceLength
}

// Descriptor is the flattened representation of a .torrent file.
type Descriptor struct {
	Announce     []*url.URL // primary tracker followed by fallbacks from announce-list
	Info         Info
	InfoHash     [hashLength]byte
}

// Parse error kinds, per spec.md §4.2.
type (
	// MissingFieldError reports a required bencode key that was absent.
	MissingFieldError struct{ Field string }
	// TypeMismatchError reports a key whose bencode kind didn't match expectations.
	TypeMismatchError struct {
		Field    string
		Expected string
	}
	// BadPiecesLengthError reports a pieces string whose length isn't a multiple of 20.
	BadPiecesLengthError struct{ Length int }
	// InconsistentFilesError reports both/neither of length and files being present.
	InconsistentFilesError struct{}
)

func (e *MissingFieldError) Error() string {
	return "torrentfile: missing field " + e.Field
}

func (e *TypeMismatchError) Error() string {
	return "torrentfile: field " + e.Field + " is not a " + e.Expected
}

func (e *BadPiecesLengthError) Error() string {
	return "torrentfile: pieces string has length not divisible by 20"
}

func (e *InconsistentFilesError) Error() string {
	return "torrentfile: info dictionary must have exactly one of length, files"
}

// Open reads a .torrent file fully into memory and parses it.
func Open(path string) (*Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "torrentfile: open")
	}
	return Parse(raw)
}

// Parse interprets a raw bencoded torrent file.
func Parse(raw []byte) (*Descriptor, error) {
	root, _, err := bencode.Decode(raw)
	if err != nil {
		return nil, errors.Wrap(err, "torrentfile: decode")
	}
	if root.Dict == nil {
		return nil, &TypeMismatchError{Field: "root", Expected: "dict"}
	}

	announceVal, ok := root.Dict["announce"]
	if !ok {
		return nil, &MissingFieldError{Field: "announce"}
	}
	announceURL, err := url.Parse(announceVal.Str)
	if err != nil {
		return nil, errors.Wrap(err, "torrentfile: parsing announce url")
	}
	announce := []*url.URL{announceURL}
	if list, ok := root.Dict["announce-list"]; ok && list.List != nil {
		announce = append(announce, flattenAnnounceList(list.List)...)
	}

	infoVal, ok := root.Dict["info"]
	if !ok {
		return nil, &MissingFieldError{Field: "info"}
	}
	if infoVal.Dict == nil {
		return nil, &TypeMismatchError{Field: "info", Expected: "dict"}
	}
	info, err := parseInfo(infoVal.Dict)
	if err != nil {
		return nil, err
	}

	hash, err := bencode.HashInfoDict(raw)
	if err != nil {
		return nil, errors.Wrap(err, "torrentfile: computing info-hash")
	}

	return &Descriptor{
		Announce: announce,
		Info:     *info,
		InfoHash: hash,
	}, nil
}

// flattenAnnounceList flattens a BEP-12 announce-list (a list of tiers,
// each a list of URL strings) into a single fallback-ordered slice,
// skipping entries that fail to parse.
func flattenAnnounceList(tiers []bencode.Value) []*url.URL {
	var urls []*url.URL
	for _, tier := range tiers {
		for _, v := range tier.List {
			if v.Str == "" {
				continue
			}
			u, err := url.Parse(v.Str)
			if err != nil {
				continue
			}
			urls = append(urls, u)
		}
	}
	return urls
}

func parseInfo(dict map[string]bencode.Value) (*Info, error) {
	nameVal, ok := dict["name"]
	if !ok {
		return nil, &MissingFieldError{Field: "info.name"}
	}

	pieceLenVal, ok := dict["piece length"]
	if !ok {
		return nil, &MissingFieldError{Field: "info.piece length"}
	}
	if !pieceLenVal.IsInt || pieceLenVal.Int <= 0 {
		return nil, &TypeMismatchError{Field: "info.piece length", Expected: "positive int"}
	}

	piecesVal, ok := dict["pieces"]
	if !ok {
		return nil, &MissingFieldError{Field: "info.pieces"}
	}
	pieces, err := splitPieces(piecesVal.Str)
	if err != nil {
		return nil, err
	}

	_, hasLength := dict["length"]
	_, hasFiles := dict["files"]
	if hasLength == hasFiles {
		return nil, &InconsistentFilesError{}
	}

	var files []File
	var total int64
	if hasLength {
		lengthVal := dict["length"]
		if !lengthVal.IsInt || lengthVal.Int < 0 {
			return nil, &TypeMismatchError{Field: "info.length", Expected: "non-negative int"}
		}
		total = lengthVal.Int
		files = []File{{Path: nameVal.Str, Length: total, CumOffset: 0}}
	} else {
		filesVal := dict["files"]
		if filesVal.List == nil {
			return nil, &TypeMismatchError{Field: "info.files", Expected: "list"}
		}
		files, total, err = parseFiles(filesVal.List)
		if err != nil {
			return nil, err
		}
	}

	expected := (total + pieceLenVal.Int - 1) / pieceLenVal.Int
	if int64(len(pieces)) != expected {
		return nil, errors.Errorf("torrentfile: expected %d pieces for total size %d at piece length %d, got %d",
			expected, total, pieceLenVal.Int, len(pieces))
	}

	return &Info{
		Name:        nameVal.Str,
		PieceLength: pieceLenVal.Int,
		Pieces:      pieces,
		Files:       files,
		TotalLength: total,
	}, nil
}

func splitPieces(pieces string) ([][hashLength]byte, error) {
	buf := []byte(pieces)
	if len(buf)%hashLength != 0 {
		return nil, &BadPiecesLengthError{Length: len(buf)}
	}
	out := make([][hashLength]byte, len(buf)/hashLength)
	for i := range out {
		copy(out[i][:], buf[i*hashLength:(i+1)*hashLength])
	}
	return out, nil
}

func parseFiles(list []bencode.Value) ([]File, int64, error) {
	files := make([]File, len(list))
	var total int64
	for i, entry := range list {
		if entry.Dict == nil {
			return nil, 0, &TypeMismatchError{Field: "info.files[]", Expected: "dict"}
		}
		lengthVal, ok := entry.Dict["length"]
		if !ok {
			return nil, 0, &MissingFieldError{Field: "info.files[].length"}
		}
		if !lengthVal.IsInt || lengthVal.Int < 0 {
			return nil, 0, &TypeMismatchError{Field: "info.files[].length", Expected: "non-negative int"}
		}
		pathVal, ok := entry.Dict["path"]
		if !ok {
			return nil, 0, &MissingFieldError{Field: "info.files[].path"}
		}
		if len(pathVal.List) == 0 {
			return nil, 0, &TypeMismatchError{Field: "info.files[].path", Expected: "non-empty list"}
		}
		segments := make([]string, len(pathVal.List))
		for j, seg := range pathVal.List {
			segments[j] = seg.Str
		}
		files[i] = File{
			Path:      filepath.Join(segments...),
			Length:    lengthVal.Int,
			CumOffset: total,
		}
		total += lengthVal.Int
	}
	return files, total, nil
}

// VerifyPiece reports whether data hashes to the expected digest for piece i.
func (inf *Info) VerifyPiece(i int, data []byte) bool {
	h := sha1.Sum(data)
	return h == inf.Pieces[i]
}
