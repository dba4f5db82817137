// Package bencode implements the bencode encoding used by torrent
// files and tracker responses.
package bencode

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/pkg/errors"
)

// Value is a bencoded value: exactly one of Dict, List, Str or IsInt
// is meaningful, matching the four bencode grammar productions.
type Value struct {
	Dict map[string]Value
	List []Value
	Str  string
	Int  int64
	IsInt bool
}

// Kind reports which bencode production produced v, for error messages.
func (v Value) Kind() string {
	switch {
	case v.Dict != nil:
		return "dict"
	case v.List != nil:
		return "list"
	case v.IsInt:
		return "int"
	default:
		return "string"
	}
}

func (v Value) String() string {
	switch {
	case v.IsInt:
		return strconv.FormatInt(v.Int, 10)
	case v.List != nil:
		return fmt.Sprintf("%+v", v.List)
	case v.Dict != nil:
		return fmt.Sprintf("%+v", v.Dict)
	default:
		return v.Str
	}
}

// decoder is a streaming cursor over a bencoded byte slice.
type decoder struct {
	buf []byte
	pos int
}

// Decode parses a single bencoded value starting at the beginning of
// buf. It returns the value and the number of bytes consumed.
func Decode(buf []byte) (Value, int, error) {
	d := &decoder{buf: buf}
	v, err := d.decodeValue()
	if err != nil {
		return Value{}, 0, err
	}
	return v, d.pos, nil
}

func (d *decoder) errf(format string, args ...any) error {
	return &SyntaxError{Offset: d.pos, Msg: fmt.Sprintf(format, args...)}
}

func (d *decoder) peek() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, &SyntaxError{Offset: d.pos, Msg: "unexpected end of input", Kind: UnexpectedEnd}
	}
	return d.buf[d.pos], nil
}

func (d *decoder) decodeValue() (Value, error) {
	ch, err := d.peek()
	if err != nil {
		return Value{}, err
	}
	switch {
	case ch == 'd':
		return d.decodeDict()
	case ch == 'l':
		return d.decodeList()
	case ch == 'i':
		return d.decodeInt()
	case ch >= '0' && ch <= '9':
		return d.decodeString()
	default:
		return Value{}, &SyntaxError{Offset: d.pos, Msg: fmt.Sprintf("unexpected byte %q", ch), Kind: BadPrefix}
	}
}

func (d *decoder) decodeDict() (Value, error) {
	start := d.pos
	d.pos++ // consume 'd'
	dict := make(map[string]Value)
	for {
		ch, err := d.peek()
		if err != nil {
			return Value{}, &SyntaxError{Offset: start, Msg: "unterminated dictionary", Kind: Unterminated}
		}
		if ch == 'e' {
			d.pos++
			return Value{Dict: dict}, nil
		}
		key, err := d.decodeString()
		if err != nil {
			return Value{}, &SyntaxError{Offset: d.pos, Msg: "dictionary key is not a string", Kind: NonStringKey}
		}
		val, err := d.decodeValue()
		if err != nil {
			return Value{}, err
		}
		dict[key.Str] = val
	}
}

func (d *decoder) decodeList() (Value, error) {
	start := d.pos
	d.pos++ // consume 'l'
	list := []Value{} // non-nil even when empty, so "le" stays a list
	for {
		ch, err := d.peek()
		if err != nil {
			return Value{}, &SyntaxError{Offset: start, Msg: "unterminated list", Kind: Unterminated}
		}
		if ch == 'e' {
			d.pos++
			return Value{List: list}, nil
		}
		val, err := d.decodeValue()
		if err != nil {
			return Value{}, err
		}
		list = append(list, val)
	}
}

func (d *decoder) decodeInt() (Value, error) {
	start := d.pos
	d.pos++ // consume 'i'
	end := bytes.IndexByte(d.buf[d.pos:], 'e')
	if end < 0 {
		return Value{}, &SyntaxError{Offset: start, Msg: "unterminated integer", Kind: Unterminated}
	}
	digits := string(d.buf[d.pos : d.pos+end])
	d.pos += end + 1

	if digits == "" {
		return Value{}, &SyntaxError{Offset: start, Msg: "empty integer", Kind: BadInteger}
	}
	if digits == "-0" {
		return Value{}, &SyntaxError{Offset: start, Msg: "negative zero is not allowed", Kind: BadInteger}
	}
	unsigned := digits
	if digits[0] == '-' {
		unsigned = digits[1:]
	}
	if len(unsigned) > 1 && unsigned[0] == '0' {
		return Value{}, &SyntaxError{Offset: start, Msg: "leading zero in integer", Kind: BadInteger}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return Value{}, &SyntaxError{Offset: start, Msg: "malformed integer: " + err.Error(), Kind: BadInteger}
	}
	return Value{Int: n, IsInt: true}, nil
}

func (d *decoder) decodeString() (Value, error) {
	start := d.pos
	end := bytes.IndexByte(d.buf[d.pos:], ':')
	if end < 0 {
		return Value{}, &SyntaxError{Offset: start, Msg: "malformed string length", Kind: BadLength}
	}
	lengthStr := string(d.buf[d.pos : d.pos+end])
	length, err := strconv.ParseUint(lengthStr, 10, 63)
	if err != nil {
		return Value{}, &SyntaxError{Offset: start, Msg: "malformed string length: " + err.Error(), Kind: BadLength}
	}
	d.pos += end + 1
	if d.pos+int(length) > len(d.buf) {
		return Value{}, &SyntaxError{Offset: start, Msg: "string runs past end of input", Kind: UnexpectedEnd}
	}
	s := string(d.buf[d.pos : d.pos+int(length)])
	d.pos += int(length)
	return Value{Str: s}, nil
}

// Encode renders v as canonical bencode: dictionary keys in ascending
// byte order, list order preserved, canonical decimal integers.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	encodeTo(&buf, v)
	return buf.Bytes()
}

func encodeTo(buf *bytes.Buffer, v Value) {
	switch {
	case v.Dict != nil:
		buf.WriteByte('d')
		for _, k := range slices.Sorted(maps.Keys(v.Dict)) {
			writeString(buf, k)
			encodeTo(buf, v.Dict[k])
		}
		buf.WriteByte('e')
	case v.List != nil:
		buf.WriteByte('l')
		for _, item := range v.List {
			encodeTo(buf, item)
		}
		buf.WriteByte('e')
	case v.IsInt:
		buf.WriteByte('i')
		buf.WriteString(strconv.FormatInt(v.Int, 10))
		buf.WriteByte('e')
	default:
		writeString(buf, v.Str)
	}
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteString(strconv.Itoa(len(s)))
	buf.WriteByte(':')
	buf.WriteString(s)
}

// HashInfoDict finds the top-level "info" key inside a bencoded
// dictionary at raw and returns the SHA-1 of the exact bytes that
// encode that sub-value, without ever decoding and re-encoding it.
// This is strategy (a) from the spec: offset-capture avoids any risk
// of a non-canonical source file producing a different hash on
// round-trip.
func HashInfoDict(raw []byte) ([20]byte, error) {
	d := &decoder{buf: raw}
	ch, err := d.peek()
	if err != nil {
		return [20]byte{}, err
	}
	if ch != 'd' {
		return [20]byte{}, errors.New("bencode: root value is not a dictionary")
	}
	d.pos++
	for {
		ch, err := d.peek()
		if err != nil {
			return [20]byte{}, &SyntaxError{Offset: d.pos, Msg: "unterminated dictionary", Kind: Unterminated}
		}
		if ch == 'e' {
			return [20]byte{}, errors.New("bencode: no \"info\" key found")
		}
		key, err := d.decodeString()
		if err != nil {
			return [20]byte{}, err
		}
		valueStart := d.pos
		if _, err := d.decodeValue(); err != nil {
			return [20]byte{}, err
		}
		if key.Str == "info" {
			return sha1.Sum(d.buf[valueStart:d.pos]), nil
		}
	}
}
