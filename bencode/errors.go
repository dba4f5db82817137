package bencode

// ErrorKind classifies a structural bencode parse failure.
type ErrorKind int

const (
	// UnknownError is the zero value; never produced by this package.
	UnknownError ErrorKind = iota
	UnexpectedEnd
	BadPrefix
	BadInteger
	BadLength
	NonStringKey
	Unterminated
)

// SyntaxError is a structural parse error carrying the byte offset at
// which parsing failed.
type SyntaxError struct {
	Offset int
	Msg    string
	Kind   ErrorKind
}

func (e *SyntaxError) Error() string {
	return e.Msg
}
