package protocol

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Charset names the wire encoding boundary. CP1252 is NMDC's historical
// default; UTF8 is offered to clients that advertise no legacy encoding
// requirement.
type Charset int

const (
	CharsetCP1252 Charset = iota
	CharsetUTF8
)

func (c Charset) encoding() encoding.Encoding {
	if c == CharsetCP1252 {
		return charmap.Windows1252
	}
	return encoding.Nop
}

// Decode converts wire bytes in the given charset to UTF-8 for internal
// processing (chat storage, logging, console dispatch).
func Decode(raw []byte, cs Charset) ([]byte, error) {
	return cs.encoding().NewDecoder().Bytes(raw)
}

// Encode converts UTF-8 internal text back to the wire charset before
// sending.
func Encode(text []byte, cs Charset) ([]byte, error) {
	return cs.encoding().NewEncoder().Bytes(text)
}
