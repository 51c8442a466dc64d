// Package codec converts between transport binary payloads and text.
package codec

import "unicode/utf8"

// Codec converts binary payloads to text and back.
type Codec interface {
	Decode(b []byte) string
	Encode(s string) []byte
}

// UTF8 is the Codec used by STOMP text frames.
//
// Decode does not replace invalid sequences: a multi-byte character split
// across two transport messages is restored once the pieces are joined.
type UTF8 struct{}

func (UTF8) Decode(b []byte) string {
	return string(b)
}

func (UTF8) Encode(s string) []byte {
	return []byte(s)
}

// ByteLength returns the number of bytes s occupies in UTF-8.
func ByteLength(s string) int {
	return len(s)
}

// Valid reports whether b is complete, well-formed UTF-8.
func Valid(b []byte) bool {
	return utf8.Valid(b)
}
