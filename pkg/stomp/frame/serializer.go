package frame

import (
	"strconv"
	"strings"

	"github.com/tsarna/stompws/pkg/stomp/codec"
)

const (
	// LF is the line terminator and, sent alone, the heart-beat no-op.
	LF = "\n"
	// NULL terminates every frame.
	NULL = "\x00"
)

// Serialize returns the exact wire text of f. When f has a body, the written
// content-length header is the UTF-8 byte length of the body, replacing any
// value f carries. f itself is not modified.
func Serialize(f *Frame) string {
	header := f.Header.Clone()
	if f.HasBody() {
		header.Set(HdrContentLength, strconv.Itoa(codec.ByteLength(f.Body)))
	}

	var b strings.Builder
	b.Grow(len(f.Body) + 64)
	b.WriteString(f.Command.String())
	b.WriteString(LF)
	header.Each(func(key, value string) {
		b.WriteString(key)
		b.WriteByte(':')
		b.WriteString(value)
		b.WriteString(LF)
	})
	b.WriteString(LF)
	b.WriteString(f.Body)
	b.WriteString(NULL)
	return b.String()
}
