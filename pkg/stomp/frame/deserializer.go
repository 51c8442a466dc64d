package frame

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tsarna/stompws/pkg/stomp/codec"
	"go.uber.org/zap"
)

var (
	frameTerminator      = regexp.MustCompile("\x00\n*")
	frameTerminatorAtEnd = regexp.MustCompile("\x00\n*$")
	headerBlockEnd       = regexp.MustCompile("\r?\n\r?\n")
)

// FrameBuffer is the result of one deserialization pass.
type FrameBuffer struct {
	Frames []*Frame
	// Partial is an unterminated trailing fragment. It must be prepended to
	// the next payload before that payload is deserialized.
	Partial string
}

// Empty reports whether the buffer holds neither frames nor a partial fragment.
func (b *FrameBuffer) Empty() bool {
	return len(b.Frames) == 0 && b.Partial == ""
}

// Deserializer parses transport payloads into frames.
type Deserializer struct {
	codec  codec.Codec
	logger *zap.Logger
}

// NewDeserializer creates a Deserializer that decodes binary payloads as UTF-8.
func NewDeserializer(logger *zap.Logger) *Deserializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deserializer{
		codec:  codec.UTF8{},
		logger: logger,
	}
}

// Decode turns a transport payload into text. Accepted payloads are string
// and []byte; anything else fails with ErrUnsupportedPayload.
func (d *Deserializer) Decode(payload any) (string, error) {
	switch v := payload.(type) {
	case string:
		return v, nil
	case []byte:
		d.logger.Debug("Got binary message", zap.Int("length", len(v)))
		return d.codec.Decode(v), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedPayload, payload)
	}
}

// DeserializeMessage parses one transport payload. It does not carry partial
// fragments between calls; see Assembler for that.
func (d *Deserializer) DeserializeMessage(payload any) (*FrameBuffer, error) {
	data, err := d.Decode(payload)
	if err != nil {
		return nil, err
	}
	return d.DeserializeText(data)
}

// DeserializeText parses already-decoded text. A chunk that fails to parse
// is skipped: the returned buffer still holds every other frame and the
// trailing partial, and the error joins one *ParseError per bad chunk.
func (d *Deserializer) DeserializeText(data string) (*FrameBuffer, error) {
	buf := &FrameBuffer{}

	if data == LF {
		d.logger.Debug("Got heart-beat")
		return buf, nil
	}

	var errs []error
	chunks := frameTerminator.Split(data, -1)
	for _, chunk := range chunks[:len(chunks)-1] {
		if err := d.appendFrame(buf, chunk); err != nil {
			errs = append(errs, err)
		}
	}

	last := chunks[len(chunks)-1]
	switch {
	case strings.TrimLeft(last, "\r\n") == "":
		// nothing left, or only heart-beat line terminators
	case frameTerminatorAtEnd.MatchString(last):
		if err := d.appendFrame(buf, last); err != nil {
			errs = append(errs, err)
		}
	default:
		buf.Partial = last
	}
	return buf, errors.Join(errs...)
}

func (d *Deserializer) appendFrame(buf *FrameBuffer, chunk string) error {
	f, err := parseFrame(chunk)
	if err != nil {
		d.logger.Warn("Failed to parse frame", zap.String("chunk", chunk), zap.Error(err))
		return &ParseError{Chunk: chunk, Err: err}
	}
	if f != nil {
		buf.Frames = append(buf.Frames, f)
	}
	return nil
}

// parseFrame parses one chunk that had its terminator removed. A chunk made
// only of line terminators is a heart-beat and yields a nil frame.
func parseFrame(chunk string) (*Frame, error) {
	chunk = strings.TrimLeft(chunk, "\r\n")
	if chunk == "" {
		return nil, nil
	}

	loc := headerBlockEnd.FindStringIndex(chunk)
	if loc == nil {
		return nil, ErrUnterminatedHeaders
	}

	lines := strings.Split(chunk[:loc[0]], LF)
	command, err := ParseCommand(strings.TrimSpace(lines[0]))
	if err != nil {
		return nil, err
	}

	header := &Header{}
	for _, line := range lines[1:] {
		line = strings.TrimSuffix(line, "\r")
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		// the topmost occurrence of a key wins
		header.SetDefault(strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]))
	}

	body := chunk[loc[1]:]
	if end := strings.IndexByte(body, 0); end >= 0 {
		body = body[:end]
	}

	return &Frame{Command: command, Header: header, Body: body}, nil
}
