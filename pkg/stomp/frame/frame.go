package frame

import (
	"encoding/json"
	"fmt"
)

// Frame is one STOMP protocol unit. An empty Body means the frame has no body.
type Frame struct {
	Command Command
	Header  *Header
	Body    string
}

// New builds a frame with its own copy of header, so later changes to the
// caller's header do not leak into the frame.
func New(command Command, header *Header, body string) *Frame {
	return &Frame{
		Command: command,
		Header:  header.Clone(),
		Body:    body,
	}
}

// GetHeader returns the value of the header named key.
func (f *Frame) GetHeader(key string) (string, bool) {
	return f.Header.Get(key)
}

// RequiredHeader returns the value of the header named key, or a
// *MissingHeaderError if it is absent or empty.
func (f *Frame) RequiredHeader(key string) (string, error) {
	v, ok := f.Header.Get(key)
	if !ok || v == "" {
		return "", &MissingHeaderError{Header: key, Command: f.Command}
	}
	return v, nil
}

// SetHeader stores a header value on the frame.
func (f *Frame) SetHeader(key, value string) {
	if f.Header == nil {
		f.Header = &Header{}
	}
	f.Header.Set(key, value)
}

// HasBody reports whether the frame carries a body.
func (f *Frame) HasBody() bool {
	return f.Body != ""
}

// BodyJSON decodes the body as JSON into v.
func (f *Frame) BodyJSON(v any) error {
	if !f.HasBody() {
		return fmt.Errorf("%s frame has no body", f.Command)
	}
	return json.Unmarshal([]byte(f.Body), v)
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	return New(f.Command, f.Header, f.Body)
}

func (f *Frame) String() string {
	return fmt.Sprintf("{Command: %s, Header: %v, Body: %d bytes}", f.Command, f.Header.Map(), len(f.Body))
}
