package frame

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCommand      = errors.New("unknown STOMP command")
	ErrMissingCommand      = errors.New("missing STOMP command")
	ErrUnterminatedHeaders = errors.New("header block is not terminated by a blank line")
	ErrMalformedHeader     = errors.New("malformed header line")
	ErrUnsupportedPayload  = errors.New("unsupported payload type")
	ErrMissingHeader       = errors.New("required header is missing")
)

// MissingHeaderError is returned by the required-header accessors of Message.
type MissingHeaderError struct {
	Header  string
	Command Command
}

func (e *MissingHeaderError) Error() string {
	return fmt.Sprintf("the required header %s was not present in the %s frame", e.Header, e.Command)
}

func (e *MissingHeaderError) Unwrap() error {
	return ErrMissingHeader
}

// ParseError reports a single frame chunk that could not be parsed.
type ParseError struct {
	Chunk string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse frame: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
