package client

import (
	"errors"
	"fmt"

	"github.com/tsarna/stompws/pkg/stomp/frame"
)

var (
	// ErrProtocolViolation is wrapped by *ProtocolViolationError.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrAlreadyConnected is returned by Connect while a connection is
	// being established or is established.
	ErrAlreadyConnected = errors.New("client is already connected")
	// ErrConnectionLost is returned by WaitReceipt when the connection ends
	// before the receipt arrives.
	ErrConnectionLost = errors.New("connection lost")
	// ErrUnknownReceipt is returned by WaitReceipt for a receipt id that was
	// never requested.
	ErrUnknownReceipt = errors.New("unknown receipt")
	// ErrDuplicateReceipt is returned when a receipt id is requested while a
	// previous request with the same id is still pending.
	ErrDuplicateReceipt = errors.New("receipt id already pending")
)

// ProtocolViolationError reports an inbound frame whose command a client must
// never receive, such as SEND.
type ProtocolViolationError struct {
	Command frame.Command
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("not supported STOMP command '%s'", e.Command)
}

func (e *ProtocolViolationError) Unwrap() error {
	return ErrProtocolViolation
}
