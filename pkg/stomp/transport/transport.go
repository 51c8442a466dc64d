// Package transport defines the duplex channel a STOMP client runs over and
// the helpers used to turn user supplied endpoint addresses into WebSocket
// URLs.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrNotOpen is returned by Send when the transport has no open connection.
	ErrNotOpen = errors.New("transport is not open")
	// ErrAlreadyOpen is returned by Open when a connection is already active.
	ErrAlreadyOpen = errors.New("transport is already open")
	// ErrInvalidURL is returned when an endpoint URL cannot be used for a
	// WebSocket connection.
	ErrInvalidURL = errors.New("invalid websocket url")
)

// Handler receives the transport's events. Events for one connection are
// delivered serially from a single goroutine, in the order they occur.
type Handler interface {
	// OnOpen is called once the connection has been established and Send may
	// be used.
	OnOpen()

	// OnMessage is called for every message received. payload is a string
	// for text messages and a []byte for binary messages. A returned error is
	// reported by the transport but does not close the connection.
	OnMessage(payload any) error

	// OnClose is called exactly once when the connection ends. err is nil
	// when the connection was closed locally through Close.
	OnClose(err error)
}

// Transport is a message oriented duplex channel, typically a WebSocket.
type Transport interface {
	// URL identifies the remote endpoint for diagnostics.
	URL() string

	// Open establishes the connection and starts delivering events to h.
	// OnOpen is called before Open returns.
	Open(ctx context.Context, h Handler) error

	// Send writes one text message. It fails with ErrNotOpen if there is no
	// open connection. Messages from one goroutine are delivered in order.
	Send(ctx context.Context, payload string) error

	// Close ends the connection. The handler's OnClose is still called.
	Close() error
}

// HandlerFuncs adapts plain functions to the Handler interface. Nil fields
// are ignored.
type HandlerFuncs struct {
	Open    func()
	Message func(payload any) error
	Close   func(err error)
}

func (h HandlerFuncs) OnOpen() {
	if h.Open != nil {
		h.Open()
	}
}

func (h HandlerFuncs) OnMessage(payload any) error {
	if h.Message != nil {
		return h.Message(payload)
	}
	return nil
}

func (h HandlerFuncs) OnClose(err error) {
	if h.Close != nil {
		h.Close(err)
	}
}
