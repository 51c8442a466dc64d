// Package websocket implements transport.Transport on top of
// github.com/coder/websocket.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
	"github.com/tsarna/stompws/pkg/stomp/transport"
	"go.uber.org/zap"
)

// FaultHandler is told about errors a Handler returned from OnMessage.
type FaultHandler func(err error)

// Transport is a transport.Transport over a single WebSocket connection.
// It can be reopened after the connection has ended.
type Transport struct {
	// Configuration
	url          string
	protocols    []string
	dialTimeout  time.Duration
	readLimit    int64
	headers      http.Header
	logger       *zap.Logger
	faultHandler FaultHandler

	// Connection state
	conn     *ws.Conn
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
	started  int32
	stopping int32
}

var _ transport.Transport = (*Transport)(nil)

// URL returns the absolute WebSocket URL the transport dials.
func (t *Transport) URL() string {
	return t.url
}

// Protocol returns the subprotocol negotiated for the open connection, or ""
// if none was negotiated.
func (t *Transport) Protocol() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ""
	}
	return t.conn.Subprotocol()
}

// Open dials the endpoint, calls h.OnOpen and starts the read loop.
func (t *Transport) Open(ctx context.Context, h transport.Handler) error {
	if !atomic.CompareAndSwapInt32(&t.started, 0, 1) {
		return transport.ErrAlreadyOpen
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, t.dialTimeout)
	defer dialCancel()

	dialOptions := &ws.DialOptions{
		Subprotocols: t.protocols,
	}
	if len(t.headers) > 0 {
		dialOptions.HTTPHeader = t.headers.Clone()
	}

	t.logger.Info("Opening WebSocket transport", zap.String("url", t.url), zap.Strings("protocols", t.protocols))

	conn, _, err := ws.Dial(dialCtx, t.url, dialOptions)
	if err != nil {
		atomic.StoreInt32(&t.started, 0)
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}
	if t.readLimit > 0 {
		conn.SetReadLimit(t.readLimit)
	}

	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	done := make(chan struct{})

	t.mu.Lock()
	t.conn = conn
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()
	atomic.StoreInt32(&t.stopping, 0)

	t.logger.Info("WebSocket transport open", zap.String("url", t.url), zap.String("protocol", conn.Subprotocol()))

	h.OnOpen()
	go t.readLoop(readCtx, conn, h, done)

	return nil
}

// Send writes payload as a single text message.
func (t *Transport) Send(ctx context.Context, payload string) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil || atomic.LoadInt32(&t.stopping) == 1 {
		return transport.ErrNotOpen
	}

	if err := conn.Write(ctx, ws.MessageText, []byte(payload)); err != nil {
		t.logger.Error("Failed to write to WebSocket", zap.String("url", t.url), zap.Error(err))
		return fmt.Errorf("failed to write to WebSocket: %w", err)
	}
	return nil
}

// Close performs the WebSocket close handshake. It does not wait for the
// handler's OnClose, which follows from the read loop.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn, cancel := t.conn, t.cancel
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&t.stopping, 0, 1) {
		return nil // Already stopping
	}

	t.logger.Info("Closing WebSocket transport", zap.String("url", t.url))

	if err := conn.Close(ws.StatusNormalClosure, "client disconnect"); err != nil {
		t.logger.Debug("WebSocket close handshake incomplete", zap.String("url", t.url), zap.Error(err))
	}
	cancel()

	return nil
}

// Done returns a channel that is closed once the current connection's read
// loop has finished and OnClose has returned. It returns nil if the transport
// was never opened.
func (t *Transport) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *Transport) readLoop(ctx context.Context, conn *ws.Conn, h transport.Handler, done chan struct{}) {
	defer close(done)

	var closeErr error
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if atomic.LoadInt32(&t.stopping) == 0 && ctx.Err() == nil {
				t.logger.Error("Failed to read from WebSocket", zap.String("url", t.url), zap.Error(err))
				closeErr = err
			}
			break
		}

		var payload any = data
		if typ == ws.MessageText {
			payload = string(data)
		}

		if err := h.OnMessage(payload); err != nil {
			t.logger.Warn("Handler rejected WebSocket message", zap.String("url", t.url), zap.Error(err))
			if t.faultHandler != nil {
				t.faultHandler(err)
			}
		}
	}

	t.cleanup(conn)
	h.OnClose(closeErr)
}

// cleanup releases the connection and resets the transport so it can be
// opened again.
func (t *Transport) cleanup(conn *ws.Conn) {
	conn.CloseNow()

	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.conn = nil
	t.mu.Unlock()

	atomic.StoreInt32(&t.stopping, 0)
	atomic.StoreInt32(&t.started, 0)
}
