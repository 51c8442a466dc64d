// Package client implements the client side of the STOMP 1.2 protocol over a
// transport.Transport: the CONNECT handshake, heart-beating, subscriptions,
// transactions, acknowledgements and receipts.
//
// Inbound frames are published on four streams (Connected, Messages,
// Receipts, Errors). Observers run on the transport's read goroutine in
// receive order; slow observers should be wrapped in a stream.AsyncObserver.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tsarna/stompws/pkg/stomp/frame"
	"github.com/tsarna/stompws/pkg/stomp/stream"
	"github.com/tsarna/stompws/pkg/stomp/transport"
	"go.uber.org/zap"
)

// AcceptVersion is sent in the CONNECT frame.
const AcceptVersion = "1.2"

// Version10 is the protocol version that has no heart-beating.
const Version10 = "1.0"

// DefaultMaxFrameSize is the largest transport message the client writes.
// Bigger frames are split over several messages.
const DefaultMaxFrameSize = 16 * 1024

// State is the client's position in the connection lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// HeartBeatConfig is the client's heart-beat preference. Zero disables a
// direction.
type HeartBeatConfig struct {
	Outgoing time.Duration
	Incoming time.Duration
}

// Config is passed to Connect. Login and Passcode, when set, are added to
// Headers as the login and passcode headers.
type Config struct {
	Headers  *frame.Header
	Login    string
	Passcode string
}

// connectHeader returns the caller supplied CONNECT headers.
func (cfg Config) connectHeader() *frame.Header {
	h := cfg.Headers.Clone()
	if cfg.Login != "" {
		h.Set(frame.HdrLogin, cfg.Login)
	}
	if cfg.Passcode != "" {
		h.Set(frame.HdrPasscode, cfg.Passcode)
	}
	return h
}

// Client is a STOMP client bound to one transport.
type Client struct {
	// Configuration
	transport    transport.Transport
	logger       *zap.Logger
	heartBeat    HeartBeatConfig
	host         string
	maxFrameSize int
	metrics      *Metrics

	// Protocol state
	mu             sync.Mutex
	state          State
	conn           *connection
	assembler      *frame.Assembler
	counter        int
	subscriptions  map[string]*Subscription
	receipts       map[string]*Receipt
	unclaimed      []*Receipt
	heartbeat      *heartbeat
	lastActivity   time.Time
	connectedFrame *frame.Frame

	// writeMu keeps the chunks of one frame and heart-beats from interleaving.
	writeMu sync.Mutex

	connected *stream.Subject[*frame.Frame]
	messages  *stream.Subject[frame.Message]
	receiptCh *stream.Subject[*frame.Frame]
	errorCh   *stream.Subject[frame.ErrorFrame]
}

// connection is the transport.Handler for one Connect call. Disconnect
// detaches it so the explicit close is not reported as a lost connection.
type connection struct {
	c        *Client
	cfg      Config
	detached bool // guarded by c.mu
	openErr  error
}

// URL returns the transport's URL.
func (c *Client) URL() string {
	return c.transport.URL()
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether a CONNECTED frame has been received on the
// current connection.
func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

// ConnectedFrame returns the CONNECTED frame of the current session, or nil.
func (c *Client) ConnectedFrame() *frame.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedFrame
}

// Connected publishes every CONNECTED frame.
func (c *Client) Connected() stream.Observable[*frame.Frame] { return c.connected }

// Messages publishes every MESSAGE frame, for all subscriptions.
func (c *Client) Messages() stream.Observable[frame.Message] { return c.messages }

// Receipts publishes every RECEIPT frame.
func (c *Client) Receipts() stream.Observable[*frame.Frame] { return c.receiptCh }

// Errors publishes ERROR frames from the broker and synthesized error frames
// for lost connections.
func (c *Client) Errors() stream.Observable[frame.ErrorFrame] { return c.errorCh }

// Connect opens the transport and sends the CONNECT frame once it is open.
// It returns when the frame has been sent; the CONNECTED reply arrives on the
// Connected stream. Use ConnectAndWait to block until the session is
// established.
func (c *Client) Connect(ctx context.Context, cfg Config) error {
	c.mu.Lock()
	if c.state == Connecting || c.state == Connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	conn := &connection{c: c, cfg: cfg}
	c.conn = conn
	c.state = Connecting
	c.connectedFrame = nil
	c.assembler.Reset()
	c.receipts = make(map[string]*Receipt)
	c.unclaimed = nil
	c.lastActivity = time.Now()
	c.mu.Unlock()

	c.logger.Info("Opening transport", zap.String("url", c.URL()))

	opened := true
	err := c.transport.Open(ctx, conn)
	if err != nil {
		opened = false
	} else {
		err = conn.openErr
	}
	if err == nil {
		return nil
	}

	c.mu.Lock()
	if c.conn == conn {
		conn.detached = true
		c.conn = nil
		c.state = Disconnected
	}
	c.mu.Unlock()

	if opened {
		c.transport.Close()
	}
	return fmt.Errorf("failed to connect to %s: %w", c.URL(), err)
}

// ConnectAndWait connects and waits for the CONNECTED frame. An ERROR frame
// or lost connection before that is returned as an error.
func (c *Client) ConnectAndWait(ctx context.Context, cfg Config) (*frame.Frame, error) {
	connected := make(chan *frame.Frame, 1)
	failed := make(chan frame.ErrorFrame, 1)

	connSub := c.connected.Subscribe(func(f *frame.Frame) {
		select {
		case connected <- f:
		default:
		}
	})
	defer connSub.Unsubscribe()

	errSub := c.errorCh.Subscribe(func(ef frame.ErrorFrame) {
		select {
		case failed <- ef:
		default:
		}
	})
	defer errSub.Unsubscribe()

	if err := c.Connect(ctx, cfg); err != nil {
		return nil, err
	}

	select {
	case f := <-connected:
		return f, nil
	case ef := <-failed:
		return nil, fmt.Errorf("connect to %s failed: %s", c.URL(), ef.ErrorMessage())
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Disconnect sends a DISCONNECT frame with header, closes the transport and
// then calls done, which may be nil. The close is not reported on the Errors
// stream.
func (c *Client) Disconnect(ctx context.Context, header *frame.Header, done func()) error {
	c.mu.Lock()
	conn := c.conn
	if conn != nil {
		conn.detached = true
	}
	c.conn = nil
	c.state = Closed
	c.connectedFrame = nil
	c.cleanupLocked()
	c.mu.Unlock()

	var err error
	if conn != nil {
		c.logger.Info("Disconnecting", zap.String("url", c.URL()))
		err = c.transmit(ctx, frame.DISCONNECT, header, "")
		if closeErr := c.transport.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}
	c.metrics.recordConnected(ctx, false)

	if done != nil {
		done()
	}
	return err
}

// cleanupLocked stops the heart-beat timers and fails pending receipts.
// c.mu must be held.
func (c *Client) cleanupLocked() {
	c.stopHeartbeatLocked()
	for _, r := range c.receipts {
		r.fail(ErrConnectionLost)
	}
}

func (conn *connection) OnOpen() {
	c := conn.c
	c.logger.Info("Transport opened, attempting to connect to STOMP now", zap.String("url", c.URL()))

	h := frame.NewHeader(
		frame.HdrAcceptVersion, AcceptVersion,
		frame.HdrHost, c.host,
	)
	h.Update(conn.cfg.connectHeader())

	conn.openErr = c.transmit(context.Background(), frame.CONNECT, h, "")
}

func (conn *connection) OnMessage(payload any) error {
	c := conn.c

	c.mu.Lock()
	if conn.detached {
		c.mu.Unlock()
		return nil
	}
	c.lastActivity = time.Now()
	frames, parseErr := c.assembler.Feed(payload)
	c.mu.Unlock()

	ctx := context.Background()
	if parseErr != nil {
		c.metrics.recordParseError(ctx)
	}

	var errs []error
	for _, f := range frames {
		c.metrics.recordFrameReceived(ctx, f.Command)
		if err := c.handleFrame(conn, f); err != nil {
			errs = append(errs, err)
		}
	}
	if parseErr != nil {
		errs = append(errs, parseErr)
	}
	return errors.Join(errs...)
}

func (conn *connection) OnClose(err error) {
	c := conn.c

	c.mu.Lock()
	if conn.detached || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Closed
	c.connectedFrame = nil
	c.cleanupLocked()
	c.mu.Unlock()

	c.metrics.recordConnected(context.Background(), false)

	message := fmt.Sprintf("WS: Lost connection to %s", c.URL())
	c.logger.Warn(message, zap.Error(err))
	c.errorCh.Publish(frame.NewErrorFrame(message, nil))
}

// handleFrame dispatches one inbound frame.
func (c *Client) handleFrame(conn *connection, f *frame.Frame) error {
	switch f.Command {
	case frame.CONNECTED:
		c.mu.Lock()
		if conn.detached {
			c.mu.Unlock()
			return nil
		}
		c.state = Connected
		c.connectedFrame = f
		c.setupHeartbeatLocked(f)
		c.mu.Unlock()

		c.logger.Info("Connected to STOMP server",
			zap.String("url", c.URL()),
			zap.String("server", f.Header.Value(frame.HdrServer)),
			zap.String("version", f.Header.Value(frame.HdrVersion)))
		c.metrics.recordConnected(context.Background(), true)
		c.connected.Publish(f)

	case frame.MESSAGE:
		c.logger.Debug("Received message",
			zap.String("destination", f.Header.Value(frame.HdrDestination)),
			zap.String("subscription", f.Header.Value(frame.HdrSubscription)))
		c.messages.Publish(frame.NewMessage(f))

	case frame.RECEIPT:
		c.resolveReceipt(f)
		c.receiptCh.Publish(f)

	case frame.ERROR:
		ef := frame.NewErrorFrame("", f)
		c.logger.Warn("Error frame received",
			zap.String("message", ef.ErrorMessage()),
			zap.String("detail", ef.ErrorDetail()))
		c.errorCh.Publish(ef)

	default:
		return &ProtocolViolationError{Command: f.Command}
	}

	return nil
}

// transmit serializes a frame and writes it, split into pieces of at most
// maxFrameSize bytes. Pieces never split a UTF-8 sequence.
func (c *Client) transmit(ctx context.Context, cmd frame.Command, header *frame.Header, body string) (retErr error) {
	f := frame.New(cmd, header, body)
	if receiptID, ok := f.GetHeader(frame.HdrReceipt); ok && receiptID != "" {
		r, err := c.expectReceipt(receiptID)
		if err != nil {
			return err
		}
		defer func() {
			if retErr != nil {
				c.forgetReceipt(r)
			}
		}()
	}

	out := frame.Serialize(f)
	size := len(out)
	c.logger.Debug("Sending frame", zap.Stringer("command", cmd), zap.Int("bytes", size))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	chunks := 0
	for len(out) > c.maxFrameSize {
		n := chunkLength(out, c.maxFrameSize)
		if err := c.transport.Send(ctx, out[:n]); err != nil {
			return fmt.Errorf("failed to send %s frame: %w", cmd, err)
		}
		out = out[n:]
		chunks++
		c.logger.Debug("Buffer remaining", zap.Int("bytes", len(out)))
	}
	if err := c.transport.Send(ctx, out); err != nil {
		return fmt.Errorf("failed to send %s frame: %w", cmd, err)
	}
	chunks++

	c.metrics.recordFrameSent(ctx, cmd, size, chunks)
	return nil
}

// chunkLength returns the largest n <= limit such that s[:n] ends on a rune
// boundary.
func chunkLength(s string, limit int) int {
	n := limit
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	if n == 0 {
		return limit
	}
	return n
}

// nextIDLocked returns the next "<prefix>-<n>" id. Subscriptions and transactions
// share the counter. c.mu must be held.
func (c *Client) nextIDLocked(prefix string) string {
	id := fmt.Sprintf("%s-%d", prefix, c.counter)
	c.counter++
	return id
}
