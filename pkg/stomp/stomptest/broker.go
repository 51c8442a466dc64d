// Package stomptest provides an in-process STOMP broker over WebSocket for
// tests, in the spirit of net/http/httptest.
package stomptest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	ws "github.com/coder/websocket"
	"github.com/tsarna/stompws/pkg/stomp/frame"
)

// Broker is a minimal STOMP 1.2 broker. It answers CONNECT, routes SEND
// frames to subscriptions with the same destination and confirms every frame
// that asks for a receipt.
type Broker struct {
	*httptest.Server

	// URL is the ws:// URL of the broker.
	URL string

	// HeartBeat is sent in the CONNECTED frame's heart-beat header when set.
	HeartBeat string
	// Login, when set, is required in CONNECT frames.
	Login string

	mu       sync.Mutex
	received []*frame.Frame
	subs     map[*session]map[string]string // session -> id -> destination
	seq      int
}

type session struct {
	conn *ws.Conn
	id   int
}

// NewBroker starts a broker. Close it when done.
func NewBroker() *Broker {
	b := &Broker{subs: make(map[*session]map[string]string)}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	b.URL = "ws" + strings.TrimPrefix(b.Server.URL, "http")
	return b
}

// Received returns the frames the broker has received so far.
func (b *Broker) Received() []*frame.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*frame.Frame(nil), b.received...)
}

// Commands returns the commands of the frames received so far.
func (b *Broker) Commands() []frame.Command {
	frames := b.Received()
	cmds := make([]frame.Command, len(frames))
	for i, f := range frames {
		cmds[i] = f.Command
	}
	return cmds
}

// Subscriptions returns the number of active subscriptions.
func (b *Broker) Subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, subs := range b.subs {
		n += len(subs)
	}
	return n
}

// Publish delivers a message to every subscription on destination.
func (b *Broker) Publish(ctx context.Context, destination, body string, header *frame.Header) {
	b.route(ctx, destination, body, header)
}

// Drop closes every client connection without a STOMP goodbye.
func (b *Broker) Drop() {
	b.mu.Lock()
	sessions := make([]*session, 0, len(b.subs))
	for s := range b.subs {
		sessions = append(sessions, s)
	}
	b.mu.Unlock()

	for _, s := range sessions {
		s.conn.Close(ws.StatusGoingAway, "broker going away")
	}
}

func (b *Broker) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{Subprotocols: []string{"v12.stomp", "v11.stomp"}})
	if err != nil {
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	b.mu.Lock()
	b.seq++
	s := &session{conn: conn, id: b.seq}
	b.subs[s] = make(map[string]string)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
	}()

	ctx := r.Context()
	assembler := frame.NewAssembler(nil)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		frames, err := assembler.Feed(data)
		if err != nil {
			b.write(ctx, s, frame.New(frame.ERROR, frame.NewHeader(frame.HdrMessage, "malformed frame received"), err.Error()))
			return
		}

		for _, f := range frames {
			if !b.handle(ctx, s, f) {
				return
			}
		}
	}
}

// handle processes one frame and reports whether the session continues.
func (b *Broker) handle(ctx context.Context, s *session, f *frame.Frame) bool {
	b.mu.Lock()
	b.received = append(b.received, f)
	b.mu.Unlock()

	switch f.Command {
	case frame.CONNECT:
		if b.Login != "" && f.Header.Value(frame.HdrLogin) != b.Login {
			b.write(ctx, s, frame.New(frame.ERROR, frame.NewHeader(frame.HdrMessage, "Bad CONNECT"), "Access refused for user '"+f.Header.Value(frame.HdrLogin)+"'"))
			return false
		}
		h := frame.NewHeader(
			frame.HdrVersion, "1.2",
			frame.HdrServer, "stomptest/1.0",
			frame.HdrSession, "session-"+strconv.Itoa(s.id),
		)
		if b.HeartBeat != "" {
			h.Set(frame.HdrHeartBeat, b.HeartBeat)
		}
		b.write(ctx, s, frame.New(frame.CONNECTED, h, ""))

	case frame.SUBSCRIBE:
		b.mu.Lock()
		b.subs[s][f.Header.Value(frame.HdrId)] = f.Header.Value(frame.HdrDestination)
		b.mu.Unlock()

	case frame.UNSUBSCRIBE:
		b.mu.Lock()
		delete(b.subs[s], f.Header.Value(frame.HdrId))
		b.mu.Unlock()

	case frame.SEND:
		h := f.Header.Clone()
		h.Del(frame.HdrReceipt)
		h.Del(frame.HdrContentLength)
		b.route(ctx, f.Header.Value(frame.HdrDestination), f.Body, h)
	}

	if receipt := f.Header.Value(frame.HdrReceipt); receipt != "" {
		b.write(ctx, s, frame.New(frame.RECEIPT, frame.NewHeader(frame.HdrReceiptId, receipt), ""))
	}

	if f.Command == frame.DISCONNECT {
		s.conn.Close(ws.StatusNormalClosure, "")
		return false
	}
	return true
}

func (b *Broker) route(ctx context.Context, destination, body string, header *frame.Header) {
	type target struct {
		s  *session
		id string
	}

	b.mu.Lock()
	var targets []target
	for s, subs := range b.subs {
		for id, dest := range subs {
			if dest == destination {
				targets = append(targets, target{s, id})
			}
		}
	}
	b.seq++
	msgID := strconv.Itoa(b.seq)
	b.mu.Unlock()

	for _, t := range targets {
		h := frame.NewHeader(
			frame.HdrDestination, destination,
			frame.HdrMessageId, msgID,
			frame.HdrSubscription, t.id,
		)
		header.Each(func(k, v string) { h.SetDefault(k, v) })
		b.write(ctx, t.s, frame.New(frame.MESSAGE, h, body))
	}
}

func (b *Broker) write(ctx context.Context, s *session, f *frame.Frame) {
	s.conn.Write(ctx, ws.MessageText, []byte(frame.Serialize(f)))
}
