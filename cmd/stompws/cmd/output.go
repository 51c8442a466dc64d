package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/tsarna/stompws/pkg/stomp/frame"
	"github.com/tsarna/stompws/pkg/stomp/transform"
	"github.com/tsarna/stompws/pkg/stomp/stream"
	"go.uber.org/zap"
)

// Acker acknowledges messages. *client.Client implements it.
type Acker interface {
	Ack(ctx context.Context, id, transaction string) error
	Nack(ctx context.Context, id, transaction string) error
}

// printer writes received messages to out, optionally stopping after limit
// messages.
type printer struct {
	out    io.Writer
	raw    bool
	acker  Acker
	logger *zap.Logger

	mu      sync.Mutex
	limit   int
	printed int
	done    chan struct{}
}

func newPrinter(out io.Writer, raw bool, limit int, logger *zap.Logger) *printer {
	return &printer{
		out:    out,
		raw:    raw,
		limit:  limit,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Done is closed once limit messages have been printed.
func (p *printer) Done() <-chan struct{} {
	return p.done
}

// delivery is a message queued for printing with the transforms of the
// subscription it arrived on. A non-nil acker overrides the printer's.
type delivery struct {
	msg        frame.Message
	transforms []transform.MessageTransformFunc
	acker      Acker
}

func (p *printer) deliver(d delivery) {
	acker := d.acker
	if acker == nil {
		acker = p.acker
	}
	p.printAck(d.msg, d.transforms, acker)
}

// reject handles a delivery that could not be queued. It is logged, and
// nacked when acknowledgements are in use so the broker can redeliver it.
func (p *printer) reject(d delivery, err error) {
	id := ackID(d.msg)
	p.logger.Warn("Dropping message", zap.String("id", id), zap.Error(err))

	acker := d.acker
	if acker == nil {
		acker = p.acker
	}
	if acker == nil {
		return
	}
	if err := acker.Nack(context.Background(), id, ""); err != nil {
		p.logger.Warn("Failed to nack message", zap.String("id", id), zap.Error(err))
	}
}

// closeQueue stops async after it delivers what is queued, and reports how
// many messages it dropped.
func closeQueue(async *stream.AsyncObserver[delivery], logger *zap.Logger) {
	async.Close()
	if n := async.Dropped(); n > 0 {
		logger.Warn("Messages dropped because the output queue was full", zap.Int64("count", n))
	}
}

// print outputs m through transforms and acknowledges it when an acker is
// set. Dropped messages are acknowledged too.
func (p *printer) print(m frame.Message, transforms []transform.MessageTransformFunc) {
	p.printAck(m, transforms, p.acker)
}

func (p *printer) printAck(m frame.Message, transforms []transform.MessageTransformFunc, acker Acker) {
	if acker != nil {
		defer func() {
			if err := acker.Ack(context.Background(), ackID(m), ""); err != nil {
				p.logger.Warn("Failed to acknowledge message", zap.String("id", ackID(m)), zap.Error(err))
			}
		}()
	}

	msg := transform.ApplyTransforms(transform.FromFrame(m), transforms)
	if msg == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.limit > 0 && p.printed >= p.limit {
		return
	}

	if p.raw {
		fmt.Fprintln(p.out, msg.String())
	} else {
		fmt.Fprintf(p.out, "%s\t%s\n", msg.Destination, msg.String())
	}

	p.printed++
	if p.limit > 0 && p.printed == p.limit {
		close(p.done)
	}
}

// ackID returns the id to acknowledge m with: the ack header in STOMP 1.2,
// the message-id before that.
func ackID(m frame.Message) string {
	if id, ok := m.GetHeader(frame.HdrAck); ok {
		return id
	}
	id, _ := m.MessageID()
	return id
}
