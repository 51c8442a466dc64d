package client

import (
	"context"

	"github.com/tsarna/stompws/pkg/stomp/frame"
)

// Transaction is a handle on a transaction started with Begin.
type Transaction struct {
	id     string
	client *Client
}

func (t *Transaction) ID() string { return t.id }

// Commit sends COMMIT for the transaction.
func (t *Transaction) Commit(ctx context.Context) error {
	return t.client.Commit(ctx, t.id)
}

// Abort sends ABORT for the transaction.
func (t *Transaction) Abort(ctx context.Context) error {
	return t.client.Abort(ctx, t.id)
}

// Begin sends a BEGIN frame. An empty id is replaced with a generated one.
func (c *Client) Begin(ctx context.Context, id string) (*Transaction, error) {
	if id == "" {
		c.mu.Lock()
		id = c.nextIDLocked("tx")
		c.mu.Unlock()
	}

	if err := c.transmit(ctx, frame.BEGIN, frame.NewHeader(frame.HdrTransaction, id), ""); err != nil {
		return nil, err
	}
	return &Transaction{id: id, client: c}, nil
}

// Commit sends a COMMIT frame for transaction.
func (c *Client) Commit(ctx context.Context, transaction string) error {
	return c.transmit(ctx, frame.COMMIT, frame.NewHeader(frame.HdrTransaction, transaction), "")
}

// Abort sends an ABORT frame for transaction.
func (c *Client) Abort(ctx context.Context, transaction string) error {
	return c.transmit(ctx, frame.ABORT, frame.NewHeader(frame.HdrTransaction, transaction), "")
}

// Ack acknowledges the message with the given ack id, optionally as part of
// transaction.
func (c *Client) Ack(ctx context.Context, id, transaction string) error {
	return c.transmit(ctx, frame.ACK, ackHeader(id, transaction), "")
}

// Nack rejects the message with the given ack id, optionally as part of
// transaction.
func (c *Client) Nack(ctx context.Context, id, transaction string) error {
	return c.transmit(ctx, frame.NACK, ackHeader(id, transaction), "")
}

func ackHeader(id, transaction string) *frame.Header {
	h := frame.NewHeader(frame.HdrId, id)
	if transaction != "" {
		h.Set(frame.HdrTransaction, transaction)
	}
	return h
}

// Send sends body to destination. Headers in header are added after the
// destination header, which they cannot override.
func (c *Client) Send(ctx context.Context, destination, body string, header *frame.Header) error {
	h := frame.NewHeader(frame.HdrDestination, destination)
	header.Each(func(key, value string) {
		h.SetDefault(key, value)
	})
	return c.transmit(ctx, frame.SEND, h, body)
}
