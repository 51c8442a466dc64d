package client

import (
	"context"
	"fmt"

	"github.com/tsarna/stompws/pkg/stomp/frame"
)

// Receipt tracks a frame sent with a receipt header until the broker's
// RECEIPT arrives.
type Receipt struct {
	id    string
	done  chan struct{}
	frame *frame.Frame
	err   error
}

func newReceipt(id string) *Receipt {
	return &Receipt{id: id, done: make(chan struct{})}
}

// resolve and fail are called with c.mu held.
func (r *Receipt) resolve(f *frame.Frame) {
	select {
	case <-r.done:
	default:
		r.frame = f
		close(r.done)
	}
}

func (r *Receipt) fail(err error) {
	select {
	case <-r.done:
	default:
		r.err = err
		close(r.done)
	}
}

// maxUnclaimedReceipts bounds how many resolved receipts are kept for a
// later WaitReceipt. Older ones are evicted first.
const maxUnclaimedReceipts = 32

// expectReceipt registers a pending receipt. It is called for every frame
// sent with a receipt header, before the frame is written.
func (c *Client) expectReceipt(id string) (*Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.receipts == nil {
		c.receipts = make(map[string]*Receipt)
	}
	if r, ok := c.receipts[id]; ok {
		select {
		case <-r.done:
		default:
			return nil, fmt.Errorf("%w: %s", ErrDuplicateReceipt, id)
		}
	}
	r := newReceipt(id)
	c.receipts[id] = r
	return r, nil
}

// forgetReceipt removes r if it is still the receipt registered for its id.
func (c *Client) forgetReceipt(r *Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forgetReceiptLocked(r)
}

func (c *Client) forgetReceiptLocked(r *Receipt) {
	if c.receipts[r.id] == r {
		delete(c.receipts, r.id)
	}
}

func (c *Client) resolveReceipt(f *frame.Frame) {
	id := f.Header.Value(frame.HdrReceiptId)

	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.receipts[id]
	if !ok {
		return
	}
	r.resolve(f)

	c.unclaimed = append(c.unclaimed, r)
	for len(c.unclaimed) > maxUnclaimedReceipts {
		c.forgetReceiptLocked(c.unclaimed[0])
		c.unclaimed = c.unclaimed[1:]
	}
}

// WaitReceipt blocks until the RECEIPT for a frame sent with receipt header
// receiptID arrives, the connection is lost, or ctx ends.
func (c *Client) WaitReceipt(ctx context.Context, receiptID string) (*frame.Frame, error) {
	c.mu.Lock()
	r, ok := c.receipts[receiptID]
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReceipt, receiptID)
	}

	select {
	case <-r.done:
		c.forgetReceipt(r)
		return r.frame, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
