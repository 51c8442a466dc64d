package client

import (
	"context"

	"github.com/tsarna/stompws/pkg/stomp/frame"
	"github.com/tsarna/stompws/pkg/stomp/stream"
)

// Subscription is an active SUBSCRIBE. Messages is a view of the client's
// message stream restricted to this subscription's id.
type Subscription struct {
	id          string
	destination string
	messages    stream.Observable[frame.Message]
}

func (s *Subscription) ID() string          { return s.id }
func (s *Subscription) Destination() string { return s.destination }

// Messages returns the messages delivered for this subscription.
func (s *Subscription) Messages() stream.Observable[frame.Message] { return s.messages }

// Subscribe sends a SUBSCRIBE frame for destination. The id header of header
// is used as the subscription id if present; otherwise one is generated. The
// ack mode defaults to auto.
func (c *Client) Subscribe(ctx context.Context, destination string, header *frame.Header) (*Subscription, error) {
	h := header.Clone()

	c.mu.Lock()
	id := h.Value(frame.HdrId)
	if id == "" {
		id = c.nextIDLocked("sub")
	}
	h.Set(frame.HdrId, id)

	sub := &Subscription{
		id:          id,
		destination: destination,
		messages: stream.Filter[frame.Message](c.messages, func(m frame.Message) bool {
			subID, err := m.SubscriptionID()
			return err == nil && subID == id
		}),
	}
	c.subscriptions[id] = sub
	c.mu.Unlock()

	h.Set(frame.HdrDestination, destination)
	h.SetDefault(frame.HdrAck, "auto")

	if err := c.transmit(ctx, frame.SUBSCRIBE, h, ""); err != nil {
		c.mu.Lock()
		if c.subscriptions[id] == sub {
			delete(c.subscriptions, id)
		}
		c.mu.Unlock()
		return nil, err
	}

	return sub, nil
}

// Unsubscribe sends an UNSUBSCRIBE frame for sub and forgets it.
func (c *Client) Unsubscribe(ctx context.Context, sub *Subscription) error {
	c.mu.Lock()
	delete(c.subscriptions, sub.id)
	c.mu.Unlock()

	return c.transmit(ctx, frame.UNSUBSCRIBE, frame.NewHeader(frame.HdrId, sub.id), "")
}

// Subscription returns the active subscription with the given id.
func (c *Client) Subscription(id string) (*Subscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subscriptions[id]
	return sub, ok
}

// Subscriptions returns the number of active subscriptions.
func (c *Client) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscriptions)
}
