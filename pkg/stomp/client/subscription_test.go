package client

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/stompws/pkg/stomp/frame"
	"github.com/tsarna/stompws/pkg/stomp/transport"
)

func TestSubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("generated ids and default ack", func(t *testing.T) {
		c, mt := connectedClient(t)
		before := len(mt.sentFrames(t))

		a, err := c.Subscribe(ctx, "/topic/a", nil)
		require.NoError(t, err)
		b, err := c.Subscribe(ctx, "/topic/b", nil)
		require.NoError(t, err)

		assert.Equal(t, "sub-0", a.ID())
		assert.Equal(t, "/topic/a", a.Destination())
		assert.Equal(t, "sub-1", b.ID())
		assert.Equal(t, 2, c.Subscriptions())

		frames := mt.sentFrames(t)[before:]
		require.Len(t, frames, 2)
		assert.Equal(t, frame.SUBSCRIBE, frames[0].Command)
		assert.Equal(t, map[string]string{"id": "sub-0", "destination": "/topic/a", "ack": "auto"}, frames[0].Header.Map())
	})

	t.Run("caller supplied id and ack mode are kept", func(t *testing.T) {
		c, mt := connectedClient(t)

		sub, err := c.Subscribe(ctx, "/queue/work", frame.NewHeader("id", "worker", "ack", "client-individual", "prefetch-count", "1"))
		require.NoError(t, err)
		assert.Equal(t, "worker", sub.ID())

		frames := mt.sentFrames(t)
		f := frames[len(frames)-1]
		assert.Equal(t, "worker", f.Header.Value(frame.HdrId))
		assert.Equal(t, "client-individual", f.Header.Value(frame.HdrAck))
		assert.Equal(t, "1", f.Header.Value("prefetch-count"))

		got, ok := c.Subscription("worker")
		assert.True(t, ok)
		assert.Same(t, sub, got)
	})

	t.Run("caller header is not modified", func(t *testing.T) {
		c, _ := connectedClient(t)
		h := frame.NewHeader("x", "y")
		_, err := c.Subscribe(ctx, "/topic/a", h)
		require.NoError(t, err)
		assert.Equal(t, []string{"x"}, h.Keys())
	})

	t.Run("messages are routed by subscription id", func(t *testing.T) {
		c, mt := connectedClient(t)

		a, err := c.Subscribe(ctx, "/topic/a", nil)
		require.NoError(t, err)
		b, err := c.Subscribe(ctx, "/topic/b", nil)
		require.NoError(t, err)

		var gotA, gotB []string
		a.Messages().Subscribe(func(m frame.Message) { gotA = append(gotA, m.Body) })
		b.Messages().Subscribe(func(m frame.Message) { gotB = append(gotB, m.Body) })

		require.NoError(t, mt.deliver("MESSAGE\ndestination:/topic/a\nmessage-id:1\nsubscription:"+a.ID()+"\n\nfor a\x00"))
		require.NoError(t, mt.deliver("MESSAGE\ndestination:/topic/b\nmessage-id:2\nsubscription:"+b.ID()+"\n\nfor b\x00"))
		require.NoError(t, mt.deliver("MESSAGE\ndestination:/topic/c\nmessage-id:3\n\nfor nobody\x00"))

		assert.Equal(t, []string{"for a"}, gotA)
		assert.Equal(t, []string{"for b"}, gotB)
	})

	t.Run("subscriptions sharing a destination stay distinct", func(t *testing.T) {
		c, _ := connectedClient(t)

		a, err := c.Subscribe(ctx, "/topic/same", nil)
		require.NoError(t, err)
		b, err := c.Subscribe(ctx, "/topic/same", nil)
		require.NoError(t, err)

		require.NoError(t, c.Unsubscribe(ctx, a))
		_, ok := c.Subscription(a.ID())
		assert.False(t, ok)
		_, ok = c.Subscription(b.ID())
		assert.True(t, ok)
	})

	t.Run("unsubscribe sends UNSUBSCRIBE", func(t *testing.T) {
		c, mt := connectedClient(t)

		sub, err := c.Subscribe(ctx, "/topic/a", nil)
		require.NoError(t, err)
		require.NoError(t, c.Unsubscribe(ctx, sub))

		frames := mt.sentFrames(t)
		f := frames[len(frames)-1]
		assert.Equal(t, frame.UNSUBSCRIBE, f.Command)
		assert.Equal(t, map[string]string{"id": sub.ID()}, f.Header.Map())
		assert.Equal(t, 0, c.Subscriptions())
	})

	t.Run("failed subscribe is not registered", func(t *testing.T) {
		c, _ := newTestClient(t)

		_, err := c.Subscribe(ctx, "/topic/a", nil)
		assert.ErrorIs(t, err, transport.ErrNotOpen)
		assert.Equal(t, 0, c.Subscriptions())
	})
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("begin, commit and abort", func(t *testing.T) {
		c, mt := connectedClient(t)
		before := len(mt.sentFrames(t))

		tx, err := c.Begin(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, "tx-0", tx.ID())
		require.NoError(t, tx.Commit(ctx))

		tx2, err := c.Begin(ctx, "mine")
		require.NoError(t, err)
		assert.Equal(t, "mine", tx2.ID())
		require.NoError(t, tx2.Abort(ctx))

		frames := mt.sentFrames(t)[before:]
		require.Len(t, frames, 4)
		commands := make([]frame.Command, len(frames))
		for i, f := range frames {
			commands[i] = f.Command
		}
		assert.Equal(t, []frame.Command{frame.BEGIN, frame.COMMIT, frame.BEGIN, frame.ABORT}, commands)
		assert.Equal(t, "tx-0", frames[1].Header.Value(frame.HdrTransaction))
		assert.Equal(t, "mine", frames[3].Header.Value(frame.HdrTransaction))
	})

	t.Run("subscriptions and transactions share the counter", func(t *testing.T) {
		c, _ := connectedClient(t)

		sub, err := c.Subscribe(ctx, "/topic/a", nil)
		require.NoError(t, err)
		tx, err := c.Begin(ctx, "")
		require.NoError(t, err)
		sub2, err := c.Subscribe(ctx, "/topic/b", nil)
		require.NoError(t, err)

		assert.Equal(t, "sub-0", sub.ID())
		assert.Equal(t, "tx-1", tx.ID())
		assert.Equal(t, "sub-2", sub2.ID())
	})

	t.Run("ack and nack", func(t *testing.T) {
		c, mt := connectedClient(t)
		before := len(mt.sentFrames(t))

		require.NoError(t, c.Ack(ctx, "m1", ""))
		require.NoError(t, c.Ack(ctx, "m2", "tx-9"))
		require.NoError(t, c.Nack(ctx, "m3", ""))
		require.NoError(t, c.Nack(ctx, "m4", "tx-9"))

		frames := mt.sentFrames(t)[before:]
		require.Len(t, frames, 4)
		assert.Equal(t, frame.ACK, frames[0].Command)
		assert.Equal(t, map[string]string{"id": "m1"}, frames[0].Header.Map())
		assert.Equal(t, map[string]string{"id": "m2", "transaction": "tx-9"}, frames[1].Header.Map())
		assert.Equal(t, frame.NACK, frames[2].Command)
		assert.Equal(t, map[string]string{"id": "m3"}, frames[2].Header.Map())
		assert.Equal(t, map[string]string{"id": "m4", "transaction": "tx-9"}, frames[3].Header.Map())
	})
}

func TestSend(t *testing.T) {
	ctx := context.Background()

	t.Run("SEND frame with byte exact content-length", func(t *testing.T) {
		c, mt := connectedClient(t)

		require.NoError(t, c.Send(ctx, "/queue/a", "my umläüts test!", frame.NewHeader("content-type", "text/plain")))

		payloads := mt.sentPayloads()
		assert.Equal(t, "SEND\ndestination:/queue/a\ncontent-type:text/plain\ncontent-length:18\n\nmy umläüts test!\x00", payloads[len(payloads)-1])
	})

	t.Run("destination cannot be overridden", func(t *testing.T) {
		c, mt := connectedClient(t)

		require.NoError(t, c.Send(ctx, "/queue/a", "x", frame.NewHeader("destination", "/queue/b")))
		frames := mt.sentFrames(t)
		assert.Equal(t, "/queue/a", frames[len(frames)-1].Header.Value(frame.HdrDestination))
	})

	t.Run("send requires an open transport", func(t *testing.T) {
		c, _ := newTestClient(t)
		err := c.Send(ctx, "/queue/a", "x", nil)
		assert.ErrorIs(t, err, transport.ErrNotOpen)
	})
}

func TestChunking(t *testing.T) {
	ctx := context.Background()

	t.Run("large frames are split and reassemble", func(t *testing.T) {
		c, mt := connectedClient(t)
		before := len(mt.sentPayloads())

		body := strings.Repeat("0123456789", 4000)
		require.NoError(t, c.Send(ctx, "/queue/big", body, nil))

		chunks := mt.sentPayloads()[before:]
		require.Len(t, chunks, 3)
		for _, chunk := range chunks[:2] {
			assert.Len(t, chunk, DefaultMaxFrameSize)
		}
		assert.LessOrEqual(t, len(chunks[2]), DefaultMaxFrameSize)

		frames := mt.sentFrames(t)
		f := frames[len(frames)-1]
		assert.Equal(t, frame.SEND, f.Command)
		assert.Equal(t, body, f.Body)
		assert.Equal(t, "40000", f.Header.Value(frame.HdrContentLength))
	})

	t.Run("chunks never split a UTF-8 sequence", func(t *testing.T) {
		mt := newMockTransport()
		c, err := NewClient().WithTransport(mt).WithHeartBeat(HeartBeatConfig{}).WithMaxFrameSize(101).Build()
		require.NoError(t, err)
		require.NoError(t, c.Connect(ctx, Config{}))

		body := strings.Repeat("ä€", 300)
		require.NoError(t, c.Send(ctx, "/queue/utf8", body, nil))

		for _, chunk := range mt.sentPayloads()[1:] {
			assert.LessOrEqual(t, len(chunk), 101)
			assert.True(t, utf8.ValidString(chunk), "chunk %q is not valid UTF-8", chunk)
		}

		frames := mt.sentFrames(t)
		assert.Equal(t, body, frames[len(frames)-1].Body)
	})

	t.Run("chunk length", func(t *testing.T) {
		assert.Equal(t, 4, chunkLength("abcdef", 4))
		assert.Equal(t, 1, chunkLength("aäb", 2))
		assert.Equal(t, 3, chunkLength("aäb", 3))
		assert.Equal(t, 2, chunkLength("€€", 2))
	})
}
