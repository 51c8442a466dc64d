package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/stompws/pkg/stomp/frame"
)

func TestWaitReceipt(t *testing.T) {
	ctx := context.Background()

	t.Run("receipt arrives after the frame", func(t *testing.T) {
		c, mt := connectedClient(t)

		require.NoError(t, c.Send(ctx, "/queue/a", "x", frame.NewHeader(frame.HdrReceipt, "r-1")))

		done := make(chan *frame.Frame, 1)
		go func() {
			f, err := c.WaitReceipt(ctx, "r-1")
			assert.NoError(t, err)
			done <- f
		}()

		require.NoError(t, mt.deliver("RECEIPT\nreceipt-id:r-1\n\n\x00"))

		select {
		case f := <-done:
			require.NotNil(t, f)
			assert.Equal(t, "r-1", f.Header.Value(frame.HdrReceiptId))
		case <-time.After(time.Second):
			t.Fatal("receipt not delivered")
		}
	})

	t.Run("receipt that arrived before waiting", func(t *testing.T) {
		c, mt := connectedClient(t)
		mt.reply = func(f *frame.Frame) string {
			if id := f.Header.Value(frame.HdrReceipt); id != "" {
				return "RECEIPT\nreceipt-id:" + id + "\n\n\x00"
			}
			return ""
		}

		_, err := c.Subscribe(ctx, "/topic/a", frame.NewHeader(frame.HdrReceipt, "sub-receipt"))
		require.NoError(t, err)

		f, err := c.WaitReceipt(ctx, "sub-receipt")
		require.NoError(t, err)
		assert.Equal(t, frame.RECEIPT, f.Command)

		// A receipt is only handed out once.
		_, err = c.WaitReceipt(ctx, "sub-receipt")
		assert.ErrorIs(t, err, ErrUnknownReceipt)
	})

	t.Run("unknown receipt", func(t *testing.T) {
		c, _ := connectedClient(t)
		_, err := c.WaitReceipt(ctx, "never-sent")
		assert.ErrorIs(t, err, ErrUnknownReceipt)
	})

	t.Run("duplicate pending receipt id", func(t *testing.T) {
		c, _ := connectedClient(t)
		require.NoError(t, c.Send(ctx, "/queue/a", "1", frame.NewHeader(frame.HdrReceipt, "dup")))
		err := c.Send(ctx, "/queue/a", "2", frame.NewHeader(frame.HdrReceipt, "dup"))
		assert.ErrorIs(t, err, ErrDuplicateReceipt)
	})

	t.Run("failed send releases the receipt id", func(t *testing.T) {
		c, mt := connectedClient(t)
		mt.mu.Lock()
		mt.sendErr = errors.New("boom")
		mt.mu.Unlock()

		err := c.Send(ctx, "/queue/a", "x", frame.NewHeader(frame.HdrReceipt, "r1"))
		require.Error(t, err)
		_, err = c.WaitReceipt(ctx, "r1")
		assert.ErrorIs(t, err, ErrUnknownReceipt)

		mt.mu.Lock()
		mt.sendErr = nil
		mt.mu.Unlock()
		require.NoError(t, c.Send(ctx, "/queue/a", "x", frame.NewHeader(frame.HdrReceipt, "r1")))
	})

	t.Run("unclaimed receipts are bounded", func(t *testing.T) {
		c, mt := connectedClient(t)
		mt.reply = func(f *frame.Frame) string {
			if id := f.Header.Value(frame.HdrReceipt); id != "" {
				return "RECEIPT\nreceipt-id:" + id + "\n\n\x00"
			}
			return ""
		}

		for i := 0; i < maxUnclaimedReceipts+10; i++ {
			id := fmt.Sprintf("r-%d", i)
			require.NoError(t, c.Send(ctx, "/queue/a", "x", frame.NewHeader(frame.HdrReceipt, id)))
		}

		c.mu.Lock()
		assert.Len(t, c.receipts, maxUnclaimedReceipts)
		c.mu.Unlock()

		_, err := c.WaitReceipt(ctx, "r-0")
		assert.ErrorIs(t, err, ErrUnknownReceipt)

		last := fmt.Sprintf("r-%d", maxUnclaimedReceipts+9)
		f, err := c.WaitReceipt(ctx, last)
		require.NoError(t, err)
		assert.Equal(t, last, f.Header.Value(frame.HdrReceiptId))
	})

	t.Run("connection loss fails pending receipts", func(t *testing.T) {
		c, mt := connectedClient(t)
		require.NoError(t, c.Send(ctx, "/queue/a", "x", frame.NewHeader(frame.HdrReceipt, "lost")))

		mt.drop(nil)

		_, err := c.WaitReceipt(ctx, "lost")
		assert.ErrorIs(t, err, ErrConnectionLost)
	})

	t.Run("context ends the wait", func(t *testing.T) {
		c, _ := connectedClient(t)
		require.NoError(t, c.Send(ctx, "/queue/a", "x", frame.NewHeader(frame.HdrReceipt, "slow")))

		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := c.WaitReceipt(waitCtx, "slow")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
