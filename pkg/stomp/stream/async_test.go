package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	values []int
	delay  time.Duration
}

func (r *recorder) observe(v int) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]int, len(r.values))
	copy(res, r.values)
	return res
}

func TestAsyncObserver(t *testing.T) {
	t.Run("delivers in order off the publishing goroutine", func(t *testing.T) {
		rec := &recorder{}
		async := NewAsyncObserver(rec.observe, 10).Start()

		s := NewSubject[int]()
		s.Subscribe(async.Observer())
		for i := 0; i < 5; i++ {
			s.Publish(i)
		}

		require.Eventually(t, func() bool { return len(rec.snapshot()) == 5 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, []int{0, 1, 2, 3, 4}, rec.snapshot())
		require.NoError(t, async.Close())
	})

	t.Run("close drains queued values", func(t *testing.T) {
		rec := &recorder{delay: 5 * time.Millisecond}
		async := NewAsyncObserver(rec.observe, 10).Start()
		for i := 0; i < 5; i++ {
			require.NoError(t, async.Next(i))
		}

		require.NoError(t, async.Close())
		assert.Equal(t, []int{0, 1, 2, 3, 4}, rec.snapshot())
	})

	t.Run("full queue reports and counts drops", func(t *testing.T) {
		rec := &recorder{}
		async := NewAsyncObserver(rec.observe, 1)

		require.NoError(t, async.Next(1))
		assert.ErrorIs(t, async.Next(2), ErrQueueFull)

		async.Observer()(3)
		assert.Equal(t, int64(2), async.Dropped())
	})

	t.Run("closed observer rejects values", func(t *testing.T) {
		async := NewAsyncObserver(func(int) {}, 1).Start()
		require.NoError(t, async.Close())
		require.NoError(t, async.Close())

		assert.True(t, async.IsClosed())
		assert.ErrorIs(t, async.Next(1), ErrObserverClosed)
		assert.Equal(t, int64(1), async.Dropped())
	})

	t.Run("default queue size", func(t *testing.T) {
		async := NewAsyncObserver(func(int) {}, 0)
		assert.Equal(t, 100, cap(async.queue))
	})
}
