package stream

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrQueueFull      = errors.New("observer queue is full")
	ErrObserverClosed = errors.New("observer is closed")
)

// AsyncObserver wraps an Observer and delivers values to it from a background
// goroutine through a bounded queue, so a slow observer does not stall the
// publisher. Values keep their publish order.
//
//	async := stream.NewAsyncObserver(printMessage, 100).Start()
//	defer async.Close()
//	sub := client.Messages().Subscribe(async.Observer())
//
// Close must be called to stop the goroutine; values still queued are
// delivered before Close returns.
type AsyncObserver[T any] struct {
	wrapped   Observer[T]
	queue     chan T
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	dropped   atomic.Int64
}

func NewAsyncObserver[T any](wrapped Observer[T], queueSize int) *AsyncObserver[T] {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &AsyncObserver[T]{
		wrapped: wrapped,
		queue:   make(chan T, queueSize),
		done:    make(chan struct{}),
	}
}

// Start begins delivering queued values.
func (a *AsyncObserver[T]) Start() *AsyncObserver[T] {
	a.wg.Add(1)
	go a.processQueue()
	return a
}

func (a *AsyncObserver[T]) processQueue() {
	defer a.wg.Done()

	for {
		select {
		case v := <-a.queue:
			a.wrapped(v)
		case <-a.done:
			a.drainQueue()
			return
		}
	}
}

func (a *AsyncObserver[T]) drainQueue() {
	for {
		select {
		case v := <-a.queue:
			a.wrapped(v)
		default:
			return
		}
	}
}

// Next queues v and returns immediately. Values that cannot be queued are
// counted in Dropped.
func (a *AsyncObserver[T]) Next(v T) error {
	if a.IsClosed() {
		a.dropped.Add(1)
		return ErrObserverClosed
	}

	select {
	case a.queue <- v:
		return nil
	default:
		a.dropped.Add(1)
		return ErrQueueFull
	}
}

// Observer returns an Observer that queues into a, ignoring errors.
func (a *AsyncObserver[T]) Observer() Observer[T] {
	return func(v T) {
		_ = a.Next(v)
	}
}

// Dropped returns how many values could not be queued.
func (a *AsyncObserver[T]) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops the background goroutine after delivering queued values.
func (a *AsyncObserver[T]) Close() error {
	a.closeOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
	})
	return nil
}

func (a *AsyncObserver[T]) IsClosed() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}
