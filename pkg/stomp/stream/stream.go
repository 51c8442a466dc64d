// Package stream provides push-based, multi-subscriber, order-preserving
// event streams used to surface frames to applications.
package stream

import "sync"

// Observer receives the values published on a stream.
type Observer[T any] func(T)

// Subscription cancels an observer registration. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Observable is a source of values that observers can subscribe to.
// Observers only see values published after they subscribed.
type Observable[T any] interface {
	Subscribe(fn Observer[T]) Subscription
}

type registration[T any] struct {
	id uint64
	fn Observer[T]
}

// Subject is an Observable that values are published into. Observers are
// called synchronously, in subscription order, on the publishing goroutine.
// Values reach each observer in the order they were published as long as
// Publish is not called concurrently.
type Subject[T any] struct {
	mu        sync.RWMutex
	nextID    uint64
	observers []registration[T]
}

func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{}
}

func (s *Subject[T]) Subscribe(fn Observer[T]) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, registration[T]{id: id, fn: fn})

	var once sync.Once
	return unsubscribeFunc(func() {
		once.Do(func() { s.remove(id) })
	})
}

func (s *Subject[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.observers {
		if r.id == id {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}

// Publish delivers v to every current observer. Observers may subscribe or
// unsubscribe from within their callback.
func (s *Subject[T]) Publish(v T) {
	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()

	for _, r := range observers {
		r.fn(v)
	}
}

// Len returns the number of registered observers.
func (s *Subject[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observers)
}

// Replay is a Subject that remembers the most recent value and hands it to
// every new observer on subscription. A new observer sees the replayed value
// before any value published after it. Observers must not publish to or
// subscribe to the same Replay from within their callback.
type Replay[T any] struct {
	subject Subject[T]
	// seq orders replay to new observers against Publish.
	seq    sync.Mutex
	mu     sync.Mutex
	latest T
	has    bool
}

func NewReplay[T any]() *Replay[T] {
	return &Replay[T]{}
}

func (r *Replay[T]) Subscribe(fn Observer[T]) Subscription {
	r.seq.Lock()
	defer r.seq.Unlock()

	latest, has := r.Latest()
	sub := r.subject.Subscribe(fn)
	if has {
		fn(latest)
	}
	return sub
}

func (r *Replay[T]) Publish(v T) {
	r.seq.Lock()
	defer r.seq.Unlock()

	r.mu.Lock()
	r.latest, r.has = v, true
	r.mu.Unlock()

	r.subject.Publish(v)
}

// Latest returns the most recently published value, if any.
func (r *Replay[T]) Latest() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, r.has
}

type filtered[T any] struct {
	source Observable[T]
	keep   func(T) bool
}

// Filter returns a lazy view of source that only passes values for which keep
// returns true. The view holds no state of its own.
func Filter[T any](source Observable[T], keep func(T) bool) Observable[T] {
	return &filtered[T]{source: source, keep: keep}
}

func (f *filtered[T]) Subscribe(fn Observer[T]) Subscription {
	return f.source.Subscribe(func(v T) {
		if f.keep(v) {
			fn(v)
		}
	})
}

type unsubscribeFunc func()

func (u unsubscribeFunc) Unsubscribe() { u() }
