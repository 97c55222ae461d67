// Package publisher implements the latched name-list broadcast.
package publisher

import "sync"

// Latch is a latched single-slot broadcast. Every subscriber receives the
// latest value on subscription and then each newer value; a slow subscriber
// only ever sees the most recent one it has not consumed.
type Latch[T any] struct {
	mu     sync.Mutex
	latest T
	set    bool
	subs   map[*subscription[T]]struct{}
	closed bool
}

type subscription[T any] struct {
	ch chan T
}

func NewLatch[T any]() *Latch[T] {
	return &Latch[T]{subs: make(map[*subscription[T]]struct{})}
}

// Publish replaces the latched value and offers it to every subscriber.
func (l *Latch[T]) Publish(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.latest = v
	l.set = true
	for s := range l.subs {
		offer(s.ch, v)
	}
}

// Latest returns the latched value and whether anything was published.
func (l *Latch[T]) Latest() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest, l.set
}

// Subscribe returns a channel carrying the latest value and an unsubscribe
// func. The channel is closed on unsubscribe or Close.
func (l *Latch[T]) Subscribe() (<-chan T, func()) {
	s := &subscription[T]{ch: make(chan T, 1)}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	if l.set {
		s.ch <- l.latest
	}
	l.subs[s] = struct{}{}
	l.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if _, ok := l.subs[s]; ok {
				delete(l.subs, s)
				close(s.ch)
			}
		})
	}
}

// Close closes every subscriber channel. Later publishes are dropped.
func (l *Latch[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	for s := range l.subs {
		delete(l.subs, s)
		close(s.ch)
	}
}

// offer replaces any unread value in ch with v. Callers hold the latch lock,
// so no other sender races for the slot.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
