package notify

import "sync"

// Hub fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Hub[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

// Subscription is a handle returned by Subscribe. Unsubscribe must be called
// when the consumer goes away; it is safe to call more than once.
type Subscription[T any] struct {
	hub  *Hub[T]
	ch   chan T
	once sync.Once
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Subscribe registers a subscriber with the given buffer size. Subscribing
// to a closed hub returns a subscription whose channel is already closed.
func (h *Hub[T]) Subscribe(buf int) *Subscription[T] {
	s := &Subscription[T]{hub: h, ch: make(chan T, buf)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Publish delivers ev to every subscriber that has room for it.
func (h *Hub[T]) Publish(ev T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Later publishes are dropped.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		s.once.Do(func() { close(s.ch) })
	}
}

// C returns the delivery channel. It is closed after Unsubscribe or when
// the hub closes.
func (s *Subscription[T]) C() <-chan T { return s.ch }

func (s *Subscription[T]) Unsubscribe() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}
