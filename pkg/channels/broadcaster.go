package channels

import (
	"errors"
	"sync"
	"time"
)

// ErrBroadcasterClosed is returned when subscribing to a closed Broadcaster.
var ErrBroadcasterClosed = errors.New("broadcaster closed")

// subscriber holds an owned channel and its send timeout configuration.
type subscriber[T any] struct {
	id      uint64
	ch      chan T
	timeout time.Duration // zero means non-blocking
}

func (s *subscriber[T]) send(msg T) {
	// Owned channels are only closed under the write lock, so a failed send
	// here is a full buffer or an expired timeout and the message is dropped.
	if s.timeout > 0 {
		_ = SendWithTimeout(s.ch, msg, s.timeout)
		return
	}
	_ = SendNonBlock(s.ch, msg)
}

// Broadcaster delivers every published message to all current subscribers.
//
// Subscribers may join and leave at any time. Messages are sent using the
// subscriber's strategy:
// - Non-blocking (Open): messages are dropped if the channel is full
// - With timeout (OpenWithTimeout): messages are dropped if the send times out
//
// Publish never blocks on a non-blocking subscriber, so a slow reader cannot
// stall the producer.
type Broadcaster[T any] struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber[T]
	nextID uint64
	closed bool
}

// NewBroadcaster creates a new Broadcaster for messages of type T.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[uint64]*subscriber[T])}
}

// Open creates a buffered channel owned by the broadcaster. Messages that do
// not fit in the buffer are dropped. The cancel func unsubscribes and closes
// the channel; Close does the same for every open subscription. Cancel is
// safe to call more than once.
func (b *Broadcaster[T]) Open(buffer int) (<-chan T, func(), error) {
	return b.open(buffer, 0)
}

// OpenWithTimeout is Open for readers that must not miss messages while they
// are briefly busy: each send waits up to timeout for buffer space before the
// message is dropped. Publish blocks for at most that long per slow reader.
func (b *Broadcaster[T]) OpenWithTimeout(buffer int, timeout time.Duration) (<-chan T, func(), error) {
	if timeout <= 0 {
		return nil, nil, errors.New("subscriber timeout must be positive")
	}
	return b.open(buffer, timeout)
}

func (b *Broadcaster[T]) open(buffer int, timeout time.Duration) (<-chan T, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, nil, ErrBroadcasterClosed
	}

	b.nextID++
	s := &subscriber[T]{id: b.nextID, ch: make(chan T, buffer), timeout: timeout}
	b.subs[s.id] = s

	var once sync.Once
	return s.ch, func() {
		once.Do(func() { b.remove(s.id) })
	}, nil
}

func (b *Broadcaster[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(s.ch)
}

// Publish sends msg to every subscriber. It is a no-op after Close.
func (b *Broadcaster[T]) Publish(msg T) {
	// Holding the read lock keeps owned channels from being closed mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		s.send(msg)
	}
}

// Close drops all subscriptions and closes their channels.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
}
