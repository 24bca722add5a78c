package session

import (
	"sync"
	"sync/atomic"
)

// Signal is a process-wide broadcast carried outside the listener
// registry, for UI-level reactions that outlive any single screen.
type Signal string

const (
	// SignalPermissionsChangedByAdmin instructs dependents to force a
	// full logout: an administrator changed the current user's access
	// while the session was live.
	SignalPermissionsChangedByAdmin Signal = "permissions_changed_by_admin"
	// SignalChannelsUpdated instructs dependents to reload the channel
	// list from the REST API. The session itself does not refetch.
	SignalChannelsUpdated Signal = "channels_updated"
)

// Broadcaster fans signals out to every subscriber. Delivery is
// best-effort: a subscriber that stops draining its channel loses
// signals rather than blocking the dispatcher.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]chan Signal
	nextID uint64
	done   chan struct{}
	closed atomic.Bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[uint64]chan Signal),
		done: make(chan struct{}),
	}
}

// Subscribe returns a signal channel and its cancel func. The channel
// is closed on cancel or when the broadcaster shuts down.
func (b *Broadcaster) Subscribe() (<-chan Signal, func()) {
	ch := make(chan Signal, 8)

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers s to every subscriber without blocking.
func (b *Broadcaster) Publish(s Signal) {
	if b.closed.Load() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Close shuts the broadcaster down and closes all subscriber channels.
func (b *Broadcaster) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	close(b.done)

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
