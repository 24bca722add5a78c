package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tinyland-inc/huddle/pkg/logger"
	"github.com/tinyland-inc/huddle/pkg/wire"
)

// Handler receives one inbound frame.
type Handler func(wire.Frame)

type listenerSlot struct {
	id      string
	fn      Handler
	removed atomic.Bool
}

// registry maps frame types to ordered listener lists. Multiple
// listeners may subscribe to the same type; all of them see every
// matching frame, in registration order.
type registry struct {
	mu    sync.Mutex
	slots map[wire.FrameType][]*listenerSlot
}

func newRegistry() *registry {
	return &registry{slots: make(map[wire.FrameType][]*listenerSlot)}
}

// on registers fn for frameType and returns its unsubscribe func.
// Unsubscribing marks the slot dead immediately, so a removal racing a
// dispatch wins against any not-yet-started callback.
func (r *registry) on(frameType wire.FrameType, fn Handler) func() {
	slot := &listenerSlot{id: uuid.New().String(), fn: fn}

	r.mu.Lock()
	r.slots[frameType] = append(r.slots[frameType], slot)
	r.mu.Unlock()

	return func() {
		slot.removed.Store(true)
		r.mu.Lock()
		list := r.slots[frameType]
		for i, s := range list {
			if s.id == slot.id {
				r.slots[frameType] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
	}
}

// dispatch delivers frame to every listener registered for its type.
// A panicking listener is logged and skipped; it never blocks delivery
// to the listeners behind it.
func (r *registry) dispatch(frame wire.Frame) {
	r.mu.Lock()
	list := r.slots[frame.Type]
	snapshot := make([]*listenerSlot, len(list))
	copy(snapshot, list)
	r.mu.Unlock()

	for _, slot := range snapshot {
		if slot.removed.Load() {
			continue
		}
		invoke(slot, frame)
	}
}

func invoke(slot *listenerSlot, frame wire.Frame) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorCF("session", "Listener panicked", map[string]any{
				"frame_type": string(frame.Type),
				"panic":      fmt.Sprintf("%v", rec),
			})
		}
	}()
	slot.fn(frame)
}
