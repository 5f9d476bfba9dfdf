// Package events fans bot notices (plugin loads, plugin errors) out to
// in-process listeners such as the admin event stream.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/EchoPBX/nimbus/pkg/sdk"
)

const subscriberBuffer = 64

type subscription struct {
	types map[string]struct{} // nil accepts every notice
}

func (s *subscription) wants(typ string) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[typ]
	return ok
}

// Bus delivers notices to subscribers. A subscriber whose buffer is full
// misses the notice; Publish never blocks.
type Bus struct {
	mu      sync.RWMutex
	subs    map[chan sdk.Notice]*subscription
	dropped atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan sdk.Notice]*subscription)}
}

// Subscribe returns a channel receiving notices whose Type is one of types,
// or every notice when types is empty.
func (b *Bus) Subscribe(types ...string) chan sdk.Notice {
	sub := &subscription{}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	ch := make(chan sdk.Notice, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = sub
	b.mu.Unlock()
	return ch
}

// Unsubscribe closes ch. Calling it again is a no-op.
func (b *Bus) Unsubscribe(ch chan sdk.Notice) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(n sdk.Notice) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, sub := range b.subs {
		if !sub.wants(n.Type) {
			continue
		}
		select {
		case ch <- n:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber
// was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }
