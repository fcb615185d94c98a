package signaling

import (
	"encoding/json"
	"sort"
	"sync"
)

// Event is one decoded server frame.
type Event struct {
	Type string
	Raw  json.RawMessage
}

func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Raw, v)
}

type Handler func(Event)

// Unsubscribe removes a handler. Calling it more than once is safe.
type Unsubscribe func()

// Bus routes events to handlers subscribed by event type.
type Bus struct {
	mu   sync.RWMutex
	next uint64
	subs map[string]map[uint64]Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[uint64]Handler)}
}

func (b *Bus) Subscribe(kind string, h Handler) Unsubscribe {
	b.mu.Lock()
	b.next++
	id := b.next
	if b.subs[kind] == nil {
		b.subs[kind] = make(map[uint64]Handler)
	}
	b.subs[kind][id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[kind], id)
			if len(b.subs[kind]) == 0 {
				delete(b.subs, kind)
			}
			b.mu.Unlock()
		})
	}
}

// Publish calls the handlers of ev.Type in subscription order on the caller's goroutine.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := b.subs[ev.Type]
	ids := make([]uint64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		handlers = append(handlers, subs[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Handlers reports how many handlers are subscribed to kind.
func (b *Bus) Handlers(kind string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}
