package signaling

import (
	"encoding/json"
	"testing"
)

func TestBusPublishInSubscriptionOrder(t *testing.T) {
	b := NewBus()
	var got []int
	b.Subscribe("x", func(Event) { got = append(got, 1) })
	b.Subscribe("x", func(Event) { got = append(got, 2) })
	b.Subscribe("y", func(Event) { got = append(got, 99) })

	b.Publish(Event{Type: "x"})
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("got %v", got)
	}
}

func TestBusUnsubscribeOnce(t *testing.T) {
	b := NewBus()
	calls := 0
	unsub := b.Subscribe("x", func(Event) { calls++ })
	keep := b.Subscribe("x", func(Event) {})
	defer keep()

	unsub()
	unsub()
	b.Publish(Event{Type: "x"})
	if calls != 0 {
		t.Fatalf("handler ran after unsubscribe")
	}
	if n := b.Handlers("x"); n != 1 {
		t.Fatalf("handlers = %d, want 1", n)
	}
}

func TestEventDecode(t *testing.T) {
	ev := Event{Type: "pong", Raw: json.RawMessage(`{"type":"pong","n":3}`)}
	var v struct {
		N int `json:"n"`
	}
	if err := ev.Decode(&v); err != nil || v.N != 3 {
		t.Fatalf("decode = %+v, %v", v, err)
	}
}
