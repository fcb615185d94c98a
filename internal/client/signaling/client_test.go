package signaling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// echoServer replies to every frame with the same frame and records the auth header.
func echoServer(t *testing.T, gotAuth chan<- string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case gotAuth <- r.Header.Get("Authorization"):
		default:
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRoundTripInOrder(t *testing.T) {
	auth := make(chan string, 1)
	srv := echoServer(t, auth)

	bus := NewBus()
	var mu sync.Mutex
	var seen []int
	done := make(chan struct{})
	bus.Subscribe("ping", func(ev Event) {
		var v struct {
			N int `json:"n"`
		}
		_ = ev.Decode(&v)
		mu.Lock()
		seen = append(seen, v.N)
		if len(seen) == 5 {
			close(done)
		}
		mu.Unlock()
	})

	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), "tok", bus)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	for i := 0; i < 5; i++ {
		if err := c.Send(map[string]any{"type": "ping", "n": i}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("echo not received")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, n := range seen {
		if n != i {
			t.Fatalf("out of order: %v", seen)
		}
	}
	if got := <-auth; got != "Bearer tok" {
		t.Fatalf("auth header = %q", got)
	}
}

func TestClientSendAfterClose(t *testing.T) {
	srv := echoServer(t, make(chan string, 1))
	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), "", NewBus())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c.Close()
	c.Close()
	if err := c.Send(map[string]string{"type": "ping"}); err != ErrClosed {
		t.Fatalf("send after close = %v", err)
	}
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read pump did not stop")
	}
}
