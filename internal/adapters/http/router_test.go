package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mustafaciftc/sesli-sohbet/internal/admission"
	"github.com/mustafaciftc/sesli-sohbet/internal/app"
	"github.com/mustafaciftc/sesli-sohbet/internal/app/orch"
	"github.com/mustafaciftc/sesli-sohbet/internal/auth"
	"github.com/mustafaciftc/sesli-sohbet/internal/config"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"go.uber.org/mock/gomock"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T, capacity int) (*httptest.Server, *orch.Orchestrator) {
	t.Helper()
	cfg := &config.Config{
		Mode:       "test",
		ReadLimit:  32 << 10,
		PingPeriod: time.Minute,
		PongWait:   2 * time.Minute,
		WriteWait:  time.Second,
		SendBuffer: 64,
		Secret:     "cookie-secret",
	}
	o := orch.New(app.NewRegistry(), admission.NewMemoryStore(capacity))
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(SetupRouter(ctx, cfg, o, auth.NewHMACVerifier(testSecret)))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, o
}

func tokenFor(t *testing.T, id, name string) string {
	t.Helper()
	tok, err := auth.SignToken(testSecret, auth.Claims{Sub: id, Name: name, Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
}

func mustDial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token="+token, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, payload any) {
	t.Helper()
	if err := conn.WriteJSON(payload); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func waitForType(t *testing.T, conn *websocket.Conn, expected string) map[string]any {
	t.Helper()
	for i := 0; i < 12; i++ {
		message := readJSON(t, conn)
		if message["type"] == expected {
			return message
		}
	}
	t.Fatalf("expected %s message", expected)
	return nil
}

func waitUntil(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSignalRejectsUnauthenticated(t *testing.T) {
	srv, o := newTestServer(t, 10)

	for _, url := range []string{wsURL(srv), wsURL(srv) + "?token=forged.0000"} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Fatalf("dial %s: expected failure", url)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("dial %s: expected 401, got %+v", url, resp)
		}
	}
	if len(o.Registry.Rooms()) != 0 {
		t.Fatal("unauthenticated dial touched the registry")
	}
}

func TestSignalRoomFlow(t *testing.T) {
	srv, o := newTestServer(t, 10)
	alice := mustDial(t, srv, tokenFor(t, "u1", "alice"))
	bob := mustDial(t, srv, tokenFor(t, "u2", "bob"))

	aliceID := waitForType(t, alice, "connected")["socketId"].(string)
	bobID := waitForType(t, bob, "connected")["socketId"].(string)

	sendJSON(t, alice, map[string]any{"type": "join_room", "roomId": "lobby"})
	waitForType(t, alice, "room_users")
	waitForType(t, alice, "room_status_update")

	sendJSON(t, bob, map[string]any{"type": "join_room", "roomId": "lobby"})
	snap := waitForType(t, bob, "room_users")
	users := snap["users"].([]any)
	if len(users) != 1 || users[0].(map[string]any)["socketId"] != aliceID {
		t.Fatalf("bob snapshot = %v", users)
	}
	joined := waitForType(t, alice, "user_joined")
	if joined["socketId"] != bobID || joined["username"] != "bob" {
		t.Fatalf("user_joined = %v", joined)
	}
	if st := waitForType(t, alice, "room_status_update"); st["participantCount"] != float64(2) {
		t.Fatalf("status = %v", st)
	}

	sendJSON(t, alice, map[string]any{
		"type":   "webrtc_offer",
		"target": bobID,
		"sdp":    map[string]string{"type": "offer", "sdp": "v=0"},
	})
	offer := waitForType(t, bob, "webrtc_offer")
	if offer["sender"] != aliceID {
		t.Fatalf("offer sender = %v", offer["sender"])
	}

	sendJSON(t, alice, map[string]any{"type": "webrtc_ice_candidate", "target": "nobody", "candidate": map[string]any{}})
	if e := waitForType(t, alice, "error"); e["code"] != "target_unreachable" || e["event"] != "webrtc_ice_candidate" {
		t.Fatalf("error = %v", e)
	}

	sendJSON(t, bob, map[string]any{"type": "send_message", "roomId": "lobby", "content": "selam"})
	for _, c := range []*websocket.Conn{alice, bob} {
		msg := waitForType(t, c, "new_message")["message"].(map[string]any)
		if msg["content"] != "selam" || msg["userId"] != "u2" || msg["id"] == "" {
			t.Fatalf("new_message = %v", msg)
		}
	}

	_ = bob.Close()
	left := waitForType(t, alice, "user_left")
	if left["socketId"] != bobID {
		t.Fatalf("user_left = %v", left)
	}
	waitUntil(t, 2*time.Second, func() bool { return o.Registry.Count("lobby") == 1 })
}

func TestSignalRoomFull(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	a := mustDial(t, srv, tokenFor(t, "u1", "a"))
	b := mustDial(t, srv, tokenFor(t, "u2", "b"))

	sendJSON(t, a, map[string]any{"type": "join_room", "roomId": "tiny"})
	waitForType(t, a, "room_users")

	sendJSON(t, b, map[string]any{"type": "join_room", "roomId": "tiny"})
	if e := waitForType(t, b, "error"); e["code"] != "room_full" || e["event"] != "join_room" {
		t.Fatalf("error = %v", e)
	}
}

func TestRoomStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, 3)
	a := mustDial(t, srv, tokenFor(t, "u1", "a"))
	sendJSON(t, a, map[string]any{"type": "join_room", "roomId": "r"})
	waitForType(t, a, "room_users")

	resp, err := http.Get(srv.URL + "/api/rooms/r/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["participantCount"] != float64(1) || body["maxParticipants"] != float64(3) {
		t.Fatalf("status body = %v", body)
	}
}

func TestAuthMiddlewareVerifierFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	v := auth.NewMockVerifier(ctrl)
	v.EXPECT().Verify(gomock.Any(), "tok").Return(domain.User{}, errors.New("redis down"))

	r := SetupRouter(context.Background(), &config.Config{Mode: "test", Secret: "s"},
		orch.New(app.NewRegistry(), admission.NewMemoryStore(1)), v)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/ws/signal", nil)
	req.Header.Set("Authorization", "Bearer tok")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestRecentMessagesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, 3)
	a := mustDial(t, srv, tokenFor(t, "u1", "a"))
	sendJSON(t, a, map[string]any{"type": "join_room", "roomId": "r"})
	waitForType(t, a, "room_users")
	sendJSON(t, a, map[string]any{"type": "send_message", "roomId": "r", "content": "ilk"})
	waitForType(t, a, "new_message")

	var msgs []map[string]any
	waitUntil(t, 2*time.Second, func() bool {
		resp, err := http.Get(srv.URL + "/api/rooms/r/messages?limit=10")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		msgs = nil
		_ = json.NewDecoder(resp.Body).Decode(&msgs)
		return len(msgs) == 1
	})
	if msgs[0]["content"] != "ilk" || msgs[0]["username"] != "a" {
		t.Fatalf("messages = %v", msgs)
	}

	resp, err := http.Get(srv.URL + "/api/rooms/r/messages?limit=zero")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", resp.StatusCode)
	}
}
