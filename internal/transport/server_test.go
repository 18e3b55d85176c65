package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/linebox-server/pkg/linedto"
)

type recordingHandler struct {
	mu      sync.Mutex
	intents []linedto.Intent
	conns   []string
	gone    chan string
	seen    chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{gone: make(chan string, 8), seen: make(chan string, 8)}
}

func (h *recordingHandler) OnIntent(connID string, in linedto.Intent) {
	h.mu.Lock()
	h.intents = append(h.intents, in)
	h.conns = append(h.conns, connID)
	h.mu.Unlock()
	h.seen <- connID
}

func (h *recordingHandler) OnDisconnect(connID string) { h.gone <- connID }

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func waitFor(t *testing.T, ch chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out")
		return ""
	}
}

func TestServerRoundTrip(t *testing.T) {
	hub := NewHub()
	h := newRecordingHandler()
	srv := httptest.NewServer(NewServer(hub, h, Options{}))
	defer srv.Close()

	c := dial(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := wsjson.Write(ctx, c, map[string]any{"type": "pause"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	connID := waitFor(t, h.seen)
	if h.intents[0].Type != linedto.IntentPause {
		t.Fatalf("unexpected intent %+v", h.intents[0])
	}

	hub.Join("g1", connID)
	if err := hub.Broadcast("g1", linedto.Message{Type: linedto.EventQueued, Data: linedto.Queued{Position: 1}}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	var got struct {
		Type string         `json:"type"`
		Data linedto.Queued `json:"data"`
	}
	if err := wsjson.Read(ctx, c, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != linedto.EventQueued || got.Data.Position != 1 {
		t.Fatalf("unexpected message %+v", got)
	}

	_ = c.Close(websocket.StatusNormalClosure, "")
	if gone := waitFor(t, h.gone); gone != connID {
		t.Fatalf("disconnect for %q, want %q", gone, connID)
	}
	if hub.Len() != 0 || len(hub.Members("g1")) != 0 {
		t.Fatalf("connection should be gone from the hub")
	}
}

func TestServerRepliesToMalformedFrames(t *testing.T) {
	hub := NewHub()
	h := newRecordingHandler()
	srv := httptest.NewServer(NewServer(hub, h, Options{}))
	defer srv.Close()

	c := dial(t, srv)
	defer c.Close(websocket.StatusNormalClosure, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Write(ctx, websocket.MessageText, []byte(`{"type":"dance"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got struct {
		Type string              `json:"type"`
		Data linedto.DomainError `json:"data"`
	}
	if err := wsjson.Read(ctx, c, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != linedto.EventError || got.Data.Code != linedto.CodeBadRequest {
		t.Fatalf("unexpected reply %+v", got)
	}
}

func TestHubSendUnknownAndGroups(t *testing.T) {
	hub := NewHub()
	if err := hub.Send("nope", "x"); err != ErrConnNotFound {
		t.Fatalf("expected ErrConnNotFound, got %v", err)
	}
	a, b := newConn("a", 1), newConn("b", 1)
	hub.register(a)
	hub.register(b)
	hub.Join("g", "a")
	hub.Join("g", "b")
	hub.Join("g", "ghost")
	if n := len(hub.Members("g")); n != 2 {
		t.Fatalf("members = %d", n)
	}
	hub.Leave("g", "a")
	_ = hub.Broadcast("g", "hello")
	if len(a.send) != 0 || len(b.send) != 1 {
		t.Fatalf("only b should receive: a=%d b=%d", len(a.send), len(b.send))
	}
	if err := hub.Send("b", "again"); err != ErrSlowConsumer {
		t.Fatalf("full buffer should report slow consumer, got %v", err)
	}
	select {
	case <-b.kicked:
	default:
		t.Fatalf("slow consumer should be kicked")
	}
	hub.unregister("b")
	if _, ok := <-b.send; !ok {
		t.Fatalf("queued frame should still be readable after close")
	}
	if _, ok := <-b.send; ok {
		t.Fatalf("send channel should be closed")
	}
}

type slowDisconnect struct{ done atomic.Bool }

func (h *slowDisconnect) OnIntent(string, linedto.Intent) {}

func (h *slowDisconnect) OnDisconnect(string) {
	time.Sleep(300 * time.Millisecond)
	h.done.Store(true)
}

func TestWaitCoversDisconnectHandling(t *testing.T) {
	hub := NewHub()
	h := &slowDisconnect{}
	ws := NewServer(hub, h, Options{})
	srv := httptest.NewServer(ws)
	defer srv.Close()

	c := dial(t, srv)
	defer c.Close(websocket.StatusNormalClosure, "")
	// Keep reading so the server's close handshake gets its reply.
	go func() {
		for {
			if _, _, err := c.Read(context.Background()); err != nil {
				return
			}
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for hub.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	hub.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ws.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !h.done.Load() {
		t.Fatalf("Wait returned before disconnect handling finished")
	}
}

func TestShutdownKickFlushesQueuedFrames(t *testing.T) {
	hub := NewHub()
	h := newRecordingHandler()
	srv := httptest.NewServer(NewServer(hub, h, Options{}))
	defer srv.Close()

	c := dial(t, srv)
	defer c.Close(websocket.StatusNormalClosure, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c, map[string]any{"type": "pause"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	connID := waitFor(t, h.seen)

	if err := hub.Send(connID, linedto.Message{Type: linedto.EventGameOver}); err != nil {
		t.Fatalf("send: %v", err)
	}
	hub.CloseAll()

	var got linedto.Message
	if err := wsjson.Read(ctx, c, &got); err != nil {
		t.Fatalf("queued frame lost at shutdown: %v", err)
	}
	if got.Type != linedto.EventGameOver {
		t.Fatalf("unexpected frame %+v", got)
	}
}
