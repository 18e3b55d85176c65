package transport

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/linebox-server/internal/obslog"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrConnNotFound = staticErr("connection not found")
	ErrSlowConsumer = staticErr("connection send buffer full")
)

// conn is the hub's view of one client: an outbound queue and a kick signal.
type conn struct {
	id   string
	send chan []byte

	kickOnce   sync.Once
	kicked     chan struct{}
	kickCode   websocket.StatusCode
	kickReason string
}

func newConn(id string, buffer int) *conn {
	return &conn{id: id, send: make(chan []byte, buffer), kicked: make(chan struct{})}
}

func (c *conn) kick(code websocket.StatusCode, reason string) {
	c.kickOnce.Do(func() {
		c.kickCode, c.kickReason = code, reason
		close(c.kicked)
	})
}

// Hub tracks live connections and named broadcast groups.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*conn
	groups map[string]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		conns:  make(map[string]*conn),
		groups: make(map[string]map[string]struct{}),
	}
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

// unregister removes c from every group and closes its queue.
func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[id]
	if !ok {
		return
	}
	delete(h.conns, id)
	for name, members := range h.groups {
		delete(members, id)
		if len(members) == 0 {
			delete(h.groups, name)
		}
	}
	close(c.send)
}

// Join adds connID to group. Unknown connections are ignored.
func (h *Hub) Join(group, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[connID]; !ok {
		return
	}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]struct{})
		h.groups[group] = members
	}
	members[connID] = struct{}{}
}

func (h *Hub) Leave(group, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.groups[group]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

// DropGroup forgets a group without touching its connections.
func (h *Hub) DropGroup(group string) {
	h.mu.Lock()
	delete(h.groups, group)
	h.mu.Unlock()
}

// Members lists the connections currently in group.
func (h *Hub) Members(group string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.groups[group]))
	for id := range h.groups[group] {
		out = append(out, id)
	}
	return out
}

// Broadcast encodes v once and queues it for every member of group.
func (h *Hub) Broadcast(group string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id := range h.groups[group] {
		if c, ok := h.conns[id]; ok {
			h.enqueueLocked(c, raw)
		}
	}
	return nil
}

// Send queues v for a single connection.
func (h *Hub) Send(connID string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[connID]
	if !ok {
		return ErrConnNotFound
	}
	return h.enqueueLocked(c, raw)
}

func (h *Hub) enqueueLocked(c *conn, raw []byte) error {
	select {
	case c.send <- raw:
		return nil
	default:
		obslog.L().Warn("ws_slow_consumer", zap.String("conn_id", c.id), zap.Int("buffer", cap(c.send)))
		c.kick(websocket.StatusPolicyViolation, "too slow")
		return ErrSlowConsumer
	}
}

func (h *Hub) Connected(connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[connID]
	return ok
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll asks every connection to close. Used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		c.kick(websocket.StatusGoingAway, "server shutdown")
	}
}
