package registry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/linebox-server/internal/obslog"
	"github.com/park285/linebox-server/internal/session"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

var ErrNotFound = staticErr("session not found")

// EvictFunc is told about every session removed by the sweeper, after removal.
type EvictFunc func(id string, last session.State)

// Registry is the process-local table of live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session

	cfg   session.Config
	pub   session.Publisher
	onEnd session.EndFunc
	idle  time.Duration

	onEvict EvictFunc
}

func New(cfg session.Config, idle time.Duration, pub session.Publisher, onEnd session.EndFunc) *Registry {
	return &Registry{
		sessions: make(map[string]*session.Session),
		cfg:      cfg,
		pub:      pub,
		onEnd:    onEnd,
		idle:     idle,
	}
}

// OnEvict installs the eviction callback. Call before Maintain starts.
func (r *Registry) OnEvict(fn EvictFunc) { r.onEvict = fn }

// Create registers a new waiting session with a fresh id.
func (r *Registry) Create() *session.Session {
	s := session.New(uuid.NewString(), r.cfg, r.pub, r.onEnd)
	r.mu.Lock()
	r.sessions[s.ID()] = s
	n := len(r.sessions)
	r.mu.Unlock()
	obslog.L().Info("registry_create", zap.String("session_id", s.ID()), zap.Int("sessions", n))
	return s
}

func (r *Registry) Get(id string) (*session.Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[strings.TrimSpace(id)]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes id and stops its countdown. It reports whether id was present.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Close()
		obslog.L().Info("registry_delete", zap.String("session_id", id))
	}
	return ok
}

func (r *Registry) All() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// FindByConn returns the session connID is bound to, preferring one that has not ended.
func (r *Registry) FindByConn(connID string) *session.Session {
	var ended *session.Session
	for _, s := range r.All() {
		if !s.HasConn(connID) {
			continue
		}
		if s.Status() != session.StatusEnded {
			return s
		}
		ended = s
	}
	return ended
}

// InSession implements matchmaking.Membership: bound to a session that is still live.
func (r *Registry) InSession(connID string) bool {
	s := r.FindByConn(connID)
	return s != nil && s.Status() != session.StatusEnded
}

// Sweep evicts sessions idle past the threshold, and finished sessions without players,
// and returns how many went.
func (r *Registry) Sweep(now time.Time) int {
	evicted := 0
	for _, s := range r.All() {
		if !s.Reclaim(now, r.idle) {
			continue
		}
		last := s.Snapshot()
		if r.Delete(s.ID()) {
			evicted++
			if r.onEvict != nil {
				r.onEvict(s.ID(), last)
			}
		}
	}
	if evicted > 0 {
		obslog.L().Info("registry_sweep", zap.Int("evicted", evicted), zap.Int("remaining", r.Len()))
	}
	return evicted
}

// Maintain sweeps on a fixed interval until ctx is cancelled.
func (r *Registry) Maintain(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// Stop ends every session as abandoned and empties the table. Call it before
// connections are dropped so that their departures find nothing left to decide.
func (r *Registry) Stop() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*session.Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Shutdown()
	}
	if len(sessions) > 0 {
		obslog.L().Info("registry_stop", zap.Int("sessions", len(sessions)))
	}
}
