package matchmaking

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/linebox-server/internal/obslog"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrInvalidArgs      = staticErr("invalid arguments")
	ErrAlreadyQueued    = staticErr("already waiting for an opponent")
	ErrAlreadyInSession = staticErr("already bound to a live session")
)

// Waiting is a queued player keyed by transport connection.
type Waiting struct {
	ConnID   string
	Name     string
	PlayerID string
	JoinedAt time.Time
}

// Pair is two players taken from the head of the queue; First becomes player 1.
type Pair struct {
	First  Waiting
	Second Waiting
}

// Membership reports whether a connection is already playing.
type Membership interface {
	InSession(connID string) bool
}

// Queue is a FIFO of waiting players with greedy pairing.
type Queue struct {
	mu      sync.Mutex
	waiting []Waiting
	members Membership
}

func NewQueue(members Membership) *Queue {
	return &Queue{members: members}
}

// Join enqueues w. When two players are waiting the two oldest are removed and returned.
func (q *Queue) Join(w Waiting) (*Pair, error) {
	w.ConnID = strings.TrimSpace(w.ConnID)
	if w.ConnID == "" {
		return nil, ErrInvalidArgs
	}
	if q.members != nil && q.members.InSession(w.ConnID) {
		return nil, ErrAlreadyInSession
	}
	if w.JoinedAt.IsZero() {
		w.JoinedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.indexLocked(w.ConnID) >= 0 {
		return nil, ErrAlreadyQueued
	}
	q.waiting = append(q.waiting, w)
	obslog.L().Info("queue_join", zap.String("conn_id", w.ConnID), zap.String("name", w.Name), zap.Int("queued", len(q.waiting)))
	if len(q.waiting) < 2 {
		return nil, nil
	}
	p := &Pair{First: q.waiting[0], Second: q.waiting[1]}
	q.waiting = append([]Waiting(nil), q.waiting[2:]...)
	obslog.L().Info("queue_pair",
		zap.String("first", p.First.ConnID),
		zap.String("second", p.Second.ConnID),
		zap.Duration("first_waited", time.Since(p.First.JoinedAt)),
	)
	return p, nil
}

// Remove drops connID from the queue. It reports whether it was queued.
func (q *Queue) Remove(connID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.indexLocked(connID)
	if idx < 0 {
		return false
	}
	q.waiting = append(q.waiting[:idx], q.waiting[idx+1:]...)
	obslog.L().Info("queue_leave", zap.String("conn_id", connID))
	return true
}

// Position is the 1-based place of connID, or 0 when not queued.
func (q *Queue) Position(connID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.indexLocked(connID) + 1
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

func (q *Queue) indexLocked(connID string) int {
	for i, w := range q.waiting {
		if w.ConnID == connID {
			return i
		}
	}
	return -1
}
