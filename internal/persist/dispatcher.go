package persist

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/linebox-server/internal/obslog"
	"github.com/park285/linebox-server/internal/session"
)

const writeTimeout = 5 * time.Second

// Dispatcher moves end-of-game writes off the session goroutines.
// Failures are logged and dropped.
type Dispatcher struct {
	store Store
	jobs  chan session.Summary

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(store Store, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	d := &Dispatcher{
		store: store,
		jobs:  make(chan session.Summary, buffer),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

// Submit is a session.EndFunc. It blocks only while the buffer is full.
func (d *Dispatcher) Submit(s session.Summary) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		obslog.L().Warn("persist_submit_after_close", zap.String("session_id", s.SessionID))
		return
	}
	d.jobs <- s
}

// Close stops accepting work and waits until the queue is drained.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for s := range d.jobs {
		d.handle(s)
	}
}

func (d *Dispatcher) handle(s session.Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	rec := RecordFromSummary(s)
	if err := d.store.RecordFinishedGame(ctx, rec); err != nil {
		obslog.L().Error("persist_game_failed", zap.String("session_id", s.SessionID), zap.Error(err))
	} else {
		obslog.L().Info("persist_game",
			zap.String("session_id", s.SessionID),
			zap.String("reason", s.Reason),
			zap.Int("winner", s.Winner),
			zap.Duration("duration", rec.Duration()),
		)
	}
	if s.Reason == session.ReasonAbandoned {
		return
	}
	for i, p := range s.Players {
		if p.PlayerID == "" {
			continue
		}
		err := d.store.IncrementStatistics(ctx, p.PlayerID, DeltaFor(s, i+1))
		if err != nil {
			lvl := obslog.L().Error
			if errors.Is(err, ErrPlayerNotFound) {
				lvl = obslog.L().Warn
			}
			lvl("persist_stats_failed", zap.String("session_id", s.SessionID), zap.String("player_id", p.PlayerID), zap.Error(err))
		}
	}
}

// DeltaFor is the statistics change for player number (1 or 2) in s.
func DeltaFor(s session.Summary, number int) StatsDelta {
	own, opp := s.Score[0], s.Score[1]
	if number == 2 {
		own, opp = opp, own
	}
	d := StatsDelta{Played: 1, ScoreFor: own, ScoreAgainst: opp}
	switch s.Winner {
	case number:
		d.Wins = 1
	case 0:
		d.Draws = 1
	default:
		d.Losses = 1
	}
	return d
}
