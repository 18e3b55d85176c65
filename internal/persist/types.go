package persist

import (
	"context"
	"time"

	"github.com/park285/linebox-server/internal/board"
	"github.com/park285/linebox-server/internal/session"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrPlayerNotFound = staticErr("player not found")
	ErrInvalidKey     = staticErr("player identity key is empty")
)

// Player is the durable record behind an identity key.
type Player struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	Stats     Stats     `json:"stats"`
	CreatedAt time.Time `json:"createdAt"`
}

type Stats struct {
	Played       int `json:"played"`
	Wins         int `json:"wins"`
	Losses       int `json:"losses"`
	Draws        int `json:"draws"`
	ScoreFor     int `json:"scoreFor"`
	ScoreAgainst int `json:"scoreAgainst"`
}

// StatsDelta is added field by field to a player's Stats.
type StatsDelta Stats

func (s Stats) add(d StatsDelta) Stats {
	s.Played += d.Played
	s.Wins += d.Wins
	s.Losses += d.Losses
	s.Draws += d.Draws
	s.ScoreFor += d.ScoreFor
	s.ScoreAgainst += d.ScoreAgainst
	return s
}

type PlayerRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// GameRecord is what gets stored for a finished or abandoned session.
type GameRecord struct {
	SessionID string
	GridSize  int
	Players   [2]PlayerRef
	Score     [2]int
	Winner    int
	Reason    string
	Lines     []board.Line
	Regions   []board.Region
	StartedAt time.Time
	EndedAt   time.Time
}

func RecordFromSummary(s session.Summary) GameRecord {
	rec := GameRecord{
		SessionID: s.SessionID,
		GridSize:  s.GridSize,
		Score:     s.Score,
		Winner:    s.Winner,
		Reason:    s.Reason,
		Lines:     s.Lines,
		Regions:   s.Regions,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
	}
	for i, p := range s.Players {
		rec.Players[i] = PlayerRef{ID: p.PlayerID, Name: p.Name}
	}
	return rec
}

func (g GameRecord) Duration() time.Duration {
	if g.StartedAt.IsZero() || g.EndedAt.Before(g.StartedAt) {
		return 0
	}
	return g.EndedAt.Sub(g.StartedAt)
}

type PlayerStore interface {
	FindOrCreatePlayer(ctx context.Context, key, name string) (*Player, error)
	FindPlayer(ctx context.Context, key string) (*Player, error)
	IncrementStatistics(ctx context.Context, playerID string, d StatsDelta) error
}

type GameStore interface {
	RecordFinishedGame(ctx context.Context, rec GameRecord) error
}

// Store is everything the server persists.
type Store interface {
	PlayerStore
	GameStore
}
