package session

import (
	"errors"
	"time"

	"github.com/park285/linebox-server/internal/board"
)

// Status represents the session lifecycle. Transitions only move forward.
type Status string

const (
	StatusWaiting Status = "WAITING"
	StatusActive  Status = "ACTIVE"
	StatusEnded   Status = "ENDED"
)

// End reasons recorded in Summary.
const (
	ReasonCompleted = "completed"
	ReasonDeparture = "departure"
	ReasonAbandoned = "abandoned"
)

// PlayerSlot binds a player number to a connection.
type PlayerSlot struct {
	Number   int    `json:"number"`
	Name     string `json:"name"`
	PlayerID string `json:"player_id,omitempty"` // durable identity from the record store; empty for guests
	ConnID   string `json:"-"`
}

// State is a deep copy of a session, safe to hand to other goroutines.
type State struct {
	ID        string         `json:"id"`
	GridSize  int            `json:"grid_size"`
	Status    Status         `json:"status"`
	Players   []PlayerSlot   `json:"players"`
	Lines     []board.Line   `json:"lines"`
	Regions   []board.Region `json:"regions"`
	Score     [2]int         `json:"score"`
	Winner    int            `json:"winner"`
	Turn      int            `json:"turn"`
	TimeLeft  int            `json:"time_left"`
	Paused    bool           `json:"paused"`
	StartedAt time.Time      `json:"started_at"`
}

// Summary is handed to the end hook exactly once per session.
type Summary struct {
	SessionID string
	GridSize  int
	Players   [2]PlayerSlot // everyone who was bound, including players who left
	Lines     []board.Line
	Regions   []board.Region
	Score     [2]int
	Winner    int
	Reason    string
	StartedAt time.Time
	EndedAt   time.Time
}

func (s Summary) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.EndedAt.Before(s.StartedAt) {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// EventKind names an outbound notification.
type EventKind string

const (
	EventSessionStarted EventKind = "session-started"
	EventStateChanged   EventKind = "state-changed"
	EventTimerTick      EventKind = "turn-timer-tick"
	EventForcedMove     EventKind = "forced-move-played"
	EventPlayerLeft     EventKind = "player-left"
	EventGameOver       EventKind = "game-over"
)

type Event struct {
	Kind        EventKind
	State       *State
	SecondsLeft int
	Move        *board.Line
	Reason      string
	Player      *PlayerSlot
}

// Publisher delivers events to everyone in a session's broadcast group.
// Publish is called outside the session lock and must not call back into the same session.
type Publisher interface {
	Publish(sessionID string, ev Event)
}

// EndFunc receives the summary of a finished session.
type EndFunc func(Summary)

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrNotAMember    = staticErr("not a member of this session")
	ErrNotYourTurn   = staticErr("not your turn")
	ErrGameNotActive = staticErr("game is not active")
	ErrGamePaused    = staticErr("game is paused")
	ErrDuplicateMove = staticErr("line already drawn")
	ErrIllegalMove   = staticErr("illegal move")
	ErrSlotTaken     = staticErr("player slot already bound")
)

// IsIllegalMove groups every reason a move submission can be rejected.
func IsIllegalMove(err error) bool {
	for _, target := range []error{ErrIllegalMove, ErrNotYourTurn, ErrGameNotActive, ErrGamePaused, ErrDuplicateMove} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
