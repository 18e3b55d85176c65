package linedto

import "time"

// Outbound event names.
const (
	EventQueued         = "queued"
	EventSessionStarted = "session-started"
	EventStateChanged   = "state-changed"
	EventTimerTick      = "turn-timer-tick"
	EventForcedMove     = "forced-move-played"
	EventPlayerLeft     = "player-left"
	EventGameOver       = "game-over"
	EventStats          = "stats"
	EventError          = "error"
)

// Message is the frame every server message is sent in.
type Message struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

type Player struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
}

type Line struct {
	From   Point `json:"from"`
	To     Point `json:"to"`
	Player int   `json:"player"`
}

type Region struct {
	ID    string `json:"id"`
	Row   int    `json:"row"`
	Col   int    `json:"col"`
	Owner int    `json:"owner"`
}

type SessionState struct {
	SessionID string    `json:"session_id"`
	GridSize  int       `json:"grid_size"`
	Status    string    `json:"status"`
	Players   []Player  `json:"players"`
	Lines     []Line    `json:"lines"`
	Regions   []Region  `json:"regions"`
	Score     [2]int    `json:"score"`
	Winner    int       `json:"winner"`
	Turn      int       `json:"turn"`
	TimeLeft  int       `json:"time_left"`
	Paused    bool      `json:"paused"`
	StartedAt time.Time `json:"started_at"`
}

type Queued struct {
	Position int    `json:"position"`
	Notice   string `json:"notice"`
}

type SessionStarted struct {
	You    int          `json:"you,omitempty"`
	State  SessionState `json:"state"`
	Notice string       `json:"notice"`
}

type StateChanged struct {
	State  SessionState `json:"state"`
	Reason string       `json:"reason,omitempty"`
	Notice string       `json:"notice,omitempty"`
}

type TimerTick struct {
	SecondsLeft int `json:"seconds_left"`
}

type ForcedMove struct {
	Move   Line   `json:"move"`
	Reason string `json:"reason"`
	Notice string `json:"notice"`
}

type PlayerLeft struct {
	Player Player       `json:"player"`
	State  SessionState `json:"state"`
	Notice string       `json:"notice"`
}

type GameOver struct {
	Winner int          `json:"winner"`
	Reason string       `json:"reason"`
	State  SessionState `json:"state"`
	Notice string       `json:"notice"`
}

type Stats struct {
	Identity     string `json:"identity"`
	Name         string `json:"name"`
	Played       int    `json:"played"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	Draws        int    `json:"draws"`
	ScoreFor     int    `json:"score_for"`
	ScoreAgainst int    `json:"score_against"`
}
