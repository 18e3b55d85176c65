package session

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/linebox-server/internal/board"
	"github.com/park285/linebox-server/internal/obslog"
)

type Config struct {
	GridSize     int
	TurnSeconds  int
	TickInterval time.Duration // one countdown step; 1s in production

	// Pick chooses the index of the forced move among n candidates. Defaults to uniform random.
	Pick func(n int) int
}

func (c Config) withDefaults() Config {
	if c.GridSize < 2 {
		c.GridSize = board.DefaultSize
	}
	if c.TurnSeconds <= 0 {
		c.TurnSeconds = 30
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.Pick == nil {
		c.Pick = rand.Intn
	}
	return c
}

// Session owns one game. Every mutation, timer ticks included, runs under mu.
type Session struct {
	id  string
	cfg Config
	pub Publisher

	onEnd EndFunc

	mu       sync.Mutex
	players  [2]*PlayerSlot
	roster   [2]PlayerSlot
	lines    []board.Line
	regions  []board.Region
	score    [2]int
	status   Status
	winner   int
	turn     int
	timeLeft int
	paused   bool

	createdAt    time.Time
	startedAt    time.Time
	lastActivity time.Time

	timerGen  uint64
	timerStop chan struct{}

	ended      bool
	outbox     []Event
	pendingEnd *Summary

	// emitMu keeps publish order equal to commit order without holding mu during delivery.
	emitMu sync.Mutex
}

func New(id string, cfg Config, pub Publisher, onEnd EndFunc) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		cfg:          cfg.withDefaults(),
		pub:          pub,
		onEnd:        onEnd,
		status:       StatusWaiting,
		createdAt:    now,
		lastActivity: now,
	}
}

func (s *Session) ID() string { return s.id }

// do runs fn under the session lock, then publishes queued events and fires the end hook.
func (s *Session) do(fn func() error) error {
	s.mu.Lock()
	err := fn()
	events := s.outbox
	s.outbox = nil
	summary := s.pendingEnd
	s.pendingEnd = nil
	s.emitMu.Lock()
	s.mu.Unlock()

	if s.pub != nil {
		for _, ev := range events {
			s.pub.Publish(s.id, ev)
		}
	}
	s.emitMu.Unlock()

	if summary != nil && s.onEnd != nil {
		s.onEnd(*summary)
	}
	return err
}

// Bind attaches a player. Number 0 takes the first free slot.
// The second bind activates the game with player 1 to move.
func (s *Session) Bind(slot PlayerSlot) (int, error) {
	var number int
	err := s.do(func() error {
		if s.status != StatusWaiting {
			return ErrGameNotActive
		}
		idx := slot.Number - 1
		if slot.Number == 0 {
			idx = -1
			for i, p := range s.players {
				if p == nil {
					idx = i
					break
				}
			}
		}
		if idx < 0 || idx > 1 || s.players[idx] != nil {
			return ErrSlotTaken
		}
		slot.Number = idx + 1
		slot.Name = strings.TrimSpace(slot.Name)
		if slot.Name == "" {
			slot.Name = fmt.Sprintf("Player %d", slot.Number)
		}
		bound := slot
		s.players[idx] = &bound
		s.roster[idx] = bound
		s.lastActivity = time.Now()
		number = slot.Number

		if s.players[0] != nil && s.players[1] != nil {
			s.status = StatusActive
			s.turn = 1
			s.startedAt = s.lastActivity
			s.startTimerLocked()
			st := s.snapshotLocked()
			s.outbox = append(s.outbox, Event{Kind: EventSessionStarted, State: &st})
			obslog.L().Info("session_start",
				zap.String("session_id", s.id),
				zap.String("player1", s.players[0].Name),
				zap.String("player2", s.players[1].Name),
			)
		}
		return nil
	})
	return number, err
}

// SubmitMove applies a player's line. The line's Player and At fields are assigned here.
func (s *Session) SubmitMove(player int, l board.Line) error {
	return s.do(func() error {
		if s.status != StatusActive {
			return ErrGameNotActive
		}
		if s.turn != player {
			return ErrNotYourTurn
		}
		if s.paused {
			return ErrGamePaused
		}
		if err := board.Validate(s.cfg.GridSize, l); err != nil {
			return fmt.Errorf("%w: %v", ErrIllegalMove, err)
		}
		if board.IsDuplicate(s.lines, l) {
			return ErrDuplicateMove
		}
		s.stopTimerLocked()
		s.lastActivity = time.Now()
		s.applyLocked(player, l)
		return nil
	})
}

// applyLocked commits a line and runs the post-move rules shared by player and forced moves.
func (s *Session) applyLocked(player int, l board.Line) {
	l.Player = player
	l.At = time.Now()
	s.lines = append(s.lines, l)

	before := len(s.regions)
	s.regions = s.withRegionIDs(board.ClosedRegions(s.cfg.GridSize, s.lines))
	s.score = [2]int{}
	for _, r := range s.regions {
		s.score[r.Owner-1]++
	}
	captured := len(s.regions) - before
	if captured <= 0 {
		s.turn = otherPlayer(player)
	}

	obslog.L().Debug("session_move",
		zap.String("session_id", s.id),
		zap.Int("player", player),
		zap.String("line", l.String()),
		zap.Int("captured", captured),
	)

	if len(s.regions) >= board.MaxRegions(s.cfg.GridSize) {
		s.winner = winnerByScore(s.score)
		s.endLocked(ReasonCompleted)
		return
	}
	s.startTimerLocked()
	st := s.snapshotLocked()
	s.outbox = append(s.outbox, Event{Kind: EventStateChanged, State: &st})
}

// withRegionIDs carries identifiers of already-closed regions over and mints ids for new ones.
func (s *Session) withRegionIDs(next []board.Region) []board.Region {
	known := make(map[[2]int]string, len(s.regions))
	for _, r := range s.regions {
		known[[2]int{r.Row, r.Col}] = r.ID
	}
	for i := range next {
		if id, ok := known[[2]int{next[i].Row, next[i].Col}]; ok {
			next[i].ID = id
			continue
		}
		next[i].ID = uuid.NewString()
	}
	return next
}

// autoMoveLocked plays for the current player after the countdown expires.
func (s *Session) autoMoveLocked() {
	moves := board.LegalMoves(s.cfg.GridSize, s.lines, s.turn)
	if len(moves) == 0 {
		s.turn = otherPlayer(s.turn)
		s.startTimerLocked()
		st := s.snapshotLocked()
		s.outbox = append(s.outbox, Event{Kind: EventStateChanged, State: &st, Reason: "timeout"})
		return
	}
	mv := moves[s.cfg.Pick(len(moves))]
	player := s.turn
	obslog.L().Info("session_forced_move",
		zap.String("session_id", s.id),
		zap.Int("player", player),
		zap.String("line", mv.String()),
	)
	mv.Player = player
	mv.At = time.Now()
	s.outbox = append(s.outbox, Event{Kind: EventForcedMove, Move: &mv, Reason: "timeout"})
	s.applyLocked(player, mv)
}

// TogglePause flips the pause flag. Resuming restarts a full countdown.
func (s *Session) TogglePause(player int) (bool, error) {
	var paused bool
	err := s.do(func() error {
		if s.status != StatusActive {
			return ErrGameNotActive
		}
		if (player != 1 && player != 2) || s.players[player-1] == nil {
			return ErrNotAMember
		}
		s.paused = !s.paused
		reason := "resumed"
		if s.paused {
			s.stopTimerLocked()
			reason = "paused"
		} else {
			s.startTimerLocked()
		}
		paused = s.paused
		s.lastActivity = time.Now()
		st := s.snapshotLocked()
		s.outbox = append(s.outbox, Event{Kind: EventStateChanged, State: &st, Reason: reason})
		return nil
	})
	return paused, err
}

// Depart unbinds the connection. Leaving an active game ends it in favour of whoever remains.
func (s *Session) Depart(connID string) (PlayerSlot, error) {
	var left PlayerSlot
	err := s.do(func() error {
		idx := s.slotIndexLocked(connID)
		if idx < 0 {
			return ErrNotAMember
		}
		left = *s.players[idx]
		s.players[idx] = nil
		s.lastActivity = time.Now()

		st := s.snapshotLocked()
		s.outbox = append(s.outbox, Event{Kind: EventPlayerLeft, State: &st, Player: &left})

		if s.status == StatusActive {
			s.winner = 0
			if remaining := s.boundLocked(); len(remaining) == 1 {
				s.winner = remaining[0].Number
			}
			s.endLocked(ReasonDeparture)
		}
		obslog.L().Info("session_depart",
			zap.String("session_id", s.id),
			zap.Int("player", left.Number),
			zap.String("status", string(s.status)),
		)
		return nil
	})
	return left, err
}

// Reclaim is the sweeper hook. It reports whether the session should be evicted and,
// for an in-flight game with at least one move, ends it as abandoned first.
func (s *Session) Reclaim(now time.Time, idle time.Duration) bool {
	evict := false
	_ = s.do(func() error {
		empty := len(s.boundLocked()) == 0
		// A waiting session may be empty only because it is still being paired.
		if now.Sub(s.lastActivity) <= idle && (!empty || s.status == StatusWaiting) {
			return nil
		}
		evict = true
		s.abandonLocked()
		return nil
	})
	return evict
}

// Shutdown ends the game as abandoned so that disconnects which follow cannot decide it.
func (s *Session) Shutdown() {
	_ = s.do(func() error {
		if s.status == StatusActive {
			obslog.L().Info("session_shutdown", zap.String("session_id", s.id), zap.Int("lines", len(s.lines)))
		}
		s.abandonLocked()
		return nil
	})
}

// abandonLocked ends the session without a winner. Only a game with at least one move is recorded.
func (s *Session) abandonLocked() {
	if s.status == StatusActive && len(s.lines) > 0 {
		s.winner = 0
		s.endLocked(ReasonAbandoned)
		return
	}
	s.stopTimerLocked()
	s.status = StatusEnded
	s.paused = false
}

// Close stops the countdown without publishing anything.
func (s *Session) Close() {
	s.mu.Lock()
	s.stopTimerLocked()
	s.mu.Unlock()
}

// endLocked moves to Ended and queues the summary; only the first call has any effect.
func (s *Session) endLocked(reason string) {
	s.stopTimerLocked()
	s.status = StatusEnded
	s.paused = false
	if s.ended {
		return
	}
	s.ended = true
	endedAt := time.Now()
	summary := Summary{
		SessionID: s.id,
		GridSize:  s.cfg.GridSize,
		Players:   s.roster,
		Lines:     append([]board.Line(nil), s.lines...),
		Regions:   append([]board.Region(nil), s.regions...),
		Score:     s.score,
		Winner:    s.winner,
		Reason:    reason,
		StartedAt: s.startedAt,
		EndedAt:   endedAt,
	}
	s.pendingEnd = &summary
	st := s.snapshotLocked()
	s.outbox = append(s.outbox, Event{Kind: EventGameOver, State: &st, Reason: reason})
	obslog.L().Info("session_end",
		zap.String("session_id", s.id),
		zap.String("reason", reason),
		zap.Int("winner", s.winner),
		zap.Int("score1", s.score[0]),
		zap.Int("score2", s.score[1]),
		zap.Int("lines", len(s.lines)),
	)
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	st := State{
		ID:        s.id,
		GridSize:  s.cfg.GridSize,
		Status:    s.status,
		Players:   make([]PlayerSlot, 0, 2),
		Lines:     append([]board.Line(nil), s.lines...),
		Regions:   append([]board.Region(nil), s.regions...),
		Score:     s.score,
		Winner:    s.winner,
		Turn:      s.turn,
		TimeLeft:  s.timeLeft,
		Paused:    s.paused,
		StartedAt: s.startedAt,
	}
	for _, p := range s.players {
		if p != nil {
			st.Players = append(st.Players, *p)
		}
	}
	return st
}

// PlayerNumber returns the slot number bound to connID.
func (s *Session) PlayerNumber(connID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.slotIndexLocked(connID)
	if idx < 0 {
		return 0, false
	}
	return idx + 1, true
}

func (s *Session) HasConn(connID string) bool {
	_, ok := s.PlayerNumber(connID)
	return ok
}

func (s *Session) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.boundLocked())
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) slotIndexLocked(connID string) int {
	if strings.TrimSpace(connID) == "" {
		return -1
	}
	for i, p := range s.players {
		if p != nil && p.ConnID == connID {
			return i
		}
	}
	return -1
}

func (s *Session) boundLocked() []PlayerSlot {
	var out []PlayerSlot
	for _, p := range s.players {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

func otherPlayer(p int) int {
	if p == 1 {
		return 2
	}
	return 1
}

func winnerByScore(score [2]int) int {
	switch {
	case score[0] > score[1]:
		return 1
	case score[1] > score[0]:
		return 2
	default:
		return 0
	}
}
