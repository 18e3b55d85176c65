package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/linebox-server/internal/board"
)

type recorder struct {
	mu      sync.Mutex
	events  []Event
	summary []Summary
}

func (r *recorder) Publish(_ string, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) onEnd(s Summary) {
	r.mu.Lock()
	r.summary = append(r.summary, s)
	r.mu.Unlock()
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) ends() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Summary(nil), r.summary...)
}

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

// newActive returns a started session whose ticker never fires on its own.
func newActive(t *testing.T, cfg Config) (*Session, *recorder) {
	t.Helper()
	if cfg.TickInterval == 0 {
		cfg.TickInterval = time.Hour
	}
	rec := &recorder{}
	s := New("s1", cfg, rec, rec.onEnd)
	t.Cleanup(s.Close)
	if _, err := s.Bind(PlayerSlot{Number: 1, Name: "alice", ConnID: "c1", PlayerID: "p-alice"}); err != nil {
		t.Fatalf("bind p1: %v", err)
	}
	if st := s.Snapshot(); st.Status != StatusWaiting {
		t.Fatalf("expected WAITING after one bind, got %s", st.Status)
	}
	if _, err := s.Bind(PlayerSlot{Number: 2, Name: "bob", ConnID: "c2"}); err != nil {
		t.Fatalf("bind p2: %v", err)
	}
	return s, rec
}

func currentGen(s *Session) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timerGen
}

func h(r, c int) board.Line { return board.Line{From: board.Coord{Row: r, Col: c}, To: board.Coord{Row: r, Col: c + 1}} }
func v(r, c int) board.Line { return board.Line{From: board.Coord{Row: r, Col: c}, To: board.Coord{Row: r + 1, Col: c}} }

func TestBindActivates(t *testing.T) {
	s, rec := newActive(t, Config{TurnSeconds: 30})
	st := s.Snapshot()
	if st.Status != StatusActive || st.Turn != 1 || st.TimeLeft != 30 {
		t.Fatalf("unexpected state after second bind: status=%s turn=%d left=%d", st.Status, st.Turn, st.TimeLeft)
	}
	if rec.count(EventSessionStarted) != 1 {
		t.Fatalf("expected one session-started event, got %v", rec.kinds())
	}
	if _, err := s.Bind(PlayerSlot{Name: "carol", ConnID: "c3"}); !errors.Is(err, ErrGameNotActive) {
		t.Fatalf("third bind should fail, got %v", err)
	}
}

func TestBindRejectsTakenSlot(t *testing.T) {
	s := New("s1", Config{TickInterval: time.Hour}, nil, nil)
	defer s.Close()
	if n, err := s.Bind(PlayerSlot{Name: "a", ConnID: "c1"}); err != nil || n != 1 {
		t.Fatalf("first free slot should be 1: n=%d err=%v", n, err)
	}
	if _, err := s.Bind(PlayerSlot{Number: 1, Name: "b", ConnID: "c2"}); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestClosingEdgeByPlayerTwoKeepsTurn(t *testing.T) {
	s, _ := newActive(t, Config{})
	steps := []struct {
		player int
		line   board.Line
	}{
		{1, h(0, 0)}, {2, h(5, 4)},
		{1, v(0, 0)}, {2, h(5, 3)},
		{1, v(0, 1)}, {2, h(1, 0)},
	}
	for i, st := range steps {
		if err := s.SubmitMove(st.player, st.line); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	st := s.Snapshot()
	if len(st.Regions) != 1 || st.Regions[0].Owner != 2 || st.Regions[0].Row != 0 || st.Regions[0].Col != 0 {
		t.Fatalf("unexpected regions %+v", st.Regions)
	}
	if st.Regions[0].ID == "" {
		t.Fatalf("region should carry an id")
	}
	if st.Score != [2]int{0, 1} {
		t.Fatalf("unexpected score %v", st.Score)
	}
	if st.Turn != 2 {
		t.Fatalf("capturing player should keep the turn, got turn=%d", st.Turn)
	}
}

func TestSubmitMoveRejections(t *testing.T) {
	s, _ := newActive(t, Config{})
	if err := s.SubmitMove(2, h(0, 0)); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	off := board.Line{From: board.Coord{Row: 5, Col: 5}, To: board.Coord{Row: 5, Col: 6}}
	if err := s.SubmitMove(1, off); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove for off-grid line, got %v", err)
	}
	if err := s.SubmitMove(1, h(0, 0)); err != nil {
		t.Fatalf("move: %v", err)
	}
	rev := board.Line{From: board.Coord{Row: 0, Col: 1}, To: board.Coord{Row: 0, Col: 0}}
	if err := s.SubmitMove(2, rev); !errors.Is(err, ErrDuplicateMove) {
		t.Fatalf("expected ErrDuplicateMove for reversed edge, got %v", err)
	}
	if !IsIllegalMove(ErrDuplicateMove) || IsIllegalMove(ErrSlotTaken) {
		t.Fatalf("IsIllegalMove grouping is wrong")
	}
	if _, err := s.TogglePause(1); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := s.SubmitMove(2, h(3, 3)); !errors.Is(err, ErrGamePaused) {
		t.Fatalf("expected ErrGamePaused, got %v", err)
	}
}

func TestFullGameInvariantsAndTermination(t *testing.T) {
	s, rec := newActive(t, Config{})
	for {
		st := s.Snapshot()
		if st.Status != StatusActive {
			break
		}
		moves := board.LegalMoves(st.GridSize, st.Lines, st.Turn)
		if len(moves) == 0 {
			t.Fatalf("active game without legal moves")
		}
		mover := st.Turn
		if err := s.SubmitMove(mover, moves[len(moves)/2]); err != nil {
			t.Fatalf("move: %v", err)
		}
		after := s.Snapshot()
		if after.Score[0]+after.Score[1] != len(after.Regions) {
			t.Fatalf("score %v does not match %d regions", after.Score, len(after.Regions))
		}
		if len(after.Regions) < len(st.Regions) {
			t.Fatalf("region count decreased")
		}
		if after.Status == StatusActive {
			captured := len(after.Regions) > len(st.Regions)
			if captured && after.Turn != mover {
				t.Fatalf("capture should keep the turn")
			}
			if !captured && after.Turn == mover {
				t.Fatalf("non-capturing move should pass the turn")
			}
		}
	}
	st := s.Snapshot()
	if len(st.Regions) != board.MaxRegions(board.DefaultSize) {
		t.Fatalf("expected %d regions at the end, got %d", board.MaxRegions(board.DefaultSize), len(st.Regions))
	}
	want := 0
	if st.Score[0] > st.Score[1] {
		want = 1
	} else if st.Score[1] > st.Score[0] {
		want = 2
	}
	if st.Winner != want {
		t.Fatalf("winner %d, want %d (score %v)", st.Winner, want, st.Score)
	}
	ends := rec.ends()
	if len(ends) != 1 || ends[0].Reason != ReasonCompleted || len(ends[0].Lines) != 60 {
		t.Fatalf("expected one completed summary with 60 lines, got %+v", ends)
	}
	if ends[0].Players[0].PlayerID != "p-alice" {
		t.Fatalf("summary lost player identity: %+v", ends[0].Players)
	}
	if err := s.SubmitMove(st.Turn, h(0, 0)); !errors.Is(err, ErrGameNotActive) {
		t.Fatalf("expected ErrGameNotActive after the end, got %v", err)
	}
}

func TestTimeoutPlaysForcedMove(t *testing.T) {
	s, rec := newActive(t, Config{TurnSeconds: 2, Pick: func(int) int { return 0 }})
	gen := currentGen(s)
	if !s.tick(gen) {
		t.Fatalf("first tick should keep the countdown alive")
	}
	if got := s.Snapshot().TimeLeft; got != 1 {
		t.Fatalf("expected 1 second left, got %d", got)
	}
	if s.tick(gen) {
		t.Fatalf("expiring tick should retire its generation")
	}
	st := s.Snapshot()
	if len(st.Lines) != 1 || st.Lines[0].Player != 1 {
		t.Fatalf("expected one forced line for player 1, got %+v", st.Lines)
	}
	if !st.Lines[0].SameEdge(h(0, 0)) {
		t.Fatalf("Pick(0) should choose the first legal edge, got %s", st.Lines[0])
	}
	if st.Turn != 2 || st.TimeLeft != 2 {
		t.Fatalf("turn should pass with a fresh countdown: turn=%d left=%d", st.Turn, st.TimeLeft)
	}
	if rec.count(EventForcedMove) != 1 || rec.count(EventTimerTick) != 2 {
		t.Fatalf("unexpected events %v", rec.kinds())
	}
}

func TestTimeoutWithRealTicker(t *testing.T) {
	s, rec := newActive(t, Config{TurnSeconds: 1, TickInterval: 5 * time.Millisecond})
	deadline := time.Now().Add(2 * time.Second)
	for rec.count(EventForcedMove) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no forced move after timeout; events=%v", rec.kinds())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(s.Snapshot().Lines) == 0 {
		t.Fatalf("forced move not recorded")
	}
}

func TestStaleTickIgnored(t *testing.T) {
	s, _ := newActive(t, Config{TurnSeconds: 5})
	old := currentGen(s)
	if err := s.SubmitMove(1, h(0, 0)); err != nil {
		t.Fatalf("move: %v", err)
	}
	if s.tick(old) {
		t.Fatalf("stale tick should report a retired generation")
	}
	if st := s.Snapshot(); st.TimeLeft != 5 || st.Turn != 2 {
		t.Fatalf("stale tick changed state: %+v", st)
	}
}

// Resuming restarts the countdown at full length rather than where it stopped.
func TestPauseResumeResetsCountdown(t *testing.T) {
	s, _ := newActive(t, Config{TurnSeconds: 3})
	s.tick(currentGen(s))
	if got := s.Snapshot().TimeLeft; got != 2 {
		t.Fatalf("expected 2 seconds left, got %d", got)
	}
	paused, err := s.TogglePause(2)
	if err != nil || !paused {
		t.Fatalf("pause: paused=%v err=%v", paused, err)
	}
	if s.tick(currentGen(s)) {
		t.Fatalf("tick while paused should not run")
	}
	if got := s.Snapshot().TimeLeft; got != 2 {
		t.Fatalf("paused countdown moved: %d", got)
	}
	paused, err = s.TogglePause(1)
	if err != nil || paused {
		t.Fatalf("resume: paused=%v err=%v", paused, err)
	}
	if got := s.Snapshot().TimeLeft; got != 3 {
		t.Fatalf("resume should restart a full countdown, got %d", got)
	}
}

func TestDepartureEndsActiveGame(t *testing.T) {
	s, rec := newActive(t, Config{})
	if err := s.SubmitMove(1, h(0, 0)); err != nil {
		t.Fatalf("move: %v", err)
	}
	left, err := s.Depart("c2")
	if err != nil || left.Number != 2 {
		t.Fatalf("depart: slot=%+v err=%v", left, err)
	}
	st := s.Snapshot()
	if st.Status != StatusEnded || st.Winner != 1 {
		t.Fatalf("expected ENDED won by player 1, got status=%s winner=%d", st.Status, st.Winner)
	}
	if _, err := s.Depart("c2"); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("second departure should fail, got %v", err)
	}
	if _, err := s.Depart("c1"); err != nil {
		t.Fatalf("remaining player leave: %v", err)
	}
	ends := rec.ends()
	if len(ends) != 1 || ends[0].Reason != ReasonDeparture || ends[0].Winner != 1 {
		t.Fatalf("expected one departure summary, got %+v", ends)
	}
	if ends[0].Players[1].Name != "bob" {
		t.Fatalf("summary should keep the departed player: %+v", ends[0].Players)
	}
	if s.PlayerCount() != 0 {
		t.Fatalf("expected no bound players")
	}
	if rec.count(EventPlayerLeft) != 2 || rec.count(EventGameOver) != 1 {
		t.Fatalf("unexpected events %v", rec.kinds())
	}
}

func TestReclaim(t *testing.T) {
	pairing := New("pairing", Config{TickInterval: time.Hour}, nil, nil)
	if pairing.Reclaim(time.Now(), time.Hour) {
		t.Fatalf("waiting session should survive while it is being paired")
	}
	if !pairing.Reclaim(time.Now().Add(2*time.Hour), time.Hour) {
		t.Fatalf("stale waiting session should be evicted")
	}

	finished, _ := newActive(t, Config{})
	for _, c := range []string{"c1", "c2"} {
		if _, err := finished.Depart(c); err != nil {
			t.Fatalf("depart %s: %v", c, err)
		}
	}
	if !finished.Reclaim(time.Now(), time.Hour) {
		t.Fatalf("finished session without players should be evicted regardless of age")
	}

	fresh, _ := newActive(t, Config{})
	if fresh.Reclaim(time.Now(), time.Hour) {
		t.Fatalf("recently active session should stay")
	}

	idleNoMoves, rec0 := newActive(t, Config{})
	if !idleNoMoves.Reclaim(time.Now().Add(2*time.Hour), time.Hour) {
		t.Fatalf("idle session should be evicted")
	}
	if len(rec0.ends()) != 0 {
		t.Fatalf("idle session without moves should not be persisted")
	}

	inFlight, rec := newActive(t, Config{})
	if err := inFlight.SubmitMove(1, h(0, 0)); err != nil {
		t.Fatalf("move: %v", err)
	}
	later := time.Now().Add(2 * time.Hour)
	if !inFlight.Reclaim(later, time.Hour) {
		t.Fatalf("idle in-flight session should be evicted")
	}
	inFlight.Reclaim(later, time.Hour)
	ends := rec.ends()
	if len(ends) != 1 || ends[0].Reason != ReasonAbandoned || ends[0].Winner != 0 {
		t.Fatalf("expected exactly one abandoned summary, got %+v", ends)
	}
	if inFlight.Status() != StatusEnded {
		t.Fatalf("reclaimed session should be ENDED")
	}
}

func TestConcurrentSubmissionsSerialize(t *testing.T) {
	s, _ := newActive(t, Config{})
	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.SubmitMove(1, h(2, 2))
		}()
	}
	wg.Wait()
	close(results)
	ok := 0
	for err := range results {
		if err == nil {
			ok++
		}
	}
	if ok != 1 {
		t.Fatalf("exactly one concurrent submission should win, got %d", ok)
	}
	if n := len(s.Snapshot().Lines); n != 1 {
		t.Fatalf("expected one line, got %d", n)
	}
}

// Unreachable in play since a full board ends the game, so the state is built by hand.
func TestTimeoutWithoutLegalMovePassesTurn(t *testing.T) {
	s, rec := newActive(t, Config{TurnSeconds: 1})
	s.mu.Lock()
	s.lines = board.LegalMoves(s.cfg.GridSize, nil, 1)
	s.mu.Unlock()

	if s.tick(currentGen(s)) {
		t.Fatalf("expiring tick should retire its generation")
	}
	st := s.Snapshot()
	if st.Status != StatusActive || st.Turn != 2 || st.TimeLeft != 1 {
		t.Fatalf("turn should pass with a fresh countdown: status=%s turn=%d left=%d", st.Status, st.Turn, st.TimeLeft)
	}
	if rec.count(EventForcedMove) != 0 {
		t.Fatalf("no move should be forced, got %v", rec.kinds())
	}
	rec.mu.Lock()
	last := rec.events[len(rec.events)-1]
	rec.mu.Unlock()
	if last.Kind != EventStateChanged || last.Reason != "timeout" {
		t.Fatalf("expected a timeout state change, got %s %q", last.Kind, last.Reason)
	}
}

func TestShutdownAbandonsInFlightGame(t *testing.T) {
	s, rec := newActive(t, Config{})
	if err := s.SubmitMove(1, h(0, 0)); err != nil {
		t.Fatalf("move: %v", err)
	}
	s.Shutdown()
	if _, err := s.Depart("c1"); err != nil {
		t.Fatalf("depart after shutdown: %v", err)
	}
	s.Shutdown()
	ends := rec.ends()
	if len(ends) != 1 || ends[0].Reason != ReasonAbandoned || ends[0].Winner != 0 {
		t.Fatalf("expected exactly one abandoned summary, got %+v", ends)
	}
	if rec.count(EventGameOver) != 1 {
		t.Fatalf("unexpected events %v", rec.kinds())
	}

	fresh, rec2 := newActive(t, Config{})
	fresh.Shutdown()
	if fresh.Status() != StatusEnded || len(rec2.ends()) != 0 {
		t.Fatalf("game without moves should end unrecorded: status=%s ends=%d", fresh.Status(), len(rec2.ends()))
	}
}
