package matchmaking

import (
	"errors"
	"testing"
)

type fakeMembers map[string]bool

func (f fakeMembers) InSession(connID string) bool { return f[connID] }

func TestFIFOPairing(t *testing.T) {
	q := NewQueue(nil)
	if p, err := q.Join(Waiting{ConnID: "A"}); err != nil || p != nil {
		t.Fatalf("A: pair=%v err=%v", p, err)
	}
	p, err := q.Join(Waiting{ConnID: "B"})
	if err != nil || p == nil {
		t.Fatalf("B should pair: pair=%v err=%v", p, err)
	}
	if p.First.ConnID != "A" || p.Second.ConnID != "B" {
		t.Fatalf("unexpected pair order %s,%s", p.First.ConnID, p.Second.ConnID)
	}
	if p, err := q.Join(Waiting{ConnID: "C"}); err != nil || p != nil {
		t.Fatalf("C: pair=%v err=%v", p, err)
	}
	if q.Len() != 1 || q.Position("C") != 1 {
		t.Fatalf("C should wait alone: len=%d pos=%d", q.Len(), q.Position("C"))
	}
	p, err = q.Join(Waiting{ConnID: "D"})
	if err != nil || p == nil || p.First.ConnID != "C" || p.Second.ConnID != "D" {
		t.Fatalf("C should pair with D in arrival order: %+v err=%v", p, err)
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be empty")
	}
}

func TestJoinRejections(t *testing.T) {
	q := NewQueue(fakeMembers{"busy": true})
	if _, err := q.Join(Waiting{ConnID: "busy"}); !errors.Is(err, ErrAlreadyInSession) {
		t.Fatalf("expected ErrAlreadyInSession, got %v", err)
	}
	if _, err := q.Join(Waiting{ConnID: "A"}); err != nil {
		t.Fatalf("A: %v", err)
	}
	if _, err := q.Join(Waiting{ConnID: "A"}); !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}
	if _, err := q.Join(Waiting{ConnID: " "}); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("expected ErrInvalidArgs, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	q := NewQueue(nil)
	_, _ = q.Join(Waiting{ConnID: "A"})
	if !q.Remove("A") || q.Remove("A") {
		t.Fatalf("Remove should succeed once")
	}
	if p, _ := q.Join(Waiting{ConnID: "B"}); p != nil {
		t.Fatalf("removed player must not be paired")
	}
}
