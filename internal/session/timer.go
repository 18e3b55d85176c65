package session

import "time"

// startTimerLocked begins a fresh full-length countdown for the current turn.
// Any earlier countdown is invalidated by bumping the generation.
func (s *Session) startTimerLocked() {
	s.stopTimerLocked()
	s.timeLeft = s.cfg.TurnSeconds
	gen := s.timerGen
	stop := make(chan struct{})
	s.timerStop = stop
	go s.runTimer(gen, stop, s.cfg.TickInterval)
}

// stopTimerLocked cancels the running countdown. A tick already waiting on mu
// sees a stale generation once it gets the lock and does nothing.
func (s *Session) stopTimerLocked() {
	if s.timerStop != nil {
		close(s.timerStop)
		s.timerStop = nil
	}
	s.timerGen++
}

func (s *Session) runTimer(gen uint64, stop <-chan struct{}, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if !s.tick(gen) {
				return
			}
		}
	}
}

// tick advances the countdown by one step. It returns false once gen is no longer current.
func (s *Session) tick(gen uint64) bool {
	alive := false
	_ = s.do(func() error {
		if gen != s.timerGen || s.status != StatusActive || s.paused {
			return nil
		}
		s.timeLeft--
		if s.timeLeft > 0 {
			s.outbox = append(s.outbox, Event{Kind: EventTimerTick, SecondsLeft: s.timeLeft})
			alive = true
			return nil
		}
		s.outbox = append(s.outbox, Event{Kind: EventTimerTick, SecondsLeft: 0})
		s.stopTimerLocked()
		s.autoMoveLocked()
		return nil
	})
	return alive
}
