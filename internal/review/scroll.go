package review

import (
	"sync"
	"time"

	"github.com/dshills/inkwell/internal/diff"
)

// DefaultScrollLock is how long a mirrored scroll suppresses the echo from
// the other pane.
const DefaultScrollLock = 50 * time.Millisecond

// Syncer mirrors the scroll position of one review pane onto the other.
//
// Mirroring a scroll makes the other pane emit its own scroll event. While
// the lock is held such events are dropped, so the panes do not bounce
// positions back and forth. The lock releases itself after a fixed delay.
type Syncer struct {
	lock  time.Duration
	apply func(target diff.Side, ratio float64)

	mu     sync.Mutex
	locked bool
	seq    uint64
	timer  *time.Timer
}

// NewSyncer creates a syncer that moves the target pane through apply.
// A non-positive lock uses DefaultScrollLock.
func NewSyncer(lock time.Duration, apply func(target diff.Side, ratio float64)) *Syncer {
	if lock <= 0 {
		lock = DefaultScrollLock
	}
	return &Syncer{lock: lock, apply: apply}
}

// Scrolled reports a user scroll of pane from to ratio, the scroll offset as
// a fraction of the scrollable height. It returns false if the event was an
// echo dropped under the lock.
func (s *Syncer) Scrolled(from diff.Side, ratio float64) bool {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		return false
	}
	s.locked = true
	s.seq++
	seq := s.seq
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.lock, func() { s.release(seq) })
	s.mu.Unlock()

	s.apply(opposite(from), clamp(ratio))
	return true
}

// Locked reports whether echoes are currently dropped.
func (s *Syncer) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Stop cancels a pending release and unlocks immediately.
func (s *Syncer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.seq++
	s.locked = false
}

func (s *Syncer) release(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == seq {
		s.locked = false
	}
}

func opposite(side diff.Side) diff.Side {
	if side == diff.Left {
		return diff.Right
	}
	return diff.Left
}

func clamp(ratio float64) float64 {
	switch {
	case ratio < 0 || ratio != ratio: // NaN
		return 0
	case ratio > 1:
		return 1
	}
	return ratio
}
