package learning

import (
	"sync"
	"time"
)

// cycleState guards the single-flight learning cycle. The flag is the only
// admission control: tryStart flips it atomically and finish releases it,
// including on panic.
type cycleState struct {
	mu         sync.Mutex
	running    bool
	lastRun    *time.Time
	lastResult *CycleResult
}

func (s *cycleState) tryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

// abandon releases a reserved slot whose cycle never started.
func (s *cycleState) abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

func (s *cycleState) finish(res *CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	now := res.FinishedAt
	s.lastRun = &now
	s.lastResult = res
}

func (s *cycleState) snapshot() (bool, *time.Time, *CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.lastRun, s.lastResult
}
