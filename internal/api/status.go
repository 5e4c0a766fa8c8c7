package api

import (
	"sync"

	"github.com/thatsimonsguy/tado-setpoint-exporter/internal/scheduler"
)

// Status holds the latest loop snapshot for HTTP readers.
type Status struct {
	mu   sync.RWMutex
	snap scheduler.Snapshot
	set  bool
}

func (s *Status) Update(snap scheduler.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.set = true
}

// Snapshot returns the latest snapshot; ok is false before the first tick.
func (s *Status) Snapshot() (snap scheduler.Snapshot, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.set
}
