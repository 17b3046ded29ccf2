package trajectory

import (
	"context"
	"sync"
)

// MemorySink is a process-local Sink for tests and for embedders that
// supply their own durable store via the narrow Sink interface.
type MemorySink struct {
	mu       sync.Mutex
	recorded []Trajectory
}

// NewMemorySink constructs an empty MemorySink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Write(_ context.Context, t Trajectory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, t)
	return nil
}

// All returns every Trajectory written so far, in write order.
func (s *MemorySink) All() []Trajectory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Trajectory(nil), s.recorded...)
}

var _ Sink = (*MemorySink)(nil)
