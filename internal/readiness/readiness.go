// Package readiness surfaces the hydration phase to health checks and the
// service manager.
package readiness

import (
	"sync"
	"time"

	"warmup/internal/eventbus"
)

// Tracker receives hydration lifecycle notifications.
type Tracker interface {
	ReportHydrationStarted()
	ReportHydrationCompleted()
	ReportHydrationFailed(reason string)
}

type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseHydrating Phase = "hydrating"
	PhaseReady     Phase = "ready"
	PhaseFailed    Phase = "failed"
)

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	Phase      Phase     `json:"phase"`
	Reason     string    `json:"reason,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// State is an in-memory Tracker. It optionally mirrors transitions onto a bus.
type State struct {
	mu  sync.RWMutex
	cur Snapshot
	bus eventbus.Bus
	now func() time.Time
}

func NewState(bus eventbus.Bus) *State {
	return &State{cur: Snapshot{Phase: PhasePending}, bus: bus, now: time.Now}
}

func (s *State) ReportHydrationStarted() {
	s.mu.Lock()
	s.cur = Snapshot{Phase: PhaseHydrating, StartedAt: s.now()}
	snap := s.cur
	s.mu.Unlock()
	eventbus.Publish(s.bus, eventbus.TypeHydrationStarted, snap)
}

func (s *State) ReportHydrationCompleted() {
	s.mu.Lock()
	s.cur.Phase = PhaseReady
	s.cur.Reason = ""
	s.cur.FinishedAt = s.now()
	snap := s.cur
	s.mu.Unlock()
	eventbus.Publish(s.bus, eventbus.TypeHydrationCompleted, snap)
}

func (s *State) ReportHydrationFailed(reason string) {
	s.mu.Lock()
	s.cur.Phase = PhaseFailed
	s.cur.Reason = reason
	s.cur.FinishedAt = s.now()
	snap := s.cur
	s.mu.Unlock()
	eventbus.Publish(s.bus, eventbus.TypeHydrationFailed, snap)
}

// Ready reports whether hydration completed successfully.
func (s *State) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Phase == PhaseReady
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Multi fans every notification out to each tracker in order.
type Multi []Tracker

func (m Multi) ReportHydrationStarted() {
	for _, t := range m {
		if t != nil {
			t.ReportHydrationStarted()
		}
	}
}

func (m Multi) ReportHydrationCompleted() {
	for _, t := range m {
		if t != nil {
			t.ReportHydrationCompleted()
		}
	}
}

func (m Multi) ReportHydrationFailed(reason string) {
	for _, t := range m {
		if t != nil {
			t.ReportHydrationFailed(reason)
		}
	}
}
