package readiness

import (
	"errors"
	"strings"
	"testing"

	"warmup/internal/eventbus"
	logx "warmup/pkg/logx"
)

func TestStateTransitions(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	s := NewState(bus)
	if s.Ready() || s.Snapshot().Phase != PhasePending {
		t.Fatalf("initial = %+v", s.Snapshot())
	}

	s.ReportHydrationStarted()
	if got := s.Snapshot(); got.Phase != PhaseHydrating || got.StartedAt.IsZero() {
		t.Fatalf("after start = %+v", got)
	}
	s.ReportHydrationFailed("Catalog.Load: boom")
	got := s.Snapshot()
	if got.Phase != PhaseFailed || got.Reason != "Catalog.Load: boom" || s.Ready() {
		t.Fatalf("after fail = %+v", got)
	}

	s.ReportHydrationStarted()
	s.ReportHydrationCompleted()
	got = s.Snapshot()
	if !s.Ready() || got.Reason != "" || got.FinishedAt.Before(got.StartedAt) {
		t.Fatalf("after complete = %+v", got)
	}

	want := []string{
		eventbus.TypeHydrationStarted,
		eventbus.TypeHydrationFailed,
		eventbus.TypeHydrationStarted,
		eventbus.TypeHydrationCompleted,
	}
	for i, typ := range want {
		ev := <-ch
		if ev.Type != typ {
			t.Fatalf("event %d = %q, want %q", i, ev.Type, typ)
		}
	}
}

type recorder struct{ calls []string }

func (r *recorder) ReportHydrationStarted()   { r.calls = append(r.calls, "started") }
func (r *recorder) ReportHydrationCompleted() { r.calls = append(r.calls, "completed") }
func (r *recorder) ReportHydrationFailed(reason string) {
	r.calls = append(r.calls, "failed:"+reason)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, nil, b}
	m.ReportHydrationStarted()
	m.ReportHydrationFailed("x")
	m.ReportHydrationCompleted()

	for _, r := range []*recorder{a, b} {
		if strings.Join(r.calls, ",") != "started,failed:x,completed" {
			t.Fatalf("calls = %v", r.calls)
		}
	}
}

func TestSystemdNotifications(t *testing.T) {
	var sent []string
	s := NewSystemd(logx.Nop())
	s.notify = func(state string) (bool, error) {
		sent = append(sent, state)
		return true, nil
	}

	s.ReportHydrationStarted()
	s.ReportHydrationFailed("line one\nline two")
	s.ReportHydrationCompleted()

	if len(sent) != 3 {
		t.Fatalf("sent = %v", sent)
	}
	if sent[0] != "STATUS=hydrating" {
		t.Fatalf("start = %q", sent[0])
	}
	if sent[1] != "STATUS=hydration failed: line one line two" {
		t.Fatalf("fail = %q", sent[1])
	}
	if !strings.HasPrefix(sent[2], "READY=1") {
		t.Fatalf("complete = %q", sent[2])
	}
}

func TestSystemdNotifyErrorIsNotFatal(t *testing.T) {
	s := NewSystemd(logx.Nop())
	s.notify = func(string) (bool, error) { return false, errors.New("socket gone") }
	s.ReportHydrationCompleted()
}
