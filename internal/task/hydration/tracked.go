package hydration

import (
	"context"

	"warmup/internal/readiness"
)

// Tracked reports a Runner's start and outcome to a readiness tracker.
type Tracked struct {
	inner   Runner
	tracker readiness.Tracker
}

func NewTracked(inner Runner, tracker readiness.Tracker) *Tracked {
	return &Tracked{inner: inner, tracker: tracker}
}

func (t *Tracked) Signal() *Signal { return t.inner.Signal() }

func (t *Tracked) Run(ctx context.Context) error {
	if t.tracker == nil {
		return t.inner.Run(ctx)
	}
	t.tracker.ReportHydrationStarted()
	err := t.inner.Run(ctx)
	if err != nil {
		t.tracker.ReportHydrationFailed(err.Error())
		return err
	}
	t.tracker.ReportHydrationCompleted()
	return nil
}
