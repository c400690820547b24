package hydration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"warmup/internal/readiness"
	"warmup/internal/task/registry"
	"warmup/internal/task/scope"
	logx "warmup/pkg/logx"
)

var logxNop = logx.Nop()

type callLog struct {
	mu    sync.Mutex
	start map[string]time.Time
	end   map[string]time.Time
}

func newCallLog() *callLog {
	return &callLog{start: map[string]time.Time{}, end: map[string]time.Time{}}
}

func (c *callLog) fn(id string, d time.Duration, err error) registry.Func {
	return func(ctx context.Context, _ *scope.Scope) error {
		c.mu.Lock()
		c.start[id] = time.Now()
		c.mu.Unlock()
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		c.end[id] = time.Now()
		c.mu.Unlock()
		return err
	}
}

func (c *callLog) started(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.start[id]
	return ok
}

func register(t *testing.T, r *registry.Registry, id string, fn registry.Func, opts ...registry.ConfigOption) {
	t.Helper()
	cfg, err := registry.NewConfig(id, time.Minute, opts...)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Register(id, fn, cfg); err != nil {
		t.Fatal(err)
	}
}

func TestTiersRunInOrder(t *testing.T) {
	r := registry.New(registry.Options{})
	calls := newCallLog()
	register(t, r, "Catalog.Load", calls.fn("Catalog.Load", 30*time.Millisecond, nil))
	register(t, r, "Stock.Sync", calls.fn("Stock.Sync", 10*time.Millisecond, nil))
	register(t, r, "Margins.Recompute", calls.fn("Margins.Recompute", 0, nil), registry.WithHydrationTier(2))
	register(t, r, "Report.Build", calls.fn("Report.Build", 0, nil), registry.WithHydrationTier(5))
	register(t, r, "Disabled.Task", calls.fn("Disabled.Task", 0, nil), registry.WithEnabled(false))

	o := New(r, logxNop)
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, t1 := range []string{"Catalog.Load", "Stock.Sync"} {
		if calls.start["Margins.Recompute"].Before(calls.end[t1]) {
			t.Fatalf("%s ended after tier 2 started", t1)
		}
	}
	if calls.start["Report.Build"].Before(calls.end["Margins.Recompute"]) {
		t.Fatal("tier 5 started before tier 2 finished")
	}
	if calls.started("Disabled.Task") {
		t.Fatal("disabled task must not hydrate")
	}
	for _, e := range r.History("", 0) {
		if e.Status != registry.StatusCompleted || e.IsForceRefresh() {
			t.Fatalf("entry = %+v", e)
		}
	}
}

func TestTierRunsConcurrently(t *testing.T) {
	r := registry.New(registry.Options{})
	var inFlight, peak atomic.Int32
	fn := func(ctx context.Context, _ *scope.Scope) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}
	register(t, r, "A.One", fn)
	register(t, r, "B.Two", fn)
	register(t, r, "C.Three", fn)

	if err := New(r, logxNop).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if peak.Load() != 3 {
		t.Fatalf("peak concurrency = %d, want 3", peak.Load())
	}
}

func TestFailureStopsLaterTiers(t *testing.T) {
	r := registry.New(registry.Options{})
	calls := newCallLog()
	boom := errors.New("catalog unavailable")
	register(t, r, "Catalog.Load", calls.fn("Catalog.Load", 0, boom))
	register(t, r, "Stock.Sync", calls.fn("Stock.Sync", 20*time.Millisecond, nil))
	register(t, r, "Margins.Recompute", calls.fn("Margins.Recompute", 0, nil), registry.WithHydrationTier(2))

	o := New(r, logxNop)
	err := o.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run err = %v", err)
	}
	var te *TaskError
	if !errors.As(err, &te) || te.TaskID != "Catalog.Load" || te.Tier != 1 {
		t.Fatalf("TaskError = %+v", te)
	}
	if calls.started("Margins.Recompute") {
		t.Fatal("tier 2 must not start after a tier 1 failure")
	}
	// The sibling is joined, not abandoned.
	last, _ := r.LastExecution("Stock.Sync")
	if last.Status != registry.StatusCompleted {
		t.Fatalf("sibling status = %s", last.Status)
	}
	if !errors.Is(o.Signal().Err(), boom) {
		t.Fatalf("signal err = %v", o.Signal().Err())
	}
}

func TestZeroTasksSucceedsImmediately(t *testing.T) {
	o := New(registry.New(registry.Options{}), logxNop)
	if err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-o.Signal().Done():
	default:
		t.Fatal("signal not resolved")
	}
}

func TestRunsOnceAndLateWaitersSeeOutcome(t *testing.T) {
	r := registry.New(registry.Options{})
	var n atomic.Int32
	register(t, r, "Catalog.Load", func(context.Context, *scope.Scope) error {
		n.Add(1)
		return nil
	})
	o := New(r, logxNop)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.Run(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if n.Load() != 1 {
		t.Fatalf("callback ran %d times", n.Load())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := o.Signal().Wait(ctx); err != nil {
		t.Fatalf("late Wait = %v", err)
	}
}

func TestCancelDuringInitialDelay(t *testing.T) {
	r := registry.New(registry.Options{})
	calls := newCallLog()
	register(t, r, "Catalog.Load", calls.fn("Catalog.Load", 0, nil), registry.WithInitialDelay(time.Hour))
	register(t, r, "Margins.Recompute", calls.fn("Margins.Recompute", 0, nil), registry.WithHydrationTier(2))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := New(r, logxNop).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if calls.started("Catalog.Load") || calls.started("Margins.Recompute") {
		t.Fatal("nothing should have run")
	}
	if r.HistoryLen() != 0 {
		t.Fatalf("history = %d entries", r.HistoryLen())
	}
}

func TestCancelAbortsInFlightTier(t *testing.T) {
	r := registry.New(registry.Options{})
	calls := newCallLog()
	register(t, r, "Catalog.Load", calls.fn("Catalog.Load", time.Hour, nil))
	register(t, r, "Margins.Recompute", calls.fn("Margins.Recompute", 0, nil), registry.WithHydrationTier(2))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	if err := New(r, logxNop).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	last, _ := r.LastExecution("Catalog.Load")
	if last.Status != registry.StatusCancelled {
		t.Fatalf("status = %s", last.Status)
	}
	if calls.started("Margins.Recompute") {
		t.Fatal("tier 2 started after cancellation")
	}
}

func TestTrackedReportsOutcome(t *testing.T) {
	r := registry.New(registry.Options{})
	register(t, r, "Catalog.Load", func(context.Context, *scope.Scope) error { return errors.New("boom") })

	st := readiness.NewState(nil)
	err := NewTracked(New(r, logxNop), st).Run(context.Background())
	if err == nil {
		t.Fatal("want error")
	}
	snap := st.Snapshot()
	if snap.Phase != readiness.PhaseFailed || snap.Reason != err.Error() {
		t.Fatalf("snapshot = %+v", snap)
	}

	ok := readiness.NewState(nil)
	if err := NewTracked(New(registry.New(registry.Options{}), logxNop), ok).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !ok.Ready() {
		t.Fatalf("snapshot = %+v", ok.Snapshot())
	}
}

func TestExpiredInitialDelayDoesNotRunAfterCancel(t *testing.T) {
	r := registry.New(registry.Options{})
	calls := newCallLog()
	register(t, r, "Catalog.Load", calls.fn("Catalog.Load", 0, nil), registry.WithInitialDelay(time.Nanosecond))
	task, ok := r.Lookup("Catalog.Load")
	if !ok {
		t.Fatal("task not registered")
	}
	o := New(r, logxNop)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 100; i++ {
		if err := o.hydrate(ctx, task); !errors.Is(err, context.Canceled) {
			t.Fatalf("hydrate = %v", err)
		}
	}
	if calls.started("Catalog.Load") || r.HistoryLen() != 0 {
		t.Fatal("cancelled hydration must not execute")
	}
}
