// Package scheduler runs the background refresh loops.
//
// Nothing is scheduled until hydration has succeeded. After that every enabled
// task gets its own loop: refresh, wait RefreshInterval, repeat. A failed
// iteration is logged and the loop carries on; only cancellation ends it.
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"warmup/internal/runtime/supervisor"
	"warmup/internal/task/hydration"
	"warmup/internal/task/registry"
	logx "warmup/pkg/logx"
)

// DefaultFailureLogEvery spaces out repeated failure warnings of one loop.
const DefaultFailureLogEvery = time.Minute

type Options struct {
	Log logx.Logger

	// FailureLogEvery is the sustained rate of warn-level failure logs per
	// task (burst of 3). Extra failures are logged at debug.
	FailureLogEvery time.Duration
}

type Scheduler struct {
	reg      *registry.Registry
	signal   *hydration.Signal
	log      logx.Logger
	logEvery time.Duration

	sup atomic.Pointer[supervisor.Supervisor]
}

func New(reg *registry.Registry, signal *hydration.Signal, opts Options) *Scheduler {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.FailureLogEvery <= 0 {
		opts.FailureLogEvery = DefaultFailureLogEvery
	}
	return &Scheduler{reg: reg, signal: signal, log: opts.Log, logEvery: opts.FailureLogEvery}
}

// Run waits for hydration, then blocks until every refresh loop has ended.
// A failed or cancelled hydration disables scheduling; Run then returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.signal.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			s.log.Info("background refresh not started; shutting down")
			return nil
		}
		s.log.Error("background refresh disabled: hydration failed", logx.Err(err))
		return nil
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.sup.Store(sup)
	n := 0
	for _, t := range s.reg.Tasks() {
		if !t.Enabled() {
			continue
		}
		sup.Go("refresh:"+t.ID(), func(ctx context.Context) error {
			return s.loop(ctx, t)
		})
		n++
	}
	s.log.Info("background refresh started", logx.Int("loops", n))

	// Loops only return on cancellation, so this waits for shutdown.
	err := sup.Wait(context.Background())
	s.log.Info("background refresh stopped", logx.Int("loops", n))
	return err
}

// Snapshot reports per-loop goroutine stats. It is empty until Run has
// started the loops.
func (s *Scheduler) Snapshot() supervisor.Snapshot {
	sup := s.sup.Load()
	if sup == nil {
		return supervisor.Snapshot{}
	}
	return sup.Snapshot()
}

func (s *Scheduler) loop(ctx context.Context, t *registry.Task) error {
	id := t.ID()
	interval := t.Config().RefreshInterval
	warn := rate.NewLimiter(rate.Every(s.logEvery), 3)
	timer := time.NewTimer(interval)
	timer.Stop()

	for {
		// A fired timer and a cancelled ctx can be ready together; never
		// start another execution once cancelled.
		if ctx.Err() != nil {
			return nil
		}
		if err := s.reg.ForceRefresh(ctx, id); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			switch {
			case errors.Is(err, context.Canceled):
				s.log.Debug("refresh iteration cancelled by callback", logx.String("task", id))
			case warn.Allow():
				s.log.Warn("refresh iteration failed; retrying after interval", logx.String("task", id), logx.Duration("interval", interval), logx.Err(err))
			default:
				s.log.Debug("refresh iteration failed", logx.String("task", id), logx.Err(err))
			}
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
