// Package hydration runs the one-time, tier-ordered warm-up pass.
//
// Tasks of one tier run concurrently; tier N+1 starts only after every task of
// tier N has returned. The first failure stops the pass: later tiers never
// start and the completion signal carries the failing task's error.
package hydration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"warmup/internal/task/registry"
	logx "warmup/pkg/logx"
)

// TaskError identifies the task that failed hydration.
type TaskError struct {
	Tier   int
	TaskID string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("hydration tier %d: %s: %v", e.Tier, e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Runner is what the scheduler and the app need from a hydration pass.
type Runner interface {
	Run(ctx context.Context) error
	Signal() *Signal
}

type Orchestrator struct {
	reg *registry.Registry
	log logx.Logger

	once sync.Once
	sig  *Signal
}

func New(reg *registry.Registry, log logx.Logger) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Orchestrator{reg: reg, log: log, sig: NewSignal()}
}

func (o *Orchestrator) Signal() *Signal { return o.sig }

// Run performs the pass once. Later calls wait for and return the first
// call's outcome.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.once.Do(func() {
		o.sig.resolve(o.run(ctx))
	})
	return o.sig.Err()
}

func (o *Orchestrator) run(ctx context.Context) error {
	start := time.Now()
	tiers, byTier := groupByTier(o.reg.Tasks())
	if len(tiers) == 0 {
		o.log.Info("hydration completed; no enabled tasks")
		return nil
	}
	o.log.Info("hydration started", logx.Int("tiers", len(tiers)))

	for _, tier := range tiers {
		if err := ctx.Err(); err != nil {
			return err
		}
		tasks := byTier[tier]
		tierStart := time.Now()
		o.log.Debug("hydration tier started", logx.Int("tier", tier), logx.Int("tasks", len(tasks)))

		// Siblings are not cancelled on failure: the tier is joined as a whole.
		var g errgroup.Group
		for _, t := range tasks {
			g.Go(func() error {
				if err := o.hydrate(ctx, t); err != nil {
					return &TaskError{Tier: tier, TaskID: t.ID(), Err: err}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			o.log.Error("hydration failed", logx.Int("tier", tier), logx.Duration("took", time.Since(start)), logx.Err(err))
			return err
		}
		o.log.Info("hydration tier completed", logx.Int("tier", tier), logx.Int("tasks", len(tasks)), logx.Duration("took", time.Since(tierStart)))
	}

	o.log.Info("hydration completed", logx.Duration("took", time.Since(start)))
	return nil
}

func (o *Orchestrator) hydrate(ctx context.Context, t *registry.Task) error {
	if d := t.Config().InitialDelay; d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return o.reg.Execute(ctx, t, false)
}

// groupByTier keeps enabled tasks only and returns their tiers ascending.
func groupByTier(tasks []*registry.Task) ([]int, map[int][]*registry.Task) {
	byTier := map[int][]*registry.Task{}
	for _, t := range tasks {
		if !t.Enabled() {
			continue
		}
		byTier[t.Tier()] = append(byTier[t.Tier()], t)
	}
	tiers := make([]int, 0, len(byTier))
	for tier := range byTier {
		tiers = append(tiers, tier)
	}
	sort.Ints(tiers)
	return tiers, byTier
}
