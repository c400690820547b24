package registry

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"warmup/internal/eventbus"
	logx "warmup/pkg/logx"
)

// slowExecution promotes completion logs from debug to info.
const slowExecution = 750 * time.Millisecond

// Execute runs t once: it records a Running entry, invokes the callback in a
// fresh scope, then replaces the entry with Completed, Cancelled or Failed.
// The callback's error is always returned unchanged after being recorded.
//
// Hydration and the refresh loops both go through here.
func (r *Registry) Execute(ctx context.Context, t *Task, isForceRefresh bool) error {
	if t == nil || t.fn == nil {
		return fmt.Errorf("%w: task is nil", ErrInvalidArgument)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id := t.cfg.TaskID

	running := Entry{
		TaskID:      id,
		ExecutionID: r.execSeq.Add(1),
		StartedAt:   r.now().UTC(),
		Status:      StatusRunning,
		Metadata:    map[string]string{MetaForceRefresh: strconv.FormatBool(isForceRefresh)},
	}
	r.history.add(running)
	eventbus.Publish(r.bus, eventbus.TypeRefreshStarted, running)
	r.log.Debug("refresh.started", logx.String("task", id), logx.Uint64("exec", running.ExecutionID), logx.Bool("force", isForceRefresh))

	err := r.invoke(ctx, t)

	done := running
	completedAt := r.now().UTC()
	done.CompletedAt = &completedAt
	switch {
	case err == nil:
		done.Status = StatusCompleted
	case IsCancellation(ctx, err):
		done.Status = StatusCancelled
		done.Error = err.Error()
	default:
		done.Status = StatusFailed
		done.Error = err.Error()
	}
	r.history.replace(done)

	dur := done.Duration()
	fields := []logx.Field{logx.String("task", id), logx.Uint64("exec", done.ExecutionID), logx.Duration("dur", dur), logx.Bool("force", isForceRefresh)}
	switch done.Status {
	case StatusCompleted:
		eventbus.Publish(r.bus, eventbus.TypeRefreshCompleted, done)
		if dur >= slowExecution {
			r.log.Info("refresh.completed", fields...)
		} else {
			r.log.Debug("refresh.completed", fields...)
		}
	case StatusCancelled:
		eventbus.Publish(r.bus, eventbus.TypeRefreshCancelled, done)
		r.log.Debug("refresh.cancelled", fields...)
	default:
		eventbus.Publish(r.bus, eventbus.TypeRefreshFailed, done)
		r.log.Warn("refresh.failed", append(fields, logx.Err(err))...)
	}
	return err
}

// invoke runs the callback in a new scope. Panics become errors so one bad
// callback cannot take down a refresh loop or a hydration tier.
func (r *Registry) invoke(ctx context.Context, t *Task) (err error) {
	sc := r.scopes.NewScope(ctx, t.cfg.TaskID)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			r.log.Error("refresh.panic", logx.String("task", t.cfg.TaskID), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
		}
		if cerr := sc.Close(); cerr != nil {
			if err == nil {
				err = fmt.Errorf("close scope: %w", cerr)
			} else {
				r.log.Warn("scope close failed", logx.String("task", t.cfg.TaskID), logx.Err(cerr))
			}
		}
	}()
	return t.fn(ctx, sc)
}
