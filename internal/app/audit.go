package app

import (
	"context"
	"time"

	"warmup/internal/eventbus"
	"warmup/internal/storage"
	"warmup/internal/task/registry"
	logx "warmup/pkg/logx"
)

const auditWriteTimeout = 2 * time.Second

// exportLoop forwards terminal executions from the bus to the audit store.
// The bus drops events for slow subscribers, so the trail is best-effort.
func (a *App) exportLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			a.drainExport(events)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.export(ev)
		}
	}
}

// drainExport writes whatever is already buffered; it never waits for more.
func (a *App) drainExport(events <-chan eventbus.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.export(ev)
		default:
			return
		}
	}
}

func (a *App) export(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.TypeRefreshCompleted, eventbus.TypeRefreshFailed, eventbus.TypeRefreshCancelled:
	default:
		a.log.Trace("event", logx.String("type", ev.Type), logx.Time("time", ev.Time))
		return
	}
	e, ok := ev.Data.(registry.Entry)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()
	if err := a.store.AppendExecution(ctx, toRecord(e)); err != nil {
		a.log.Warn("audit export failed", logx.String("task", e.TaskID), logx.Uint64("exec", e.ExecutionID), logx.Err(err))
	}
}

func toRecord(e registry.Entry) storage.Record {
	r := storage.Record{
		ExecutionID: e.ExecutionID,
		TaskID:      e.TaskID,
		Status:      string(e.Status),
		StartedAt:   e.StartedAt,
		TookMS:      e.Duration().Milliseconds(),
		Forced:      e.IsForceRefresh(),
		Error:       e.Error,
		Metadata:    e.Metadata,
	}
	if e.CompletedAt != nil {
		r.CompletedAt = *e.CompletedAt
	}
	return r
}
