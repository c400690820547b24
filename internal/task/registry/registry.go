package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"warmup/internal/eventbus"
	"warmup/internal/task/scope"
	logx "warmup/pkg/logx"
)

// Settings is the hierarchical settings lookup used by RegisterFromSettings.
// Section returns the values below path keyed by their remaining path.
type Settings interface {
	Section(path string) (map[string]string, bool)
}

type Options struct {
	Log      logx.Logger
	Bus      eventbus.Bus
	Scopes   *scope.Provider
	Settings Settings

	// HistorySize bounds the execution history (default 1000).
	HistorySize int

	// Now is the clock used for StartedAt/CompletedAt (default time.Now).
	Now func() time.Time
}

// Registry owns registered tasks, runs them, and keeps the execution history.
type Registry struct {
	log      logx.Logger
	bus      eventbus.Bus
	scopes   *scope.Provider
	settings Settings
	now      func() time.Time

	// tasks maps id -> *Task. Reads are lock-free; regMu only serializes
	// writers so the explicit-vs-settings precedence check is atomic.
	tasks sync.Map
	regMu sync.Mutex

	execSeq atomic.Uint64
	history *history
}

func New(opts Options) *Registry {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.Scopes == nil {
		opts.Scopes = scope.NewProvider()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		log:      opts.Log,
		bus:      opts.Bus,
		scopes:   opts.Scopes,
		settings: opts.Settings,
		now:      opts.Now,
		history:  newHistory(opts.HistorySize),
	}
}

// Register binds fn to taskID with an explicit config, replacing any
// previous registration of the same id.
func (r *Registry) Register(taskID string, fn Func, cfg *Config) error {
	return r.register(taskID, fn, cfg, SourceExplicit)
}

func (r *Registry) register(taskID string, fn Func, cfg *Config, src Source) error {
	id := strings.TrimSpace(taskID)
	if id == "" {
		return fmt.Errorf("%w: task id is required", ErrInvalidArgument)
	}
	if fn == nil {
		return fmt.Errorf("%w: %s: callback is required", ErrInvalidArgument, id)
	}
	if cfg == nil {
		return fmt.Errorf("%w: %s: configuration is required", ErrInvalidArgument, id)
	}
	c := *cfg
	c.TaskID = id
	if c.HydrationTier == 0 {
		c.HydrationTier = DefaultHydrationTier
	}
	if err := c.Validate(); err != nil {
		return err
	}
	t := &Task{cfg: c, fn: fn, source: src}

	r.regMu.Lock()
	if src == SourceSettings {
		if prev, ok := r.lookup(id); ok && prev.source == SourceExplicit {
			r.regMu.Unlock()
			r.log.Debug("settings registration ignored; explicit configuration takes precedence", logx.String("task", id))
			return nil
		}
	}
	_, replaced := r.tasks.Swap(id, t)
	r.regMu.Unlock()

	r.log.Info("task registered",
		logx.String("task", id),
		logx.String("source", src.String()),
		logx.Bool("replaced", replaced),
		logx.Bool("enabled", c.Enabled),
		logx.Int("tier", c.HydrationTier),
		logx.Duration("interval", c.RefreshInterval),
		logx.Duration("initial_delay", c.InitialDelay),
	)
	return nil
}

func (r *Registry) lookup(id string) (*Task, bool) {
	v, ok := r.tasks.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Task), true
}

// Lookup returns the task registered under id.
func (r *Registry) Lookup(taskID string) (*Task, bool) {
	return r.lookup(strings.TrimSpace(taskID))
}

// Tasks returns a snapshot of registered tasks sorted by id.
func (r *Registry) Tasks() []*Task {
	var out []*Task
	r.tasks.Range(func(_, v any) bool {
		out = append(out, v.(*Task))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].cfg.TaskID < out[j].cfg.TaskID })
	return out
}

// RegisteredTasks returns a snapshot of every task config sorted by id.
func (r *Registry) RegisteredTasks() []Config {
	tasks := r.Tasks()
	out := make([]Config, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.cfg)
	}
	return out
}

// ForceRefresh runs taskID now, outside its schedule, and waits for it.
// Unknown ids fail with ErrNotRegistered and leave the history untouched.
func (r *Registry) ForceRefresh(ctx context.Context, taskID string) error {
	t, ok := r.Lookup(taskID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotRegistered, taskID)
	}
	if err := r.Execute(ctx, t, true); err != nil {
		r.log.Debug("force refresh returned error", logx.String("task", t.cfg.TaskID), logx.Err(err))
		return err
	}
	return nil
}

// History returns up to maxRecords entries, newest first. An empty taskID
// selects every task; maxRecords <= 0 returns everything retained.
func (r *Registry) History(taskID string, maxRecords int) []Entry {
	return r.history.query(strings.TrimSpace(taskID), maxRecords)
}

// LastExecution returns the newest entry for taskID.
func (r *Registry) LastExecution(taskID string) (Entry, bool) {
	id := strings.TrimSpace(taskID)
	if id == "" {
		return Entry{}, false
	}
	return r.history.last(id)
}

// HistoryLen is the number of retained entries.
func (r *Registry) HistoryLen() int { return r.history.len() }
