package app

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"time"

	"warmup/internal/config"
	"warmup/internal/eventbus"
	"warmup/internal/readiness"
	"warmup/internal/runtime/supervisor"
	"warmup/internal/settings"
	"warmup/internal/storage"
	"warmup/internal/task/hydration"
	"warmup/internal/task/registry"
	"warmup/internal/task/scheduler"
	"warmup/internal/task/scope"
	logx "warmup/pkg/logx"
)

const defaultShutdownTimeout = 10 * time.Second

type App struct {
	cfgPath string
	cfgm    *config.Manager
	sup     *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	settings *settings.Store
	scopes   *scope.Provider
	reg      *registry.Registry
	ready    *readiness.State
	hyd      hydration.Runner
	sched    *scheduler.Scheduler

	shutdownTimeout time.Duration
}

// Option adjusts NewApp. Mostly for tests.
type Option func(*options)

type options struct {
	environ  []string
	dotenv   []string
	watchCfg bool
}

// WithEnviron replaces os.Environ() as the source of BackgroundRefresh overrides.
func WithEnviron(env []string) Option { return func(o *options) { o.environ = env } }

// WithDotEnv sets the .env files loaded before reading the environment.
func WithDotEnv(paths ...string) Option { return func(o *options) { o.dotenv = paths } }

// WithConfigWatch toggles config hot reload (default on).
func WithConfigWatch(enabled bool) Option { return func(o *options) { o.watchCfg = enabled } }

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	o := options{dotenv: []string{".env"}, watchCfg: true}
	for _, opt := range opts {
		opt(&o)
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	if o.environ == nil {
		if err := settings.LoadDotEnv(o.dotenv...); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
		o.environ = os.Environ()
	}
	st := settings.FromTree(registry.SettingsRoot, cfg.BackgroundRefresh)
	st.OverlayEnv(o.environ, registry.SettingsRoot)

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		s, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = s
		log.Info("audit storage enabled", logx.String("driver", sc.Driver))
	}

	hc, err := mapHydrationConfig(cfg)
	if err != nil {
		return nil, err
	}

	scopes := scope.NewProvider()
	reg := registry.New(registry.Options{
		Log:         log.With(logx.String("comp", "registry")),
		Bus:         bus,
		Scopes:      scopes,
		Settings:    st,
		HistorySize: hc.historySize,
	})

	ready := readiness.NewState(bus)
	trackers := readiness.Multi{ready}
	if cfg.Readiness.Systemd {
		trackers = append(trackers, readiness.NewSystemd(log.With(logx.String("comp", "sdnotify"))))
	}
	orch := hydration.New(reg, log.With(logx.String("comp", "hydration")))
	hyd := hydration.NewTracked(orch, trackers)

	sched := scheduler.New(reg, hyd.Signal(), scheduler.Options{
		Log:             log.With(logx.String("comp", "scheduler")),
		FailureLogEvery: hc.failureLogEvery,
	})

	if !o.watchCfg {
		cfgPath = ""
	}
	return &App{
		cfgPath:         cfgPath,
		cfgm:            cfgm,
		log:             log,
		logs:            logSvc,
		bus:             bus,
		store:           store,
		settings:        st,
		scopes:          scopes,
		reg:             reg,
		ready:           ready,
		hyd:             hyd,
		sched:           sched,
		shutdownTimeout: hc.shutdownTimeout,
	}, nil
}

func (a *App) Registry() *registry.Registry { return a.reg }
func (a *App) Scopes() *scope.Provider      { return a.scopes }
func (a *App) Readiness() *readiness.State  { return a.ready }
func (a *App) Bus() eventbus.Bus            { return a.bus }
func (a *App) Logger() logx.Logger          { return a.log }

// Hydration exposes the completion signal.
func (a *App) Hydration() *hydration.Signal { return a.hyd.Signal() }

// ShutdownTimeout is the configured budget for Stop.
func (a *App) ShutdownTimeout() time.Duration { return a.shutdownTimeout }

// Status is a point-in-time view for health endpoints and logs.
type Status struct {
	Readiness readiness.Snapshot  `json:"readiness"`
	Tasks     []registry.Config   `json:"tasks"`
	Loops     supervisor.Snapshot `json:"loops"`
	History   int                 `json:"history"`
}

func (a *App) Status() Status {
	return Status{
		Readiness: a.ready.Snapshot(),
		Tasks:     a.reg.RegisteredTasks(),
		Loops:     a.sched.Snapshot(),
		History:   a.reg.HistoryLen(),
	}
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches hydration, the refresh scheduler and the auxiliary loops.
// Tasks must be registered before Start.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return fmt.Errorf("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if a.store != nil {
		events, unsub := a.bus.Subscribe(256)
		a.sup.Go0("audit.export", func(c context.Context) {
			defer unsub()
			a.exportLoop(c, events)
		})
	}

	// Hydration failure is reported through readiness; it is not fatal to
	// the process, which stays up and reports unready.
	a.sup.Go0("hydration", func(c context.Context) {
		_ = a.hyd.Run(c)
	})
	a.sup.Go("scheduler", a.sched.Run)

	if a.cfgPath != "" {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })
		sub := a.cfgm.Subscribe(8)
		a.sup.Go0("config.reload", func(c context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			a.reloadLoop(c, sub)
		})
		a.sup.Go("config.watch", a.cfgm.Watch)
	}

	a.log.Info("app started", logx.Int("tasks", len(a.reg.RegisteredTasks())))
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			if newCfg == nil {
				continue
			}
			if changed := restartOnlySections(lastApplied, newCfg); len(changed) > 0 {
				a.log.Warn("config sections changed; restart required for them to take effect", logx.Any("sections", changed))
			}
			a.logs.Apply(mapLoggingConfig(newCfg))
			lastApplied = newCfg
			a.log.Info("config reloaded", logx.String("level", newCfg.Logging.Level))
		}
	}
}

// restartOnlySections lists the sections that are read once at startup.
func restartOnlySections(old, cur *config.Config) []string {
	if old == nil || cur == nil {
		return nil
	}
	var out []string
	if !reflect.DeepEqual(old.Hydration, cur.Hydration) {
		out = append(out, "hydration")
	}
	if !reflect.DeepEqual(old.Readiness, cur.Readiness) {
		out = append(out, "readiness")
	}
	if !reflect.DeepEqual(old.Storage, cur.Storage) {
		out = append(out, "storage")
	}
	if !reflect.DeepEqual(old.BackgroundRefresh, cur.BackgroundRefresh) {
		out = append(out, registry.SettingsRoot)
	}
	return out
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so hydration and the refresh loops unwind immediately.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
				max = time.Until(dl)
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			return
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("supervisor", a.shutdownTimeout, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.Int("history", a.reg.HistoryLen()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
