package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warmup/internal/app"
	"warmup/internal/inventory"
	logx "warmup/pkg/logx"
)

func main() {
	var (
		cfgPath     string
		statusEvery time.Duration
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.DurationVar(&statusEvery, "status-every", time.Minute, "log a status line this often (0 disables)")
	flag.Parse()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	var models inventory.Models
	if err := inventory.Register(a.Registry(), a.Scopes(), inventory.NewStatic(150*time.Millisecond), &models, a.Logger().With(logx.String("comp", "inventory"))); err != nil {
		fmt.Fprintln(os.Stderr, "fatal register:", err)
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	if statusEvery > 0 {
		go logStatus(ctx, a, &models, statusEvery)
	}

	var reason app.StopReason
	select {
	case sig := <-sigCh:
		reason = app.StopReasonForSignal(sig)
	case <-a.Done():
		reason = app.StopFatalError
	}
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), a.ShutdownTimeout())
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func logStatus(ctx context.Context, a *app.App, m *inventory.Models, every time.Duration) {
	log := a.Logger().With(logx.String("comp", "status"))
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st := a.Status()
			log.Info("status",
				logx.String("readiness", string(st.Readiness.Phase)),
				logx.Int64("loops", st.Loops.Counters.Active),
				logx.Int("history", st.History),
				logx.Uint64("catalog_v", m.Catalog.Version()),
				logx.Uint64("stock_v", m.Stock.Version()),
				logx.Uint64("margins_v", m.Margins.Version()),
				logx.Bool("margins_stale", m.Margins.Stale(time.Now(), 3*every)),
			)
		}
	}
}
