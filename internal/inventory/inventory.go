// Package inventory is the warmupd demo domain: three read models hydrated in
// dependency order and kept fresh in the background.
//
//	tier 1: Catalog.Load, Stock.Sync
//	tier 2: Margins.Recompute (needs both tier 1 models)
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"warmup/internal/readmodel"
	"warmup/internal/task/registry"
	"warmup/internal/task/scope"
	logx "warmup/pkg/logx"
)

const (
	TaskCatalogLoad      = "Catalog.Load"
	TaskStockSync        = "Stock.Sync"
	TaskMarginsRecompute = "Margins.Recompute"

	// ScopeUpstream resolves a per-execution upstream session.
	ScopeUpstream = "inventory.upstream"

	catalogInterval = 5 * time.Minute
)

var ErrNotHydrated = errors.New("read model not hydrated")

type Item struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	CostCents  int64  `json:"cost_cents"`
	PriceCents int64  `json:"price_cents"`
}

type Level struct {
	SKU    string `json:"sku"`
	OnHand int    `json:"on_hand"`
}

type Margin struct {
	SKU       string  `json:"sku"`
	MarginPct float64 `json:"margin_pct"`
	OnHand    int     `json:"on_hand"`
	// StockValueCents is OnHand * CostCents.
	StockValueCents int64 `json:"stock_value_cents"`
}

// Upstream is the system of record the read models are built from.
type Upstream interface {
	Items(ctx context.Context) ([]Item, error)
	StockLevels(ctx context.Context) ([]Level, error)
}

// Models are the warm read models.
type Models struct {
	Catalog readmodel.Snapshot[map[string]Item]
	Stock   readmodel.Snapshot[map[string]int]
	Margins readmodel.Snapshot[[]Margin]
}

type service struct {
	log    logx.Logger
	models *Models
}

// Register wires the three refresh tasks. Catalog.Load uses an explicit
// config; Stock.Sync and Margins.Recompute come from BackgroundRefresh
// settings.
func Register(reg *registry.Registry, scopes *scope.Provider, up Upstream, m *Models, log logx.Logger) error {
	if reg == nil || scopes == nil || up == nil || m == nil {
		return fmt.Errorf("%w: inventory dependencies are required", registry.ErrInvalidArgument)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	scopes.Provide(ScopeUpstream, func(ctx context.Context, sc *scope.Scope) (any, error) {
		s := &session{up: up, opened: time.Now()}
		sc.OnClose(func() error {
			log.Trace("upstream session closed", logx.String("task", sc.TaskID()), logx.Int("calls", s.calls), logx.Duration("open", time.Since(s.opened)))
			return nil
		})
		return s, nil
	})

	svc := &service{log: log, models: m}

	cfg, err := registry.NewConfig(TaskCatalogLoad, catalogInterval, registry.WithHydrationTier(1))
	if err != nil {
		return err
	}
	if err := reg.Register(TaskCatalogLoad, svc.loadCatalog, cfg); err != nil {
		return err
	}
	if err := reg.RegisterFromSettings(TaskStockSync, svc.syncStock); err != nil {
		return err
	}
	return reg.RegisterFromSettings(TaskMarginsRecompute, svc.recomputeMargins)
}

// session counts upstream calls made within one execution scope.
type session struct {
	up     Upstream
	calls  int
	opened time.Time
}

func (s *session) items(ctx context.Context) ([]Item, error) {
	s.calls++
	return s.up.Items(ctx)
}

func (s *session) levels(ctx context.Context) ([]Level, error) {
	s.calls++
	return s.up.StockLevels(ctx)
}

func (svc *service) loadCatalog(ctx context.Context, sc *scope.Scope) error {
	sess, err := scope.Get[*session](sc, ScopeUpstream)
	if err != nil {
		return err
	}
	items, err := sess.items(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	out := make(map[string]Item, len(items))
	for _, it := range items {
		out[it.SKU] = it
	}
	ver := svc.models.Catalog.Store(out)
	svc.log.Debug("catalog loaded", logx.Int("items", len(out)), logx.Uint64("version", ver))
	return nil
}

func (svc *service) syncStock(ctx context.Context, sc *scope.Scope) error {
	sess, err := scope.Get[*session](sc, ScopeUpstream)
	if err != nil {
		return err
	}
	levels, err := sess.levels(ctx)
	if err != nil {
		return fmt.Errorf("sync stock: %w", err)
	}
	out := make(map[string]int, len(levels))
	for _, l := range levels {
		out[l.SKU] += l.OnHand
	}
	ver := svc.models.Stock.Store(out)
	svc.log.Debug("stock synced", logx.Int("skus", len(out)), logx.Uint64("version", ver))
	return nil
}

func (svc *service) recomputeMargins(ctx context.Context, _ *scope.Scope) error {
	catalog, ok := svc.models.Catalog.Load()
	if !ok {
		return fmt.Errorf("recompute margins: catalog: %w", ErrNotHydrated)
	}
	stock, ok := svc.models.Stock.Load()
	if !ok {
		return fmt.Errorf("recompute margins: stock: %w", ErrNotHydrated)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	out := ComputeMargins(catalog, stock)
	ver := svc.models.Margins.Store(out)
	svc.log.Debug("margins recomputed", logx.Int("skus", len(out)), logx.Uint64("version", ver))
	return nil
}

// ComputeMargins joins catalog and stock, sorted by SKU. Items priced at zero
// get a zero margin.
func ComputeMargins(catalog map[string]Item, stock map[string]int) []Margin {
	out := make([]Margin, 0, len(catalog))
	for sku, it := range catalog {
		m := Margin{SKU: sku, OnHand: stock[sku]}
		if it.PriceCents > 0 {
			m.MarginPct = float64(it.PriceCents-it.CostCents) / float64(it.PriceCents) * 100
		}
		m.StockValueCents = int64(m.OnHand) * it.CostCents
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}
