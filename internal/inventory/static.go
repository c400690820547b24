package inventory

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Static is an in-process Upstream with a fixed catalog and drifting stock
// levels. Latency simulates a remote call.
type Static struct {
	Latency time.Duration

	mu    sync.Mutex
	rng   *rand.Rand
	items []Item
}

func NewStatic(latency time.Duration) *Static {
	return &Static{
		Latency: latency,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		items: []Item{
			{SKU: "SKU-1001", Name: "Espresso beans 1kg", CostCents: 1150, PriceCents: 2400},
			{SKU: "SKU-1002", Name: "Filter papers x100", CostCents: 180, PriceCents: 450},
			{SKU: "SKU-1003", Name: "Hand grinder", CostCents: 3900, PriceCents: 7900},
			{SKU: "SKU-1004", Name: "Milk jug 600ml", CostCents: 820, PriceCents: 1500},
		},
	}
}

func (s *Static) wait(ctx context.Context) error {
	if s.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Static) Items(ctx context.Context) ([]Item, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.items...), nil
}

func (s *Static) StockLevels(ctx context.Context) ([]Level, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Level, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, Level{SKU: it.SKU, OnHand: s.rng.Intn(200)})
	}
	return out, nil
}
