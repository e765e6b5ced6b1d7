package stock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/stock-ledger/internal/domain/stock"
	"github.com/Spok95/stock-ledger/internal/infra/memstore"
)

var (
	testNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	day1    = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	day2    = time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)
)

type recorder struct {
	mu      sync.Mutex
	changes []stock.Change
}

func (r *recorder) StockChanged(_ context.Context, ch stock.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, ch)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func (r *recorder) last() stock.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.changes) == 0 {
		return stock.Change{}
	}
	return r.changes[len(r.changes)-1]
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	engine *stock.Engine
	store  *memstore.Store
	events *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	rec := &recorder{}
	e := stock.NewEngine(st,
		stock.WithClock(func() time.Time { return testNow }),
		stock.WithNotifier(rec),
	)
	return &fixture{t: t, ctx: context.Background(), engine: e, store: st, events: rec}
}

func (f *fixture) create(name, workshop, unit, qty string) stock.Material {
	f.t.Helper()
	m, err := f.engine.CreateMaterial(f.ctx, stock.MaterialDraft{
		Name:     name,
		Workshop: workshop,
		Unit:     unit,
		Quantity: stock.Qty(qty),
	})
	if err != nil {
		f.t.Fatalf("Failed to create material %s: %v", name, err)
	}
	return m
}

func (f *fixture) qty(id string) decimal.Decimal {
	f.t.Helper()
	m, err := f.engine.GetMaterial(f.ctx, id)
	if err != nil {
		f.t.Fatalf("Failed to get material %s: %v", id, err)
	}
	return m.Quantity
}

func (f *fixture) assertQty(id, want string) {
	f.t.Helper()
	if got := f.qty(id); !got.Equal(stock.Qty(want)) {
		f.t.Errorf("Expected %s quantity %s, got %s", id, want, stock.Format(got))
	}
}

func (f *fixture) commit(kind stock.Kind, workshop string, meta stock.Meta, lines ...stock.Line) stock.BatchResult {
	f.t.Helper()
	res, err := f.engine.CommitBatch(f.ctx, stock.Batch{Kind: kind, Workshop: workshop, Items: lines, Meta: meta})
	if err != nil {
		f.t.Fatalf("Failed to commit %s batch: %v", kind, err)
	}
	return res
}

func (f *fixture) movements(filter stock.MovementFilter) []stock.Movement {
	f.t.Helper()
	mvs, err := f.engine.ListMovements(f.ctx, filter)
	if err != nil {
		f.t.Fatalf("Failed to list movements: %v", err)
	}
	return mvs
}

func (f *fixture) assertReconciled() {
	f.t.Helper()
	found, err := f.engine.Reconcile(f.ctx)
	if err != nil {
		f.t.Fatalf("Failed to reconcile: %v", err)
	}
	for _, d := range found {
		f.t.Errorf("Unexpected discrepancy on %s: cached %s, expected %s",
			d.MaterialID, stock.Format(d.Cached), stock.Format(d.Expected))
	}
}

func line(id, qty string) stock.Line {
	return stock.Line{MaterialID: id, Quantity: stock.Qty(qty)}
}
