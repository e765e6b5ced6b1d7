package stock_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/Spok95/stock-ledger/internal/domain/stock"
	"github.com/Spok95/stock-ledger/internal/infra/db"
)

// newPostgresEngine поднимает движок поверх настоящей базы из STOCK_TEST_DSN.
func newPostgresEngine(t *testing.T) *stock.Engine {
	t.Helper()
	dsn := os.Getenv("STOCK_TEST_DSN")
	if dsn == "" {
		t.Skip("STOCK_TEST_DSN is not set")
	}
	ctx := context.Background()

	if err := db.Migrate(dsn, slog.New(slog.DiscardHandler)); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	pool, err := db.Connect(ctx, dsn, 8)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, `TRUNCATE movements, materials, material_counters`); err != nil {
		t.Fatalf("Failed to truncate: %v", err)
	}
	return stock.NewEngine(stock.NewRepo(pool, 10))
}

func TestRepo_LedgerFlow(t *testing.T) {
	e := newPostgresEngine(t)
	ctx := context.Background()

	a, err := e.CreateMaterial(ctx, stock.MaterialDraft{Name: "Клей", Workshop: "W1", Unit: "kg", Quantity: stock.Qty("10")})
	if err != nil {
		t.Fatalf("Failed to create material: %v", err)
	}
	if a.ID != "MAT/W1/00001" {
		t.Errorf("Expected MAT/W1/00001, got %s", a.ID)
	}

	tr, err := e.CommitBatch(ctx, stock.Batch{
		Kind: stock.KindTransfer, FromWorkshop: "W1", ToWorkshop: "W2",
		Items: []stock.Line{line(a.ID, "4")},
	})
	if err != nil {
		t.Fatalf("Failed to transfer: %v", err)
	}
	out, err := e.CommitBatch(ctx, stock.Batch{Kind: stock.KindOut, Workshop: "W2", Items: []stock.Line{line("MAT/W2/00001", "1.25")}})
	if err != nil {
		t.Fatalf("Failed to commit OUT: %v", err)
	}
	if err := e.CorrectMovementQuantity(ctx, out.MovementIDs[0], stock.Qty("1")); err != nil {
		t.Fatalf("Failed to correct: %v", err)
	}

	_, err = e.CommitBatch(ctx, stock.Batch{Kind: stock.KindOut, Workshop: "W1", Items: []stock.Line{line(a.ID, "7")}})
	if !errors.Is(err, stock.ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got %v", err)
	}

	if err := e.ReverseMovement(ctx, out.MovementIDs[0]); err != nil {
		t.Fatalf("Failed to reverse OUT: %v", err)
	}
	if err := e.ReverseMovement(ctx, tr.MovementIDs[0]); err != nil {
		t.Fatalf("Failed to reverse transfer: %v", err)
	}

	got, err := e.GetMaterial(ctx, a.ID)
	if err != nil {
		t.Fatalf("Failed to get material: %v", err)
	}
	if stock.Format(got.Quantity) != "10.00" {
		t.Errorf("Expected 10.00, got %s", stock.Format(got.Quantity))
	}
	found, err := e.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Failed to reconcile: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("Unexpected discrepancies: %+v", found)
	}
}

func TestRepo_ConcurrentOut(t *testing.T) {
	e := newPostgresEngine(t)
	ctx := context.Background()

	m, err := e.CreateMaterial(ctx, stock.MaterialDraft{Name: "X", Workshop: "W1", Unit: "kg", Quantity: stock.Qty("5")})
	if err != nil {
		t.Fatalf("Failed to create material: %v", err)
	}

	var ok, refused atomic.Int32
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := e.CommitBatch(ctx, stock.Batch{Kind: stock.KindOut, Workshop: "W1", Items: []stock.Line{line(m.ID, "3")}})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, stock.ErrInsufficientStock):
				refused.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ok.Load() != 1 || refused.Load() != 1 {
		t.Fatalf("Expected exactly one success, got %d ok / %d refused", ok.Load(), refused.Load())
	}
	got, err := e.GetMaterial(ctx, m.ID)
	if err != nil {
		t.Fatalf("Failed to get material: %v", err)
	}
	if stock.Format(got.Quantity) != "2.00" {
		t.Errorf("Expected 2.00, got %s", stock.Format(got.Quantity))
	}
}

func TestRepo_ConcurrentAllocationIsUnique(t *testing.T) {
	e := newPostgresEngine(t)
	ctx := context.Background()

	ids := make([]string, 16)
	var g errgroup.Group
	for i := range ids {
		g.Go(func() error {
			id, err := e.AllocateMaterialID(ctx, "W9")
			ids[i] = id
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Failed to allocate: %v", err)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Errorf("Duplicate id %s", id)
		}
		seen[id] = true
	}
}
