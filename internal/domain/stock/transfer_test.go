package stock_test

import (
	"errors"
	"testing"

	"github.com/Spok95/stock-ledger/internal/domain/stock"
)

func transfer(from, to string, lines ...stock.Line) stock.Batch {
	return stock.Batch{Kind: stock.KindTransfer, FromWorkshop: from, ToWorkshop: to, Items: lines}
}

func TestCommitTransfer_ConservesQuantity(t *testing.T) {
	f := newFixture(t)
	a := f.create("Краска", "W1", "l", "10")

	res, err := f.engine.CommitBatch(f.ctx, transfer("W1", "W2", line(a.ID, "4")))
	if err != nil {
		t.Fatalf("Failed to transfer: %v", err)
	}
	if res.Affected != 1 {
		t.Fatalf("Expected a single movement per line, got %d", res.Affected)
	}

	f.assertQty(a.ID, "6")
	dst := "MAT/W2/00001"
	f.assertQty(dst, "4")

	mvs := f.movements(stock.MovementFilter{ReceiptID: res.ReceiptID})
	if len(mvs) != 1 {
		t.Fatalf("Expected 1 movement, got %d", len(mvs))
	}
	mv := mvs[0]
	if mv.Kind != stock.KindTransfer || mv.MaterialID != a.ID || mv.TargetMaterialID != dst ||
		mv.Workshop != "W1" || mv.TargetWorkshop != "W2" {
		t.Errorf("Unexpected transfer movement: %+v", mv)
	}

	// повторное перемещение попадает в тот же материал приёмника
	if _, err := f.engine.CommitBatch(f.ctx, transfer("W1", "W2", line(a.ID, "1"))); err != nil {
		t.Fatalf("Failed to transfer: %v", err)
	}
	f.assertQty(a.ID, "5")
	f.assertQty(dst, "5")
	if n := len(f.store.Materials()); n != 2 {
		t.Errorf("Expected 2 materials, got %d", n)
	}
	f.assertReconciled()
}

func TestCommitTransfer_ResolvesSourceByNameAtFromWorkshop(t *testing.T) {
	f := newFixture(t)
	a := f.create("Краска", "W1", "l", "10")
	if _, err := f.engine.CommitBatch(f.ctx, transfer("W1", "W2", line(a.ID, "4"))); err != nil {
		t.Fatalf("Failed to transfer: %v", err)
	}

	// ссылка на материал W1, но перемещаем из W2 в W3
	if _, err := f.engine.CommitBatch(f.ctx, transfer("W2", "W3", line(a.ID, "3"))); err != nil {
		t.Fatalf("Failed to transfer: %v", err)
	}
	f.assertQty(a.ID, "6")
	f.assertQty("MAT/W2/00001", "1")
	f.assertQty("MAT/W3/00001", "3")
	f.assertReconciled()
}

func TestCommitTransfer_InsufficientRollsBackAllLines(t *testing.T) {
	f := newFixture(t)
	a := f.create("A", "W1", "kg", "10")
	b := f.create("B", "W1", "kg", "1")

	_, err := f.engine.CommitBatch(f.ctx, transfer("W1", "W2", line(a.ID, "4"), line(b.ID, "2")))
	if !errors.Is(err, stock.ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got %v", err)
	}
	f.assertQty(a.ID, "10")
	f.assertQty(b.ID, "1")
	if n := len(f.store.Materials()); n != 2 {
		t.Errorf("Expected destination material creation to be rolled back, got %d materials", n)
	}
	if mvs := f.movements(stock.MovementFilter{}); len(mvs) != 0 {
		t.Errorf("Expected no movements, got %d", len(mvs))
	}
}

func TestCommitTransfer_MissingAtSource(t *testing.T) {
	f := newFixture(t)
	a := f.create("A", "W1", "kg", "10")

	_, err := f.engine.CommitBatch(f.ctx, transfer("W5", "W1", line(a.ID, "1")))
	var nf *stock.NotFoundError
	if !errors.As(err, &nf) || nf.Workshop != "W5" {
		t.Fatalf("Expected not found at W5, got %v", err)
	}
}
