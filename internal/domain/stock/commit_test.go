package stock_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Spok95/stock-ledger/internal/domain/stock"
)

func TestCommitReceipt_InAddsToExistingMaterial(t *testing.T) {
	f := newFixture(t)
	m := f.create("Клей", "W1", "kg", "2")

	res := f.commit(stock.KindIn, "w1", stock.Meta{Actor: "anna"}, line(m.ID, "3.5"))

	if res.Affected != 1 || len(res.MovementIDs) != 1 {
		t.Fatalf("Expected one movement, got %+v", res)
	}
	f.assertQty(m.ID, "5.5")

	mvs := f.movements(stock.MovementFilter{MaterialID: m.ID})
	if len(mvs) != 1 {
		t.Fatalf("Expected 1 movement, got %d", len(mvs))
	}
	mv := mvs[0]
	if mv.Kind != stock.KindIn || mv.Workshop != "W1" || mv.Actor != "anna" || mv.MaterialName != "Клей" {
		t.Errorf("Unexpected movement: %+v", mv)
	}
	if mv.Time != "09:30:00" || !mv.Date.Equal(time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected movement stamped with business day and time of clock, got %s %s", mv.Date, mv.Time)
	}
	f.assertReconciled()
}

func TestCommitReceipt_InCreatesMaterialAtAnotherWorkshop(t *testing.T) {
	f := newFixture(t)
	base := f.create("Клей", "W1", "kg", "0")

	f.commit(stock.KindIn, "W2", stock.Meta{}, line(base.ID, "5"))

	f.assertQty(base.ID, "0")
	at2, err := f.engine.ListMaterials(f.ctx, "W2")
	if err != nil {
		t.Fatalf("Failed to list materials: %v", err)
	}
	if len(at2) != 1 {
		t.Fatalf("Expected 1 material at W2, got %d", len(at2))
	}
	got := at2[0]
	if got.ID != "MAT/W2/00001" {
		t.Errorf("Expected id MAT/W2/00001, got %s", got.ID)
	}
	if got.Name != "Клей" || got.Unit != "kg" || got.Workshop != "W2" {
		t.Errorf("Expected copy of base material at W2, got %+v", got)
	}
	if stock.Format(got.Quantity) != "5.00" || !got.OpeningQuantity.IsZero() {
		t.Errorf("Expected quantity 5.00 with zero opening, got %s / %s",
			stock.Format(got.Quantity), stock.Format(got.OpeningQuantity))
	}

	// второй приход находит уже созданный материал
	f.commit(stock.KindIn, "W2", stock.Meta{}, line(base.ID, "1"))
	f.assertQty("MAT/W2/00001", "6")
	f.assertReconciled()
}

func TestCommitReceipt_OutWithoutMaterialAtWorkshop(t *testing.T) {
	f := newFixture(t)
	base := f.create("Клей", "W1", "kg", "10")

	_, err := f.engine.CommitBatch(f.ctx, stock.Batch{
		Kind:     stock.KindOut,
		Workshop: "W2",
		Items:    []stock.Line{line(base.ID, "1")},
	})
	if !errors.Is(err, stock.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	var nf *stock.NotFoundError
	if !errors.As(err, &nf) || nf.Workshop != "W2" {
		t.Errorf("Expected not found at W2, got %v", err)
	}
	f.assertQty(base.ID, "10")
	if n := len(f.store.Materials()); n != 1 {
		t.Errorf("Expected no implicit material on OUT, got %d materials", n)
	}
}

func TestCommitReceipt_UnknownMaterial(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.CommitBatch(f.ctx, stock.Batch{
		Kind:     stock.KindIn,
		Workshop: "W1",
		Items:    []stock.Line{line("MAT/W1/00099", "1")},
	})
	if !errors.Is(err, stock.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestCommitReceipt_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ids := make([]string, 5)
	for i := range ids {
		ids[i] = f.create("Материал", "W1", "pcs", "5").ID
	}

	lines := []stock.Line{
		line(ids[0], "1"),
		line(ids[1], "2"),
		line(ids[2], "6"), // больше остатка
		line(ids[3], "1"),
		line(ids[4], "1"),
	}
	_, err := f.engine.CommitBatch(f.ctx, stock.Batch{Kind: stock.KindOut, Workshop: "W1", Items: lines})
	if !errors.Is(err, stock.ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got %v", err)
	}
	var ise *stock.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("Expected *InsufficientStockError, got %T", err)
	}
	if ise.MaterialID != ids[2] || stock.Format(ise.Current) != "5.00" || stock.Format(ise.Requested) != "6.00" {
		t.Errorf("Unexpected error details: %+v", ise)
	}

	for _, id := range ids {
		f.assertQty(id, "5")
	}
	if mvs := f.movements(stock.MovementFilter{}); len(mvs) != 0 {
		t.Errorf("Expected no movements after failed batch, got %d", len(mvs))
	}
	if f.events.count() != 5 {
		t.Errorf("Expected only create notifications, got %d", f.events.count())
	}
}

func TestCommitReceipt_SkipsNonPositiveLines(t *testing.T) {
	f := newFixture(t)
	a := f.create("A", "W1", "kg", "0")
	b := f.create("B", "W1", "kg", "0")

	res := f.commit(stock.KindIn, "W1", stock.Meta{},
		line(a.ID, "0"),
		line(b.ID, "-1"),
		line(a.ID, "0.004"),
		line(b.ID, "2.005"),
	)
	if res.Affected != 1 {
		t.Fatalf("Expected 1 affected line, got %d", res.Affected)
	}
	f.assertQty(a.ID, "0")
	f.assertQty(b.ID, "2.01")
}

func TestCommitReceipt_SharedReceiptID(t *testing.T) {
	f := newFixture(t)
	a := f.create("A", "W1", "kg", "0")
	b := f.create("B", "W1", "kg", "0")

	res := f.commit(stock.KindIn, "W1", stock.Meta{}, line(a.ID, "1"), line(b.ID, "2"))
	if res.ReceiptID == "" {
		t.Fatal("Expected generated receipt id")
	}
	mvs := f.movements(stock.MovementFilter{ReceiptID: res.ReceiptID})
	if len(mvs) != 2 {
		t.Fatalf("Expected 2 movements under %s, got %d", res.ReceiptID, len(mvs))
	}

	res = f.commit(stock.KindIn, "W1", stock.Meta{ReceiptID: "INV-7"}, line(a.ID, "1"))
	if res.ReceiptID != "INV-7" {
		t.Errorf("Expected caller receipt id to be kept, got %s", res.ReceiptID)
	}

	last := f.events.last()
	if last.Op != stock.OpCommitIn || last.ReceiptID != "INV-7" || len(last.Materials) != 1 {
		t.Errorf("Unexpected change notification: %+v", last)
	}
}

func TestCommitBatch_Validation(t *testing.T) {
	f := newFixture(t)
	m := f.create("A", "W1", "kg", "1")

	tests := []struct {
		name  string
		batch stock.Batch
	}{
		{"unknown kind", stock.Batch{Kind: "MOVE", Workshop: "W1", Items: []stock.Line{line(m.ID, "1")}}},
		{"no items", stock.Batch{Kind: stock.KindIn, Workshop: "W1"}},
		{"no workshop", stock.Batch{Kind: stock.KindIn, Items: []stock.Line{line(m.ID, "1")}}},
		{"only zero lines", stock.Batch{Kind: stock.KindIn, Workshop: "W1", Items: []stock.Line{line(m.ID, "0")}}},
		{"empty material id", stock.Batch{Kind: stock.KindOut, Workshop: "W1", Items: []stock.Line{line(" ", "1")}}},
		{"bad time", stock.Batch{Kind: stock.KindIn, Workshop: "W1", Items: []stock.Line{line(m.ID, "1")}, Meta: stock.Meta{Time: "25h"}}},
		{"transfer same workshop", stock.Batch{Kind: stock.KindTransfer, FromWorkshop: "W1", ToWorkshop: "w1", Items: []stock.Line{line(m.ID, "1")}}},
		{"transfer without source", stock.Batch{Kind: stock.KindTransfer, ToWorkshop: "W2", Items: []stock.Line{line(m.ID, "1")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CommitBatch(f.ctx, tt.batch)
			if !errors.Is(err, stock.ErrValidation) {
				t.Errorf("Expected ErrValidation, got %v", err)
			}
		})
	}
	f.assertQty(m.ID, "1")
}
