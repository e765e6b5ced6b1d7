package stock

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MergeTarget — описание итогового материала. Количество задаёт вызывающий,
// оно может отличаться от суммы остатков источников.
type MergeTarget struct {
	Name        string
	Category    string
	Origin      string
	Note        string
	Image       string
	Quantity    decimal.Decimal
	MinQuantity decimal.Decimal
}

type MergeRequest struct {
	SourceIDs []string
	Target    MergeTarget
}

type MergeResult struct {
	NewMaterialID string
	Merged        int
	Retargeted    int
}

// MergeMaterials сливает материалы одного цеха и одной единицы измерения в
// новый материал и переписывает на него всю историю. Права проверяет вызывающий.
func (e *Engine) MergeMaterials(ctx context.Context, req MergeRequest) (MergeResult, error) {
	ids := make([]string, 0, len(req.SourceIDs))
	seen := make(map[string]bool, len(req.SourceIDs))
	for i, id := range req.SourceIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return MergeResult{}, invalid(fmt.Sprintf("source_ids[%d]", i), "is empty")
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) < 2 {
		return MergeResult{}, invalid("source_ids", "at least two distinct materials are required")
	}
	qty := Round(req.Target.Quantity)
	if qty.IsNegative() {
		return MergeResult{}, invalid("target.quantity", "must be >= 0")
	}

	var res MergeResult
	_, err := e.mutate(ctx, OpMerge, func(ctx context.Context, tx Tx, ch *Change) error {
		res = MergeResult{}
		sources := make([]Material, 0, len(ids))
		for _, id := range ids {
			m, err := e.material(ctx, tx, id)
			if err != nil {
				return err
			}
			sources = append(sources, m)
		}
		first := sources[0]
		for _, m := range sources[1:] {
			if m.Workshop != first.Workshop {
				return &InvariantViolationError{
					MaterialID: m.ID,
					Reason:     fmt.Sprintf("workshop %s differs from %s", m.Workshop, first.Workshop),
				}
			}
			if m.Unit != first.Unit {
				return &InvariantViolationError{
					MaterialID: m.ID,
					Reason:     fmt.Sprintf("unit %q differs from %q", m.Unit, first.Unit),
				}
			}
		}

		// Начальный остаток подбирается так, чтобы итог сходился с журналом
		// после переноса истории.
		signed := decimal.Zero
		for _, m := range sources {
			s, err := tx.SignedTotal(ctx, m.ID)
			if err != nil {
				return fmt.Errorf("signed total %s: %w", m.ID, err)
			}
			signed = Add(signed, s)
		}

		id, err := e.allocate(ctx, tx, first.Workshop)
		if err != nil {
			return err
		}
		t := req.Target
		target := Material{
			ID:              id,
			Name:            firstNonEmpty(t.Name, first.Name),
			Category:        firstNonEmpty(t.Category, first.Category),
			Unit:            first.Unit,
			Quantity:        qty,
			OpeningQuantity: Sub(qty, signed),
			MinQuantity:     Round(t.MinQuantity),
			Workshop:        first.Workshop,
			Origin:          firstNonEmpty(t.Origin, first.Origin),
			Note:            t.Note,
			Image:           firstNonEmpty(t.Image, first.Image),
		}
		if err := tx.InsertMaterial(ctx, target); err != nil {
			return fmt.Errorf("insert material %s: %w", id, err)
		}

		n, err := tx.RetargetMovements(ctx, ids, target.ID, target.Name)
		if err != nil {
			return fmt.Errorf("retarget movements: %w", err)
		}
		if err := tx.DeleteMaterials(ctx, ids); err != nil {
			return fmt.Errorf("delete merged materials: %w", err)
		}

		res = MergeResult{NewMaterialID: target.ID, Merged: len(ids), Retargeted: n}
		ch.Materials = []Material{target}
		ch.Removed = ids
		return nil
	})
	if err != nil {
		return MergeResult{}, err
	}
	return res, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
