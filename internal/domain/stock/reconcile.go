package stock

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

type Discrepancy struct {
	MaterialID string
	Workshop   string
	Cached     decimal.Decimal
	Expected   decimal.Decimal
}

func (d Discrepancy) Diff() decimal.Decimal { return Sub(d.Cached, d.Expected) }

// Reconcile сверяет кэшированный остаток с начальным остатком плюс
// знаковой суммой движений и возвращает все расхождения.
func (e *Engine) Reconcile(ctx context.Context) ([]Discrepancy, error) {
	var totals []MaterialTotal
	err := e.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		totals, err = tx.LedgerTotals(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ledger totals: %w", err)
	}

	var out []Discrepancy
	for _, t := range totals {
		if exp := t.Expected(); !Round(t.Quantity).Equal(exp) {
			out = append(out, Discrepancy{
				MaterialID: t.MaterialID,
				Workshop:   t.Workshop,
				Cached:     t.Quantity,
				Expected:   exp,
			})
		}
	}
	e.observer.ObserveDiscrepancies(len(out))
	for _, d := range out {
		e.log.Warn("stock discrepancy",
			"material_id", d.MaterialID,
			"workshop", d.Workshop,
			"cached", Format(d.Cached),
			"expected", Format(d.Expected),
		)
	}
	return out, nil
}

// SignedEffect — вклад движения в остаток материала id.
func SignedEffect(mv Movement, id string) decimal.Decimal {
	q := mv.Quantity
	effect := decimal.Zero
	switch mv.Kind {
	case KindIn:
		if mv.MaterialID == id {
			effect = effect.Add(q)
		}
	case KindOut:
		if mv.MaterialID == id {
			effect = effect.Sub(q)
		}
	case KindTransfer:
		if mv.MaterialID == id {
			effect = effect.Sub(q)
		}
		if mv.TargetMaterialID == id {
			effect = effect.Add(q)
		}
	}
	return effect
}
