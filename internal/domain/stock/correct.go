package stock

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CorrectMovementQuantity меняет количество в движении и переносит разницу
// на те же материалы, что и при проведении. Нулевая разница — успешный no-op.
func (e *Engine) CorrectMovementQuantity(ctx context.Context, id string, qty decimal.Decimal) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return invalid("movement_id", "is required")
	}
	qty = Round(qty)
	if !qty.IsPositive() {
		return invalid("quantity", "must be > 0")
	}

	_, err := e.mutate(ctx, OpCorrect, func(ctx context.Context, tx Tx, ch *Change) error {
		mv, ok, err := tx.GetMovement(ctx, id)
		if err != nil {
			return fmt.Errorf("get movement %s: %w", id, err)
		}
		if !ok {
			return &NotFoundError{Entity: "movement", ID: id}
		}
		delta := Sub(qty, mv.Quantity)
		if delta.IsZero() {
			return nil
		}

		src, err := e.resolve(ctx, tx, mv.MaterialID, mv.MaterialName, mv.Workshop)
		if err != nil {
			return err
		}
		touched := []string{src.ID}

		switch mv.Kind {
		case KindIn:
			err = e.shift(ctx, tx, src, delta)
		case KindOut:
			err = e.shift(ctx, tx, src, delta.Neg())
		case KindTransfer:
			dst, rerr := e.resolve(ctx, tx, mv.TargetMaterialID, mv.MaterialName, mv.TargetWorkshop)
			if rerr != nil {
				return rerr
			}
			touched = append(touched, dst.ID)
			if err = e.shift(ctx, tx, src, delta.Neg()); err == nil {
				err = e.shift(ctx, tx, dst, delta)
			}
		default:
			err = fmt.Errorf("movement %s has unknown kind %q", mv.ID, mv.Kind)
		}
		if err != nil {
			return err
		}

		if err := tx.SetMovementQuantity(ctx, mv.ID, qty); err != nil {
			return fmt.Errorf("update movement %s: %w", mv.ID, err)
		}
		ch.ReceiptID = mv.ReceiptID
		ch.MovementIDs = []string{mv.ID}
		return snapshot(ctx, tx, ch, touched...)
	})
	return err
}

// shift прибавляет d к остатку m; отрицательное d списывается условно.
func (e *Engine) shift(ctx context.Context, tx Tx, m Material, d decimal.Decimal) error {
	switch d.Sign() {
	case 0:
		return nil
	case 1:
		if err := tx.Increase(ctx, m.ID, d); err != nil {
			return fmt.Errorf("increase %s: %w", m.ID, err)
		}
		return nil
	}
	ok, err := tx.DecreaseIfSufficient(ctx, m.ID, d.Neg())
	if err != nil {
		return fmt.Errorf("decrease %s: %w", m.ID, err)
	}
	if ok {
		return nil
	}
	current := m.Quantity
	if l, err := tx.GetMaterial(ctx, m.ID); err == nil && l.Found {
		current = l.Material.Quantity
	}
	return &InvariantViolationError{
		MaterialID: m.ID,
		Reason:     fmt.Sprintf("correction would leave %s", Format(Add(current, d))),
		Current:    current,
		Delta:      d,
	}
}
