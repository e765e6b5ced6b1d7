package stock

import (
	"context"
	"fmt"
	"strings"
)

// ReverseMovement отменяет движение и удаляет его. Проверки выполняются до
// любых изменений: существование, отсутствие более поздних движений по тем же
// материалам, неотрицательность остатка после отмены.
func (e *Engine) ReverseMovement(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return invalid("movement_id", "is required")
	}
	_, err := e.mutate(ctx, OpReverse, func(ctx context.Context, tx Tx, ch *Change) error {
		mv, ok, err := tx.GetMovement(ctx, id)
		if err != nil {
			return fmt.Errorf("get movement %s: %w", id, err)
		}
		if !ok {
			return &NotFoundError{Entity: "movement", ID: id}
		}
		ch.ReceiptID = mv.ReceiptID

		newer, ok, err := tx.NewerMovement(ctx, mv)
		if err != nil {
			return fmt.Errorf("probe newer movements: %w", err)
		}
		if ok {
			return &ConflictError{
				MovementID: mv.ID,
				MaterialID: newer.MaterialID,
				NewerID:    newer.ID,
				NewerDate:  newer.Date,
			}
		}

		src, err := e.resolve(ctx, tx, mv.MaterialID, mv.MaterialName, mv.Workshop)
		if err != nil {
			return err
		}

		switch mv.Kind {
		case KindIn:
			if err := e.undo(ctx, tx, src, mv); err != nil {
				return err
			}
			if err := snapshot(ctx, tx, ch, src.ID); err != nil {
				return err
			}
		case KindOut:
			if err := tx.Increase(ctx, src.ID, mv.Quantity); err != nil {
				return fmt.Errorf("restore %s: %w", src.ID, err)
			}
			if err := snapshot(ctx, tx, ch, src.ID); err != nil {
				return err
			}
		case KindTransfer:
			dst, err := e.resolve(ctx, tx, mv.TargetMaterialID, mv.MaterialName, mv.TargetWorkshop)
			if err != nil {
				return err
			}
			if err := e.undo(ctx, tx, dst, mv); err != nil {
				return err
			}
			if err := tx.Increase(ctx, src.ID, mv.Quantity); err != nil {
				return fmt.Errorf("restore %s: %w", src.ID, err)
			}
			if err := snapshot(ctx, tx, ch, src.ID, dst.ID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("movement %s has unknown kind %q", mv.ID, mv.Kind)
		}

		if err := tx.DeleteMovement(ctx, mv.ID); err != nil {
			return fmt.Errorf("delete movement %s: %w", mv.ID, err)
		}
		ch.MovementIDs = []string{mv.ID}
		return nil
	})
	return err
}

// undo снимает количество движения с материала m, не уводя остаток в минус.
func (e *Engine) undo(ctx context.Context, tx Tx, m Material, mv Movement) error {
	if m.Quantity.LessThan(mv.Quantity) {
		return &InvariantViolationError{
			MaterialID: m.ID,
			Reason:     fmt.Sprintf("reversal would leave %s", Format(Sub(m.Quantity, mv.Quantity))),
			Current:    m.Quantity,
			Delta:      mv.Quantity.Neg(),
		}
	}
	ok, err := tx.DecreaseIfSufficient(ctx, m.ID, mv.Quantity)
	if err != nil {
		return fmt.Errorf("decrease %s: %w", m.ID, err)
	}
	if !ok {
		return &InvariantViolationError{
			MaterialID: m.ID,
			Reason:     "reversal would make quantity negative",
			Current:    m.Quantity,
			Delta:      mv.Quantity.Neg(),
		}
	}
	return nil
}

// resolve находит материал по ссылке движения; устаревшую ссылку
// разрешает по (materialName, workshop).
func (e *Engine) resolve(ctx context.Context, tx Tx, id, name, workshop string) (Material, error) {
	if id != "" {
		l, err := tx.GetMaterial(ctx, id)
		if err != nil {
			return Material{}, fmt.Errorf("get material %s: %w", id, err)
		}
		if l.Found {
			return l.Material, nil
		}
	}
	l, err := tx.FindMaterialByName(ctx, workshop, name)
	if err != nil {
		return Material{}, fmt.Errorf("find material %q at %s: %w", name, workshop, err)
	}
	if !l.Found {
		return Material{}, &NotFoundError{Entity: "material", ID: id, Workshop: workshop}
	}
	e.log.Debug("stale material reference resolved by name", "stale_id", id, "material_id", l.Material.ID)
	return l.Material, nil
}
