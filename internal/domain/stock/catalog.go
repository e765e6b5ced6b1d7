package stock

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type MaterialDraft struct {
	Name        string
	Category    string
	Unit        string
	Workshop    string
	Origin      string
	Note        string
	Image       string
	Quantity    decimal.Decimal
	MinQuantity decimal.Decimal
}

// CreateMaterial заводит карточку материала явно. Указанное количество
// становится и текущим, и начальным остатком.
func (e *Engine) CreateMaterial(ctx context.Context, d MaterialDraft) (Material, error) {
	ws, err := NormalizeWorkshop(d.Workshop)
	if err != nil {
		return Material{}, err
	}
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return Material{}, invalid("name", "is required")
	}
	qty, minQty := Round(d.Quantity), Round(d.MinQuantity)
	if qty.IsNegative() {
		return Material{}, invalid("quantity", "must be >= 0")
	}
	if minQty.IsNegative() {
		return Material{}, invalid("min_quantity", "must be >= 0")
	}

	var created Material
	_, err = e.mutate(ctx, OpCreateMaterial, func(ctx context.Context, tx Tx, ch *Change) error {
		id, err := e.allocate(ctx, tx, ws)
		if err != nil {
			return err
		}
		created = Material{
			ID:              id,
			Name:            name,
			Category:        strings.TrimSpace(d.Category),
			Unit:            strings.TrimSpace(d.Unit),
			Quantity:        qty,
			OpeningQuantity: qty,
			MinQuantity:     minQty,
			Workshop:        ws,
			Origin:          strings.TrimSpace(d.Origin),
			Note:            d.Note,
			Image:           d.Image,
		}
		if err := tx.InsertMaterial(ctx, created); err != nil {
			return fmt.Errorf("insert material %s: %w", id, err)
		}
		return snapshot(ctx, tx, ch, id)
	})
	if err != nil {
		return Material{}, err
	}
	return created, nil
}

// DeleteMaterial удаляет карточку, только если на неё нет движений.
func (e *Engine) DeleteMaterial(ctx context.Context, id string) error {
	_, err := e.mutate(ctx, OpDeleteMaterial, func(ctx context.Context, tx Tx, ch *Change) error {
		if _, err := e.material(ctx, tx, id); err != nil {
			return err
		}
		n, err := tx.CountMovements(ctx, id)
		if err != nil {
			return fmt.Errorf("count movements %s: %w", id, err)
		}
		if n > 0 {
			return &InvariantViolationError{
				MaterialID: id,
				Reason:     fmt.Sprintf("material has %d movements", n),
			}
		}
		if err := tx.DeleteMaterials(ctx, []string{id}); err != nil {
			return fmt.Errorf("delete material %s: %w", id, err)
		}
		ch.Removed = []string{id}
		return nil
	})
	return err
}

// AllocateMaterialID выдаёт следующий идентификатор цеха без создания материала.
func (e *Engine) AllocateMaterialID(ctx context.Context, workshop string) (string, error) {
	ws, err := NormalizeWorkshop(workshop)
	if err != nil {
		return "", err
	}
	var id string
	err = e.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		id, err = e.allocate(ctx, tx, ws)
		return err
	})
	e.observer.ObserveOp(OpAllocateID, err, 0)
	return id, err
}

func (e *Engine) GetMaterial(ctx context.Context, id string) (Material, error) {
	var m Material
	err := e.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		m, err = e.material(ctx, tx, id)
		return err
	})
	return m, err
}

func (e *Engine) ListMaterials(ctx context.Context, workshop string) ([]Material, error) {
	if workshop != "" {
		ws, err := NormalizeWorkshop(workshop)
		if err != nil {
			return nil, err
		}
		workshop = ws
	}
	var out []Material
	err := e.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListMaterials(ctx, workshop)
		return err
	})
	return out, err
}

// LowStock — материалы с остатком ниже порога оповещения.
func (e *Engine) LowStock(ctx context.Context, workshop string) ([]Material, error) {
	all, err := e.ListMaterials(ctx, workshop)
	if err != nil {
		return nil, err
	}
	var out []Material
	for _, m := range all {
		if m.Low() {
			out = append(out, m)
		}
	}
	return out, nil
}

func (e *Engine) ListMovements(ctx context.Context, f MovementFilter) ([]Movement, error) {
	var out []Movement
	err := e.read(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListMovements(ctx, f)
		return err
	})
	return out, err
}
