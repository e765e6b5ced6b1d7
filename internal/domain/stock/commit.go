package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Line struct {
	MaterialID string
	Quantity   decimal.Decimal
}

// Meta — реквизиты документа. Пустой ReceiptID генерируется, нулевая Date
// означает «сегодня», пустое Time — текущее время.
type Meta struct {
	ReceiptID string
	Actor     string
	OrderCode string
	Note      string
	Date      time.Time
	Time      string
}

// Batch — приход/расход (Workshop) либо перемещение (FromWorkshop → ToWorkshop).
type Batch struct {
	Kind         Kind
	Workshop     string
	FromWorkshop string
	ToWorkshop   string
	Items        []Line
	Meta
}

type BatchResult struct {
	ReceiptID   string
	Affected    int
	MovementIDs []string
}

type stamp struct {
	receipt string
	date    time.Time
	time    string
}

func (e *Engine) stamp(m Meta) (stamp, error) {
	now := e.now().In(e.loc)
	s := stamp{
		receipt: strings.TrimSpace(m.ReceiptID),
		date:    e.businessDay(now),
		time:    strings.TrimSpace(m.Time),
	}
	if s.receipt == "" {
		s.receipt = NewReceiptID(now)
	}
	if !m.Date.IsZero() {
		s.date = e.businessDay(m.Date)
	}
	if s.time == "" {
		s.time = now.Format(time.TimeOnly)
	} else if _, err := time.Parse(time.TimeOnly, s.time); err != nil {
		return stamp{}, invalid("time", "must be HH:MM:SS")
	}
	return s, nil
}

// validLines отбрасывает строки с количеством <= 0 после округления.
// Пустой список или строка без материала — ошибка формы запроса.
func validLines(items []Line) ([]Line, error) {
	if len(items) == 0 {
		return nil, invalid("items", "is empty")
	}
	out := make([]Line, 0, len(items))
	for i, it := range items {
		if strings.TrimSpace(it.MaterialID) == "" {
			return nil, invalid(fmt.Sprintf("items[%d].material_id", i), "is required")
		}
		q := Round(it.Quantity)
		if !q.IsPositive() {
			continue
		}
		out = append(out, Line{MaterialID: strings.TrimSpace(it.MaterialID), Quantity: q})
	}
	if len(out) == 0 {
		return nil, invalid("items", "no line with a positive quantity")
	}
	return out, nil
}

// CommitBatch применяет документ целиком: либо все строки, либо ни одной.
func (e *Engine) CommitBatch(ctx context.Context, b Batch) (BatchResult, error) {
	switch b.Kind {
	case KindIn, KindOut:
		return e.CommitReceipt(ctx, b)
	case KindTransfer:
		return e.CommitTransfer(ctx, b)
	}
	return BatchResult{}, invalid("kind", fmt.Sprintf("unknown movement kind %q", b.Kind))
}

func (e *Engine) CommitReceipt(ctx context.Context, b Batch) (BatchResult, error) {
	if b.Kind != KindIn && b.Kind != KindOut {
		return BatchResult{}, invalid("kind", "receipt must be IN or OUT")
	}
	ws, err := NormalizeWorkshop(b.Workshop)
	if err != nil {
		return BatchResult{}, err
	}
	lines, err := validLines(b.Items)
	if err != nil {
		return BatchResult{}, err
	}
	st, err := e.stamp(b.Meta)
	if err != nil {
		return BatchResult{}, err
	}

	op := OpCommitIn
	if b.Kind == KindOut {
		op = OpCommitOut
	}

	var res BatchResult
	_, err = e.mutate(ctx, op, func(ctx context.Context, tx Tx, ch *Change) error {
		res = BatchResult{ReceiptID: st.receipt}
		ch.ReceiptID = st.receipt
		touched := make([]string, 0, len(lines))

		for i, ln := range lines {
			base, err := e.material(ctx, tx, ln.MaterialID)
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			holder, err := e.holderAt(ctx, tx, ws, base)
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			if !holder.Found {
				if b.Kind == KindOut {
					return fmt.Errorf("line %d: %w", i+1, &NotFoundError{Entity: "material", ID: base.ID, Workshop: ws})
				}
				m, err := e.createAt(ctx, tx, ws, base)
				if err != nil {
					return fmt.Errorf("line %d: %w", i+1, err)
				}
				holder = Found(m)
			}
			m := holder.Material

			if b.Kind == KindIn {
				err = tx.Increase(ctx, m.ID, ln.Quantity)
			} else {
				err = e.decrease(ctx, tx, m, ln.Quantity)
			}
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}

			mv := Movement{
				ID:           newMovementID(),
				ReceiptID:    st.receipt,
				MaterialID:   m.ID,
				MaterialName: m.Name,
				Kind:         b.Kind,
				Quantity:     ln.Quantity,
				Date:         st.date,
				Time:         st.time,
				Actor:        b.Actor,
				Workshop:     ws,
				OrderCode:    b.OrderCode,
				Note:         b.Note,
			}
			if err := tx.InsertMovement(ctx, mv); err != nil {
				return fmt.Errorf("line %d: insert movement: %w", i+1, err)
			}
			res.MovementIDs = append(res.MovementIDs, mv.ID)
			touched = append(touched, m.ID)
		}
		res.Affected = len(res.MovementIDs)
		ch.MovementIDs = res.MovementIDs
		return snapshot(ctx, tx, ch, touched...)
	})
	if err != nil {
		return BatchResult{}, err
	}
	return res, nil
}

// CommitTransfer переносит остаток между цехами. Каждая строка — одно
// движение TRANSFER со ссылками на источник и приёмник.
func (e *Engine) CommitTransfer(ctx context.Context, b Batch) (BatchResult, error) {
	from, err := NormalizeWorkshop(b.FromWorkshop)
	if err != nil {
		return BatchResult{}, invalid("from_workshop", "is required")
	}
	to, err := NormalizeWorkshop(b.ToWorkshop)
	if err != nil {
		return BatchResult{}, invalid("to_workshop", "is required")
	}
	if from == to {
		return BatchResult{}, invalid("to_workshop", "must differ from from_workshop")
	}
	lines, err := validLines(b.Items)
	if err != nil {
		return BatchResult{}, err
	}
	st, err := e.stamp(b.Meta)
	if err != nil {
		return BatchResult{}, err
	}

	var res BatchResult
	_, err = e.mutate(ctx, OpTransfer, func(ctx context.Context, tx Tx, ch *Change) error {
		res = BatchResult{ReceiptID: st.receipt}
		ch.ReceiptID = st.receipt
		touched := make([]string, 0, 2*len(lines))

		for i, ln := range lines {
			base, err := e.material(ctx, tx, ln.MaterialID)
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			src, err := e.holderAt(ctx, tx, from, base)
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			if !src.Found {
				return fmt.Errorf("line %d: %w", i+1, &NotFoundError{Entity: "material", ID: base.ID, Workshop: from})
			}
			if err := e.decrease(ctx, tx, src.Material, ln.Quantity); err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}

			dst, err := tx.FindMaterial(ctx, to, src.Material.Name, src.Material.Origin)
			if err != nil {
				return fmt.Errorf("line %d: find destination: %w", i+1, err)
			}
			if !dst.Found {
				m, err := e.createAt(ctx, tx, to, src.Material)
				if err != nil {
					return fmt.Errorf("line %d: %w", i+1, err)
				}
				dst = Found(m)
			}
			if err := tx.Increase(ctx, dst.Material.ID, ln.Quantity); err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}

			mv := Movement{
				ID:               newMovementID(),
				ReceiptID:        st.receipt,
				MaterialID:       src.Material.ID,
				MaterialName:     src.Material.Name,
				Kind:             KindTransfer,
				Quantity:         ln.Quantity,
				Date:             st.date,
				Time:             st.time,
				Actor:            b.Actor,
				Workshop:         from,
				TargetWorkshop:   to,
				TargetMaterialID: dst.Material.ID,
				OrderCode:        b.OrderCode,
				Note:             b.Note,
			}
			if err := tx.InsertMovement(ctx, mv); err != nil {
				return fmt.Errorf("line %d: insert movement: %w", i+1, err)
			}
			res.MovementIDs = append(res.MovementIDs, mv.ID)
			touched = append(touched, src.Material.ID, dst.Material.ID)
		}
		res.Affected = len(res.MovementIDs)
		ch.MovementIDs = res.MovementIDs
		return snapshot(ctx, tx, ch, touched...)
	})
	if err != nil {
		return BatchResult{}, err
	}
	return res, nil
}

func (e *Engine) material(ctx context.Context, tx Tx, id string) (Material, error) {
	l, err := tx.GetMaterial(ctx, id)
	if err != nil {
		return Material{}, fmt.Errorf("get material %s: %w", id, err)
	}
	if !l.Found {
		return Material{}, &NotFoundError{Entity: "material", ID: id}
	}
	return l.Material, nil
}

// holderAt находит держателя остатка в цехе ws по (name, origin) базового материала.
func (e *Engine) holderAt(ctx context.Context, tx Tx, ws string, base Material) (Lookup, error) {
	if base.Workshop == ws {
		return Found(base), nil
	}
	l, err := tx.FindMaterial(ctx, ws, base.Name, base.Origin)
	if err != nil {
		return NotFound, fmt.Errorf("find material %q at %s: %w", base.Name, ws, err)
	}
	return l, nil
}

// createAt заводит в цехе ws новый материал с нулевым остатком по образцу base.
func (e *Engine) createAt(ctx context.Context, tx Tx, ws string, base Material) (Material, error) {
	id, err := e.allocate(ctx, tx, ws)
	if err != nil {
		return Material{}, err
	}
	m := Material{
		ID:              id,
		Name:            base.Name,
		Category:        base.Category,
		Unit:            base.Unit,
		Quantity:        decimal.Zero,
		OpeningQuantity: decimal.Zero,
		Workshop:        ws,
		Origin:          base.Origin,
		Note:            base.Note,
		Image:           base.Image,
	}
	if err := tx.InsertMaterial(ctx, m); err != nil {
		return Material{}, fmt.Errorf("insert material %s: %w", id, err)
	}
	e.log.Debug("material created implicitly", "material_id", id, "workshop", ws, "from", base.ID)
	return m, nil
}

// decrease — условное списание. При нехватке перечитывает остаток для сообщения.
func (e *Engine) decrease(ctx context.Context, tx Tx, m Material, q decimal.Decimal) error {
	ok, err := tx.DecreaseIfSufficient(ctx, m.ID, q)
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
	return &InsufficientStockError{
		MaterialID:   m.ID,
		MaterialName: m.Name,
		Workshop:     m.Workshop,
		Current:      current,
		Requested:    q,
	}
}

func (e *Engine) allocate(ctx context.Context, tx Tx, ws string) (string, error) {
	seq, err := tx.NextMaterialSeq(ctx, e.prefix, ws)
	if err != nil {
		return "", fmt.Errorf("allocate material id at %s: %w", ws, err)
	}
	return FormatMaterialID(e.prefix, ws, seq), nil
}
