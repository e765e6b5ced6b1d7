// Package memstore — хранилище журнала в памяти. Единицы работы
// выполняются строго по очереди над копией состояния; копия заменяет
// состояние только при успешном завершении.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/stock-ledger/internal/domain/stock"
)

type state struct {
	materials map[string]stock.Material
	movements map[string]stock.Movement
	counters  map[string]int
	seq       int64 // порядок вставки движений
	order     map[string]int64
}

func (s *state) clone() *state {
	c := &state{
		materials: make(map[string]stock.Material, len(s.materials)),
		movements: make(map[string]stock.Movement, len(s.movements)),
		counters:  make(map[string]int, len(s.counters)),
		seq:       s.seq,
		order:     make(map[string]int64, len(s.order)),
	}
	for k, v := range s.materials {
		c.materials[k] = v
	}
	for k, v := range s.movements {
		c.movements[k] = v
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	for k, v := range s.order {
		c.order[k] = v
	}
	return c
}

type Store struct {
	mu  sync.Mutex
	cur *state
	now func() time.Time
}

func New() *Store {
	return &Store{
		cur: &state{
			materials: map[string]stock.Material{},
			movements: map[string]stock.Movement{},
			counters:  map[string]int{},
			order:     map[string]int64{},
		},
		now: time.Now,
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx stock.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.cur.clone()
	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return err
	}
	s.cur = work
	return nil
}

// Materials — снимок всех материалов, для тестов.
func (s *Store) Materials() []stock.Material {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stock.Material, 0, len(s.cur.materials))
	for _, m := range s.cur.materials {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Corrupt напрямую меняет кэшированный остаток в обход журнала (для проверки сверки).
func (s *Store) Corrupt(id string, q decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.cur.materials[id]; ok {
		m.Quantity = q
		s.cur.materials[id] = m
	}
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) GetMaterial(_ context.Context, id string) (stock.Lookup, error) {
	if m, ok := t.st.materials[id]; ok {
		return stock.Found(m), nil
	}
	return stock.NotFound, nil
}

func (t *tx) FindMaterial(_ context.Context, workshop, name, origin string) (stock.Lookup, error) {
	return t.first(func(m stock.Material) bool {
		return m.Workshop == workshop && m.Name == name && m.Origin == origin
	}), nil
}

func (t *tx) FindMaterialByName(_ context.Context, workshop, name string) (stock.Lookup, error) {
	return t.first(func(m stock.Material) bool {
		return m.Workshop == workshop && m.Name == name
	}), nil
}

// first — совпадение с наименьшим id, как ORDER BY id LIMIT 1.
func (t *tx) first(match func(stock.Material) bool) stock.Lookup {
	var best *stock.Material
	for _, m := range t.st.materials {
		if !match(m) {
			continue
		}
		if best == nil || m.ID < best.ID {
			best = &m
		}
	}
	if best == nil {
		return stock.NotFound
	}
	return stock.Found(*best)
}

func (t *tx) ListMaterials(_ context.Context, workshop string) ([]stock.Material, error) {
	var out []stock.Material
	for _, m := range t.st.materials {
		if workshop == "" || m.Workshop == workshop {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) InsertMaterial(_ context.Context, m stock.Material) error {
	if _, ok := t.st.materials[m.ID]; ok {
		return fmt.Errorf("material %s already exists", m.ID)
	}
	m.UpdatedAt = t.now()
	t.st.materials[m.ID] = m
	return nil
}

func (t *tx) DeleteMaterials(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(t.st.materials, id)
	}
	return nil
}

func (t *tx) NextMaterialSeq(_ context.Context, prefix, workshop string) (int, error) {
	key := prefix + "/" + workshop
	n, ok := t.st.counters[key]
	if !ok {
		for id := range t.st.materials {
			if seq, ok := stock.ParseMaterialSeq(prefix, workshop, id); ok && seq > n {
				n = seq
			}
		}
	}
	n++
	t.st.counters[key] = n
	return n, nil
}

func (t *tx) Increase(_ context.Context, id string, q decimal.Decimal) error {
	m, ok := t.st.materials[id]
	if !ok {
		return fmt.Errorf("material %s: no rows updated", id)
	}
	m.Quantity = stock.Add(m.Quantity, q)
	m.UpdatedAt = t.now()
	t.st.materials[id] = m
	return nil
}

func (t *tx) DecreaseIfSufficient(_ context.Context, id string, q decimal.Decimal) (bool, error) {
	m, ok := t.st.materials[id]
	if !ok || m.Quantity.LessThan(q) {
		return false, nil
	}
	m.Quantity = stock.Sub(m.Quantity, q)
	m.UpdatedAt = t.now()
	t.st.materials[id] = m
	return true, nil
}

func (t *tx) InsertMovement(_ context.Context, mv stock.Movement) error {
	if _, ok := t.st.movements[mv.ID]; ok {
		return fmt.Errorf("movement %s already exists", mv.ID)
	}
	mv.CreatedAt = t.now()
	t.st.seq++
	t.st.order[mv.ID] = t.st.seq
	t.st.movements[mv.ID] = mv
	return nil
}

func (t *tx) GetMovement(_ context.Context, id string) (stock.Movement, bool, error) {
	mv, ok := t.st.movements[id]
	return mv, ok, nil
}

func (t *tx) ListMovements(_ context.Context, f stock.MovementFilter) ([]stock.Movement, error) {
	var out []stock.Movement
	for _, mv := range t.st.movements {
		if f.MaterialID != "" && mv.MaterialID != f.MaterialID && mv.TargetMaterialID != f.MaterialID {
			continue
		}
		if f.ReceiptID != "" && mv.ReceiptID != f.ReceiptID {
			continue
		}
		if f.Workshop != "" && mv.Workshop != f.Workshop && mv.TargetWorkshop != f.Workshop {
			continue
		}
		out = append(out, mv)
	}
	// как ORDER BY business_date, time_of_day, created_at
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.After(b) {
			return false
		}
		if b.After(a) {
			return true
		}
		return t.st.order[a.ID] < t.st.order[b.ID]
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t *tx) DeleteMovement(_ context.Context, id string) error {
	delete(t.st.movements, id)
	delete(t.st.order, id)
	return nil
}

func (t *tx) SetMovementQuantity(_ context.Context, id string, q decimal.Decimal) error {
	mv, ok := t.st.movements[id]
	if !ok {
		return fmt.Errorf("movement %s: no rows updated", id)
	}
	mv.Quantity = q
	t.st.movements[id] = mv
	return nil
}

func (t *tx) CountMovements(_ context.Context, materialID string) (int, error) {
	n := 0
	for _, mv := range t.st.movements {
		if mv.MaterialID == materialID || mv.TargetMaterialID == materialID {
			n++
		}
	}
	return n, nil
}

func (t *tx) NewerMovement(_ context.Context, mv stock.Movement) (stock.Movement, bool, error) {
	ids := mv.Touches()
	var newest *stock.Movement
	for _, other := range t.st.movements {
		if other.ID == mv.ID || !other.After(mv) {
			continue
		}
		if !touchesAny(other, ids) {
			continue
		}
		if newest == nil || other.After(*newest) {
			newest = &other
		}
	}
	if newest == nil {
		return stock.Movement{}, false, nil
	}
	return *newest, true, nil
}

func touchesAny(mv stock.Movement, ids []string) bool {
	for _, id := range ids {
		if mv.MaterialID == id || (mv.TargetMaterialID != "" && mv.TargetMaterialID == id) {
			return true
		}
	}
	return false
}

func (t *tx) RetargetMovements(_ context.Context, sourceIDs []string, newID, newName string) (int, error) {
	src := make(map[string]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		src[id] = true
	}
	n := 0
	for id, mv := range t.st.movements {
		changed := false
		if src[mv.MaterialID] {
			mv.MaterialID = newID
			mv.MaterialName = newName
			changed = true
		}
		if mv.TargetMaterialID != "" && src[mv.TargetMaterialID] {
			mv.TargetMaterialID = newID
			changed = true
		}
		if changed {
			t.st.movements[id] = mv
			n++
		}
	}
	return n, nil
}

func (t *tx) SignedTotal(_ context.Context, materialID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, mv := range t.st.movements {
		sum = sum.Add(stock.SignedEffect(mv, materialID))
	}
	return stock.Round(sum), nil
}

func (t *tx) LedgerTotals(ctx context.Context) ([]stock.MaterialTotal, error) {
	mats, _ := t.ListMaterials(ctx, "")
	out := make([]stock.MaterialTotal, 0, len(mats))
	for _, m := range mats {
		signed, _ := t.SignedTotal(ctx, m.ID)
		out = append(out, stock.MaterialTotal{
			MaterialID: m.ID,
			Workshop:   m.Workshop,
			Quantity:   m.Quantity,
			Opening:    m.OpeningQuantity,
			Signed:     signed,
		})
	}
	return out, nil
}
