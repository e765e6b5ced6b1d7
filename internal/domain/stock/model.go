package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindIn       Kind = "IN"
	KindOut      Kind = "OUT"
	KindTransfer Kind = "TRANSFER"
)

func (k Kind) Valid() bool {
	switch k {
	case KindIn, KindOut, KindTransfer:
		return true
	}
	return false
}

// Material — позиция на конкретном цехе. Quantity — кэш: OpeningQuantity
// плюс знаковая сумма всех движений по материалу.
type Material struct {
	ID              string
	Name            string
	Category        string
	Unit            string
	Quantity        decimal.Decimal
	OpeningQuantity decimal.Decimal
	MinQuantity     decimal.Decimal
	Workshop        string
	Origin          string
	Note            string
	Image           string
	UpdatedAt       time.Time
}

// Low сообщает, что остаток ниже порога оповещения.
func (m Material) Low() bool {
	return m.MinQuantity.IsPositive() && m.Quantity.LessThan(m.MinQuantity)
}

// Movement — строка журнала. Перемещение хранится одной строкой:
// источник (MaterialID, Workshop) и приёмник (TargetMaterialID, TargetWorkshop).
type Movement struct {
	ID               string
	ReceiptID        string
	MaterialID       string
	MaterialName     string
	Kind             Kind
	Quantity         decimal.Decimal
	Date             time.Time // учётная дата (полночь в часовом поясе журнала)
	Time             string    // HH:MM:SS
	Actor            string
	Workshop         string
	TargetWorkshop   string
	TargetMaterialID string
	OrderCode        string
	Note             string
	CreatedAt        time.Time
}

// Touches возвращает материалы, остаток которых меняет движение.
func (mv Movement) Touches() []string {
	if mv.Kind == KindTransfer && mv.TargetMaterialID != "" {
		return []string{mv.MaterialID, mv.TargetMaterialID}
	}
	return []string{mv.MaterialID}
}

// Lookup — результат поиска материала: Found с материалом либо NotFound.
type Lookup struct {
	Material Material
	Found    bool
}

func Found(m Material) Lookup { return Lookup{Material: m, Found: true} }

var NotFound = Lookup{}

// MaterialTotal — строка сверки: кэшированный остаток рядом с суммой по журналу.
type MaterialTotal struct {
	MaterialID string
	Workshop   string
	Quantity   decimal.Decimal
	Opening    decimal.Decimal
	Signed     decimal.Decimal
}

func (t MaterialTotal) Expected() decimal.Decimal {
	return Round(t.Opening.Add(t.Signed))
}

type MovementFilter struct {
	MaterialID string
	ReceiptID  string
	Workshop   string
	Limit      int
}

// After: mv строго позже other по (учётная дата, время). Движения с
// одинаковыми датой и временем не упорядочены.
func (mv Movement) After(other Movement) bool {
	a, b := mv.Date.Format(time.DateOnly), other.Date.Format(time.DateOnly)
	if a != b {
		return a > b
	}
	return mv.Time > other.Time
}
