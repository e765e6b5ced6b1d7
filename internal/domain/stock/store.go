package stock

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store выполняет fn как единицу работы «всё или ничего». Ошибка из fn
// откатывает все изменения, сделанные через tx.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx — операции над журналом внутри одной единицы работы.
type Tx interface {
	GetMaterial(ctx context.Context, id string) (Lookup, error)
	// FindMaterial ищет держателя остатка по (workshop, name, origin).
	FindMaterial(ctx context.Context, workshop, name, origin string) (Lookup, error)
	FindMaterialByName(ctx context.Context, workshop, name string) (Lookup, error)
	ListMaterials(ctx context.Context, workshop string) ([]Material, error)
	InsertMaterial(ctx context.Context, m Material) error
	DeleteMaterials(ctx context.Context, ids []string) error

	// NextMaterialSeq атомарно выдаёт следующий номер материала в цехе.
	NextMaterialSeq(ctx context.Context, prefix, workshop string) (int, error)

	// Increase безусловно прибавляет q к остатку.
	Increase(ctx context.Context, id string, q decimal.Decimal) error
	// DecreaseIfSufficient списывает q одним условным UPDATE (quantity >= q).
	// false — ни одна строка не изменена.
	DecreaseIfSufficient(ctx context.Context, id string, q decimal.Decimal) (bool, error)

	InsertMovement(ctx context.Context, mv Movement) error
	GetMovement(ctx context.Context, id string) (Movement, bool, error)
	ListMovements(ctx context.Context, f MovementFilter) ([]Movement, error)
	DeleteMovement(ctx context.Context, id string) error
	SetMovementQuantity(ctx context.Context, id string, q decimal.Decimal) error
	CountMovements(ctx context.Context, materialID string) (int, error)

	// NewerMovement возвращает движение (кроме mv), затрагивающее любой из
	// материалов mv и датированное строго позже по (дата, время).
	NewerMovement(ctx context.Context, mv Movement) (Movement, bool, error)

	// RetargetMovements переписывает ссылки со sourceIDs на newID:
	// material_id вместе с material_name и отдельно target_material_id.
	RetargetMovements(ctx context.Context, sourceIDs []string, newID, newName string) (int, error)

	// SignedTotal — знаковая сумма движений по материалу.
	SignedTotal(ctx context.Context, materialID string) (decimal.Decimal, error)
	LedgerTotals(ctx context.Context) ([]MaterialTotal, error)
}
