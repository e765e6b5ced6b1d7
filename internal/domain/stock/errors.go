package stock

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation        = errors.New("stock: validation failed")
	ErrNotFound          = errors.New("stock: not found")
	ErrInsufficientStock = errors.New("stock: insufficient stock")
	ErrInvariant         = errors.New("stock: invariant violation")
	ErrConflict          = errors.New("stock: conflict")
)

// ValidationError — запрос некорректен по форме, до любых изменений.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type NotFoundError struct {
	Entity   string // "material" | "movement"
	ID       string
	Workshop string // цех, в котором искали держателя остатка
}

func (e *NotFoundError) Error() string {
	if e.Workshop != "" {
		return fmt.Sprintf("%s %q not found at workshop %s", e.Entity, e.ID, e.Workshop)
	}
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InsufficientStockError — условное списание не затронуло ни одной строки.
type InsufficientStockError struct {
	MaterialID   string
	MaterialName string
	Workshop     string
	Current      decimal.Decimal
	Requested    decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (%s) at %s: current %s, requested %s",
		e.MaterialName, e.MaterialID, e.Workshop, Format(e.Current), Format(e.Requested))
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InvariantViolationError — операция увела бы остаток в минус
// либо смешала бы цеха/единицы при слиянии.
type InvariantViolationError struct {
	MaterialID string
	Reason     string
	Current    decimal.Decimal
	Delta      decimal.Decimal
}

func (e *InvariantViolationError) Error() string {
	if e.MaterialID == "" {
		return "invariant violation: " + e.Reason
	}
	return fmt.Sprintf("invariant violation on %s: %s", e.MaterialID, e.Reason)
}

func (e *InvariantViolationError) Is(target error) bool { return target == ErrInvariant }

// ConflictError — по материалу есть более позднее движение.
type ConflictError struct {
	MovementID string
	MaterialID string
	NewerID    string
	NewerDate  time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("movement %s cannot be reversed: newer movement %s on %s dated %s",
		e.MovementID, e.NewerID, e.MaterialID, e.NewerDate.Format(time.DateOnly))
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Code — короткая метка ошибки для метрик и логов.
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInvariant):
		return "invariant"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
