package stock

import "github.com/shopspring/decimal"

// Places — точность хранения количеств (NUMERIC(14,2)).
const Places = 2

// Round округляет количество до двух знаков после каждой операции.
func Round(q decimal.Decimal) decimal.Decimal {
	return q.Round(Places)
}

// Present: строка участвует в обработке, только если после округления q > 0.
func Present(q decimal.Decimal) bool {
	return Round(q).IsPositive()
}

func Add(a, b decimal.Decimal) decimal.Decimal { return Round(a.Add(b)) }

func Sub(a, b decimal.Decimal) decimal.Decimal { return Round(a.Sub(b)) }

// Qty — удобный конструктор для литералов вида Qty("12.5").
func Qty(s string) decimal.Decimal {
	return Round(decimal.RequireFromString(s))
}

// Format печатает количество всегда с двумя знаками: 5 -> "5.00".
func Format(q decimal.Decimal) string {
	return q.StringFixed(Places)
}
