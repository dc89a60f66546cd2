// Package money wraps fixed-precision decimal arithmetic for currency
// amounts. All amount math in the core goes through this package so that
// totals never accumulate binary floating-point drift, while comparisons
// absorb up to one cent of rounding from amounts parsed out of floating
// text (JSON numbers, user input).
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Epsilon is the tolerance used for amount equality: two amounts closer
// than one cent are considered equal.
var Epsilon = decimal.New(1, -2)

type Money struct {
	d decimal.Decimal
}

var Zero = Money{}

func FromFloat(v float64) Money {
	return Money{d: decimal.NewFromFloat(v).Round(2)}
}

func FromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -2)}
}

func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{d: d.Round(2)}, nil
}

func (m Money) Add(other Money) Money {
	return Money{d: m.d.Add(other.d)}
}

func (m Money) Sub(other Money) Money {
	return Money{d: m.d.Sub(other.d)}
}

// MulQty multiplies a unit price by an integer quantity.
func (m Money) MulQty(qty int) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(int64(qty)))}
}

// Equal reports whether the two amounts differ by no more than Epsilon.
func (m Money) Equal(other Money) bool {
	return m.d.Sub(other.d).Abs().LessThanOrEqual(Epsilon)
}

// Cmp compares exact decimal values: -1 if m < other, 0 if equal, 1 if greater.
func (m Money) Cmp(other Money) int {
	return m.d.Cmp(other.d)
}

func (m Money) LessThan(other Money) bool {
	return m.d.LessThan(other.d)
}

func (m Money) IsZero() bool {
	return m.d.IsZero()
}

func (m Money) IsNegative() bool {
	return m.d.IsNegative()
}

func (m Money) IsPositive() bool {
	return m.d.IsPositive()
}

// Float64 is for display and reporting only, never for arithmetic.
func (m Money) Float64() float64 {
	f, _ := m.d.Float64()
	return f
}

func (m Money) String() string {
	return m.d.StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.d.StringFixed(2) + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*m = Money{}
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	m.d = d.Round(2)
	return nil
}

// Value and Scan let Money pass through database/sql as a numeric string.
func (m Money) Value() (any, error) {
	return m.d.StringFixed(2), nil
}

func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = Money{}
		return nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		m.d = d.Round(2)
		return nil
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return err
		}
		m.d = d.Round(2)
		return nil
	case float64:
		m.d = decimal.NewFromFloat(v).Round(2)
		return nil
	case int64:
		m.d = decimal.NewFromInt(v)
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
}

// Sum adds any number of amounts without intermediate rounding.
func Sum(amounts ...Money) Money {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a.d)
	}
	return Money{d: total}
}
