package model

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MoneyScale is the fixed number of fractional digits carried by every
// monetary value in the ledger. The legacy store this replaces kept packed
// decimal at scale 2, and downstream reconciliation depends on reproducing
// its rounding exactly.
const MoneyScale = 2

// ErrPrecision is returned when an input cannot be represented at the ledger
// scale beyond half-up rounding.
var ErrPrecision = errors.New("amount cannot be represented at 2 decimal places")

// Money is a fixed-point monetary amount at scale 2. The zero value is 0.00.
type Money struct {
	d decimal.Decimal
}

// NewMoney parses a decimal string and normalizes it to scale 2 using
// half-up rounding.
func NewMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrPrecision, s)
	}
	return Money{d: d.Round(MoneyScale)}, nil
}

// MoneyFromFloat normalizes a float to scale 2 with half-up rounding.
// Non-finite values fail with ErrPrecision.
func MoneyFromFloat(f float64) (Money, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Money{}, fmt.Errorf("%w: %v", ErrPrecision, f)
	}
	return Money{d: decimal.NewFromFloat(f).Round(MoneyScale)}, nil
}

// MustMoney parses a decimal string and panics on failure. Test helper.
func MustMoney(s string) Money {
	m, err := NewMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney returns 0.00.
func ZeroMoney() Money {
	return Money{}
}

func (m Money) Add(other Money) Money {
	return Money{d: m.d.Add(other.d)}
}

func (m Money) Sub(other Money) Money {
	return Money{d: m.d.Sub(other.d)}
}

func (m Money) Neg() Money {
	return Money{d: m.d.Neg()}
}

// Cmp compares two amounts exactly. No float tolerance.
func (m Money) Cmp(other Money) int {
	return m.d.Cmp(other.d)
}

func (m Money) Equal(other Money) bool {
	return m.d.Cmp(other.d) == 0
}

func (m Money) GreaterThan(other Money) bool {
	return m.d.Cmp(other.d) > 0
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

// Abs returns the magnitude of the amount.
func (m Money) Abs() Money {
	return Money{d: m.d.Abs()}
}

// String renders the amount with exactly two fractional digits.
func (m Money) String() string {
	return m.d.StringFixed(MoneyScale)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := NewMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler so cached values that
// carry Money survive the cache codec.
func (m Money) MarshalBinary() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalBinary(data []byte) error {
	parsed, err := NewMoney(string(data))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value implements driver.Valuer so Money maps to NUMERIC columns.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner for NUMERIC columns.
func (m *Money) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = Money{}
		return nil
	case []byte:
		parsed, err := NewMoney(string(v))
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case string:
		parsed, err := NewMoney(v)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case float64:
		parsed, err := MoneyFromFloat(v)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case int64:
		*m = Money{d: decimal.NewFromInt(v)}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Money", src)
	}
}
