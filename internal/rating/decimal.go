package rating

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// decimalPrecision bounds the significant digits kept by every operation.
const decimalPrecision = 34

// Decimal is an exact decimal number used for energy, durations in hours and money.
type Decimal struct {
	value apd.Decimal
}

// NewDecimal parses a decimal from its string form.
func NewDecimal(s string) (Decimal, error) {
	var d apd.Decimal
	if _, _, err := d.SetString(s); err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return Decimal{value: d}, nil
}

// MustDecimal is like NewDecimal but panics on malformed input.
func MustDecimal(s string) Decimal {
	d, err := NewDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// NewDecimalFromInt64 returns i as a Decimal.
func NewDecimalFromInt64(i int64) Decimal {
	var d apd.Decimal
	d.SetInt64(i)
	return Decimal{value: d}
}

func arith() *apd.Context {
	return apd.BaseContext.WithPrecision(decimalPrecision)
}

// String renders the decimal without exponent and without trailing zeros.
func (d Decimal) String() string {
	var reduced apd.Decimal
	reduced.Reduce(&d.value)
	return reduced.Text('f')
}

// Key returns a canonical representation, equal for numerically equal values.
func (d Decimal) Key() string {
	return d.String()
}

func (d Decimal) IsZero() bool {
	return d.value.IsZero()
}

// Sign returns -1, 0 or 1.
func (d Decimal) Sign() int {
	return d.value.Sign()
}

func (d Decimal) Cmp(other Decimal) int {
	return d.value.Cmp(&other.value)
}

// Equal reports whether d and other are numerically equal.
func (d Decimal) Equal(other Decimal) bool {
	return d.Cmp(other) == 0
}

// Add returns the sum of d and other.
func (d Decimal) Add(other Decimal) Decimal {
	var result apd.Decimal
	_, _ = arith().Add(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Sub returns d minus other.
func (d Decimal) Sub(other Decimal) Decimal {
	var result apd.Decimal
	_, _ = arith().Sub(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Mul returns the product of d and other.
func (d Decimal) Mul(other Decimal) Decimal {
	var result apd.Decimal
	_, _ = arith().Mul(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Div returns the quotient of d divided by other. Division by zero yields zero;
// callers check the divisor where that matters.
func (d Decimal) Div(other Decimal) Decimal {
	if other.IsZero() {
		return Decimal{}
	}
	var result apd.Decimal
	_, _ = arith().Quo(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Ceil returns the smallest integer value greater than or equal to d.
func (d Decimal) Ceil() Decimal {
	var result apd.Decimal
	_, _ = arith().Ceil(&result, &d.value)
	return Decimal{value: result}
}

// CeilToStep rounds d up to the next whole multiple of step. Zero stays zero.
func (d Decimal) CeilToStep(step int64) Decimal {
	if step <= 1 {
		return d.Ceil()
	}
	s := NewDecimalFromInt64(step)
	return d.Div(s).Ceil().Mul(s)
}

// Float64 returns the nearest float64. Only for reporting, never for arithmetic.
func (d Decimal) Float64() float64 {
	f, _ := d.value.Float64()
	return f
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Decimal) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || string(data) == "null" {
		*d = Decimal{}
		return nil
	}
	parsed, err := NewDecimal(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
