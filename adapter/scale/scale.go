// Package scale converts decimal wire values to the engine's integer ticks
// and back.
package scale

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var ErrOutOfRange = errors.New("scale: value out of int64 range")

// Factor is a power-of-ten multiplier, e.g. 100 for two decimal places.
type Factor int64

const (
	DefaultPrice    Factor = 100
	DefaultQuantity Factor = 1000
)

// Parse multiplies the decimal string s by f and truncates toward zero.
func (f Factor) Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid decimal %q", s)
	}
	return f.FromDecimal(d)
}

// maxExponent bounds the power of ten a value may carry. Anything larger
// cannot fit in int64 once non-zero.
const maxExponent = 30

func (f Factor) FromDecimal(d decimal.Decimal) (int64, error) {
	if d.IsZero() {
		return 0, nil
	}

	// Rescaling expands 10^|exp|, so huge exponents are settled up front.
	exp := int64(d.Exponent())
	if exp > maxExponent {
		return 0, errors.Wrapf(ErrOutOfRange, "exponent %d", exp)
	}
	if exp < -maxExponent {
		digits := int64(len(new(big.Int).Abs(d.Coefficient()).String()))
		if digits+exp+int64(f.Places()) <= 0 {
			return 0, nil // below one tick
		}
	}

	scaled := d.Mul(decimal.NewFromInt(int64(f))).Truncate(0)
	bi := scaled.BigInt()
	if !bi.IsInt64() {
		return 0, errors.Wrapf(ErrOutOfRange, "%s x %d", d.String(), int64(f))
	}
	return bi.Int64(), nil
}

// Decimal is the inverse of Parse, exact for any int64 v.
func (f Factor) Decimal(v int64) decimal.Decimal {
	return decimal.NewFromInt(v).Shift(-f.Places())
}

// Format renders v with exactly Places() fractional digits.
func (f Factor) Format(v int64) string {
	return f.Decimal(v).StringFixed(f.Places())
}

// Places is log10(f).
func (f Factor) Places() int32 {
	var n int32
	for v := int64(f); v >= 10; v /= 10 {
		n++
	}
	return n
}
