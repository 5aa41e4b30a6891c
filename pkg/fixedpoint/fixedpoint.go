// Package fixedpoint converts human decimal values to the scaled integers the
// contract does its arithmetic on, and back.
//
// Conversion truncates toward zero, the same as integer division on-chain.
// Callers that must not lose digits use the Exact variants, which fail instead.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// DefaultScale is the number of decimal places used on-chain for every
// monetary field (price, quantity, leverage, trigger price).
const DefaultScale int32 = 9

var (
	ErrPrecision = errors.New("value has more decimal places than the scale allows")
	ErrNegative  = errors.New("negative value")
	ErrScale     = errors.New("invalid scale")
)

// Codec converts at a fixed scale. The zero value is not usable; build one with
// New or Default.
type Codec struct {
	scale int32
	unit  decimal.Decimal // 10^scale
}

// New returns a codec for the given number of decimal places.
func New(scale int32) (Codec, error) {
	if scale < 0 || scale > 38 {
		return Codec{}, fmt.Errorf("%w: %d", ErrScale, scale)
	}
	return Codec{scale: scale, unit: decimal.New(1, scale)}, nil
}

// Default returns the codec at DefaultScale.
func Default() Codec {
	c, _ := New(DefaultScale)
	return c
}

func (c Codec) Scale() int32 { return c.scale }

// One returns the fixed-point representation of 1.
func (c Codec) One() *big.Int { return c.unit.BigInt() }

// ToFixedPoint multiplies by 10^scale and truncates toward zero.
func (c Codec) ToFixedPoint(v decimal.Decimal) (*big.Int, error) {
	if v.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrNegative, v.String())
	}
	return v.Mul(c.unit).Truncate(0).BigInt(), nil
}

// ToFixedPointExact is ToFixedPoint that refuses to drop digits.
func (c Codec) ToFixedPointExact(v decimal.Decimal) (*big.Int, error) {
	if v.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrNegative, v.String())
	}
	scaled := v.Mul(c.unit)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s at scale %d", ErrPrecision, v.String(), c.scale)
	}
	return scaled.BigInt(), nil
}

// FromFixedPoint is the inverse of ToFixedPoint.
func (c Codec) FromFixedPoint(n *big.Int) decimal.Decimal {
	if n == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n, -c.scale)
}

// Parse converts a decimal string exactly. Floats never enter this path.
func (c Codec) Parse(s string) (*big.Int, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return c.ToFixedPointExact(v)
}

// MustParse is Parse for constants and tests.
func (c Codec) MustParse(s string) *big.Int {
	n, err := c.Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// Format renders a fixed-point integer as a human decimal string.
func (c Codec) Format(n *big.Int) string {
	return c.FromFixedPoint(n).String()
}
