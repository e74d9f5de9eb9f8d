// Package fixed implements the 256-bit unsigned fixed-point arithmetic the
// emission ledger is computed in. Every value is an integer scaled by 1e18.
//
// All operations truncate toward zero and never wrap: a multiplication or
// addition that does not fit in 256 bits fails with ErrOverflow instead.
package fixed

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow is returned when an intermediate result exceeds 2^256-1.
	ErrOverflow = errors.New("fixed-point arithmetic overflow")

	// ErrDivisionByZero is returned when a divisor is zero.
	ErrDivisionByZero = errors.New("fixed-point division by zero")

	// ErrSyntax is returned by Parse for malformed input.
	ErrSyntax = errors.New("invalid fixed-point literal")
)

// UnitDecimals is the number of decimals of the fixed-point scale.
const UnitDecimals = 18

// Unit returns 1e18, the fixed-point representation of 1.0.
func Unit() *uint256.Int {
	return uint256.NewInt(1_000_000_000_000_000_000)
}

// Zero returns a fresh zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// Clone returns a copy of x; nil is treated as zero.
func Clone(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(x)
}

// Add returns x + y.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrOverflow, String(x), String(y))
	}
	return z, nil
}

// Mul returns x * y.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrOverflow, String(x), String(y))
	}
	return z, nil
}

// MulDiv returns x * y / d, truncated. The product must fit in 256 bits.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	p, err := Mul(x, y)
	if err != nil {
		return nil, err
	}
	return p.Div(p, d), nil
}

// Accrue returns weight * rate * dt / 1e18, the amount issued to a holder of
// `weight` over dt seconds at `rate` per second. The two multiplications are
// performed left to right before the single truncating division.
func Accrue(weight, rate *uint256.Int, dt uint64) (*uint256.Int, error) {
	wr, err := Mul(weight, rate)
	if err != nil {
		return nil, err
	}
	p, err := Mul(wr, uint256.NewInt(dt))
	if err != nil {
		return nil, err
	}
	return p.Div(p, Unit()), nil
}

// Decay returns rate * 1e18 / factor, the rate after one reduction step.
func Decay(rate, factor *uint256.Int) (*uint256.Int, error) {
	return MulDiv(rate, Unit(), factor)
}

// Min returns the smaller of x and y (not copied).
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x
	}
	return y
}

// Parse reads a non-negative integer written in decimal or 0x-prefixed hex.
// Underscores are accepted as digit separators ("1_000").
func Parse(s string) (*uint256.Int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	if s == "" {
		return nil, ErrSyntax
	}
	b, ok := new(big.Int).SetString(s, 0)
	if !ok || b.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	z, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w: %q does not fit in 256 bits", ErrOverflow, s)
	}
	return z, nil
}

// MustParse is like Parse but panics on error. Intended for constants.
func MustParse(s string) *uint256.Int {
	z, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return z
}

// String renders x in decimal; nil renders as "0".
func String(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.ToBig().String()
}

// Format renders a 1e18-scaled value as a decimal fraction, e.g. "1.5" for 1.5e18.
func Format(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	q, r := new(big.Int).QuoRem(x.ToBig(), Unit().ToBig(), new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := fmt.Sprintf("%018s", r.String())
	return q.String() + "." + strings.TrimRight(frac, "0")
}
