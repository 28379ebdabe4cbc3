// Package fixedpoint implements scaled-integer arithmetic for odds, payouts
// and fees. Values are big integers scaled by 1e18, so the integer 1e18
// represents 1.0. All operations use wide intermediates and make their
// rounding direction explicit at the call site.
package fixedpoint

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Decimals is the number of fractional digits carried by a fixed-point value.
const Decimals = 18

var (
	// One is the fixed-point representation of 1.0.
	One = mustBigInt("1000000000000000000")

	zero = big.NewInt(0)
	ten  = big.NewInt(10)
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return zero
	}
	return v
}

// Mul returns a*b/1e18 rounded toward zero. Use it whenever the product is a
// liability owed by the pool, so the pool never promises the rounding dust.
func Mul(a, b *big.Int) *big.Int {
	product := new(big.Int).Mul(orZero(a), orZero(b))
	return product.Quo(product, One)
}

// Div returns a*1e18/b rounded toward zero. Division by zero yields zero,
// matching the defensive convention of the surrounding ledger math; callers
// that need to distinguish the case must check the divisor first.
func Div(a, b *big.Int) *big.Int {
	divisor := orZero(b)
	if divisor.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(orZero(a), One)
	return numerator.Quo(numerator, divisor)
}

// DivUp returns a*1e18/b rounded away from zero.
func DivUp(a, b *big.Int) *big.Int {
	divisor := orZero(b)
	if divisor.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(orZero(a), One)
	quo, rem := numerator.QuoRem(numerator, divisor, new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}

// Sqrt returns the fixed-point square root of x, rounded down: for x
// representing a real number r it returns the representation of floor-ish
// sqrt(r). Negative input yields zero.
func Sqrt(x *big.Int) *big.Int {
	operand := orZero(x)
	if operand.Sign() <= 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Mul(operand, One)
	return isqrt(scaled)
}

// isqrt computes the integer square root, preferring the uint256 fast path
// when the operand fits 256 bits.
func isqrt(x *big.Int) *big.Int {
	if wide, overflow := uint256.FromBig(x); !overflow {
		return new(uint256.Int).Sqrt(wide).ToBig()
	}
	return new(big.Int).Sqrt(x)
}

// Parse converts a decimal string such as "2.5" or "0.01" into a fixed-point
// value. More than 18 fractional digits is an error rather than silent
// truncation.
func Parse(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("fixedpoint: empty value")
	}
	negative := false
	if strings.HasPrefix(trimmed, "-") {
		negative = true
		trimmed = trimmed[1:]
	}
	whole, frac, _ := strings.Cut(trimmed, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Decimals {
		return nil, fmt.Errorf("fixedpoint: %q exceeds %d fractional digits", s, Decimals)
	}
	intPart, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return nil, fmt.Errorf("fixedpoint: invalid value %q", s)
	}
	result := new(big.Int).Mul(intPart, One)
	if frac != "" {
		fracPart, ok := new(big.Int).SetString(frac, 10)
		if !ok {
			return nil, fmt.Errorf("fixedpoint: invalid value %q", s)
		}
		scale := new(big.Int).Exp(ten, big.NewInt(int64(Decimals-len(frac))), nil)
		result.Add(result, fracPart.Mul(fracPart, scale))
	}
	if negative {
		result.Neg(result)
	}
	return result, nil
}

// Format renders a fixed-point value as a decimal string with trailing zeros
// trimmed.
func Format(v *big.Int) string {
	value := orZero(v)
	sign := ""
	abs := new(big.Int).Abs(value)
	if value.Sign() < 0 {
		sign = "-"
	}
	quo, rem := new(big.Int).QuoRem(abs, One, new(big.Int))
	if rem.Sign() == 0 {
		return sign + quo.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%018s", rem.String()), "0")
	return sign + quo.String() + "." + frac
}
