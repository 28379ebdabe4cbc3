package market

import (
	"fmt"
	"math/big"

	"betpool/native/fixedpoint"
)

// ComputePayout converts a stake quoted at fixed odds into the payout the
// pool actually promises. It is a pure function of its inputs.
//
// While the new cumulative payout on the bet's side stays at or below the
// largest payout promised on any side, pricing is linear: the bet earns
// stake*odds. Beyond that ceiling the excess is squashed through a concave
// saturating transform bounded by the pool's free liquidity,
//
//	scaled = free - free/sqrt(2*excess/free + 1)
//
// so no single side winning can ever require more collateral than the pool
// holds. Every rounding step biases the result downward: the pool may promise
// a few units less than the ideal curve, never more.
func ComputePayout(stake, odds, maxPayout, sidePayout, freeLiquidity *big.Int) (*big.Int, error) {
	if stake == nil || odds == nil || maxPayout == nil || sidePayout == nil || freeLiquidity == nil {
		return nil, fmt.Errorf("%w: nil argument", ErrInvalidParams)
	}
	if stake.Sign() < 0 {
		return nil, ErrInvalidStake
	}
	if odds.Cmp(fixedpoint.One) <= 0 {
		return nil, ErrInvalidOdds
	}
	if freeLiquidity.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative free liquidity", ErrInvalidParams)
	}
	if sidePayout.Sign() < 0 || maxPayout.Sign() < 0 || sidePayout.Cmp(maxPayout) > 0 {
		return nil, fmt.Errorf("%w: side payout %s exceeds max payout %s", ErrInvalidParams, sidePayout, maxPayout)
	}
	if stake.Sign() == 0 {
		return big.NewInt(0), nil
	}

	potential := fixedpoint.Mul(stake, odds)

	// Linear regime: the side's new cumulative payout would not exceed the
	// current worst case, so the obligation is already collateralised.
	newSidePayout := new(big.Int).Add(sidePayout, potential)
	if newSidePayout.Cmp(maxPayout) <= 0 {
		return potential, nil
	}

	linearPortion := new(big.Int).Sub(maxPayout, sidePayout)
	excess := new(big.Int).Sub(potential, linearPortion)
	scaled := squashExcess(excess, freeLiquidity)
	return linearPortion.Add(linearPortion, scaled), nil
}

// squashExcess applies the saturating transform. It returns a value in
// [0, free): zero when there is no free liquidity, approaching free only
// asymptotically as excess grows.
func squashExcess(excess, free *big.Int) *big.Int {
	if free.Sign() == 0 || excess.Sign() <= 0 {
		return big.NewInt(0)
	}
	// ratio = 2*excess/free, rounded down so the sqrt operand, and with it
	// the whole scaled portion, is never overstated.
	ratio := fixedpoint.Div(new(big.Int).Lsh(excess, 1), free)
	operand := ratio.Add(ratio, fixedpoint.One)
	root := fixedpoint.Sqrt(operand)
	// free/root is subtracted from free, so it rounds up; together with the
	// floored sqrt this minimises the promised payout.
	subtrahend := fixedpoint.DivUp(free, root)
	scaled := new(big.Int).Sub(free, subtrahend)
	if scaled.Sign() < 0 {
		return big.NewInt(0)
	}
	return scaled
}
