// Package clmath implements the concentrated-liquidity amount formulas used to
// value AMM positions. Results are analytics-grade float64: good enough for
// valuation and delta, not for settlement.
package clmath

import (
	"math"
	"math/big"
)

// q96 is 2^96, the fixed-point scale of pool sqrt prices.
var q96 = new(big.Float).SetFloat64(math.Pow(2, 96))

// SqrtRatioAtTick returns sqrt(1.0001^tick), the square root of the price at a
// tick boundary.
func SqrtRatioAtTick(tick int32) float64 {
	return math.Pow(1.0001, float64(tick)/2)
}

// SqrtPriceX96ToFloat converts a pool's Q64.96 sqrt price to a plain float.
func SqrtPriceX96ToFloat(sqrtPriceX96 *big.Int) float64 {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() == 0 {
		return 0
	}
	f := new(big.Float).SetInt(sqrtPriceX96)
	out, _ := new(big.Float).Quo(f, q96).Float64()
	return out
}

// AmountsForLiquidity returns the raw token0 and token1 amounts represented by
// liquidity over [tickLower, tickUpper] at the current sqrt price.
//
// Below the range the position is entirely token0, above it entirely token1;
// in range it holds both.
func AmountsForLiquidity(sqrtPrice float64, tickLower, tickUpper int32, liquidity *big.Int) (amount0, amount1 float64) {
	if liquidity == nil || liquidity.Sign() == 0 || sqrtPrice <= 0 {
		return 0, 0
	}

	sqrtLower := SqrtRatioAtTick(tickLower)
	sqrtUpper := SqrtRatioAtTick(tickUpper)
	if sqrtLower > sqrtUpper {
		sqrtLower, sqrtUpper = sqrtUpper, sqrtLower
	}

	l, _ := new(big.Float).SetInt(liquidity).Float64()

	switch {
	case sqrtPrice <= sqrtLower:
		amount0 = l * (1/sqrtLower - 1/sqrtUpper)
	case sqrtPrice >= sqrtUpper:
		amount1 = l * (sqrtUpper - sqrtLower)
	default:
		amount0 = l * (1/sqrtPrice - 1/sqrtUpper)
		amount1 = l * (sqrtPrice - sqrtLower)
	}
	return amount0, amount1
}

// InRange reports whether the current tick sits inside [tickLower, tickUpper).
func InRange(currentTick, tickLower, tickUpper int32) bool {
	return currentTick >= tickLower && currentTick < tickUpper
}
