package clmath

import (
	"math"
	"math/big"
	"testing"
)

func TestSqrtRatioAtTick(t *testing.T) {
	// Tick 0 is price 1.0
	if got := SqrtRatioAtTick(0); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("SqrtRatioAtTick(0) = %v, want 1.0", got)
	}

	// Price at tick 6932 is ~2.0, so sqrt is ~sqrt(2)
	got := SqrtRatioAtTick(6932)
	if math.Abs(got-math.Sqrt2) > 1e-3 {
		t.Errorf("SqrtRatioAtTick(6932) = %v, want ~%v", got, math.Sqrt2)
	}

	// Negative ticks invert
	up := SqrtRatioAtTick(1000)
	down := SqrtRatioAtTick(-1000)
	if math.Abs(up*down-1.0) > 1e-9 {
		t.Errorf("SqrtRatioAtTick(1000)*SqrtRatioAtTick(-1000) = %v, want 1.0", up*down)
	}
}

func TestSqrtPriceX96ToFloat(t *testing.T) {
	// 2^96 encodes sqrt price 1.0
	one := new(big.Int).Lsh(big.NewInt(1), 96)
	if got := SqrtPriceX96ToFloat(one); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("SqrtPriceX96ToFloat(2^96) = %v, want 1.0", got)
	}

	if got := SqrtPriceX96ToFloat(nil); got != 0 {
		t.Errorf("SqrtPriceX96ToFloat(nil) = %v, want 0", got)
	}
	if got := SqrtPriceX96ToFloat(big.NewInt(0)); got != 0 {
		t.Errorf("SqrtPriceX96ToFloat(0) = %v, want 0", got)
	}
}

func TestAmountsForLiquidityInRange(t *testing.T) {
	// Symmetric range around price 1.0 with the price in the middle:
	// both legs hold tokens.
	liquidity := big.NewInt(1_000_000)
	amount0, amount1 := AmountsForLiquidity(1.0, -1000, 1000, liquidity)

	if amount0 <= 0 || amount1 <= 0 {
		t.Fatalf("in-range position should hold both legs, got %v / %v", amount0, amount1)
	}

	// Symmetric range at the midpoint: the legs are equal in sqrt-price terms.
	if math.Abs(amount0-amount1)/amount1 > 1e-2 {
		t.Errorf("symmetric in-range amounts differ too much: %v vs %v", amount0, amount1)
	}
}

func TestAmountsForLiquidityOutOfRange(t *testing.T) {
	liquidity := big.NewInt(1_000_000)

	// Price below the range: all token0
	amount0, amount1 := AmountsForLiquidity(SqrtRatioAtTick(-2000), -1000, 1000, liquidity)
	if amount0 <= 0 || amount1 != 0 {
		t.Errorf("below range: got %v / %v, want token0 only", amount0, amount1)
	}

	// Price above the range: all token1
	amount0, amount1 = AmountsForLiquidity(SqrtRatioAtTick(2000), -1000, 1000, liquidity)
	if amount0 != 0 || amount1 <= 0 {
		t.Errorf("above range: got %v / %v, want token1 only", amount0, amount1)
	}
}

func TestAmountsForLiquidityZero(t *testing.T) {
	amount0, amount1 := AmountsForLiquidity(1.0, -1000, 1000, big.NewInt(0))
	if amount0 != 0 || amount1 != 0 {
		t.Errorf("zero liquidity: got %v / %v, want 0 / 0", amount0, amount1)
	}
}

func TestInRange(t *testing.T) {
	tests := []struct {
		tick, lower, upper int32
		want               bool
	}{
		{0, -100, 100, true},
		{-100, -100, 100, true},
		{100, -100, 100, false},
		{-101, -100, 100, false},
	}
	for _, tt := range tests {
		if got := InRange(tt.tick, tt.lower, tt.upper); got != tt.want {
			t.Errorf("InRange(%d, %d, %d) = %v, want %v", tt.tick, tt.lower, tt.upper, got, tt.want)
		}
	}
}
