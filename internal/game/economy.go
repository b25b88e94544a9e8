package game

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	microsScale = decimal.NewFromInt(MicrosPerCoin)
	maxMicros   = decimal.NewFromInt(math.MaxInt64)
)

// Price returns base * growth^owned in micros, rounded half away from zero.
func Price(baseMicros, owned int64, growth float64) int64 {
	if baseMicros <= 0 {
		return 0
	}
	if owned < 0 {
		owned = 0
	}
	if growth < 0 {
		growth = 0
	}
	if f := float64(baseMicros) * math.Pow(growth, float64(owned)); f >= math.MaxInt64 {
		return math.MaxInt64
	}
	factor := decimal.NewFromFloat(growth).Pow(decimal.NewFromInt(owned))
	return clampMicros(decimal.NewFromInt(baseMicros).Mul(factor))
}

// BulkPrice is the total cost of buying qty units starting at owned. It
// saturates at math.MaxInt64.
func BulkPrice(baseMicros, owned, qty int64, growth float64) int64 {
	if qty <= 0 {
		return 0
	}
	if growth == 1 {
		return saturatingMul(Price(baseMicros, 0, 1), qty)
	}
	var total int64
	for i := int64(0); i < qty; i++ {
		p := Price(baseMicros, owned+i, growth)
		if total > math.MaxInt64-p {
			return math.MaxInt64
		}
		total += p
	}
	return total
}

// Income returns the per-second income of owned units.
func Income(baseIncomeMicros, owned int64) int64 {
	if baseIncomeMicros <= 0 || owned <= 0 {
		return 0
	}
	return baseIncomeMicros * owned
}

// accrue returns ratePerSecond * elapsedMs / 1000 with the multiplier applied.
func accrue(rateMicros int64, multiplier float64, elapsedMs int64) int64 {
	if rateMicros <= 0 || elapsedMs <= 0 {
		return 0
	}
	v := decimal.NewFromInt(rateMicros).
		Mul(decimal.NewFromFloat(multiplier)).
		Mul(decimal.NewFromInt(elapsedMs)).
		Div(decimal.NewFromInt(1000))
	return clampMicros(v)
}

func scaleMicros(v int64, multiplier float64) int64 {
	if multiplier == 1 {
		return v
	}
	return clampMicros(decimal.NewFromInt(v).Mul(decimal.NewFromFloat(multiplier)))
}

// clampMicros rounds v to whole micros and saturates at the int64 range.
func clampMicros(v decimal.Decimal) int64 {
	v = v.Round(0)
	if v.GreaterThan(maxMicros) {
		return math.MaxInt64
	}
	if v.IsNegative() {
		return 0
	}
	return v.IntPart()
}

// FormatCoins renders micros as a plain decimal coin amount with two places.
func FormatCoins(v int64) string {
	return decimal.NewFromInt(v).Div(microsScale).StringFixed(2)
}
