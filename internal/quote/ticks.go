// Package quote converts between the core's integer tick prices and
// decimal quotes, strictly at the protocol/display boundary — the
// matching core itself only ever touches uint64 ticks.
package quote

import "github.com/shopspring/decimal"

// TicksPerUnit sets the smallest representable price increment: 1 tick ==
// 1/TicksPerUnit of a quote unit (e.g. 1e-8 for an 8-decimal asset).
const TicksPerUnit = 1e8

// ToDecimal converts a tick price into a display-precision Decimal.
func ToDecimal(ticks uint64) decimal.Decimal {
	return decimal.New(int64(ticks), 0).Div(decimal.New(TicksPerUnit, 0))
}

// FromDecimal converts a display-precision Decimal back to ticks,
// truncating any precision finer than TicksPerUnit.
func FromDecimal(d decimal.Decimal) uint64 {
	scaled := d.Mul(decimal.New(TicksPerUnit, 0))
	return uint64(scaled.IntPart())
}
