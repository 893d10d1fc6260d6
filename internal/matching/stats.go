package matching

import "github.com/holiman/uint256"

// Stats tracks the trade statistics MatchingCore maintains per
// instrument: last trade, session volume/VWAP, and OHLC.
type Stats struct {
	LastTradePrice uint64
	LastTradeSize  uint64
	LastTradeTs    int64
	VolumeToday    uint64
	Open           uint64
	High           uint64
	Low            uint64
	Close          uint64

	vwapNumerator uint256.Int // sum of price*qty; divide by VolumeToday for session VWAP
}

// recordFill folds one fill into the statistics and returns a
// non-empty warning string if the VWAP numerator ceiling was crossed
// (matching never halts for this; it only reports it).
func (s *Stats) recordFill(price, qty uint64, ts int64) string {
	s.LastTradePrice = price
	s.LastTradeSize = qty
	s.LastTradeTs = ts
	s.VolumeToday += qty

	term := new(uint256.Int).Mul(uint256.NewInt(price), uint256.NewInt(qty))
	sum := new(uint256.Int).Add(&s.vwapNumerator, term)

	var warning string
	if !sum.IsUint64() {
		warning = "vwap numerator reached its uint64 reporting ceiling; further accumulation suppressed"
	} else {
		s.vwapNumerator.Set(sum)
	}

	if s.High == 0 || price > s.High {
		s.High = price
	}
	if s.Low == 0 || price < s.Low {
		s.Low = price
	}
	if s.Open == 0 {
		s.Open = price
	}
	s.Close = price

	return warning
}

// VWAPNumerator returns the accumulated sum of price*qty, truncated to
// a uint64 (only ever inexact once the ceiling above has already
// triggered a warning).
func (s *Stats) VWAPNumerator() uint64 {
	if s.vwapNumerator.IsUint64() {
		return s.vwapNumerator.Uint64()
	}
	return ^uint64(0)
}
