package timebase

import (
	"math"
	"math/big"
	"time"
)

// Rounding selects how a rescaled value that falls between two ticks is resolved.
type Rounding int

const (
	RoundZero    Rounding = iota // Toward zero (truncate)
	RoundInf                     // Away from zero
	RoundDown                    // Toward -infinity
	RoundUp                      // Toward +infinity
	RoundNearInf                 // To nearest, ties away from zero

	// RoundPassMinMax may be OR-ed with a mode: math.MinInt64 and math.MaxInt64
	// are passed through unchanged instead of being rescaled, so sentinel
	// values survive a time base change.
	RoundPassMinMax Rounding = 1 << 8
)

var (
	bigMinInt64 = big.NewInt(math.MinInt64)
	bigMaxInt64 = big.NewInt(math.MaxInt64)
)

// RescaleRnd computes a*b/c with the given rounding using 128+ bit
// intermediates. The result saturates at the int64 range, it never wraps.
// A zero c yields 0.
func RescaleRnd(a, b, c int64, rnd Rounding) int64 {
	if rnd&RoundPassMinMax != 0 {
		if a == math.MinInt64 || a == math.MaxInt64 {
			return a
		}
		rnd &^= RoundPassMinMax
	}
	if c == 0 {
		return 0
	}

	num := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	den := big.NewInt(c)

	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		// sign of the exact quotient
		sign := int64(num.Sign() * den.Sign())

		switch rnd {
		case RoundInf:
			q.Add(q, big.NewInt(sign))
		case RoundDown:
			if sign < 0 {
				q.Sub(q, big.NewInt(1))
			}
		case RoundUp:
			if sign > 0 {
				q.Add(q, big.NewInt(1))
			}
		case RoundNearInf:
			twiceRem := new(big.Int).Abs(r)
			twiceRem.Lsh(twiceRem, 1)
			if twiceRem.Cmp(new(big.Int).Abs(den)) >= 0 {
				q.Add(q, big.NewInt(sign))
			}
		}
	}

	if q.Cmp(bigMaxInt64) > 0 {
		return math.MaxInt64
	}
	if q.Cmp(bigMinInt64) < 0 {
		return math.MinInt64
	}
	return q.Int64()
}

// Rescale converts ts from one time base to another, rounding to nearest.
func Rescale(ts int64, from, to Rational) int64 {
	return RescaleRound(ts, from, to, RoundNearInf)
}

// RescaleRound converts ts from one time base to another with the given rounding.
// Invalid time bases yield 0.
func RescaleRound(ts int64, from, to Rational, rnd Rounding) int64 {
	if !from.Valid() || !to.Valid() {
		return 0
	}
	b := new(big.Int).Mul(big.NewInt(from.Num), big.NewInt(to.Den))
	c := new(big.Int).Mul(big.NewInt(from.Den), big.NewInt(to.Num))
	if b.IsInt64() && c.IsInt64() {
		return RescaleRnd(ts, b.Int64(), c.Int64(), rnd)
	}
	return rescaleBig(ts, b, c, rnd)
}

// rescaleBig handles time base products that do not fit in int64.
func rescaleBig(ts int64, b, c *big.Int, rnd Rounding) int64 {
	if rnd&RoundPassMinMax != 0 && (ts == math.MinInt64 || ts == math.MaxInt64) {
		return ts
	}
	rnd &^= RoundPassMinMax

	// Reduce the fraction first, it usually brings both terms back into range.
	g := new(big.Int).GCD(nil, nil, b, c)
	b = new(big.Int).Quo(b, g)
	c = new(big.Int).Quo(c, g)
	if b.IsInt64() && c.IsInt64() {
		return RescaleRnd(ts, b.Int64(), c.Int64(), rnd)
	}

	exact := new(big.Rat).SetFrac(new(big.Int).Mul(big.NewInt(ts), b), c)
	f, _ := exact.Float64()
	switch rnd {
	case RoundZero:
		f = math.Trunc(f)
	case RoundDown:
		f = math.Floor(f)
	case RoundUp:
		f = math.Ceil(f)
	case RoundInf:
		if f < 0 {
			f = math.Floor(f)
		} else {
			f = math.Ceil(f)
		}
	default:
		f = math.Round(f)
	}
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

// ToDuration converts a tick count to wall-clock time.
func ToDuration(ts int64, tb Rational) time.Duration {
	return time.Duration(Rescale(ts, tb, Nanoseconds))
}

// FromDuration converts wall-clock time to a tick count.
func FromDuration(d time.Duration, tb Rational) int64 {
	return Rescale(int64(d), Nanoseconds, tb)
}

// Range is the closed interval of timestamps a destination can represent.
type Range struct {
	Min int64
	Max int64
}

// FullRange is the whole int64 domain.
var FullRange = Range{Min: math.MinInt64, Max: math.MaxInt64}

// Clamp limits v to the range.
func (r Range) Clamp(v int64) int64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v int64) bool {
	return v >= r.Min && v <= r.Max
}
