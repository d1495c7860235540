package timebase

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Rational represents a rational number (numerator/denominator).
// As a time base it is the duration of one timestamp tick in seconds,
// as a frame rate it is frames per second.
type Rational struct {
	Num int64 // Numerator
	Den int64 // Denominator
}

// NewRational creates a new rational number
func NewRational(num, den int64) Rational {
	if den == 0 {
		den = 1
	}
	return Rational{Num: num, Den: den}
}

// Float64 returns the floating point representation
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Invert returns the inverted rational (den/num)
func (r Rational) Invert() Rational {
	return Rational{Num: r.Den, Den: r.Num}
}

// Valid reports whether both terms are strictly positive. Time bases and
// frame rates are only usable for arithmetic when valid.
func (r Rational) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

// IsZero reports whether the rational carries no value.
func (r Rational) IsZero() bool {
	return r.Num == 0
}

// String returns the "num/den" form used in logs.
func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Common time bases
var (
	// Microseconds is the normalized time unit all per-stream conversions go through.
	Microseconds  = Rational{Num: 1, Den: 1000000}
	Nanoseconds   = Rational{Num: 1, Den: 1000000000}
	Milliseconds  = Rational{Num: 1, Den: 1000}
	TimeBase90kHz = Rational{Num: 1, Den: 90000} // Standard video (MPEG/RTP)

	// Frame rates (as rationals)
	FrameRate24 = Rational{Num: 24, Den: 1}
	FrameRate25 = Rational{Num: 25, Den: 1} // PAL, also the raw H.264 fallback
	FrameRate30 = Rational{Num: 30, Den: 1}
	FrameRate50 = Rational{Num: 50, Den: 1}
	FrameRate60 = Rational{Num: 60, Den: 1}

	// NTSC frame rates
	FrameRate23_976 = Rational{Num: 24000, Den: 1001}
	FrameRate29_97  = Rational{Num: 30000, Den: 1001}
	FrameRate59_94  = Rational{Num: 60000, Den: 1001}
)

// ParseRational parses "num/den", an integer, or a decimal such as
// "29.97". Decimals are converted with a denominator of 1000.
func ParseRational(s string) (Rational, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Rational{}, fmt.Errorf("empty rational")
	}

	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(num), 10, 64)
		if err != nil {
			return Rational{}, fmt.Errorf("invalid numerator %q: %w", num, err)
		}
		d, err := strconv.ParseInt(strings.TrimSpace(den), 10, 64)
		if err != nil {
			return Rational{}, fmt.Errorf("invalid denominator %q: %w", den, err)
		}
		if d == 0 {
			return Rational{}, fmt.Errorf("zero denominator in %q", s)
		}
		return Rational{Num: n, Den: d}, nil
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Rational{Num: n, Den: 1}, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Rational{}, fmt.Errorf("invalid rational %q: %w", s, err)
	}
	return Rational{Num: int64(math.Round(f * 1000)), Den: 1000}, nil
}
