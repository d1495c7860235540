package timebase

import "fmt"

// Converter converts timestamps between two fixed time bases
type Converter struct {
	from Rational
	to   Rational
}

// NewConverter creates a new time base converter
func NewConverter(from, to Rational) (*Converter, error) {
	if !from.Valid() {
		return nil, fmt.Errorf("invalid source time base: %v", from)
	}
	if !to.Valid() {
		return nil, fmt.Errorf("invalid target time base: %v", to)
	}

	return &Converter{from: from, to: to}, nil
}

// Convert converts a timestamp, rounding to nearest and passing sentinels through
func (c *Converter) Convert(ts int64) int64 {
	return RescaleRound(ts, c.from, c.to, RoundNearInf|RoundPassMinMax)
}

// ConvertDuration converts a duration. Durations truncate so a converted
// duration never claims more time than the source did.
func (c *Converter) ConvertDuration(d int64) int64 {
	return RescaleRound(d, c.from, c.to, RoundZero)
}

// Source returns the source time base
func (c *Converter) Source() Rational {
	return c.from
}

// Target returns the target time base
func (c *Converter) Target() Rational {
	return c.to
}
