// Package pacer spaces frame presentations to match the stream's frame
// rate scaled by a playback rate.
package pacer

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/NekoSaan/h264Player/internal/metrics"
	"github.com/NekoSaan/h264Player/internal/timebase"
)

const (
	// MinRate and MaxRate bound the rates reached by stepping the rate
	// during playback. A starting rate may lie outside them.
	MinRate = 0.25
	MaxRate = 8.0

	// DefaultFrameDuration is used when neither the configuration nor the
	// stream give a frame rate (25 fps).
	DefaultFrameDuration = 40 * time.Millisecond
)

func validRate(r float64) bool {
	return r > 0 && !math.IsNaN(r) && !math.IsInf(r, 0)
}

// NormalizeRate returns r, or 1 when r is unset, NaN, infinite or not
// positive.
func NormalizeRate(r float64) float64 {
	if !validRate(r) {
		return 1
	}
	return r
}

// ClampRate limits r to [MinRate, MaxRate]. Unusable values become 1.
func ClampRate(r float64) float64 {
	if !validRate(r) {
		return 1
	}
	return math.Max(MinRate, math.Min(MaxRate, r))
}

// StepRate multiplies r by factor and clamps the result to
// [MinRate, MaxRate], never moving r against the direction of the step.
func StepRate(r, factor float64) float64 {
	r = NormalizeRate(r)
	next := ClampRate(r * factor)
	if (factor > 1 && next < r) || (factor < 1 && next > r) {
		return r
	}
	return next
}

// ComputeDelay returns nominal/rate. A rate that is unset, NaN or not
// positive counts as 1. The result is never negative.
func ComputeDelay(nominal time.Duration, r float64) time.Duration {
	if nominal <= 0 {
		return 0
	}
	if !validRate(r) {
		r = 1
	}
	return time.Duration(float64(nominal) / r)
}

// NominalFrameDuration picks the time between frames at rate 1: the
// configured value, else one frame at the stream's frame rate, else
// DefaultFrameDuration.
func NominalFrameDuration(configured time.Duration, frameRate timebase.Rational) time.Duration {
	if configured > 0 {
		return configured
	}
	if frameRate.Valid() {
		if d := timebase.Rescale(1, frameRate.Invert(), timebase.Nanoseconds); d > 0 {
			return time.Duration(d)
		}
	}
	return DefaultFrameDuration
}

// Pacer enforces a minimum spacing between consecutive presentations.
// Decode and render time are not subtracted from the spacing. Not safe for
// concurrent use.
type Pacer struct {
	nominal time.Duration
	rate    float64
	delay   time.Duration
	limiter *rate.Limiter
}

// New returns a pacer for frames nominal apart at rate r.
func New(nominal time.Duration, r float64) *Pacer {
	p := &Pacer{nominal: nominal}
	p.setRate(r)
	p.limiter = rate.NewLimiter(p.limit(), 1)
	return p
}

func (p *Pacer) setRate(r float64) {
	p.rate = NormalizeRate(r)
	p.delay = ComputeDelay(p.nominal, p.rate)
}

func (p *Pacer) limit() rate.Limit {
	if p.delay <= 0 {
		return rate.Inf
	}
	return rate.Every(p.delay)
}

// Wait blocks until the next presentation is due. The first call after
// New or Reset returns immediately.
func (p *Pacer) Wait(ctx context.Context) error {
	metrics.ObservePacerDelay(p.delay.Seconds())
	return p.limiter.Wait(ctx)
}

// SetRate changes the playback rate and returns the rate in effect. An
// unusable rate counts as 1.
func (p *Pacer) SetRate(r float64) float64 {
	p.setRate(r)
	p.limiter.SetLimit(p.limit())
	metrics.SetPlaybackRate(p.rate)
	return p.rate
}

// Reset forgets the last presentation so the next Wait does not block.
func (p *Pacer) Reset() {
	p.limiter = rate.NewLimiter(p.limit(), 1)
}

func (p *Pacer) Rate() float64 {
	return p.rate
}

func (p *Pacer) Delay() time.Duration {
	return p.delay
}

func (p *Pacer) Nominal() time.Duration {
	return p.nominal
}
