package pacer

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NekoSaan/h264Player/internal/timebase"
)

func TestComputeDelay(t *testing.T) {
	tests := []struct {
		name    string
		nominal time.Duration
		rate    float64
		want    time.Duration
	}{
		{"rate one", 40 * time.Millisecond, 1, 40 * time.Millisecond},
		{"double speed", 40 * time.Millisecond, 2, 20 * time.Millisecond},
		{"half speed", 40 * time.Millisecond, 0.5, 80 * time.Millisecond},
		{"unset rate", 40 * time.Millisecond, 0, 40 * time.Millisecond},
		{"negative rate", 40 * time.Millisecond, -2, 40 * time.Millisecond},
		{"NaN rate", 40 * time.Millisecond, math.NaN(), 40 * time.Millisecond},
		{"infinite rate", 40 * time.Millisecond, math.Inf(1), 40 * time.Millisecond},
		{"zero nominal", 0, 2, 0},
		{"negative nominal", -time.Second, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeDelay(tt.nominal, tt.rate))
		})
	}
}

func TestComputeDelayDoublingHalves(t *testing.T) {
	for _, nominal := range []time.Duration{time.Millisecond, 33366666 * time.Nanosecond, 40 * time.Millisecond, time.Second} {
		for _, r := range []float64{0.25, 0.5, 1, 1.5, 4} {
			d := ComputeDelay(nominal, r)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.InDelta(t, float64(d)/2, float64(ComputeDelay(nominal, 2*r)), 1)
		}
	}
}

func TestClampRate(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1, 1},
		{0.1, MinRate},
		{100, MaxRate},
		{0, 1},
		{-1, 1},
		{math.NaN(), 1},
		{2.5, 2.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampRate(tt.in), "ClampRate(%v)", tt.in)
	}
}

func TestNewKeepsStartingRate(t *testing.T) {
	tests := []struct {
		rate  float64
		want  float64
		delay time.Duration
	}{
		{16, 16, 2500 * time.Microsecond},
		{0.1, 0.1, 400 * time.Millisecond},
		{1, 1, 40 * time.Millisecond},
		{0, 1, 40 * time.Millisecond},
		{-3, 1, 40 * time.Millisecond},
		{math.NaN(), 1, 40 * time.Millisecond},
	}
	for _, tt := range tests {
		p := New(40*time.Millisecond, tt.rate)
		assert.Equal(t, tt.want, p.Rate(), "rate %v", tt.rate)
		assert.Equal(t, tt.delay, p.Delay(), "rate %v", tt.rate)
	}
}

func TestStepRate(t *testing.T) {
	tests := []struct {
		name         string
		rate, factor float64
		want         float64
	}{
		{"double", 1, 2, 2},
		{"halve", 1, 0.5, 0.5},
		{"up to max", 4, 2, MaxRate},
		{"up clamps at max", 6, 2, MaxRate},
		{"down clamps at min", 0.3, 0.5, MinRate},
		{"up from above max stays", 16, 2, 16},
		{"down from above max", 16, 0.5, MaxRate},
		{"down from below min stays", 0.1, 0.5, 0.1},
		{"up from below min", 0.1, 2, MinRate},
		{"unset counts as one", 0, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StepRate(tt.rate, tt.factor))
		})
	}
}

func TestNominalFrameDuration(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, NominalFrameDuration(100*time.Millisecond, timebase.FrameRate25))
	assert.Equal(t, 40*time.Millisecond, NominalFrameDuration(0, timebase.FrameRate25))
	assert.Equal(t, 33366667*time.Nanosecond, NominalFrameDuration(0, timebase.FrameRate29_97))
	assert.Equal(t, DefaultFrameDuration, NominalFrameDuration(0, timebase.Rational{}))
}

func TestPacerSpacing(t *testing.T) {
	p := New(20*time.Millisecond, 1)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	assert.Less(t, time.Since(start), 15*time.Millisecond, "first presentation is immediate")

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestPacerSetRateAndReset(t *testing.T) {
	p := New(40*time.Millisecond, 1)
	assert.Equal(t, 40*time.Millisecond, p.Delay())

	assert.Equal(t, 2.0, p.SetRate(2))
	assert.Equal(t, 20*time.Millisecond, p.Delay())
	assert.Equal(t, 64.0, p.SetRate(64))
	assert.Equal(t, 625*time.Microsecond, p.Delay())
	assert.Equal(t, 1.0, p.SetRate(-1))
	assert.Equal(t, 40*time.Millisecond, p.Delay())

	ctx := context.Background()
	p = New(time.Hour, 1)
	require.NoError(t, p.Wait(ctx))
	p.Reset()
	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	assert.Less(t, time.Since(start), time.Second)
}

func TestPacerWaitCancelled(t *testing.T) {
	p := New(time.Hour, 1)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Wait(ctx))
}

func TestPacerZeroDelay(t *testing.T) {
	p := New(0, 1)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), time.Second)
}
