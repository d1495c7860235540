package synth

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/NekoSaan/h264Player/internal/errors"
	"github.com/NekoSaan/h264Player/internal/media"
	"github.com/NekoSaan/h264Player/internal/timebase"
)

var (
	tb25   = timebase.Rational{Num: 1, Den: 25}
	tbMs   = timebase.Milliseconds
	tb90k  = timebase.TimeBase90kHz
	ntsc   = timebase.FrameRate29_97
	rate25 = timebase.FrameRate25
)

func TestScenario25fpsTo1000(t *testing.T) {
	s, err := New(Config{FrameRate: rate25, Source: tb90k, Dest: tbMs})
	require.NoError(t, err)

	assert.Equal(t, int64(3600), s.NominalDuration())
	ts := s.Timestamps(10)
	assert.Equal(t, int64(400), ts.PTS)
	assert.Equal(t, ts.PTS, ts.DTS)
	assert.Equal(t, int64(40), ts.Duration)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		nominal int64
	}{
		{"25 fps 90k", Config{FrameRate: rate25, Source: tb90k, Dest: tb90k}, false, 3600},
		{"ntsc 90k", Config{FrameRate: ntsc, Source: tb90k, Dest: tbMs}, false, 3003},
		{"25 fps in frame ticks", Config{FrameRate: rate25, Source: tb25, Dest: tb90k}, false, 1},
		{"zero frame rate", Config{Source: tb90k, Dest: tbMs}, true, 0},
		{"negative frame rate", Config{FrameRate: timebase.Rational{Num: -25, Den: 1}, Source: tb90k, Dest: tbMs}, true, 0},
		{"zero source", Config{FrameRate: rate25, Dest: tbMs}, true, 0},
		{"zero destination", Config{FrameRate: rate25, Source: tb90k, Dest: timebase.Rational{Num: 1}}, true, 0},
		{"duration rounds to zero", Config{FrameRate: rate25, Source: timebase.Rational{Num: 1, Den: 1}, Dest: tbMs}, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg)
			if tt.wantErr {
				assert.Nil(t, s)
				assert.True(t, apperrors.IsKind(err, apperrors.KindSynthesis))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.nominal, s.NominalDuration())
		})
	}
}

func TestStrictlyIncreasingPTS(t *testing.T) {
	configs := []Config{
		{FrameRate: rate25, Source: tb90k, Dest: tbMs},
		{FrameRate: ntsc, Source: tb90k, Dest: tb90k},
		{FrameRate: timebase.FrameRate60, Source: tb90k, Dest: tbMs},
		{FrameRate: rate25, Source: tb90k, Dest: tb25},
	}
	for _, cfg := range configs {
		s, err := New(cfg)
		require.NoError(t, err)

		prev := int64(math.MinInt64)
		for i := 0; i < 5000; i++ {
			ts := s.Next()
			require.Greater(t, ts.PTS, prev, "frame %d at %s -> %s", i, cfg.Source, cfg.Dest)
			assert.Equal(t, ts.PTS, ts.DTS)
			prev = ts.PTS
		}
	}
}

func TestDurationTruncates(t *testing.T) {
	// 3003 ticks at 90kHz is 33.366ms: truncated, never rounded up
	s, err := New(Config{FrameRate: ntsc, Source: tb90k, Dest: tbMs})
	require.NoError(t, err)
	assert.Equal(t, int64(33), s.Next().Duration)

	// 60 fps: 1500 ticks, 16.67ms
	s, err = New(Config{FrameRate: timebase.FrameRate60, Source: tb90k, Dest: tbMs})
	require.NoError(t, err)
	ts := s.Timestamps(1)
	assert.Equal(t, int64(16), ts.Duration)
	assert.Equal(t, int64(17), ts.PTS, "timestamps round to nearest")
}

func TestRoundTrip25To90k(t *testing.T) {
	s, err := New(Config{FrameRate: rate25, Source: tb25, Dest: tb90k})
	require.NoError(t, err)

	for i := int64(0); i < 100000; i += 37 {
		ts := s.Timestamps(i)
		assert.Equal(t, i*3600, ts.PTS)
		assert.Equal(t, i, timebase.Rescale(ts.PTS, tb90k, tb25))
	}
}

func TestClampToDestinationRange(t *testing.T) {
	s, err := New(Config{
		FrameRate: rate25,
		Source:    tb90k,
		Dest:      tb90k,
		DestRange: timebase.Range{Min: 0, Max: math.MaxUint32},
	})
	require.NoError(t, err)

	ts := s.Timestamps(2_000_000)
	assert.Equal(t, int64(math.MaxUint32), ts.PTS)
	assert.Equal(t, int64(math.MaxUint32), ts.DTS)

	// the multiplication saturates instead of wrapping negative
	s, err = New(Config{FrameRate: rate25, Source: tb90k, Dest: tbMs})
	require.NoError(t, err)
	ts = s.Timestamps(math.MaxInt64 / 100)
	assert.Greater(t, ts.PTS, int64(0))
}

func TestApplyAndReset(t *testing.T) {
	s, err := New(Config{FrameRate: rate25, Source: tb90k, Dest: tbMs})
	require.NoError(t, err)

	for i := int64(0); i < 3; i++ {
		pkt := &media.Packet{PTS: 999, DTS: 999, Pos: 1234}
		s.Apply(pkt)
		assert.Equal(t, i*40, pkt.PTS)
		assert.Equal(t, i*40, pkt.DTS)
		assert.Equal(t, int64(40), pkt.Duration)
		assert.Equal(t, media.UnknownPos, pkt.Pos)
	}
	assert.Equal(t, int64(3), s.FrameIndex())

	s.Reset()
	assert.Equal(t, int64(0), s.FrameIndex())
	assert.Equal(t, int64(0), s.Next().PTS)
}
