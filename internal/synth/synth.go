// Package synth assigns timestamps to packets of a stream whose own timing
// cannot be trusted: one nominal frame duration per packet, rescaled into
// the output time base.
package synth

import (
	"fmt"
	"math"

	apperrors "github.com/NekoSaan/h264Player/internal/errors"
	"github.com/NekoSaan/h264Player/internal/media"
	"github.com/NekoSaan/h264Player/internal/timebase"
)

// Config describes the source and destination of a synthesizer.
type Config struct {
	FrameRate timebase.Rational
	Source    timebase.Rational
	Dest      timebase.Rational
	// DestRange is what the destination can represent. The zero value
	// means the whole int64 range.
	DestRange timebase.Range
}

// Timestamps are destination ticks for one packet.
type Timestamps struct {
	PTS      int64
	DTS      int64
	Duration int64
}

// Synthesizer counts packets and derives their timestamps from the count.
type Synthesizer struct {
	cfg        Config
	conv       *timebase.Converter
	nominalSrc int64
	durDest    int64
	frameIndex int64
}

// New validates cfg and computes the nominal frame duration once.
func New(cfg Config) (*Synthesizer, error) {
	if !cfg.FrameRate.Valid() {
		return nil, apperrors.NewSynthesisError(fmt.Sprintf("frame rate %s is zero or unknown", cfg.FrameRate))
	}
	conv, err := timebase.NewConverter(cfg.Source, cfg.Dest)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindSynthesis, "synthesize", "cannot rescale timestamps")
	}
	if cfg.DestRange == (timebase.Range{}) {
		cfg.DestRange = timebase.FullRange
	}

	// one frame in the normalized unit, then in source ticks
	nominalUs := timebase.Rescale(1, cfg.FrameRate.Invert(), timebase.Microseconds)
	nominalSrc := timebase.Rescale(nominalUs, timebase.Microseconds, cfg.Source)
	if nominalSrc <= 0 {
		return nil, apperrors.NewSynthesisError(fmt.Sprintf(
			"frame duration at %s fps is zero in time base %s", cfg.FrameRate, cfg.Source))
	}

	return &Synthesizer{
		cfg:        cfg,
		conv:       conv,
		nominalSrc: nominalSrc,
		durDest:    conv.ConvertDuration(nominalSrc),
	}, nil
}

// NominalDuration is the frame duration in source ticks.
func (s *Synthesizer) NominalDuration() int64 {
	return s.nominalSrc
}

// Timestamps computes the destination timestamps of the packet at
// frameIndex. It does not touch the counter.
func (s *Synthesizer) Timestamps(frameIndex int64) Timestamps {
	ptsSrc := mulSaturate(frameIndex, s.nominalSrc)
	pts := s.cfg.DestRange.Clamp(s.conv.Convert(ptsSrc))

	return Timestamps{
		PTS:      pts,
		DTS:      pts,
		Duration: s.durDest,
	}
}

// Next returns the timestamps for the current frame index and advances it.
func (s *Synthesizer) Next() Timestamps {
	ts := s.Timestamps(s.frameIndex)
	s.frameIndex++
	return ts
}

// Apply stamps pkt with the next timestamps. The byte position no longer
// matches anything in the output and is cleared.
func (s *Synthesizer) Apply(pkt *media.Packet) Timestamps {
	ts := s.Next()
	pkt.PTS = ts.PTS
	pkt.DTS = ts.DTS
	pkt.Duration = ts.Duration
	pkt.Pos = media.UnknownPos
	return ts
}

// FrameIndex is the index the next packet gets.
func (s *Synthesizer) FrameIndex() int64 {
	return s.frameIndex
}

// Reset restarts the count for a new stream.
func (s *Synthesizer) Reset() {
	s.frameIndex = 0
}

func mulSaturate(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > 0 && b > 0 && a > math.MaxInt64/b {
		return math.MaxInt64
	}
	return a * b
}
