package h264

import (
	"fmt"

	"github.com/Eyevinn/mp4ff/avc"

	"github.com/NekoSaan/h264Player/internal/timebase"
)

// StreamParams are the stream properties carried by an SPS.
type StreamParams struct {
	Profile uint32
	Level   uint32
	Width   int
	Height  int
	// FrameRate is zero when the SPS carries no VUI timing information.
	FrameRate timebase.Rational
}

// ParseSPS parses an SPS NAL unit (header byte included).
func ParseSPS(nalu []byte) (StreamParams, error) {
	sps, err := avc.ParseSPSNALUnit(nalu, true)
	if err != nil {
		return StreamParams{}, fmt.Errorf("parse SPS: %w", err)
	}

	p := StreamParams{
		Profile: sps.Profile,
		Level:   sps.Level,
		Width:   int(sps.Width),
		Height:  int(sps.Height),
	}
	if vui := sps.VUI; vui != nil && vui.TimingInfoPresentFlag && vui.NumUnitsInTick > 0 && vui.TimeScale > 0 {
		// One frame spans two ticks (one per field).
		p.FrameRate = reduce(int64(vui.TimeScale), 2*int64(vui.NumUnitsInTick))
	}
	return p, nil
}

func reduce(num, den int64) timebase.Rational {
	a, b := num, den
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return timebase.Rational{Num: num, Den: den}
	}
	return timebase.Rational{Num: num / a, Den: den / a}
}
