package h264

import (
	"errors"
	"fmt"

	"github.com/Eyevinn/mp4ff/avc"

	"github.com/NekoSaan/h264Player/internal/media"
	"github.com/NekoSaan/h264Player/internal/timebase"
)

var (
	ErrEmptyPacket = errors.New("empty packet")
	ErrNoNALUnits  = errors.New("packet contains no NAL units")
)

// Decoder parses access units into frame metadata. It keeps the reference
// state a real decoder would: until a keyframe arrives (at start and after
// every Flush) inter-coded pictures produce no frame.
type Decoder struct {
	timeBase timebase.Rational
	params   StreamParams
	waitKey  bool

	decoded int64
	skipped int64
}

// NewDecoder creates a decoder for a stream in timeBase. params are the
// values from the container's SPS; in-band SPS units update them.
func NewDecoder(timeBase timebase.Rational, params StreamParams) *Decoder {
	return &Decoder{
		timeBase: timeBase,
		params:   params,
		waitKey:  true,
	}
}

// Decode implements media.Decoder.
func (d *Decoder) Decode(pkt *media.Packet) (*media.Frame, error) {
	if pkt == nil || len(pkt.Data) == 0 {
		return nil, ErrEmptyPacket
	}

	nalus := avc.ExtractNalusFromByteStream(pkt.Data)
	if len(nalus) == 0 {
		return nil, ErrNoNALUnits
	}

	var (
		idr    bool
		slices []SliceType
		types  = make([]int, 0, len(nalus))
	)
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		t := avc.GetNaluType(nalu[0])
		types = append(types, int(t))

		switch t {
		case avc.NALU_SPS:
			p, err := ParseSPS(nalu)
			if err != nil {
				return nil, err
			}
			d.params = p
		case avc.NALU_IDR, avc.NALU_NON_IDR:
			hdr, err := ParseSliceHeader(nalu)
			if err != nil {
				return nil, fmt.Errorf("packet %d: %w", pkt.Index, err)
			}
			if t == avc.NALU_IDR {
				idr = true
			}
			slices = append(slices, hdr.Type)
		}
	}

	if len(slices) == 0 {
		// Parameter sets or SEI only.
		return nil, nil
	}

	keyframe := idr || pkt.Keyframe
	if d.waitKey {
		if !keyframe {
			d.skipped++
			return nil, nil
		}
		d.waitKey = false
	}

	d.decoded++
	return &media.Frame{
		PTS:       pkt.PTS,
		TimeBase:  d.timeBase,
		Type:      FrameTypeOf(idr, slices),
		Keyframe:  keyframe,
		Width:     d.params.Width,
		Height:    d.params.Height,
		Size:      len(pkt.Data),
		Index:     pkt.Index,
		NALUTypes: types,
	}, nil
}

// Flush implements media.Decoder. Reference pictures are gone, so the next
// frame must be a keyframe.
func (d *Decoder) Flush() {
	d.waitKey = true
}

// Params returns the current stream parameters.
func (d *Decoder) Params() StreamParams {
	return d.params
}

// Decoded returns the number of frames produced.
func (d *Decoder) Decoded() int64 {
	return d.decoded
}

// Skipped returns the number of pictures dropped while waiting for a keyframe.
func (d *Decoder) Skipped() int64 {
	return d.skipped
}
