// Package annexb demuxes raw H.264 elementary streams (start code
// delimited NAL units with no container around them).
package annexb

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Eyevinn/mp4ff/avc"

	"github.com/NekoSaan/h264Player/internal/codec/h264"
	"github.com/NekoSaan/h264Player/internal/container"
	apperrors "github.com/NekoSaan/h264Player/internal/errors"
	"github.com/NekoSaan/h264Player/internal/media"
	"github.com/NekoSaan/h264Player/internal/timebase"
)

// Options controls how timestamps are assigned. Raw streams carry no
// timestamps, so the demuxer derives them from the frame rate.
type Options struct {
	// TimeBase of the generated timestamps. Defaults to 1/90000.
	TimeBase timebase.Rational
	// FrameRate overrides the SPS timing information.
	FrameRate timebase.Rational
	// FallbackFrameRate is used when neither FrameRate nor the SPS give a
	// rate. It is not reported in StreamInfo.
	FallbackFrameRate timebase.Rational
}

// Demuxer serves the access units of an in-memory elementary stream.
type Demuxer struct {
	path  string
	data  []byte
	aus   []h264.AccessUnit
	index container.Index
	info  media.StreamInfo
	timed bool
	next  int
}

// Open reads and indexes the elementary stream at path.
func Open(path string, opts Options) (*Demuxer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.WrapSetupError(err, "open", "cannot read input").WithPath(path)
	}

	d, err := New(data, opts)
	if err != nil {
		if e, ok := apperrors.GetError(err); ok {
			return nil, e.WithPath(path)
		}
		return nil, err
	}
	d.path = path
	return d, nil
}

// New indexes an elementary stream held in memory.
func New(data []byte, opts Options) (*Demuxer, error) {
	if !opts.TimeBase.Valid() {
		opts.TimeBase = timebase.TimeBase90kHz
	}

	aus, err := h264.SplitAccessUnits(data)
	if err != nil {
		return nil, apperrors.WrapSetupError(err, "stream_info", "malformed elementary stream")
	}
	if len(aus) == 0 {
		return nil, apperrors.NewSetupError("stream_info", "no pictures found in elementary stream")
	}

	d := &Demuxer{data: data, aus: aus}
	d.info = media.StreamInfo{
		Container:  "annexb",
		Codec:      "h264",
		TimeBase:   opts.TimeBase,
		FrameCount: int64(len(aus)),
	}

	if err := d.readParameterSets(); err != nil {
		return nil, err
	}

	rate := opts.FrameRate
	if rate.Valid() {
		d.info.FrameRate = rate
	} else if d.info.FrameRate.Valid() {
		rate = d.info.FrameRate
	} else {
		rate = opts.FallbackFrameRate
	}

	d.timed = rate.Valid()
	frameDur := rate.Invert()
	for i, au := range aus {
		e := container.Entry{PTS: media.NoTimestamp, Keyframe: au.Keyframe}
		if d.timed {
			e.PTS = timebase.Rescale(int64(i), frameDur, opts.TimeBase)
			e.Duration = timebase.Rescale(int64(i+1), frameDur, opts.TimeBase) - e.PTS
		}
		d.index.Add(e)
	}
	if d.timed {
		d.info.Duration = d.index.Duration()
	}

	return d, nil
}

// readParameterSets takes the first SPS and PPS of the stream and fills
// the stream geometry and frame rate from the SPS.
func (d *Demuxer) readParameterSets() error {
	for _, au := range d.aus {
		if !au.HasSPS {
			continue
		}
		units, err := h264.ScanUnits(d.data[au.Offset : au.Offset+au.Size])
		if err != nil {
			return apperrors.WrapSetupError(err, "stream_info", "malformed access unit")
		}
		for _, u := range units {
			switch {
			case u.Type == avc.NALU_SPS && d.info.SPS == nil:
				params, err := h264.ParseSPS(u.Data)
				if err != nil {
					return apperrors.WrapSetupError(err, "stream_info", "invalid sequence parameter set")
				}
				d.info.SPS = [][]byte{u.Data}
				d.info.Width = params.Width
				d.info.Height = params.Height
				d.info.FrameRate = params.FrameRate
			case u.Type == avc.NALU_PPS && d.info.PPS == nil:
				d.info.PPS = [][]byte{u.Data}
			}
		}
		if d.info.SPS != nil {
			return nil
		}
	}
	return nil
}

func (d *Demuxer) Info() media.StreamInfo {
	return d.info
}

// ReadPacket returns the next access unit, or io.EOF.
func (d *Demuxer) ReadPacket(ctx context.Context) (*media.Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.data == nil {
		return nil, fmt.Errorf("demuxer closed")
	}
	if d.next >= len(d.aus) {
		return nil, io.EOF
	}

	i := d.next
	d.next++

	au := d.aus[i]
	e := d.index.At(i)
	return &media.Packet{
		Data:     d.data[au.Offset : au.Offset+au.Size],
		PTS:      e.PTS,
		DTS:      e.PTS,
		Duration: e.Duration,
		Pos:      int64(au.Offset),
		Keyframe: au.Keyframe,
		Index:    int64(i),
	}, nil
}

// Seek repositions the demuxer so the next packet is the one Locate picks.
func (d *Demuxer) Seek(ts int64, mode media.SeekMode) error {
	if !d.timed {
		return apperrors.NewSeekError("stream has no frame rate, timestamps are unknown").WithPath(d.path)
	}
	i, ok := d.index.Locate(ts, mode)
	if !ok {
		return apperrors.NewSeekError("empty stream").WithPath(d.path)
	}
	d.next = i
	return nil
}

// Close releases the stream data.
func (d *Demuxer) Close() error {
	d.data = nil
	d.aus = nil
	return nil
}
