// Package media holds the types shared by demuxers, the decoder, the
// loops and the container writer, and the collaborator interfaces the
// loops are written against.
package media

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/NekoSaan/h264Player/internal/timebase"
)

// NoTimestamp marks a timestamp that is not known.
const NoTimestamp int64 = math.MinInt64

// UnknownPos marks a packet whose byte position in the output is not known.
const UnknownPos int64 = -1

// ErrAwaitingKeyframe is returned by a ContainerWriter for a packet it
// dropped because the packet it depends on never reached the output.
var ErrAwaitingKeyframe = errors.New("waiting for a keyframe")

// SeekMode selects how a demuxer resolves a seek target.
type SeekMode uint8

const (
	// SeekBackward lands on the nearest keyframe at or before the target.
	SeekBackward SeekMode = iota
	// SeekAny lands on the first frame at or after the target, keyframe or not.
	SeekAny
)

func (m SeekMode) String() string {
	switch m {
	case SeekBackward:
		return "backward"
	case SeekAny:
		return "any"
	default:
		return "unknown"
	}
}

// FrameType represents the coding type of a picture.
type FrameType uint8

const (
	FrameTypeUnknown FrameType = iota
	FrameTypeIDR
	FrameTypeI
	FrameTypeP
	FrameTypeB
)

func (f FrameType) String() string {
	switch f {
	case FrameTypeIDR:
		return "IDR"
	case FrameTypeI:
		return "I"
	case FrameTypeP:
		return "P"
	case FrameTypeB:
		return "B"
	default:
		return "?"
	}
}

// Packet is one access unit of compressed video. Data is an Annex B byte
// stream (start code prefixed NAL units).
type Packet struct {
	Data     []byte
	PTS      int64 // stream time base ticks, NoTimestamp if unknown
	DTS      int64
	Duration int64
	Pos      int64 // byte offset in the input, or UnknownPos
	Keyframe bool
	Index    int64 // decode order number within the stream
}

// Frame is a decoded picture as far as this player is concerned: its
// timing and coding metadata. Pixel reconstruction is not performed.
type Frame struct {
	PTS       int64 // stream time base ticks
	TimeBase  timebase.Rational
	Type      FrameType
	Keyframe  bool
	Width     int
	Height    int
	Size      int // compressed size in bytes
	Index     int64
	NALUTypes []int
}

// Timestamp returns the presentation time of the frame as a duration.
func (f *Frame) Timestamp() time.Duration {
	if f.PTS == NoTimestamp {
		return 0
	}
	return timebase.ToDuration(f.PTS, f.TimeBase)
}

// StreamInfo describes the single video stream of an input.
type StreamInfo struct {
	Container  string // "annexb" or "mp4"
	Codec      string
	Width      int
	Height     int
	TimeBase   timebase.Rational
	FrameRate  timebase.Rational // zero when unknown
	Duration   int64             // TimeBase ticks, <= 0 when unknown
	FrameCount int64
	SPS        [][]byte
	PPS        [][]byte
}

// DurationTime returns the stream duration, or 0 when unknown.
func (s StreamInfo) DurationTime() time.Duration {
	if s.Duration <= 0 || !s.TimeBase.Valid() {
		return 0
	}
	return timebase.ToDuration(s.Duration, s.TimeBase)
}

// Demuxer produces packets from a container.
type Demuxer interface {
	Info() StreamInfo
	// ReadPacket returns io.EOF at the end of the stream.
	ReadPacket(ctx context.Context) (*Packet, error)
	Seek(ts int64, mode SeekMode) error
	Close() error
}

// Decoder turns packets into frames. A nil frame with a nil error means the
// decoder needs more input.
type Decoder interface {
	Decode(pkt *Packet) (*Frame, error)
	// Flush drops reference state and anything buffered.
	Flush()
}

// FrameSource is a demuxer and decoder pair.
type FrameSource interface {
	Info() StreamInfo
	ReadFrame(ctx context.Context) (*Frame, error)
	Seek(ts int64, mode SeekMode) error
	Flush()
	Close() error
}

// Renderer presents frames.
type Renderer interface {
	Present(ctx context.Context, f *Frame) error
	Close() error
}

// ContainerWriter writes a video stream to an output container.
type ContainerWriter interface {
	WriteHeader(info StreamInfo) error
	WritePacket(pkt *Packet) error
	WriteTrailer() error
	// TimeBase is the output time base, fixed once the header is written.
	TimeBase() timebase.Rational
	// TimestampRange is the range of timestamps the output can represent.
	TimestampRange() timebase.Range
	Close() error
}
