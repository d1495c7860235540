// Package source pairs a demuxer with the H.264 decoder and picks the
// demuxer for an input file.
package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/NekoSaan/h264Player/internal/codec/h264"
	"github.com/NekoSaan/h264Player/internal/container/annexb"
	"github.com/NekoSaan/h264Player/internal/container/mp4"
	apperrors "github.com/NekoSaan/h264Player/internal/errors"
	"github.com/NekoSaan/h264Player/internal/logger"
	"github.com/NekoSaan/h264Player/internal/media"
	"github.com/NekoSaan/h264Player/internal/metrics"
	"github.com/NekoSaan/h264Player/internal/timebase"
)

// Format is an input container format.
type Format string

const (
	FormatUnknown Format = ""
	FormatAnnexB  Format = "annexb"
	FormatMP4     Format = "mp4"
)

// Options configures Open.
type Options struct {
	// FrameRate overrides the frame rate of elementary streams.
	FrameRate timebase.Rational
	// ElementaryTimeBase is the time base given to elementary streams.
	ElementaryTimeBase timebase.Rational
	// FallbackFrameRate times elementary streams that carry no rate.
	FallbackFrameRate timebase.Rational
	Logger            logger.Logger
}

// Source reads frames from a demuxer through a decoder.
type Source struct {
	path    string
	demuxer media.Demuxer
	decoder media.Decoder
	info    media.StreamInfo
	log     logger.Logger
}

var _ media.FrameSource = (*Source)(nil)

var mp4Boxes = [][]byte{[]byte("ftyp"), []byte("styp"), []byte("moov"), []byte("mdat"), []byte("free")}

// Detect identifies the format from the first bytes of a file, falling back
// to the file extension.
func Detect(path string, head []byte) Format {
	if len(head) >= 8 {
		for _, box := range mp4Boxes {
			if bytes.Equal(head[4:8], box) {
				return FormatMP4
			}
		}
	}
	if bytes.HasPrefix(head, []byte{0, 0, 1}) || bytes.HasPrefix(head, []byte{0, 0, 0, 1}) {
		return FormatAnnexB
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v", ".mov":
		return FormatMP4
	case ".h264", ".264", ".avc", ".es":
		return FormatAnnexB
	}
	return FormatUnknown
}

func sniff(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, 12)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return head[:n], nil
}

// OpenDemuxer opens path with the demuxer for its format.
func OpenDemuxer(path string, opts Options) (media.Demuxer, error) {
	head, err := sniff(path)
	if err != nil {
		return nil, apperrors.WrapSetupError(err, "open", "cannot open input").WithPath(path)
	}

	switch Detect(path, head) {
	case FormatMP4:
		d, err := mp4.Open(path)
		if err != nil {
			return nil, err
		}
		return d, nil
	case FormatAnnexB:
		d, err := annexb.Open(path, annexb.Options{
			TimeBase:          opts.ElementaryTimeBase,
			FrameRate:         opts.FrameRate,
			FallbackFrameRate: opts.FallbackFrameRate,
		})
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, apperrors.NewSetupError("open", "unrecognized input format").WithPath(path)
	}
}

// Open opens path and creates a decoder for its video stream. The stream
// information is logged once.
func Open(path string, opts Options) (*Source, error) {
	d, err := OpenDemuxer(path, opts)
	if err != nil {
		return nil, err
	}

	info := d.Info()
	var params h264.StreamParams
	if len(info.SPS) > 0 {
		p, err := h264.ParseSPS(info.SPS[0])
		if err != nil {
			_ = d.Close()
			return nil, apperrors.WrapSetupError(err, "open_decoder", "invalid sequence parameter set").WithPath(path)
		}
		params = p
	}

	s := New(path, d, h264.NewDecoder(info.TimeBase, params), opts.Logger)
	LogStreamInfo(s.log, path, info)
	return s, nil
}

// New wraps an open demuxer and decoder.
func New(path string, d media.Demuxer, dec media.Decoder, log logger.Logger) *Source {
	return &Source{
		path:    path,
		demuxer: d,
		decoder: dec,
		info:    d.Info(),
		log:     logger.WithComponent(logger.OrNull(log), "source"),
	}
}

// LogStreamInfo dumps the stream parameters.
func LogStreamInfo(log logger.Logger, path string, info media.StreamInfo) {
	fields := logger.Fields{
		"input":       path,
		"container":   info.Container,
		"codec":       info.Codec,
		"width":       info.Width,
		"height":      info.Height,
		"time_base":   info.TimeBase.String(),
		"frame_count": info.FrameCount,
	}
	if info.FrameRate.Valid() {
		fields["frame_rate"] = info.FrameRate.String()
	} else {
		fields["frame_rate"] = "unknown"
	}
	if info.Duration > 0 {
		fields["duration"] = info.DurationTime().String()
	} else {
		fields["duration"] = "unknown"
	}
	logger.OrNull(log).WithFields(fields).Info("Input stream")
}

func (s *Source) Info() media.StreamInfo {
	return s.info
}

// ReadFrame reads packets until the decoder produces a frame. It returns
// io.EOF at the end of the stream. Read and decode failures are
// KindTransientIO errors; the packet that caused them is consumed.
func (s *Source) ReadFrame(ctx context.Context) (*media.Frame, error) {
	for {
		pkt, err := s.demuxer.ReadPacket(ctx)
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil, err
			}
			if _, ok := apperrors.GetError(err); ok {
				return nil, err
			}
			return nil, apperrors.WrapTransientError(err, "read_packet").WithPath(s.path)
		}
		metrics.RecordPacketRead(s.info.Container)

		frame, err := s.decoder.Decode(pkt)
		if err != nil {
			return nil, apperrors.WrapTransientError(err, "decode").WithPath(s.path)
		}
		if frame != nil {
			return frame, nil
		}
	}
}

// Seek repositions the demuxer. Callers flush afterwards.
func (s *Source) Seek(ts int64, mode media.SeekMode) error {
	if err := s.demuxer.Seek(ts, mode); err != nil {
		if _, ok := apperrors.GetError(err); ok {
			return err
		}
		return apperrors.WrapSeekError(err, "demuxer seek failed").WithPath(s.path)
	}
	return nil
}

// Flush drops the decoder's reference state.
func (s *Source) Flush() {
	s.decoder.Flush()
}

func (s *Source) Close() error {
	return s.demuxer.Close()
}
