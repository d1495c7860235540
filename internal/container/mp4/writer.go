package mp4

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/NekoSaan/h264Player/internal/codec/h264"
	apperrors "github.com/NekoSaan/h264Player/internal/errors"
	"github.com/NekoSaan/h264Player/internal/media"
	"github.com/NekoSaan/h264Player/internal/timebase"
)

// WriterOptions configures the fragmented MP4 output.
type WriterOptions struct {
	// Timescale of the video track; the output time base is 1/Timescale.
	Timescale uint32
	// FragmentDuration is the minimum length of a fragment. Fragments
	// always start at a keyframe; zero starts one at every keyframe.
	FragmentDuration time.Duration
	// OnFragment is called after each moof/mdat pair is written.
	OnFragment func(seq uint32, samples int)
}

// Writer writes one H.264 track as fragmented MP4: ftyp and an empty
// moov at header time, then one moof+mdat per fragment with a tfdt base
// decode time.
//
// A finished fragment is encoded in memory and kept until all of its bytes
// reach the output; a failed write is retried by the next WritePacket or
// WriteTrailer. Every fragment starts with a sync sample.
type Writer struct {
	w      io.Writer
	closer io.Closer
	path   string
	opts   WriterOptions

	trackID  uint32
	fragDur  int64
	frag     *mp4.Fragment
	fragFrom int64
	fragSize int
	seq      uint32

	// encoded fragment not yet fully written
	pending     []byte
	pendingSeq  uint32
	pendingSize int

	headerWritten  bool
	trailerWritten bool
}

// Create opens path for writing.
func Create(path string, opts WriterOptions) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, apperrors.WrapSetupError(err, "create_output", "cannot create output").WithPath(path)
	}
	w := NewWriter(f, opts)
	w.closer = f
	w.path = path
	return w, nil
}

// NewWriter writes to w. Close does not close w.
func NewWriter(w io.Writer, opts WriterOptions) *Writer {
	if opts.Timescale == 0 {
		opts.Timescale = 90000
	}
	tb := timebase.Rational{Num: 1, Den: int64(opts.Timescale)}
	return &Writer{
		w:       w,
		opts:    opts,
		fragDur: timebase.FromDuration(opts.FragmentDuration, tb),
	}
}

// TimeBase is 1/Timescale.
func (w *Writer) TimeBase() timebase.Rational {
	return timebase.Rational{Num: 1, Den: int64(w.opts.Timescale)}
}

// TimestampRange covers what tfdt and trun can carry for a stream
// starting at zero.
func (w *Writer) TimestampRange() timebase.Range {
	return timebase.Range{Min: 0, Max: math.MaxInt64}
}

// WriteHeader writes ftyp and moov. The SPS and PPS of info go into avcC.
func (w *Writer) WriteHeader(info media.StreamInfo) error {
	if w.headerWritten {
		return apperrors.NewSetupError("write_header", "header already written").WithPath(w.path)
	}
	if len(info.SPS) == 0 || len(info.PPS) == 0 {
		return apperrors.NewSetupError("write_header", "stream has no SPS/PPS before the first sample").WithPath(w.path)
	}

	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(w.opts.Timescale, "video", "und")
	trak := init.Moov.Trak

	avcC, err := mp4.CreateAvcC(info.SPS, info.PPS, true)
	if err != nil {
		return apperrors.WrapSetupError(err, "write_header", "cannot build avcC").WithPath(w.path)
	}

	width, height := info.Width, info.Height
	if width <= 0 || height <= 0 {
		if p, err := h264.ParseSPS(info.SPS[0]); err == nil {
			width, height = p.Width, p.Height
		}
	}

	avc1 := mp4.CreateVisualSampleEntryBox("avc1", uint16(width), uint16(height), avcC)
	trak.Mdia.Minf.Stbl.Stsd.AddChild(avc1)
	trak.Tkhd.Width = mp4.Fixed32(width << 16)
	trak.Tkhd.Height = mp4.Fixed32(height << 16)
	w.trackID = trak.Tkhd.TrackID

	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso6", "avc1", "mp41"})
	if err := ftyp.Encode(w.w); err != nil {
		return apperrors.WrapSetupError(err, "write_header", "encode ftyp").WithPath(w.path)
	}
	if err := init.Moov.Encode(w.w); err != nil {
		return apperrors.WrapSetupError(err, "write_header", "encode moov").WithPath(w.path)
	}

	w.headerWritten = true
	return nil
}

// WritePacket adds a sample. Samples reach the output when their fragment
// is complete. A packet that arrives while a finished fragment cannot be
// written is rejected with a transient error and not added. Non-keyframes
// that would open a fragment are rejected with ErrAwaitingKeyframe.
func (w *Writer) WritePacket(pkt *media.Packet) error {
	if !w.headerWritten {
		return apperrors.NewSetupError("write_packet", "header not written").WithPath(w.path)
	}
	if pkt.DTS < 0 || pkt.DTS == media.NoTimestamp {
		return apperrors.WrapTransientError(fmt.Errorf("invalid decode time %d", pkt.DTS), "write_packet").WithPath(w.path)
	}

	data := h264.AnnexBToAVCC(pkt.Data)
	if len(data) == 0 {
		return apperrors.WrapTransientError(fmt.Errorf("packet %d has no slice data", pkt.Index), "write_packet").WithPath(w.path)
	}

	if err := w.writePending(); err != nil {
		return err
	}
	if w.frag != nil && pkt.Keyframe && pkt.DTS-w.fragFrom >= w.fragDur {
		if err := w.flushFragment(); err != nil {
			return err
		}
	}

	if w.frag == nil {
		if !pkt.Keyframe {
			return apperrors.WrapTransientError(media.ErrAwaitingKeyframe, "write_packet").WithPath(w.path)
		}
		frag, err := mp4.CreateFragment(w.seq+1, w.trackID)
		if err != nil {
			return apperrors.WrapTransientError(err, "write_packet").WithPath(w.path)
		}
		w.seq++
		w.frag = frag
		w.fragFrom = pkt.DTS
		w.fragSize = 0
	}

	flags := mp4.NonSyncSampleFlags
	if pkt.Keyframe {
		flags = mp4.SyncSampleFlags
	}

	dur := pkt.Duration
	if dur < 0 {
		dur = 0
	} else if dur > math.MaxUint32 {
		dur = math.MaxUint32
	}

	w.frag.AddFullSample(mp4.FullSample{
		Sample: mp4.Sample{
			Flags: flags,
			Size:  uint32(len(data)),
			Dur:   uint32(dur),
		},
		DecodeTime: uint64(pkt.DTS),
		Data:       data,
	})
	w.fragSize++
	return nil
}

// flushFragment encodes the open fragment and writes it.
func (w *Writer) flushFragment() error {
	if w.frag == nil || w.fragSize == 0 {
		w.frag, w.fragSize = nil, 0
		return nil
	}

	var buf bytes.Buffer
	if err := w.frag.Encode(&buf); err != nil {
		w.frag, w.fragSize = nil, 0
		return apperrors.WrapTransientError(err, "encode_fragment").WithPath(w.path)
	}
	w.pending, w.pendingSeq, w.pendingSize = buf.Bytes(), w.seq, w.fragSize
	w.frag, w.fragSize = nil, 0
	return w.writePending()
}

// writePending writes what is left of the encoded fragment.
func (w *Writer) writePending() error {
	if len(w.pending) == 0 {
		return nil
	}
	n, err := w.w.Write(w.pending)
	w.pending = w.pending[n:]
	if err == nil && len(w.pending) > 0 {
		err = io.ErrShortWrite
	}
	if err != nil {
		return apperrors.WrapTransientError(err, "write_fragment").WithPath(w.path)
	}

	w.pending = nil
	if w.opts.OnFragment != nil {
		w.opts.OnFragment(w.pendingSeq, w.pendingSize)
	}
	return nil
}

// WriteTrailer writes the last fragment.
func (w *Writer) WriteTrailer() error {
	if !w.headerWritten {
		return apperrors.NewSetupError("write_trailer", "header not written").WithPath(w.path)
	}
	if w.trailerWritten {
		return nil
	}
	if err := w.writePending(); err != nil {
		return err
	}
	if err := w.flushFragment(); err != nil {
		return err
	}
	w.trailerWritten = true
	return nil
}

// Close closes the output file. Pending samples without a trailer are
// discarded.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	c := w.closer
	w.closer = nil
	return c.Close()
}
