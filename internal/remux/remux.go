// Package remux copies the video stream of an input into another container,
// replacing its timing with synthesized timestamps.
package remux

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/NekoSaan/h264Player/internal/errors"
	"github.com/NekoSaan/h264Player/internal/logger"
	"github.com/NekoSaan/h264Player/internal/media"
	"github.com/NekoSaan/h264Player/internal/metrics"
	"github.com/NekoSaan/h264Player/internal/synth"
	"github.com/NekoSaan/h264Player/internal/timebase"
)

// Options configures a remux session.
type Options struct {
	Input  string
	Output string
	// FrameRate overrides the stream's frame rate. Zero uses the stream's.
	FrameRate              timebase.Rational
	MaxConsecutiveFailures int
	Logger                 logger.Logger
}

// Result summarizes a finished session.
type Result struct {
	SessionID string
	Read      int64
	Written   int64
	Skipped   int64
	// Duration is the synthesized length of the output.
	Duration time.Duration
}

// Remuxer moves packets from a demuxer to a writer.
type Remuxer struct {
	demuxer media.Demuxer
	writer  media.ContainerWriter
	opts    Options
	log     *logger.SampledLogger

	readBudget  *apperrors.FailureBudget
	writeBudget *apperrors.FailureBudget
	result      Result
}

// New prepares a session. The remuxer owns d and w; Run closes both.
func New(d media.Demuxer, w media.ContainerWriter, opts Options) *Remuxer {
	id := uuid.NewString()
	log := logger.WithComponent(logger.OrNull(opts.Logger), "remux").
		WithField("session_id", id)
	log = logger.WithInput(log, opts.Input)

	return &Remuxer{
		demuxer:     d,
		writer:      w,
		opts:        opts,
		log:         logger.NewPlaybackLogger(log),
		readBudget:  apperrors.NewFailureBudget("read_packet", opts.Input, opts.MaxConsecutiveFailures),
		writeBudget: apperrors.NewFailureBudget("write_packet", opts.Output, opts.MaxConsecutiveFailures),
		result:      Result{SessionID: id},
	}
}

// Run remuxes until end of stream, a fatal error or ctx is done. The
// trailer is written only at a clean end of stream. The demuxer and writer
// are closed on every path.
func (r *Remuxer) Run(ctx context.Context) (res Result, err error) {
	defer func() {
		if cerr := r.writer.Close(); cerr != nil {
			r.log.WithError(cerr).Warn("Failed to close output")
			if err == nil {
				err = apperrors.Wrap(cerr, apperrors.KindSetup, "close", "cannot finish output").WithPath(r.opts.Output)
			}
		}
		if cerr := r.demuxer.Close(); cerr != nil {
			r.log.WithError(cerr).Warn("Failed to close input")
		}
		if err != nil {
			metrics.RecordError(opOf(err), string(apperrors.KindOf(err)))
		}
		res = r.result
	}()

	info := r.demuxer.Info()
	rate := r.opts.FrameRate
	if rate.IsZero() {
		rate = info.FrameRate
	}

	s, err := synth.New(synth.Config{
		FrameRate: rate,
		Source:    info.TimeBase,
		Dest:      r.writer.TimeBase(),
		DestRange: r.writer.TimestampRange(),
	})
	if err != nil {
		var e *apperrors.Error
		if errors.As(err, &e) {
			err = e.WithPath(r.opts.Input)
		}
		return r.result, err
	}

	if err := r.writer.WriteHeader(info); err != nil {
		return r.result, asSetup(err, "write_header", r.opts.Output)
	}

	r.log.WithFields(logger.Fields{
		"output":         r.opts.Output,
		"frame_rate":     rate.String(),
		"time_base":      r.writer.TimeBase().String(),
		"frame_duration": s.Timestamps(0).Duration,
	}).Info("Remux started")

	var last synth.Timestamps
	for {
		if err := ctx.Err(); err != nil {
			return r.result, err
		}

		pkt, err := r.demuxer.ReadPacket(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return r.result, ctx.Err()
			}
			if fatal := r.readFailure(err); fatal != nil {
				return r.result, fatal
			}
			continue
		}
		r.readBudget.Success()
		r.result.Read++

		ts := s.Apply(pkt)
		if err := r.writer.WritePacket(pkt); err != nil {
			if errors.Is(err, media.ErrAwaitingKeyframe) {
				r.dependentDropped(err, ts)
				continue
			}
			if fatal := r.writeFailure(err, ts); fatal != nil {
				return r.result, fatal
			}
			continue
		}
		r.writeBudget.Success()
		r.result.Written++
		last = ts
		metrics.RecordPacketWritten(len(pkt.Data), ts.PTS)
		r.log.DebugWithCategory(logger.CategoryPacketWrite, "Packet written", map[string]interface{}{
			"frame_index": s.FrameIndex() - 1,
			"pts":         ts.PTS,
			"duration":    ts.Duration,
			"keyframe":    pkt.Keyframe,
			"size":        len(pkt.Data),
		})
	}

	if err := r.writer.WriteTrailer(); err != nil {
		return r.result, asSetup(err, "write_trailer", r.opts.Output)
	}
	if r.result.Written > 0 {
		r.result.Duration = timebase.ToDuration(last.PTS+last.Duration, r.writer.TimeBase())
	}

	r.log.WithFields(logger.Fields{
		"packets_read":    r.result.Read,
		"packets_written": r.result.Written,
		"packets_skipped": r.result.Skipped,
		"duration":        r.result.Duration.String(),
	}).Info("Remux complete")
	return r.result, nil
}

func (r *Remuxer) readFailure(err error) error {
	if e, ok := apperrors.GetError(err); ok && e.Kind != apperrors.KindTransientIO {
		return err
	}
	if !apperrors.IsKind(err, apperrors.KindTransientIO) {
		err = apperrors.WrapTransientError(err, "read_packet").WithPath(r.opts.Input)
	}
	return r.skip(err, r.readBudget, nil)
}

func (r *Remuxer) writeFailure(err error, ts synth.Timestamps) error {
	if e, ok := apperrors.GetError(err); ok && e.Kind != apperrors.KindTransientIO {
		return err
	}
	if !apperrors.IsKind(err, apperrors.KindTransientIO) {
		err = apperrors.WrapTransientError(err, "write_packet").WithPath(r.opts.Output)
	}
	return r.skip(err, r.writeBudget, map[string]interface{}{"pts": ts.PTS})
}

// dependentDropped records a packet the writer dropped after the packet it
// depends on failed. It does not count against the write budget.
func (r *Remuxer) dependentDropped(err error, ts synth.Timestamps) {
	r.result.Skipped++
	metrics.RecordFrameDropped("awaiting_keyframe")
	r.log.WarnWithCategory(logger.CategoryPacketWrite, "Skipped packet", map[string]interface{}{
		"error":       err.Error(),
		"pts":         ts.PTS,
		"consecutive": r.writeBudget.Consecutive(),
	})
}

func (r *Remuxer) skip(err error, budget *apperrors.FailureBudget, fields map[string]interface{}) error {
	r.result.Skipped++
	metrics.RecordError(opOf(err), string(apperrors.KindTransientIO))
	metrics.RecordFrameDropped(opOf(err))
	if fatal := budget.Failure(err); fatal != nil {
		return fatal
	}

	out := map[string]interface{}{
		"error":       err.Error(),
		"consecutive": budget.Consecutive(),
	}
	for k, v := range fields {
		out[k] = v
	}
	r.log.WarnWithCategory(logger.CategoryPacketWrite, "Skipped packet", out)
	return nil
}

func asSetup(err error, op, path string) error {
	if _, ok := apperrors.GetError(err); ok {
		return err
	}
	return apperrors.WrapSetupError(err, op, "cannot write output").WithPath(path)
}

func opOf(err error) string {
	if e, ok := apperrors.GetError(err); ok && e.Op != "" {
		return e.Op
	}
	return "remux"
}
