// Package seek computes seek targets and repositions a frame source.
package seek

import (
	"context"
	"time"

	apperrors "github.com/NekoSaan/h264Player/internal/errors"
	"github.com/NekoSaan/h264Player/internal/logger"
	"github.com/NekoSaan/h264Player/internal/media"
	"github.com/NekoSaan/h264Player/internal/metrics"
	"github.com/NekoSaan/h264Player/internal/timebase"
)

// Direction of a seek request.
type Direction int

const (
	Backward Direction = iota
	Forward
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// Request asks to move one increment away from Reference, the timestamp of
// the last presented frame.
type Request struct {
	Direction Direction
	Reference int64
}

// Increment converts step into ticks of tb. An invalid time base gives 0,
// which makes every seek on the stream fail.
func Increment(tb timebase.Rational, step time.Duration) int64 {
	if !tb.Valid() || step <= 0 {
		return 0
	}
	return timebase.Rescale(step.Microseconds(), timebase.Microseconds, tb)
}

// ComputeTarget returns where a seek from last should land, and the mode
// the demuxer should resolve it with. Backward targets are clamped at 0 and
// land on a keyframe; forward targets are clamped at duration and land
// anywhere. An unknown reference counts as 0.
func ComputeTarget(last int64, dir Direction, duration, increment int64) (int64, media.SeekMode, error) {
	if duration <= 0 {
		return 0, media.SeekBackward, apperrors.NewSeekError("stream duration is unknown")
	}
	if increment <= 0 {
		return 0, media.SeekBackward, apperrors.NewSeekError("seek increment is zero")
	}
	if last < 0 {
		last = 0
	}

	if dir == Backward {
		if last <= increment {
			return 0, media.SeekBackward, nil
		}
		return last - increment, media.SeekBackward, nil
	}

	if last >= duration || increment >= duration-last {
		return duration, media.SeekAny, nil
	}
	return last + increment, media.SeekAny, nil
}

// Source is the part of a frame source the engine drives.
type Source interface {
	Seek(ts int64, mode media.SeekMode) error
	Flush()
}

// Engine executes seek requests against one stream.
type Engine struct {
	src       Source
	duration  int64
	increment int64
	log       logger.Logger
}

// NewEngine derives the increment from the stream time base once.
func NewEngine(src Source, info media.StreamInfo, step time.Duration, log logger.Logger) *Engine {
	return &Engine{
		src:       src,
		duration:  info.Duration,
		increment: Increment(info.TimeBase, step),
		log:       logger.WithComponent(logger.OrNull(log), "seek"),
	}
}

// Increment returns the per-request step in stream ticks.
func (e *Engine) Increment() int64 {
	return e.increment
}

// Seek repositions the source and flushes it. A failed seek leaves the
// source where it was; the error is logged and returned for the caller to
// drop.
func (e *Engine) Seek(ctx context.Context, req Request) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	target, mode, err := ComputeTarget(req.Reference, req.Direction, e.duration, e.increment)
	if err == nil {
		err = e.src.Seek(target, mode)
	}
	if err != nil {
		metrics.RecordSeek(req.Direction.String(), "rejected")
		metrics.RecordError("seek", string(apperrors.KindOf(err)))
		e.log.WithError(err).WithFields(map[string]interface{}{
			"direction": req.Direction.String(),
			"reference": req.Reference,
		}).Warn("Seek dropped")
		return 0, err
	}

	e.src.Flush()
	metrics.RecordSeek(req.Direction.String(), "ok")
	e.log.WithFields(map[string]interface{}{
		"direction": req.Direction.String(),
		"reference": req.Reference,
		"target":    target,
		"mode":      mode.String(),
	}).Debug("Seek")
	return target, nil
}
