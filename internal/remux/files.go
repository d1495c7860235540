package remux

import (
	"context"
	"os"
	"time"

	"github.com/NekoSaan/h264Player/internal/container/mp4"
	apperrors "github.com/NekoSaan/h264Player/internal/errors"
	"github.com/NekoSaan/h264Player/internal/logger"
	"github.com/NekoSaan/h264Player/internal/metrics"
	"github.com/NekoSaan/h264Player/internal/source"
	"github.com/NekoSaan/h264Player/internal/timebase"
)

// FileOptions configures RemuxFile.
type FileOptions struct {
	// Source opens the input. Its FallbackFrameRate is ignored: an output
	// needs a real frame rate.
	Source source.Options
	// Timescale of the output track. Zero uses 90000.
	Timescale              uint32
	FrameRate              timebase.Rational
	FragmentDuration       time.Duration
	MaxConsecutiveFailures int
	Logger                 logger.Logger
}

// RemuxFile remuxes the file at input into a fragmented MP4 at output.
// When timestamps cannot be synthesized nothing is written and output is
// removed.
func RemuxFile(ctx context.Context, input, output string, opts FileOptions) (Result, error) {
	srcOpts := opts.Source
	srcOpts.FallbackFrameRate = timebase.Rational{}
	srcOpts.Logger = opts.Logger

	d, err := source.OpenDemuxer(input, srcOpts)
	if err != nil {
		return Result{}, err
	}
	source.LogStreamInfo(logger.OrNull(opts.Logger), input, d.Info())

	w, err := mp4.Create(output, mp4.WriterOptions{
		Timescale:        opts.Timescale,
		FragmentDuration: opts.FragmentDuration,
		OnFragment: func(seq uint32, samples int) {
			metrics.RecordFragmentWritten()
		},
	})
	if err != nil {
		d.Close()
		return Result{}, err
	}

	res, err := New(d, w, Options{
		Input:                  input,
		Output:                 output,
		FrameRate:              opts.FrameRate,
		MaxConsecutiveFailures: opts.MaxConsecutiveFailures,
		Logger:                 opts.Logger,
	}).Run(ctx)
	if apperrors.IsKind(err, apperrors.KindSynthesis) {
		if rerr := os.Remove(output); rerr != nil && !os.IsNotExist(rerr) {
			logger.OrNull(opts.Logger).WithError(rerr).Warn("Failed to remove empty output")
		}
	}
	return res, err
}
