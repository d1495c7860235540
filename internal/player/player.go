// Package player runs the interactive playback loop: poll input, dispatch,
// seek or pace, read, present.
package player

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/NekoSaan/h264Player/internal/errors"
	"github.com/NekoSaan/h264Player/internal/input"
	"github.com/NekoSaan/h264Player/internal/logger"
	"github.com/NekoSaan/h264Player/internal/media"
	"github.com/NekoSaan/h264Player/internal/metrics"
	"github.com/NekoSaan/h264Player/internal/pacer"
	"github.com/NekoSaan/h264Player/internal/seek"
	"github.com/NekoSaan/h264Player/internal/timebase"
	"github.com/NekoSaan/h264Player/internal/transport"
)

// ResumeStore remembers where playback of a file stopped.
type ResumeStore interface {
	Load(ctx context.Context, path string) (time.Duration, bool, error)
	Save(ctx context.Context, path string, pos time.Duration) error
	Clear(ctx context.Context, path string) error
}

// Options configures a playback session.
type Options struct {
	// Input is the path shown in logs and used as the resume key.
	Input string
	Rate  float64
	// FrameDuration overrides the nominal time between frames.
	FrameDuration          time.Duration
	SeekStep               time.Duration
	PausePollInterval      time.Duration
	MaxConsecutiveFailures int
	Resume                 ResumeStore
	Observers              []Observer
	Logger                 logger.Logger
}

// Player owns one playback session.
type Player struct {
	src      media.FrameSource
	renderer media.Renderer
	input    input.Source
	opts     Options

	info    media.StreamInfo
	machine *transport.Machine
	engine  *seek.Engine
	pacer   *pacer.Pacer
	log     *logger.SampledLogger

	readBudget    *apperrors.FailureBudget
	presentBudget *apperrors.FailureBudget

	sessionID string
	status    Status
}

// New prepares a session. The player takes ownership of src and renderer;
// Run closes them.
func New(src media.FrameSource, renderer media.Renderer, in input.Source, opts Options) *Player {
	if opts.SeekStep <= 0 {
		opts.SeekStep = time.Second
	}
	if opts.PausePollInterval <= 0 {
		opts.PausePollInterval = 10 * time.Millisecond
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = apperrors.DefaultFailureLimit
	}

	sessionID := uuid.NewString()
	log := logger.WithComponent(logger.OrNull(opts.Logger), "player").
		WithField("session_id", sessionID)
	log = logger.WithInput(log, opts.Input)

	info := src.Info()
	p := &Player{
		src:       src,
		renderer:  renderer,
		input:     in,
		opts:      opts,
		info:      info,
		machine:   transport.NewMachine(opts.Rate),
		engine:    seek.NewEngine(src, info, opts.SeekStep, log),
		log:       logger.NewPlaybackLogger(log),
		sessionID: sessionID,

		readBudget:    apperrors.NewFailureBudget("read_frame", opts.Input, opts.MaxConsecutiveFailures),
		presentBudget: apperrors.NewFailureBudget("present", opts.Input, opts.MaxConsecutiveFailures),
	}
	p.pacer = pacer.New(pacer.NominalFrameDuration(opts.FrameDuration, info.FrameRate), p.machine.Playback().Rate)
	p.status = Status{
		SessionID: sessionID,
		Input:     opts.Input,
		Duration:  info.DurationTime(),
	}
	return p
}

// SessionID identifies this session in logs.
func (p *Player) SessionID() string {
	return p.sessionID
}

// Status returns the latest snapshot. Only call it from the loop's
// goroutine or after Run returned.
func (p *Player) Status() Status {
	return p.status
}

// Run plays until quit, end of stream, context cancellation or a fatal
// error. The source and renderer are closed on every path.
func (p *Player) Run(ctx context.Context) error {
	defer func() {
		if cerr := p.renderer.Close(); cerr != nil {
			p.log.WithError(cerr).Warn("Failed to close renderer")
		}
		if cerr := p.src.Close(); cerr != nil {
			p.log.WithError(cerr).Warn("Failed to close source")
		}
		metrics.SetPlaybackState(transport.Terminated.String())
	}()

	p.log.WithFields(map[string]interface{}{
		"rate":          p.pacer.Rate(),
		"frame_delay":   p.pacer.Delay().String(),
		"seek_step":     p.opts.SeekStep.String(),
		"seek_ticks":    p.engine.Increment(),
		"stream_length": p.info.DurationTime().String(),
	}).Info("Playback started")

	p.restore(ctx)
	p.notify()

	endOfStream := false
	for !p.machine.Terminated() {
		if ctx.Err() != nil {
			p.log.Info("Playback interrupted")
			break
		}

		if p.machine.Paused() {
			p.idle(ctx)
		} else {
			done, err := p.step(ctx)
			if err != nil {
				p.log.WithError(err).Error("Playback failed")
				return err
			}
			if done {
				endOfStream = true
				break
			}
		}

		p.pollInput(ctx)
	}

	p.persist(endOfStream)
	p.log.WithFields(map[string]interface{}{
		"presented": p.status.Presented,
		"skipped":   p.status.Skipped,
		"position":  p.status.Position.String(),
	}).Info("Playback finished")
	return nil
}

// step reads, paces and presents one frame. It reports true at the end of
// the stream.
func (p *Player) step(ctx context.Context) (bool, error) {
	frame, err := p.src.ReadFrame(ctx)
	switch {
	case err == io.EOF:
		p.log.Info("End of stream")
		return true, nil
	case ctx.Err() != nil:
		return false, nil
	case err != nil:
		return false, p.skip(err, p.readBudget)
	}
	p.readBudget.Success()

	if err := p.pacer.Wait(ctx); err != nil {
		// The limiter refuses a wait that would outlast the deadline
		// without waiting for it.
		<-ctx.Done()
		return false, nil
	}

	if err := p.renderer.Present(ctx, frame); err != nil {
		return false, p.skip(apperrors.Wrap(err, apperrors.KindTransientIO, "present", "frame dropped").WithPath(p.opts.Input), p.presentBudget)
	}
	p.presentBudget.Success()

	p.machine.Presented(frame.PTS)
	pos := frame.Timestamp()
	metrics.RecordFramePresented(pos.Seconds())

	p.status.Position = pos
	p.status.Frame = frameStatus(frame)
	p.status.Presented++
	p.log.DebugWithCategory(logger.CategoryPresentation, "Frame presented", map[string]interface{}{
		"index":    frame.Index,
		"pts":      frame.PTS,
		"type":     frame.Type.String(),
		"position": pos.String(),
	})
	p.notify()
	return false, nil
}

// skip counts a transient failure against the budget of the operation that
// failed. Anything else, or too many transient failures in a row, is fatal.
func (p *Player) skip(err error, budget *apperrors.FailureBudget) error {
	if !apperrors.IsKind(err, apperrors.KindTransientIO) {
		if _, ok := apperrors.GetError(err); !ok {
			err = apperrors.Wrap(err, apperrors.KindStream, "read_frame", "unrecoverable read error").WithPath(p.opts.Input)
		}
		return err
	}

	metrics.RecordError(opOf(err), string(apperrors.KindTransientIO))
	metrics.RecordFrameDropped(opOf(err))
	p.status.Skipped++
	if fatal := budget.Failure(err); fatal != nil {
		return fatal
	}
	p.log.WarnWithCategory(logger.CategoryDecode, "Skipped packet", map[string]interface{}{
		"error":       err.Error(),
		"consecutive": budget.Consecutive(),
	})
	return nil
}

func opOf(err error) string {
	if e, ok := apperrors.GetError(err); ok && e.Op != "" {
		return e.Op
	}
	return "unknown"
}

// idle waits while paused; input is still polled by the caller.
func (p *Player) idle(ctx context.Context) {
	t := time.NewTimer(p.opts.PausePollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// pollInput drains every pending event.
func (p *Player) pollInput(ctx context.Context) {
	if p.input == nil {
		return
	}
	for !p.machine.Terminated() {
		ev, ok := p.input.Poll()
		if !ok {
			return
		}
		p.handle(ctx, ev, p.machine.Dispatch(ev))
	}
}

func (p *Player) handle(ctx context.Context, ev transport.Event, a transport.Action) {
	log := p.log.WithField("event", ev.String())

	switch a.Kind {
	case transport.ActionNone:
		p.log.DebugWithCategory(logger.CategoryInput, "Event ignored", map[string]interface{}{"event": ev.String()})
		return
	case transport.ActionQuit:
		log.Info("Quit requested")
	case transport.ActionPause:
		log.Info("Paused")
	case transport.ActionResume:
		p.pacer.Reset()
		log.Info("Resumed")
	case transport.ActionRate:
		rate := p.pacer.SetRate(a.Rate)
		log.WithField("rate", rate).Info("Playback rate changed")
	case transport.ActionSeek:
		target, err := p.engine.Seek(ctx, a.Seek)
		if err != nil {
			// already logged by the engine
			return
		}
		// The reference for the next seek is the target until a frame is shown.
		p.machine.Presented(target)
		p.status.Position = timebase.ToDuration(target, p.info.TimeBase)
		p.pacer.Reset()
	}
	p.notify()
}

// restore seeks to the stored position of this input, if any.
func (p *Player) restore(ctx context.Context) {
	if p.opts.Resume == nil {
		return
	}
	pos, ok, err := p.opts.Resume.Load(ctx, p.opts.Input)
	if err != nil {
		p.log.WithError(err).Warn("Failed to load resume position")
		return
	}
	if !ok || pos <= 0 {
		return
	}

	ts := timebase.FromDuration(pos, p.info.TimeBase)
	if p.info.Duration > 0 && ts >= p.info.Duration {
		return
	}
	if err := p.src.Seek(ts, media.SeekBackward); err != nil {
		p.log.WithError(err).Warn("Failed to restore resume position")
		return
	}
	p.src.Flush()
	p.machine.Presented(ts)
	p.status.Position = pos
	p.log.WithField("position", pos.String()).Info("Resuming playback")
}

// persist stores the last position on quit and forgets it once the file
// was played to the end.
func (p *Player) persist(endOfStream bool) {
	if p.opts.Resume == nil {
		return
	}
	// the session context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var err error
	if endOfStream {
		err = p.opts.Resume.Clear(ctx, p.opts.Input)
	} else if ts := p.machine.Playback().Timestamp; ts != media.NoTimestamp && ts > 0 {
		err = p.opts.Resume.Save(ctx, p.opts.Input, timebase.ToDuration(ts, p.info.TimeBase))
	}
	if err != nil {
		p.log.WithError(err).Warn("Failed to store resume position")
	}
}

func (p *Player) notify() {
	pb := p.machine.Playback()
	p.status.State = p.machine.State().String()
	p.status.Rate = pb.Rate

	metrics.SetPlaybackState(p.status.State)
	metrics.SetPlaybackRate(pb.Rate)
	for _, o := range p.opts.Observers {
		o.ObserveStatus(p.status)
	}
}
