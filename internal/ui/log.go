package ui

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/NekoSaan/h264Player/internal/input"
	"github.com/NekoSaan/h264Player/internal/logger"
	"github.com/NekoSaan/h264Player/internal/media"
	"github.com/NekoSaan/h264Player/internal/player"
	"github.com/NekoSaan/h264Player/internal/transport"
)

// LogRenderer presents frames as sampled log lines. It is used when there
// is no terminal to draw on.
type LogRenderer struct {
	log   *logger.SampledLogger
	state string
}

var (
	_ media.Renderer  = (*LogRenderer)(nil)
	_ player.Observer = (*LogRenderer)(nil)
)

func NewLogRenderer(log logger.Logger) *LogRenderer {
	return &LogRenderer{log: logger.NewPlaybackLogger(logger.WithComponent(log, "renderer"))}
}

// Present implements media.Renderer.
func (r *LogRenderer) Present(ctx context.Context, f *media.Frame) error {
	r.log.InfoWithCategory(logger.CategoryPresentation, "Frame", map[string]interface{}{
		"index":    f.Index,
		"type":     f.Type.String(),
		"keyframe": f.Keyframe,
		"pts":      f.PTS,
		"time":     f.Timestamp().String(),
		"size":     f.Size,
	})
	return nil
}

// ObserveStatus logs transport changes only.
func (r *LogRenderer) ObserveStatus(s player.Status) {
	if s.State == r.state {
		return
	}
	r.state = s.State
	r.log.WithFields(map[string]interface{}{
		"state":    s.State,
		"rate":     s.Rate,
		"position": s.Position.String(),
	}).Info("Playback state changed")
}

func (r *LogRenderer) Close() error { return nil }

// ReadLines reads one command per line from rd and pushes it to sink until
// rd ends or ctx is done. Lines are event names ("left", "pause", "quit"
// ...) or single keys as the terminal UI understands them.
func ReadLines(ctx context.Context, rd io.Reader, sink EventSink, log logger.Logger) error {
	log = logger.OrNull(log)
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		sc := bufio.NewScanner(rd)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			ev := lineEvent(line)
			if ev == transport.Other {
				log.WithField("line", line).Debug("Ignoring unknown command")
				continue
			}
			if err := sink.Push(ev, input.OriginKeyboard); err != nil {
				log.WithError(err).Warn("Command dropped")
			}
		}
	}
}

func lineEvent(line string) transport.Event {
	line = strings.TrimSpace(line)
	if ev, ok := transport.ParseEvent(line); ok {
		return ev
	}
	if line == "" {
		return transport.Other
	}
	return KeyEvent(line)
}
