package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/NekoSaan/h264Player/internal/config"
	"github.com/NekoSaan/h264Player/internal/control"
	"github.com/NekoSaan/h264Player/internal/input"
	"github.com/NekoSaan/h264Player/internal/logger"
	"github.com/NekoSaan/h264Player/internal/media"
	"github.com/NekoSaan/h264Player/internal/player"
	"github.com/NekoSaan/h264Player/internal/resume"
	"github.com/NekoSaan/h264Player/internal/source"
	"github.com/NekoSaan/h264Player/internal/timebase"
	"github.com/NekoSaan/h264Player/internal/ui"
)

func playAction(c *cli.Context) error {
	if c.NArg() < 1 || c.NArg() > 2 {
		return cli.Exit("usage: "+c.App.Name+" play <input> [rate]", exitSetup)
	}
	path := c.Args().Get(0)

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.NArg() == 2 {
		rate, err := strconv.ParseFloat(c.Args().Get(1), 64)
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid rate %q", c.Args().Get(1)), exitSetup)
		}
		cfg.Playback.Rate = rate
	}

	tui := cfg.Playback.Renderer == "tui"
	_, log, err := newLogger(cfg, tui)
	if err != nil {
		return err
	}
	log = logger.WithComponent(log, "cli")

	srcOpts, err := sourceOptions(cfg, c.String("frame-rate"), log)
	if err != nil {
		return err
	}
	srcOpts.FallbackFrameRate = timebase.FrameRate25

	src, err := source.Open(path, srcOpts)
	if err != nil {
		log.WithError(err).Error("Failed to open input")
		return err
	}

	queue := input.NewQueue(cfg.Playback.InputQueueSize)
	defer queue.Close()

	var (
		renderer  media.Renderer
		observers []player.Observer
	)
	if tui {
		t := ui.NewTUI(path, queue)
		renderer = t
		observers = append(observers, t)
	} else {
		r := ui.NewLogRenderer(log)
		renderer = r
		observers = append(observers, r)
		go func() {
			if err := ui.ReadLines(c.Context, os.Stdin, queue, log); err != nil {
				log.WithError(err).Debug("Stopped reading commands")
			}
		}()
	}

	opts := player.Options{
		Input:                  path,
		Rate:                   cfg.Playback.Rate,
		FrameDuration:          cfg.Playback.FrameDuration,
		SeekStep:               cfg.Playback.SeekStep,
		PausePollInterval:      cfg.Playback.PausePollInterval,
		MaxConsecutiveFailures: cfg.Playback.MaxConsecutiveFailures,
		Logger:                 log,
	}

	var checker control.Checker
	if cfg.Resume.Enabled {
		store, err := connectResume(c.Context, &cfg.Resume, log)
		if err != nil {
			log.WithError(err).Warn("Resume store unavailable, continuing without it")
		} else {
			defer store.Close()
			opts.Resume = store
			checker = store
		}
	}

	if cfg.Control.Enabled {
		srv := control.New(queue, control.Options{
			Control: cfg.Control,
			Metrics: cfg.Metrics,
			Logger:  log,
		})
		if checker != nil {
			srv.RegisterChecker(checker)
		}
		if err := srv.Start(); err != nil {
			renderer.Close()
			src.Close()
			return cli.Exit(err.Error(), exitSetup)
		}
		defer shutdown(srv, log)
		observers = append(observers, srv)
	}

	opts.Observers = observers
	p := player.New(src, renderer, queue, opts)
	return p.Run(c.Context)
}

func connectResume(ctx context.Context, cfg *config.ResumeConfig, log logger.Logger) (*resume.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout+time.Second)
	defer cancel()
	return resume.Connect(ctx, cfg, log)
}

func shutdown(srv *control.Server, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Control server did not stop cleanly")
	}
}
