package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/NekoSaan/h264Player/internal/config"
	"github.com/NekoSaan/h264Player/internal/logger"
	"github.com/NekoSaan/h264Player/internal/source"
	"github.com/NekoSaan/h264Player/internal/timebase"
)

// loadConfig reads the configuration and applies the flags that override
// it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitSetup)
	}

	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if c.IsSet("rate") {
		cfg.Playback.Rate = c.Float64("rate")
	}
	if r := c.String("renderer"); r != "" {
		cfg.Playback.Renderer = r
	}
	if c.IsSet("timescale") {
		cfg.Remux.Timescale = c.Int64("timescale")
	}
	if c.IsSet("fragment-duration") {
		cfg.Remux.FragmentDuration = c.Duration("fragment-duration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, cli.Exit(fmt.Sprintf("invalid options: %v", err), exitSetup)
	}
	return cfg, nil
}

// newLogger builds the process logger. Terminal output is muted when the
// full-screen renderer owns the terminal.
func newLogger(cfg *config.Config, tui bool) (*logrus.Logger, logger.Logger, error) {
	base, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, cli.Exit(fmt.Sprintf("failed to initialize logger: %v", err), exitSetup)
	}
	if tui && logger.IsTerminalOutput(&cfg.Logging) {
		logger.Silence(base)
	}
	return base, logger.Root(base), nil
}

// parseRate parses an optional frame rate. Empty means unknown.
func parseRate(s string) (timebase.Rational, error) {
	if s == "" {
		return timebase.Rational{}, nil
	}
	r, err := timebase.ParseRational(s)
	if err != nil {
		return timebase.Rational{}, cli.Exit(fmt.Sprintf("invalid frame rate: %v", err), exitSetup)
	}
	if !r.Valid() {
		return timebase.Rational{}, cli.Exit(fmt.Sprintf("invalid frame rate %q", s), exitSetup)
	}
	return r, nil
}

// sourceOptions derives the demuxer options from the source section.
// override, when set, replaces source.frame_rate.
func sourceOptions(cfg *config.Config, override string, log logger.Logger) (source.Options, error) {
	rateText := cfg.Source.FrameRate
	if override != "" {
		rateText = override
	}
	rate, err := parseRate(rateText)
	if err != nil {
		return source.Options{}, err
	}
	return source.Options{
		FrameRate:          rate,
		ElementaryTimeBase: timebase.Rational{Num: 1, Den: cfg.Source.ElementaryTimescale},
		Logger:             log,
	}, nil
}
