package main

import (
	"github.com/urfave/cli/v2"

	"github.com/NekoSaan/h264Player/internal/logger"
	"github.com/NekoSaan/h264Player/internal/remux"
)

func remuxAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: "+c.App.Name+" remux <input> <output.mp4>", exitSetup)
	}
	in, out := c.Args().Get(0), c.Args().Get(1)

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	_, log, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	log = logger.WithComponent(log, "cli")

	srcOpts, err := sourceOptions(cfg, "", log)
	if err != nil {
		return err
	}

	rateText := cfg.Remux.FrameRate
	if fr := c.String("frame-rate"); fr != "" {
		rateText = fr
	}
	rate, err := parseRate(rateText)
	if err != nil {
		return err
	}

	res, err := remux.RemuxFile(c.Context, in, out, remux.FileOptions{
		Source:                 srcOpts,
		Timescale:              uint32(cfg.Remux.Timescale),
		FrameRate:              rate,
		FragmentDuration:       cfg.Remux.FragmentDuration,
		MaxConsecutiveFailures: cfg.Remux.MaxConsecutiveFailures,
		Logger:                 log,
	})
	if err != nil {
		log.WithError(err).Error("Remux failed")
		return err
	}

	log.WithFields(logger.Fields{
		"output":   out,
		"packets":  res.Written,
		"skipped":  res.Skipped,
		"duration": res.Duration.String(),
	}).Info("Wrote output")
	return nil
}
