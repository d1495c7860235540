package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	apperrors "github.com/NekoSaan/h264Player/internal/errors"
	"github.com/NekoSaan/h264Player/pkg/version"
)

// Exit codes
const (
	exitOK          = 0
	exitError       = 1
	exitSetup       = 2
	exitStream      = 3
	exitInterrupted = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	err := newApp().RunContext(ctx, args)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", version.Name, err)
	}
	return exitCode(err)
}

func newApp() *cli.App {
	return &cli.App{
		Name:      version.Name,
		Usage:     "play and remux raw H.264 video",
		UsageText: version.Name + " [global options] <input> [rate]\n" + version.Name + " [global options] command [command options] [arguments...]",
		Version:   version.Version,
		Flags:     append(globalFlags(), playFlags()...),
		Action:    playAction,
		Commands: []*cli.Command{
			{
				Name:      "play",
				Usage:     "play a video in the terminal",
				ArgsUsage: "<input> [rate]",
				Flags:     playFlags(),
				Action:    playAction,
			},
			{
				Name:      "remux",
				Usage:     "copy the video stream into a fragmented MP4 with synthesized timestamps",
				ArgsUsage: "<input> <output.mp4>",
				Flags:     remuxFlags(),
				Action:    remuxAction,
			},
			{
				Name:  "version",
				Usage: "print version information",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, version.GetInfo().String())
					return nil
				},
			},
		},
		HideVersion: true,

		// run reports errors and picks the exit code
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to a YAML configuration file",
			EnvVars: []string{"H264PLAYER_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "override logging.level",
		},
	}
}

func playFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:  "rate",
			Usage: "playback rate multiplier (0.25 to 8)",
		},
		&cli.StringFlag{
			Name:  "renderer",
			Usage: "tui or log",
		},
		&cli.StringFlag{
			Name:  "frame-rate",
			Usage: "frame rate of an elementary stream without timing, e.g. 25 or 30000/1001",
		},
	}
}

func remuxFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:  "timescale",
			Usage: "output track timescale",
		},
		&cli.StringFlag{
			Name:  "frame-rate",
			Usage: "frame rate used to synthesize timestamps",
		},
		&cli.DurationFlag{
			Name:  "fragment-duration",
			Usage: "minimum fragment length; fragments always start at a keyframe",
		},
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindSetup, apperrors.KindSynthesis:
		return exitSetup
	case apperrors.KindStream, apperrors.KindTransientIO:
		return exitStream
	default:
		return exitError
	}
}
