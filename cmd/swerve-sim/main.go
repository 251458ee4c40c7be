// Package main runs a swerve controller against simulated drive modules.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/benbjohnson/clock"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/swerve/components/base/swerve"
	"go.viam.com/swerve/config"
	"go.viam.com/swerve/internal/sim"
	"go.viam.com/swerve/logging"
)

const (
	flagConfig      = "config"
	flagDebug       = "debug"
	flagRealtime    = "realtime"
	flagReportEvery = "report-every"
	flagTraceTicks  = "trace-ticks"
	flagFormat      = "format"
	flagLogFile     = "log-file"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		logging.Global().Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	var (
		logger  logging.Logger
		logFile *logging.FileAppender
	)

	return &cli.App{
		Name:      "swerve-sim",
		Usage:     "simulate a multi-wheel steering controller",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotating it as it grows",
			},
		},
		Before: func(c *cli.Context) error {
			logger = logging.NewBlankLogger("swerve-sim")
			logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
			if path := c.String(flagLogFile); path != "" {
				logFile = logging.NewFileAppender(path)
				logger.AddAppender(logFile)
			}
			if !c.Bool(flagDebug) {
				logger.SetLevel(logging.INFO)
			}
			logging.ReplaceGlobal(logger)
			return nil
		},
		After: func(c *cli.Context) error {
			if logFile == nil {
				return nil
			}
			return logFile.Close()
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the simulation described by a config file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagConfig,
						Aliases:  []string{"c"},
						Usage:    "load configuration from `FILE`",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  flagRealtime,
						Usage: "tick on the wall clock instead of as fast as possible",
					},
					&cli.IntFlag{
						Name:  flagReportEvery,
						Usage: "print the module states every `N` ticks",
						Value: 10,
					},
					&cli.BoolFlag{
						Name:  flagTraceTicks,
						Usage: "log every simulator tick",
					},
					&cli.StringFlag{
						Name:  flagFormat,
						Usage: "report as a `FORMAT` of table, csv or markdown",
						Value: formatTable,
					},
				},
				Action: func(c *cli.Context) error {
					return runAction(c, logger)
				},
			},
			{
				Name:  "schema",
				Usage: "print the JSON schema of the config file",
				Action: func(c *cli.Context) error {
					encoder := json.NewEncoder(c.App.Writer)
					encoder.SetIndent("", "  ")
					return encoder.Encode(config.Schema())
				},
			},
		},
	}
}

func runAction(c *cli.Context, logger logging.Logger) error {
	switch format := c.String(flagFormat); format {
	case formatTable, formatCSV, formatMarkdown:
	default:
		return errors.Errorf("unknown report format %q", format)
	}

	cfg, err := config.Read(c.Context, c.String(flagConfig), logger)
	if err != nil {
		return err
	}
	if cfg.LogLevel != nil && !c.Bool(flagDebug) {
		logger.SetLevel(*cfg.LogLevel)
	}

	controller, err := swerve.NewSteeringController(cfg.Controller, logger.Sublogger("controller"))
	if err != nil {
		return err
	}

	commands := make([]sim.ScheduledCommand, len(cfg.Simulation.Commands))
	for i, cmd := range cfg.Simulation.Commands {
		motion, err := cmd.MotionCommand()
		if err != nil {
			return errors.Wrapf(err, "command %d", i)
		}
		commands[i] = sim.ScheduledCommand{At: cmd.At(), Command: motion}
	}

	var clk clock.Clock = clock.NewMock()
	if c.Bool(flagRealtime) {
		clk = clock.New()
	}
	simulator, err := sim.New(controller, cfg.Controller.DriveModules, sim.Options{
		TickInterval: cfg.Simulation.TickInterval(),
		Duration:     cfg.Simulation.Duration(),
		Commands:     commands,
		Tracking:     cfg.Simulation.Tracking,
	}, clk, logger.Sublogger("sim"))
	if err != nil {
		return err
	}

	ctx := c.Context
	if c.Bool(flagTraceTicks) {
		ctx = logging.EnableDebugMode(ctx, "ticks")
	}
	frames, err := simulator.Run(ctx)
	if err != nil {
		return err
	}
	return printFrames(c.App.Writer, frames, c.Int(flagReportEvery), c.String(flagFormat))
}

// report formats.
const (
	formatTable    = "table"
	formatCSV      = "csv"
	formatMarkdown = "markdown"
)

func printFrames(w io.Writer, frames []sim.Frame, every int, format string) error {
	if every < 1 {
		every = 1
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"elapsed", "state", "module", "steering_angle", "drive_velocity", "body_x", "body_y", "body_yaw"})
	for i, frame := range frames {
		if i%every != 0 && i != len(frames)-1 {
			continue
		}
		state := frame.State.String()
		if frame.Degraded {
			state += "(degraded)"
		}
		for _, m := range frame.States {
			t.AppendRow(table.Row{
				fmt.Sprintf("%.3f", frame.Elapsed.Seconds()), state, m.Name,
				fmt.Sprintf("%.4f", m.SteeringAngle), fmt.Sprintf("%.4f", m.DriveVelocity),
				fmt.Sprintf("%.4f", frame.Body.Position.X), fmt.Sprintf("%.4f", frame.Body.Position.Y),
				fmt.Sprintf("%.4f", frame.Body.Orientation.Z),
			})
		}
	}

	var rendered string
	switch format {
	case formatCSV:
		rendered = t.RenderCSV()
	case formatMarkdown:
		rendered = t.RenderMarkdown()
	default:
		rendered = t.Render()
	}
	_, err := fmt.Fprintln(w, rendered)
	return err
}
