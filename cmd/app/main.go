// Structuring element evaluation and search for vessel enhancement
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"strel-optimizer/internal/config"
	"strel-optimizer/internal/service"
	"strel-optimizer/internal/strel"
	"strel-optimizer/internal/telemetry"
)

const (
	AppName    = "strel-optimizer"
	AppVersion = "1.0.0"
)

const usage = `Usage: strel-optimizer <command> [flags]

Commands:
  evaluate   score one structuring element (--shape, --radius)
  sweep      compare the configured shapes and radii
  optimize   search for the best element with iterated local search
  enhance    write enhanced images of the dataset (--shape, --radius)

Run 'strel-optimizer <command> --help' for the flags of a command.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// elementFlags holds the flags describing one structuring element
type elementFlags struct {
	shape  *string
	radius *int
	weight *int
	angle  *int
}

func addElementFlags(fs *flag.FlagSet) elementFlags {
	return elementFlags{
		shape:  fs.String("shape", "diamond", "structuring element shape (square, cross, disk, line, diamond)"),
		radius: fs.Int("radius", 8, "structuring element radius"),
		weight: fs.Int("weight", 1, "value of set cells"),
		angle:  fs.Int("angle", 0, "line angle in degrees (0, 45, 90, 135)"),
	}
}

func (f elementFlags) params() (strel.Shape, strel.Params, error) {
	shape, err := strel.ParseShape(*f.shape)
	if err != nil {
		return "", strel.Params{}, err
	}
	return shape, strel.Params{Weight: *f.weight, Radius: *f.radius, Angle: *f.angle}, nil
}

func addGlobalFlags(fs *flag.FlagSet) *string {
	configFile := fs.String("config", "", "YAML configuration file")
	fs.Bool("debug", false, "enable debug logging")
	fs.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	fs.String("dataset-root", "", "dataset root directory")
	fs.String("channel", "luma", "color reduction for raster images (luma, green)")
	fs.String("backend", config.BackendNative, "morphology backend (native, opencv)")
	fs.String("mask-policy", "sentinel", "value of mask-excluded pixels (sentinel, passthrough)")
	fs.Int("workers", 0, "parallel workers, 0 uses every CPU")
	fs.Bool("use-mask", true, "restrict evaluation to mask pixels")
	fs.String("curve-order", "roc", "ROC point ordering (roc, stable-index)")
	fs.String("mode", "contrast", "enhancement formula (contrast, subtract-tophat)")
	fs.StringSlice("post-steps", nil, "steps run after enhancement (smooth, normalize, matched-filter, or a morphological operator such as opening)")
	fs.String("output", "results", "output directory")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	return configFile
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		return 2
	}
	command := args[0]

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := addGlobalFlags(fs)

	var element elementFlags
	switch command {
	case "evaluate", "enhance":
		element = addElementFlags(fs)
	case "optimize":
		fs.Int("radius", 8, "structuring element radius")
		fs.Int("outer", 5, "outer (perturbation) iterations")
		fs.Int("inner", 5, "inner (refinement) iterations")
		fs.Uint64("seed", 1, "random seed")
		fs.String("initial-shape", "diamond", "shape the search starts from")
	case "sweep":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(*configFile, fs)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logger := initLogger(cfg.Log, stderr)
	logger.WithFields(logrus.Fields{
		"version": AppVersion,
		"command": command,
		"backend": cfg.Engine.Backend,
	}).Info("Starting " + AppName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, command, cfg, element, logger, stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Interrupted")
			return 130
		}
		logger.WithError(err).Error("Command failed")
		return 1
	}
	logger.Info("Done")
	return 0
}

func execute(ctx context.Context, command string, cfg *config.Config, element elementFlags, logger *logrus.Logger, stdout io.Writer) error {
	opts := []service.Option{service.WithLogger(logger)}
	if cfg.Metrics.Addr != "" {
		recorder := telemetry.NewRecorder()
		opts = append(opts, service.WithRecorder(recorder))
		go func() {
			if err := recorder.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	svc, err := service.Open(ctx, cfg, opts...)
	if err != nil {
		return err
	}

	switch command {
	case "evaluate":
		shape, params, err := element.params()
		if err != nil {
			return err
		}
		eval, err := svc.EvaluateStrel(ctx, shape, params)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "AUC %s r%d: %.6f\n", eval.Shape, eval.Radius, eval.Summary.AUC)
	case "sweep":
		if _, err := svc.SweepShapes(ctx, stdout); err != nil {
			return err
		}
	case "optimize":
		o := cfg.Optimizer
		_, auc, err := svc.OptimizeStrel(ctx, cfg.InitialShape(), o.Radius, o.OuterIterations, o.InnerIterations)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "best AUC: %.6f\n", auc)
	case "enhance":
		shape, params, err := element.params()
		if err != nil {
			return err
		}
		paths, err := svc.EnhanceDataset(ctx, shape, params)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%d images written to %s\n", len(paths), cfg.Output.Dir)
	}
	return nil
}

// initLogger initializes the logger with appropriate level
func initLogger(cfg config.LogConfig, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
		return logger
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return logger
}
