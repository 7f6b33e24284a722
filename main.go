package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"netsniff/internal/analysis"
	"netsniff/internal/capture"
	"netsniff/internal/config"
	"netsniff/internal/export"
	"netsniff/internal/logging"
	"netsniff/internal/models"
	"netsniff/internal/pipeline"
	"netsniff/internal/publish"
	"netsniff/internal/reporting"
	"netsniff/internal/stream"
	"netsniff/internal/tui"
)

var version = "dev"

var errConsumerFailed = errors.New("one or more consumers failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := config.NewCommand(func(ctx context.Context, cfg *config.Config) error {
		return run(ctx, cfg, os.Stdin, os.Stdout)
	}, version)

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "netsniff: %s\n", err)
		if errors.Is(err, errConsumerFailed) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// interactive reports whether out is a terminal the bubbletea dashboard can own.
func interactive(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func run(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tty := cfg.Dashboard.Enabled && interactive(stdout)

	logOpts := logging.Options{
		Debug: cfg.Logging.Debug,
		File:  cfg.Logging.File,
		RunID: uuid.NewString(),
	}
	if tty {
		// the alternate screen owns the terminal; keep logs in the file only
		logOpts.Out = io.Discard
	}
	baseLogger, closer, err := logging.New(logOpts)
	if err != nil {
		return err
	}
	defer closer.Close()
	logger := logging.WithScope(baseLogger, "MAIN")

	filter, err := cfg.Filter()
	if err != nil {
		return err
	}

	src, err := openSource(cfg, filter, logging.WithScope(baseLogger, "CAPTURE"))
	if err != nil {
		return err
	}
	defer src.Close()

	logger.Info().
		Str("source", src.Name()).
		Str("filter", filter.String()).
		Uint64("count", cfg.Capture.Count).
		Msg("capture started")

	statsCfg := analysis.DefaultStatsConfig()
	statsCfg.Window = cfg.Stats.Window.Duration
	statsCfg.TopN = cfg.Stats.TopN
	agg := analysis.NewAggregator(statsCfg)
	statsDone := make(chan struct{})

	consumers := []pipeline.Consumer{
		{
			Name: "stats",
			Run: func(ctx context.Context, in <-chan models.Record) error {
				defer close(statsDone)
				agg.Run(ctx, in, 0)
				return nil
			},
		},
		renderer(cfg, src.Name(), agg, statsDone, stdin, stdout, tty, cancel),
	}

	writers, err := openExports(cfg)
	if err != nil {
		return err
	}
	for _, w := range writers {
		consumers = append(consumers, pipeline.Consumer{
			Name: "export " + w.Path(),
			Run: func(ctx context.Context, in <-chan models.Record) error {
				return export.Run(ctx, in, w)
			},
		})
	}

	if cfg.Publish.URL != "" {
		pub, err := publish.Connect(cfg.Publish.URL, publish.Options{
			Subject:  cfg.Publish.Subject,
			Encoding: publish.Encoding(cfg.Publish.Encoding),
			RunID:    logOpts.RunID,
			Logger:   logging.WithScope(baseLogger, "PUBLISH"),
		})
		if err != nil {
			closeAll(writers)
			return err
		}
		consumers = append(consumers, pipeline.Consumer{Name: "nats", Run: pub.Run})
	}

	report, runErr := pipeline.Run(ctx, src, pipeline.Options{
		Filter:    filter,
		Limit:     cfg.Capture.Count,
		QueueSize: cfg.Capture.QueueSize,
		Logger:    baseLogger,
	}, consumers...)

	summary := reporting.Summary{
		Source:   src.Name(),
		RunID:    logOpts.RunID,
		Snapshot: agg.Snapshot(),
		Report:   report,
	}
	if err := reporting.PrintSummary(stdout, summary); err != nil {
		logging.WarnUnwrapped(&logger, "failed to print summary", err)
	}

	if cfg.Export.ReportHTML != "" {
		path, err := reporting.GenerateSessionReport(cfg.Export.ReportHTML, summary)
		if err != nil {
			logging.ErrorUnwrapped(&logger, "failed to write session report", err)
		} else {
			logger.Info().Str("path", path).Msg("session report written")
		}
	}

	for _, w := range writers {
		if _, failed := report.ConsumerErrors["export "+w.Path()]; !failed {
			logger.Info().Str("path", w.Path()).Int("records", w.Count()).Msg("export written")
		}
	}

	logger.Info().
		Str("reason", string(report.Reason)).
		Uint64("frames", report.Frames).
		Uint64("matched", report.Matched).
		Msg("capture finished")

	if runErr != nil {
		return runErr
	}
	if len(report.ConsumerErrors) > 0 {
		names := make([]string, 0, len(report.ConsumerErrors))
		for name := range report.ConsumerErrors {
			names = append(names, name)
		}
		return fmt.Errorf("%w: %s", errConsumerFailed, strings.Join(names, ", "))
	}
	return nil
}

func openSource(cfg *config.Config, filter pipeline.Filter, logger zerolog.Logger) (*capture.Reader, error) {
	opts := capture.DefaultOptions()
	opts.SnapLen = cfg.Capture.SnapLen
	opts.Promiscuous = cfg.Capture.Promiscuous
	opts.MaxRetries = cfg.Capture.MaxRetries
	opts.Logger = logger

	if cfg.Capture.File != "" {
		return capture.OpenFile(cfg.Capture.File, opts)
	}
	opts.BPF = filter.BPF()
	return capture.OpenLive(cfg.Capture.Interface, opts)
}

func renderer(
	cfg *config.Config,
	source string,
	agg *analysis.Aggregator,
	statsDone <-chan struct{},
	stdin io.Reader,
	stdout io.Writer,
	tty bool,
	quit context.CancelFunc,
) pipeline.Consumer {
	if !cfg.Dashboard.Enabled {
		r := stream.New(stdout, stream.Options{
			Verbose:       cfg.Stats.Verbose,
			StatsInterval: cfg.Stats.Interval.Duration,
			Stats:         agg.Snapshot,
		})
		return pipeline.Consumer{Name: "stream", Run: r.Run}
	}

	opts := tui.Options{
		Source:       source,
		Stats:        agg.Snapshot,
		StatsDone:    statsDone,
		Interval:     cfg.Dashboard.Refresh.Duration,
		EveryPackets: cfg.Dashboard.EveryPackets,
		Recent:       cfg.Dashboard.Recent,
		OnQuit:       quit,
	}
	if tty {
		return pipeline.Consumer{Name: "dashboard", Run: tui.NewProgram(stdin, stdout, opts).Run}
	}
	return pipeline.Consumer{Name: "dashboard", Run: tui.NewLoop(stdout, opts).Run}
}

func openExports(cfg *config.Config) ([]export.Writer, error) {
	targets := []struct {
		format export.Format
		path   string
	}{
		{export.FormatJSON, cfg.Export.JSON},
		{export.FormatCSV, cfg.Export.CSV},
	}

	var writers []export.Writer
	for _, t := range targets {
		if t.path == "" {
			continue
		}
		w, err := export.Create(t.format, t.path, cfg.Export.FlushEvery)
		if err != nil {
			closeAll(writers)
			return nil, err
		}
		writers = append(writers, w)
	}
	return writers, nil
}

func closeAll(writers []export.Writer) {
	for _, w := range writers {
		_ = w.Close()
	}
}
