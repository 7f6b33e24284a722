package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"netsniff/internal/pipeline"
)

// NewCommand builds the root command. runFunc receives the merged configuration
// after file values and flags have been applied and validated.
func NewCommand(
	runFunc func(ctx context.Context, cfg *Config) error,
	version string,
) *cli.Command {
	cmd := &cli.Command{
		Name:        "netsniff",
		Usage:       "capture, classify and summarise network traffic",
		Description: "Packet sniffer with live statistics, a text dashboard and JSON/CSV export",
		ArgsUsage:   " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "interface",
				Aliases:  []string{"i"},
				Usage:    "network interface to capture from (e.g. eth0, wlan0)",
				OnlyOnce: true,
				Sources:  cli.EnvVars("NETSNIFF_INTERFACE"),
			},
			&cli.StringFlag{
				Name:     "read",
				Aliases:  []string{"r"},
				Usage:    "replay frames from a pcap or pcapng file instead of a live interface",
				OnlyOnce: true,
			},
			&cli.StringFlag{
				Name:    "protocol",
				Aliases: []string{"p"},
				Usage: fmt.Sprintf(
					"only keep packets of this protocol (%s)",
					strings.Join(pipeline.FilterProtocols, "|"),
				),
				OnlyOnce:  true,
				Validator: validateProtocol,
			},
			&cli.IntFlag{
				Name:      "port",
				Aliases:   []string{"P"},
				Usage:     "only keep packets with this source or destination port",
				OnlyOnce:  true,
				Validator: validateUint16,
			},
			&cli.Uint64Flag{
				Name:     "count",
				Aliases:  []string{"c"},
				Usage:    "stop after this many matching packets (0 = unlimited)",
				OnlyOnce: true,
			},
			&cli.BoolFlag{
				Name:     "dashboard",
				Aliases:  []string{"d"},
				Usage:    "show the live dashboard instead of streaming packets",
				OnlyOnce: true,
			},
			&cli.IntFlag{
				Name:      "stats-interval",
				Usage:     "print interim statistics every N seconds in stream mode (0 = off)",
				OnlyOnce:  true,
				Validator: validateNonNegative,
			},
			&cli.StringFlag{
				Name:     "export-json",
				Usage:    "write matching packets to a JSON file",
				OnlyOnce: true,
			},
			&cli.StringFlag{
				Name:     "export-csv",
				Usage:    "write matching packets to a CSV file",
				OnlyOnce: true,
			},
			&cli.BoolFlag{
				Name:     "verbose",
				Aliases:  []string{"v"},
				Usage:    "print a detailed block per packet",
				OnlyOnce: true,
			},
			&cli.StringFlag{
				Name:     "config",
				Usage:    "load settings from a yaml, toml or json file",
				OnlyOnce: true,
				Sources:  cli.EnvVars("NETSNIFF_CONFIG"),
			},
			&cli.StringFlag{
				Name:     "nats-url",
				Usage:    "publish every matching packet to this NATS server",
				OnlyOnce: true,
				Sources:  cli.EnvVars("NETSNIFF_NATS_URL"),
			},
			&cli.StringFlag{
				Name:     "nats-subject",
				Usage:    "subject for published packets",
				OnlyOnce: true,
			},
			&cli.StringFlag{
				Name:     "report-html",
				Usage:    "write an HTML session report to this file or directory",
				OnlyOnce: true,
			},
			&cli.StringFlag{
				Name:     "log-file",
				Usage:    "also write logs to this file",
				OnlyOnce: true,
			},
			&cli.BoolFlag{
				Name:     "version",
				Usage:    "print the version and exit",
				OnlyOnce: true,
			},
			&cli.BoolFlag{
				Name:     "debug",
				Usage:    "enable debug logging",
				OnlyOnce: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("version") {
				fmt.Fprintf(cmd.Root().Writer, "netsniff %s\n", version)
				return nil
			}

			cfg := Default()
			if p := cmd.String("config"); p != "" {
				c, err := Load(p)
				if err != nil {
					return err
				}
				cfg = c
			}

			applyFlags(cmd, cfg)

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			return runFunc(ctx, cfg)
		},
	}

	return cmd
}

// applyFlags overrides cfg with every flag set on the command line.
func applyFlags(cmd *cli.Command, cfg *Config) {
	if cmd.IsSet("interface") {
		cfg.Capture.Interface = cmd.String("interface")
	}
	if cmd.IsSet("read") {
		cfg.Capture.File = cmd.String("read")
	}
	if cmd.IsSet("protocol") {
		cfg.Capture.Protocol = strings.ToLower(cmd.String("protocol"))
	}
	if cmd.IsSet("port") {
		cfg.Capture.Port = cmd.Int("port")
	}
	if cmd.IsSet("count") {
		cfg.Capture.Count = cmd.Uint64("count")
	}
	if cmd.IsSet("dashboard") {
		cfg.Dashboard.Enabled = cmd.Bool("dashboard")
	}
	if cmd.IsSet("stats-interval") {
		cfg.Stats.Interval = Duration{time.Duration(cmd.Int("stats-interval")) * time.Second}
	}
	if cmd.IsSet("verbose") {
		cfg.Stats.Verbose = cmd.Bool("verbose")
	}
	if cmd.IsSet("export-json") {
		cfg.Export.JSON = cmd.String("export-json")
	}
	if cmd.IsSet("export-csv") {
		cfg.Export.CSV = cmd.String("export-csv")
	}
	if cmd.IsSet("report-html") {
		cfg.Export.ReportHTML = cmd.String("report-html")
	}
	if cmd.IsSet("nats-url") {
		cfg.Publish.URL = cmd.String("nats-url")
	}
	if cmd.IsSet("nats-subject") {
		cfg.Publish.Subject = cmd.String("nats-subject")
	}
	if cmd.IsSet("log-file") {
		cfg.Logging.File = cmd.String("log-file")
	}
	if cmd.IsSet("debug") {
		cfg.Logging.Debug = cmd.Bool("debug")
	}
}
