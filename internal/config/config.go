package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"netsniff/internal/export"
	"netsniff/internal/pipeline"
	"netsniff/internal/publish"
)

// Duration is a time.Duration read from text such as "250ms" or "2s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	if v < 0 {
		return fmt.Errorf("negative duration %q", b)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type CaptureConfig struct {
	Interface   string `yaml:"interface"    toml:"interface"    json:"interface"`
	File        string `yaml:"file"         toml:"file"         json:"file"`
	Protocol    string `yaml:"protocol"     toml:"protocol"     json:"protocol"`
	Port        int    `yaml:"port"         toml:"port"         json:"port"`
	Count       uint64 `yaml:"count"        toml:"count"        json:"count"`
	SnapLen     int    `yaml:"snaplen"      toml:"snaplen"      json:"snaplen"`
	Promiscuous bool   `yaml:"promiscuous"  toml:"promiscuous"  json:"promiscuous"`
	MaxRetries  int    `yaml:"max_retries"  toml:"max_retries"  json:"max_retries"`
	QueueSize   int    `yaml:"queue_size"   toml:"queue_size"   json:"queue_size"`
}

type StatsConfig struct {
	// Interval between interim statistics in stream mode. Zero disables them.
	Interval Duration `yaml:"interval" toml:"interval" json:"interval"`
	Window   Duration `yaml:"window"   toml:"window"   json:"window"`
	TopN     int      `yaml:"top_n"    toml:"top_n"    json:"top_n"`
	Verbose  bool     `yaml:"verbose"  toml:"verbose"  json:"verbose"`
}

type DashboardConfig struct {
	Enabled      bool     `yaml:"enabled"       toml:"enabled"       json:"enabled"`
	Refresh      Duration `yaml:"refresh"       toml:"refresh"       json:"refresh"`
	EveryPackets int      `yaml:"every_packets" toml:"every_packets" json:"every_packets"`
	Recent       int      `yaml:"recent"        toml:"recent"        json:"recent"`
}

type ExportConfig struct {
	JSON       string `yaml:"json"        toml:"json"        json:"json"`
	CSV        string `yaml:"csv"         toml:"csv"         json:"csv"`
	FlushEvery int    `yaml:"flush_every" toml:"flush_every" json:"flush_every"`
	ReportHTML string `yaml:"report_html" toml:"report_html" json:"report_html"`
}

type LoggingConfig struct {
	Debug bool   `yaml:"debug" toml:"debug" json:"debug"`
	File  string `yaml:"file"  toml:"file"  json:"file"`
}

type PublishConfig struct {
	URL      string `yaml:"url"      toml:"url"      json:"url"`
	Subject  string `yaml:"subject"  toml:"subject"  json:"subject"`
	Encoding string `yaml:"encoding" toml:"encoding" json:"encoding"`
}

// Config is the full run configuration. File values are applied over Default
// and command-line flags are applied last.
type Config struct {
	Capture   CaptureConfig   `yaml:"capture"   toml:"capture"   json:"capture"`
	Stats     StatsConfig     `yaml:"stats"     toml:"stats"     json:"stats"`
	Dashboard DashboardConfig `yaml:"dashboard" toml:"dashboard" json:"dashboard"`
	Export    ExportConfig    `yaml:"export"    toml:"export"    json:"export"`
	Logging   LoggingConfig   `yaml:"logging"   toml:"logging"   json:"logging"`
	Publish   PublishConfig   `yaml:"publish"   toml:"publish"   json:"publish"`
}

func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			SnapLen:     65535,
			Promiscuous: true,
			MaxRetries:  5,
			QueueSize:   1024,
		},
		Stats: StatsConfig{
			Window: Duration{time.Second},
			TopN:   5,
		},
		Dashboard: DashboardConfig{
			Refresh:      Duration{time.Second},
			EveryPackets: 50,
			Recent:       5,
		},
		Export: ExportConfig{
			FlushEvery: export.DefaultFlushEvery,
		},
		Publish: PublishConfig{
			Subject:  publish.DefaultSubject,
			Encoding: string(publish.EncodingJSON),
		},
	}
}

// Load reads path over the defaults. The format follows the file extension.
func Load(path string) (*Config, error) {
	cfg := Default()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("error parsing toml config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("error parsing yaml config %s: %w", path, err)
		}
	case ".json":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("error parsing json config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	return cfg, nil
}

// Filter returns the validated capture filter.
func (c *Config) Filter() (pipeline.Filter, error) {
	return pipeline.ParseFilter(c.Capture.Protocol, c.Capture.Port)
}

// Validate checks the settings that cannot be checked per flag.
func (c *Config) Validate() error {
	var errs []error

	switch {
	case c.Capture.Interface == "" && c.Capture.File == "":
		errs = append(errs, errors.New("an interface (--interface) or a capture file (--read) is required"))
	case c.Capture.Interface != "" && c.Capture.File != "":
		errs = append(errs, errors.New("--interface and --read are mutually exclusive"))
	}

	if _, err := c.Filter(); err != nil {
		errs = append(errs, err)
	}

	if c.Stats.TopN <= 0 {
		errs = append(errs, fmt.Errorf("stats.top_n must be positive, got %d", c.Stats.TopN))
	}
	if c.Dashboard.Recent < 0 || c.Dashboard.EveryPackets < 0 {
		errs = append(errs, errors.New("dashboard.recent and dashboard.every_packets must not be negative"))
	}
	if c.Export.FlushEvery <= 0 {
		errs = append(errs, fmt.Errorf("export.flush_every must be positive, got %d", c.Export.FlushEvery))
	}
	if c.Export.JSON != "" && c.Export.JSON == c.Export.CSV {
		errs = append(errs, fmt.Errorf("json and csv exports share the path %s", c.Export.JSON))
	}

	switch publish.Encoding(c.Publish.Encoding) {
	case publish.EncodingJSON, publish.EncodingProto:
	default:
		errs = append(errs, fmt.Errorf("unknown publish encoding %q", c.Publish.Encoding))
	}

	return errors.Join(errs...)
}
