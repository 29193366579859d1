// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting the harness
// configuration. Configuration errors are fatal at construction time: the
// engine refuses to start rather than run with undefined behavior.
package appconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Spin-gaming/webrtcperf/internal/collector"
)

const (
	// DefaultConfigPath is the default path to the configuration file.
	DefaultConfigPath = "config/config.json"
	// defaultIntervalSeconds is the collection period applied when the
	// config omits it.
	defaultIntervalSeconds = 10
	// defaultPrometheusPrefix namespaces every exported series.
	defaultPrometheusPrefix = "webrtcperf"
	// defaultFailPercentile is the engine-wide percentile for tag scores.
	defaultFailPercentile = 95
)

// Config is the top-level harness configuration.
type Config struct {
	// IntervalSeconds is the collection period.
	IntervalSeconds int `json:"intervalSeconds" mapstructure:"intervalSeconds"`
	// RTCStatsTimeoutSeconds is how long externally pushed distributions
	// keep contributing. Must be at least one interval.
	RTCStatsTimeoutSeconds int `json:"rtcStatsTimeout" mapstructure:"rtcStatsTimeout"`

	// AlertRulesPath points at the declarative alert rules JSON document.
	AlertRulesPath string `json:"alertRules" mapstructure:"alertRules"`
	// FailThreshold is the severity above which the run exits non-zero.
	FailThreshold float64 `json:"failThreshold" mapstructure:"failThreshold"`
	// FailPercentile is the engine-wide percentile for tag scores.
	FailPercentile float64 `json:"failPercentile" mapstructure:"failPercentile"`

	// CustomMetrics extends the built-in metric catalog.
	CustomMetrics []CustomMetric `json:"customMetrics" mapstructure:"customMetrics"`
	// DetailedStats selects which session indexes record per
	// (participant, track) point samples: "true", "false", or an index
	// expression like "0,2,4-6".
	DetailedStats string `json:"detailedStats" mapstructure:"detailedStats"`

	PrometheusGateway string            `json:"prometheusGateway" mapstructure:"prometheusGateway"`
	PrometheusJob     string            `json:"prometheusJob" mapstructure:"prometheusJob"`
	PrometheusPrefix  string            `json:"prometheusPrefix" mapstructure:"prometheusPrefix"`
	PrometheusLabels  map[string]string `json:"prometheusLabels" mapstructure:"prometheusLabels"`

	CSVPath           string `json:"csvPath" mapstructure:"csvPath"`
	AlertReportPath   string `json:"alertReportPath" mapstructure:"alertReportPath"`
	AlertReportFormat string `json:"alertReportFormat" mapstructure:"alertReportFormat"`

	// ListenAddr is where the external stats ingestion endpoint binds.
	// Empty disables the endpoint.
	ListenAddr string `json:"listenAddr" mapstructure:"listenAddr"`

	LogFile string `json:"logFile" mapstructure:"logFile"`
	Debug   bool   `json:"debug" mapstructure:"debug"`

	ConfigPath string `json:"-" mapstructure:"-"`
}

// CustomMetric declares one user-defined catalog metric.
type CustomMetric struct {
	Name string `json:"name" mapstructure:"name"`
	// Kind is "scalar", "labeled", or "categorical". Defaults to labeled.
	Kind string `json:"kind,omitempty" mapstructure:"kind"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.ConfigPath = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the construction-time invariants.
func (c *Config) Validate() error {
	if c.IntervalSeconds < 0 {
		return fmt.Errorf("intervalSeconds must not be negative, got %d", c.IntervalSeconds)
	}
	if c.RTCStatsTimeoutSeconds != 0 && time.Duration(c.RTCStatsTimeoutSeconds)*time.Second < c.Interval() {
		return fmt.Errorf("rtcStatsTimeout (%ds) must be at least the collection interval (%v)",
			c.RTCStatsTimeoutSeconds, c.Interval())
	}
	if c.FailPercentile < 0 || c.FailPercentile > 100 {
		return fmt.Errorf("failPercentile must be within [0, 100], got %v", c.FailPercentile)
	}
	switch c.AlertReportFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("alertReportFormat must be \"text\" or \"json\", got %q", c.AlertReportFormat)
	}
	if _, err := c.MetricDefs(); err != nil {
		return err
	}
	if _, err := ParseSessionMatcher(c.DetailedStats); err != nil {
		return fmt.Errorf("detailedStats: %w", err)
	}
	return nil
}

// Interval returns the collection period, applying the default.
func (c *Config) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return defaultIntervalSeconds * time.Second
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

// RTCStatsTimeout returns the external-entry TTL, defaulting to three
// collection intervals.
func (c *Config) RTCStatsTimeout() time.Duration {
	if c.RTCStatsTimeoutSeconds <= 0 {
		return 3 * c.Interval()
	}
	return time.Duration(c.RTCStatsTimeoutSeconds) * time.Second
}

// EffectiveFailPercentile returns the tag-score percentile, applying the
// default.
func (c *Config) EffectiveFailPercentile() float64 {
	if c.FailPercentile <= 0 || c.FailPercentile > 100 {
		return defaultFailPercentile
	}
	return c.FailPercentile
}

// Prefix returns the Prometheus series prefix, applying the default.
func (c *Config) Prefix() string {
	if p := strings.TrimSpace(c.PrometheusPrefix); p != "" {
		return p
	}
	return defaultPrometheusPrefix
}

// Job returns the Prometheus push job name, applying a default.
func (c *Config) Job() string {
	if j := strings.TrimSpace(c.PrometheusJob); j != "" {
		return j
	}
	return "webrtcperf"
}

// LogFilePath returns the log file location, applying a default.
func (c *Config) LogFilePath() string {
	if path := strings.TrimSpace(c.LogFile); path != "" {
		return path
	}
	return "webrtcperf.log"
}

// MetricDefs converts the custom metric declarations into catalog entries.
func (c *Config) MetricDefs() ([]collector.MetricDef, error) {
	defs := make([]collector.MetricDef, 0, len(c.CustomMetrics))
	for _, m := range c.CustomMetrics {
		if strings.TrimSpace(m.Name) == "" {
			return nil, fmt.Errorf("custom metric with empty name")
		}
		var kind collector.MetricKind
		switch m.Kind {
		case "scalar":
			kind = collector.KindScalar
		case "", "labeled":
			kind = collector.KindLabeled
		case "categorical":
			kind = collector.KindCategorical
		default:
			return nil, fmt.Errorf("custom metric %q: unknown kind %q", m.Name, m.Kind)
		}
		defs = append(defs, collector.MetricDef{Name: m.Name, Kind: kind})
	}
	return defs, nil
}

// DetailedStatsMatcher returns the per-session-index matcher for detailed
// stats enablement. Validate has already checked the expression.
func (c *Config) DetailedStatsMatcher() SessionMatcher {
	m, err := ParseSessionMatcher(c.DetailedStats)
	if err != nil {
		return SessionMatcher{}
	}
	return m
}
