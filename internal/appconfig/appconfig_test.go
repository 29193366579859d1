// internal/appconfig/appconfig_test.go
package appconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoad tests the Load function across valid and invalid configuration
// files. A valid file yields defaults for omitted values; a TTL below the
// interval, a bad report format, and a malformed detailedStats expression
// must each refuse to load. This uses temporary files to simulate the
// different configuration scenarios.
func TestLoad(t *testing.T) {
	write := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	cfg, err := Load(write(t, `{
		"intervalSeconds": 5,
		"prometheusGateway": "http://localhost:9091",
		"customMetrics": [{"name": "loginDelay"}]
	}`))
	if err != nil {
		t.Fatalf("Load() with valid config failed: %v", err)
	}
	if cfg.Interval() != 5*time.Second {
		t.Fatalf("Interval() = %v, want 5s", cfg.Interval())
	}
	if cfg.RTCStatsTimeout() != 15*time.Second {
		t.Fatalf("RTCStatsTimeout() default = %v, want 3 intervals", cfg.RTCStatsTimeout())
	}
	if cfg.Prefix() != "webrtcperf" {
		t.Fatalf("Prefix() default = %q", cfg.Prefix())
	}
	if cfg.EffectiveFailPercentile() != 95 {
		t.Fatalf("EffectiveFailPercentile() default = %v", cfg.EffectiveFailPercentile())
	}
	defs, err := cfg.MetricDefs()
	if err != nil || len(defs) != 1 || defs[0].Name != "loginDelay" {
		t.Fatalf("MetricDefs() = %v, %v", defs, err)
	}

	invalid := []struct {
		name    string
		content string
	}{
		{"ttl below interval", `{"intervalSeconds": 30, "rtcStatsTimeout": 10}`},
		{"bad report format", `{"alertReportFormat": "xml"}`},
		{"bad detailed stats", `{"detailedStats": "0,two"}`},
		{"bad custom metric kind", `{"customMetrics": [{"name": "x", "kind": "histogram"}]}`},
		{"not json", `{`},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(write(t, tc.content)); err == nil {
				t.Fatalf("Load() accepted %s", tc.content)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("Load() accepted a nonexistent file")
	}
}

// TestParseSessionMatcher verifies the enable-expression grammar: booleans,
// single indexes, comma lists, and inclusive ranges.
func TestParseSessionMatcher(t *testing.T) {
	cases := []struct {
		expr    string
		index   int
		enabled bool
	}{
		{"true", 7, true},
		{"false", 0, false},
		{"", 0, false},
		{"0", 0, true},
		{"0", 1, false},
		{"0,2,4-6", 2, true},
		{"0,2,4-6", 3, false},
		{"0,2,4-6", 5, true},
		{"0,2,4-6", 7, false},
		{" 1 - 3 ", 2, true},
	}
	for _, tc := range cases {
		m, err := ParseSessionMatcher(tc.expr)
		if err != nil {
			t.Fatalf("ParseSessionMatcher(%q) failed: %v", tc.expr, err)
		}
		if got := m.Enabled(tc.index); got != tc.enabled {
			t.Fatalf("matcher %q Enabled(%d) = %v, want %v", tc.expr, tc.index, got, tc.enabled)
		}
	}

	for _, expr := range []string{"1,", "a", "5-2", "-1", "1--2"} {
		if _, err := ParseSessionMatcher(expr); err == nil {
			t.Fatalf("ParseSessionMatcher(%q) accepted a malformed expression", expr)
		}
	}
}
