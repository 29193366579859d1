// internal/alerts/parse_test.go
package alerts

import (
	"testing"
)

func allowAll(string) bool { return true }

// TestParseRulesValidDocument verifies decoding of a representative rules
// document: scalar and array-of-variants checks, tags, and an explicit
// failPercentile.
func TestParseRulesValidDocument(t *testing.T) {
	doc := []byte(`{
		"videoRecvBitrates": {
			"tags": ["perf", "video"],
			"failPercentile": 90,
			"mean": [
				{"$gt": 100000, "$after": 60, "$skip_lte": 0},
				{"$lt": 10000000}
			],
			"p95": {"$lt": 20000000}
		},
		"cpu": {
			"mean": {"$lt": 90}
		}
	}`)

	rules, err := ParseRules(doc, allowAll)
	if err != nil {
		t.Fatalf("ParseRules() failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}

	// Rules come back sorted by metric name.
	cpu, video := rules[0], rules[1]
	if cpu.Metric != "cpu" || video.Metric != "videoRecvBitrates" {
		t.Fatalf("unexpected rule order: %q, %q", cpu.Metric, video.Metric)
	}

	if cpu.FailPercentile != DefaultFailPercentile {
		t.Fatalf("cpu failPercentile = %v, want default %v", cpu.FailPercentile, DefaultFailPercentile)
	}
	if video.FailPercentile != 90 {
		t.Fatalf("video failPercentile = %v, want 90", video.FailPercentile)
	}
	if len(video.Tags) != 2 || video.Tags[0] != "perf" {
		t.Fatalf("video tags = %v", video.Tags)
	}

	means := video.Checks[CheckMean]
	if len(means) != 2 {
		t.Fatalf("got %d mean variants, want 2", len(means))
	}
	if means[0].Gt == nil || *means[0].Gt != 100000 || means[0].After == nil || *means[0].After != 60 {
		t.Fatalf("first mean variant = %+v", means[0])
	}
	if len(video.Checks[CheckP95]) != 1 {
		t.Fatalf("p95 variants = %v", video.Checks[CheckP95])
	}
}

// TestParseRulesRejections verifies that malformed documents are rejected
// eagerly at load time rather than surfacing as undefined behavior during a
// run.
func TestParseRulesRejections(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"unknown operator", `{"cpu": {"mean": {"$approx": 10}}}`},
		{"unknown check key", `{"cpu": {"median": {"$lt": 10}}}`},
		{"empty rule", `{"cpu": {}}`},
		{"empty rule value", `{"cpu": {"mean": {}}}`},
		{"no comparison operator", `{"cpu": {"mean": {"$after": 60}}}`},
		{"eq combined with bound", `{"cpu": {"mean": {"$eq": 1, "$lt": 10}}}`},
		{"threshold not a number", `{"cpu": {"mean": {"$lt": "fast"}}}`},
		{"failPercentile out of range", `{"cpu": {"failPercentile": 200, "mean": {"$lt": 10}}}`},
		{"not json", `{"cpu": `},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseRules([]byte(tc.doc), allowAll); err == nil {
				t.Fatalf("ParseRules() accepted %s", tc.doc)
			}
		})
	}
}

// TestParseRulesUnknownMetric verifies that rules must target the frozen
// metric catalog.
func TestParseRulesUnknownMetric(t *testing.T) {
	doc := []byte(`{"definitelyNotAMetric": {"mean": {"$lt": 10}}}`)
	known := func(name string) bool { return name == "cpu" }
	if _, err := ParseRules(doc, known); err == nil {
		t.Fatal("ParseRules() accepted a rule for an unknown metric")
	}
}
