// internal/alerts/engine_test.go
package alerts

import (
	"math"
	"testing"
	"time"

	"github.com/Spin-gaming/webrtcperf/internal/collector"
	"github.com/Spin-gaming/webrtcperf/internal/stats"
)

func f(v float64) *float64 { return &v }

// snapWith builds a snapshot where the named metric's "all" distribution
// reports the given statistics.
func snapWith(metric string, all stats.Snapshot) collector.Snapshot {
	return collector.Snapshot{
		Metrics: map[string]collector.MetricSnapshot{
			metric: {All: all},
		},
	}
}

func singleReport(t *testing.T, e *Engine) *Report {
	t.Helper()
	reports := e.Reports()
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	return reports[0]
}

// TestEngineFailContinuity verifies the continuity rule for fail time:
// three consecutive failing ticks 10s apart yield totalFails=3 and
// totalFailsTime of about 20s, because the gap before the first failure is
// not counted.
func TestEngineFailContinuity(t *testing.T) {
	rules := []Rule{{
		Metric:         "videoRecvBitrates",
		FailPercentile: DefaultFailPercentile,
		Checks:         map[CheckKey][]RuleValue{CheckP95: {{Lt: f(100)}}},
	}}
	e := NewEngine(rules, DefaultFailPercentile)
	t0 := time.Now()
	e.Start(t0)

	failing := snapWith("videoRecvBitrates", stats.Snapshot{Count: 5, P95: 150})
	for _, offset := range []time.Duration{10, 20, 30} {
		e.Evaluate(failing, t0.Add(offset*time.Second))
	}

	r := singleReport(t, e)
	if r.TotalFails != 3 {
		t.Fatalf("TotalFails = %d, want 3", r.TotalFails)
	}
	if math.Abs(r.TotalFailsTime-20) > 0.5 {
		t.Fatalf("TotalFailsTime = %v, want about 20", r.TotalFailsTime)
	}
	if r.LastFailedAt.IsZero() {
		t.Fatal("LastFailedAt zeroed while still failing")
	}
}

// TestEngineContinuityBrokenByPass verifies that a passing middle tick
// breaks the continuity chain: totalFails counts both failures but no
// continuous duration accrues.
func TestEngineContinuityBrokenByPass(t *testing.T) {
	rules := []Rule{{
		Metric:         "videoRecvBitrates",
		FailPercentile: DefaultFailPercentile,
		Checks:         map[CheckKey][]RuleValue{CheckP95: {{Lt: f(100)}}},
	}}
	e := NewEngine(rules, DefaultFailPercentile)
	t0 := time.Now()
	e.Start(t0)

	failing := snapWith("videoRecvBitrates", stats.Snapshot{Count: 5, P95: 150})
	passing := snapWith("videoRecvBitrates", stats.Snapshot{Count: 5, P95: 50})

	e.Evaluate(failing, t0.Add(10*time.Second))
	e.Evaluate(passing, t0.Add(20*time.Second))
	e.Evaluate(failing, t0.Add(30*time.Second))

	r := singleReport(t, e)
	if r.TotalFails != 2 {
		t.Fatalf("TotalFails = %d, want 2", r.TotalFails)
	}
	if r.TotalFailsTime != 0 {
		t.Fatalf("TotalFailsTime = %v, want 0 after continuity break", r.TotalFailsTime)
	}
}

// TestEngineFailAmount verifies the normalized severity of single
// violations: 150 against $lt 100 and 50 against $gt 100 both miss the
// threshold by half of it, so both score 50.
func TestEngineFailAmount(t *testing.T) {
	cases := []struct {
		name  string
		rv    RuleValue
		value float64
		want  float64
	}{
		{"upper bound", RuleValue{Lt: f(100)}, 150, 50},
		{"lower bound", RuleValue{Gt: f(100)}, 50, 50},
		{"capped at 100", RuleValue{Lt: f(100)}, 500, 100},
		{"zero threshold", RuleValue{Eq: f(0)}, 0.25, 25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rules := []Rule{{
				Metric:         "cpu",
				FailPercentile: DefaultFailPercentile,
				Checks:         map[CheckKey][]RuleValue{CheckMean: {tc.rv}},
			}}
			e := NewEngine(rules, DefaultFailPercentile)
			t0 := time.Now()
			e.Start(t0)
			e.Evaluate(snapWith("cpu", stats.Snapshot{Count: 1, Mean: tc.value}), t0.Add(10*time.Second))

			r := singleReport(t, e)
			if math.Abs(r.FailAmountPercentile-tc.want) > 1e-9 {
				t.Fatalf("FailAmountPercentile = %v, want %v", r.FailAmountPercentile, tc.want)
			}
		})
	}
}

// TestEngineActivationWindow verifies that a check with $after records
// nothing before its activation time, however extreme the value, and starts
// recording once inside the window. $before behaves symmetrically.
func TestEngineActivationWindow(t *testing.T) {
	rules := []Rule{{
		Metric:         "cpu",
		FailPercentile: DefaultFailPercentile,
		Checks:         map[CheckKey][]RuleValue{CheckMean: {{Lt: f(10), After: f(60), Before: f(120)}}},
	}}
	e := NewEngine(rules, DefaultFailPercentile)
	t0 := time.Now()
	e.Start(t0)

	extreme := snapWith("cpu", stats.Snapshot{Count: 1, Mean: 1e9})

	e.Evaluate(extreme, t0.Add(30*time.Second))
	if got := len(e.Reports()); got != 0 {
		t.Fatalf("check evaluated before $after: %d reports", got)
	}

	e.Evaluate(extreme, t0.Add(90*time.Second))
	r := singleReport(t, e)
	if r.TotalFails != 1 {
		t.Fatalf("TotalFails = %d, want 1 inside the window", r.TotalFails)
	}

	e.Evaluate(extreme, t0.Add(180*time.Second))
	if r.TotalFails != 1 {
		t.Fatalf("check evaluated after $before: TotalFails = %d", r.TotalFails)
	}
}

// TestEngineSkipPredicates verifies that matching $skip_* predicates
// exclude the evaluation entirely, leaving history unpolluted.
func TestEngineSkipPredicates(t *testing.T) {
	rules := []Rule{{
		Metric:         "videoRecvBitrates",
		FailPercentile: DefaultFailPercentile,
		Checks: map[CheckKey][]RuleValue{
			CheckMean: {{Gt: f(1000), SkipLte: f(0)}},
		},
	}}
	e := NewEngine(rules, DefaultFailPercentile)
	t0 := time.Now()
	e.Start(t0)

	// Zero bitrate before ramp-up is a known-transient state, not a fail.
	e.Evaluate(snapWith("videoRecvBitrates", stats.Snapshot{Count: 1, Mean: 0}), t0.Add(10*time.Second))
	if got := len(e.Reports()); got != 0 {
		t.Fatalf("skipped evaluation still updated a report: %d reports", got)
	}

	e.Evaluate(snapWith("videoRecvBitrates", stats.Snapshot{Count: 1, Mean: 500}), t0.Add(20*time.Second))
	r := singleReport(t, e)
	if r.TotalFails != 1 || r.ValueCount() != 1 {
		t.Fatalf("unskipped failing evaluation not recorded: %+v", r)
	}
}

// TestEngineEmptyDistribution verifies that statistics of an empty
// distribution are not evaluated, while length checks still are.
func TestEngineEmptyDistribution(t *testing.T) {
	rules := []Rule{
		{
			Metric:         "videoRecvBitrates",
			FailPercentile: DefaultFailPercentile,
			Checks:         map[CheckKey][]RuleValue{CheckMean: {{Gt: f(100)}}},
		},
		{
			Metric:         "pages",
			FailPercentile: DefaultFailPercentile,
			Checks:         map[CheckKey][]RuleValue{CheckLength: {{Gt: f(0)}}},
		},
	}
	e := NewEngine(rules, DefaultFailPercentile)
	t0 := time.Now()
	e.Start(t0)

	snap := collector.Snapshot{Metrics: map[string]collector.MetricSnapshot{
		"videoRecvBitrates": {},
		"pages":             {},
	}}
	e.Evaluate(snap, t0.Add(10*time.Second))

	r := singleReport(t, e)
	if r.Metric != "pages" || r.TotalFails != 1 {
		t.Fatalf("expected only the length check to evaluate, got %+v", r)
	}
}

// TestEngineTagScores verifies tag scoring: one passing and one failing
// rule share the "perf" tag, so with fail-amount percentiles 0 and 100 the
// engine-wide 95th percentile interpolates to 95.
func TestEngineTagScores(t *testing.T) {
	rules := []Rule{
		{
			Metric:         "cpu",
			Tags:           []string{"perf"},
			FailPercentile: DefaultFailPercentile,
			Checks:         map[CheckKey][]RuleValue{CheckMean: {{Lt: f(100)}}},
		},
		{
			Metric:         "memory",
			Tags:           []string{"perf"},
			FailPercentile: DefaultFailPercentile,
			Checks:         map[CheckKey][]RuleValue{CheckMean: {{Lt: f(100)}}},
		},
	}
	e := NewEngine(rules, 95)
	t0 := time.Now()
	e.Start(t0)

	snap := collector.Snapshot{Metrics: map[string]collector.MetricSnapshot{
		"cpu":    {All: stats.Snapshot{Count: 1, Mean: 50}},  // passes, amount 0
		"memory": {All: stats.Snapshot{Count: 1, Mean: 200}}, // fails, amount 100
	}}
	e.Evaluate(snap, t0.Add(10*time.Second))

	scores := e.TagScores()
	if got := scores["perf"]; math.Abs(got-95) > 1e-9 {
		t.Fatalf("tag score = %v, want 95", got)
	}

	if got := e.ExitCode(50); got != 1 {
		t.Fatalf("ExitCode(50) = %d, want 1", got)
	}
	if got := e.ExitCode(100); got != 0 {
		t.Fatalf("ExitCode(100) = %d, want 0", got)
	}
}

// TestEngineStopClearsHistory verifies that Stop clears the report map and
// that a restarted engine accumulates from scratch.
func TestEngineStopClearsHistory(t *testing.T) {
	rules := []Rule{{
		Metric:         "cpu",
		FailPercentile: DefaultFailPercentile,
		Checks:         map[CheckKey][]RuleValue{CheckMean: {{Lt: f(10)}}},
	}}
	e := NewEngine(rules, DefaultFailPercentile)
	t0 := time.Now()
	e.Start(t0)
	e.Evaluate(snapWith("cpu", stats.Snapshot{Count: 1, Mean: 99}), t0.Add(10*time.Second))
	if len(e.Reports()) != 1 {
		t.Fatal("report not created")
	}

	e.Stop()
	if len(e.Reports()) != 0 {
		t.Fatal("Stop did not clear reports")
	}

	e.Start(t0.Add(time.Hour))
	e.Evaluate(snapWith("cpu", stats.Snapshot{Count: 1, Mean: 99}), t0.Add(time.Hour+10*time.Second))
	r := singleReport(t, e)
	if r.TotalFails != 1 {
		t.Fatalf("restarted engine carried stale history: %+v", r)
	}
}

// TestEngineJSONReport verifies the structured report shape consumed by the
// report writer.
func TestEngineJSONReport(t *testing.T) {
	rules := []Rule{{
		Metric:         "cpu",
		Tags:           []string{"system"},
		FailPercentile: DefaultFailPercentile,
		Checks:         map[CheckKey][]RuleValue{CheckMean: {{Lt: f(100)}}},
	}}
	e := NewEngine(rules, DefaultFailPercentile)
	t0 := time.Now()
	e.Start(t0)
	e.Evaluate(snapWith("cpu", stats.Snapshot{Count: 1, Mean: 150}), t0.Add(10*time.Second))

	report := e.JSONReport()
	if len(report.Reports) != 1 {
		t.Fatalf("got %d report entries, want 1", len(report.Reports))
	}
	entry, ok := report.Reports["cpu mean $lt 100"]
	if !ok {
		t.Fatalf("missing expected condition key, got %v", report.Reports)
	}
	if entry.TotalFails != 1 || entry.Count != 1 || entry.ValueAverage != 150 {
		t.Fatalf("entry = %+v", entry)
	}
	if _, ok := report.Tags["system"]; !ok {
		t.Fatal("tag score missing from structured report")
	}
}
