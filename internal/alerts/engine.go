// internal/alerts/engine.go
package alerts

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Spin-gaming/webrtcperf/internal/collector"
	"github.com/Spin-gaming/webrtcperf/internal/logging"
	"github.com/Spin-gaming/webrtcperf/internal/stats"
)

// Report is the running pass/fail history for one (metric, condition) pair.
// Reports are created lazily on first evaluation and live until the engine
// stops.
type Report struct {
	Metric    string
	CheckKey  CheckKey
	Condition string
	Tags      []string

	// TotalFails counts every failing evaluation.
	TotalFails int
	// TotalFailsTime accrues seconds only across consecutive failing
	// evaluations; an isolated single-tick failure contributes none.
	TotalFailsTime float64
	// TotalFailsTimePercent is TotalFailsTime relative to the elapsed run
	// time, rounded.
	TotalFailsTimePercent int
	// LastFailedAt is the zero time while the check is passing.
	LastFailedAt time.Time
	// FailAmountPercentile is the rule's configured percentile of the
	// fail-amount distribution: the headline severity, robust to isolated
	// spikes.
	FailAmountPercentile float64

	failPercentile float64
	values         *stats.Summary
	failAmounts    *stats.Summary
}

// ValueCount returns how many evaluations fed this report.
func (r *Report) ValueCount() int {
	return r.values.Count()
}

// ValueMean returns the mean of the evaluated check values.
func (r *Report) ValueMean() float64 {
	return r.values.Mean()
}

// Engine evaluates the configured rules against every snapshot and owns the
// report map. It is safe for use from the single tick goroutine plus
// on-demand readers.
type Engine struct {
	mu             sync.Mutex
	rules          []Rule
	failPercentile float64
	startTime      time.Time
	reports        map[string]*Report
}

// NewEngine builds an engine over the given rules. failPercentile is the
// engine-wide percentile used for tag scores; values outside (0, 100] fall
// back to the default.
func NewEngine(rules []Rule, failPercentile float64) *Engine {
	if failPercentile <= 0 || failPercentile > 100 {
		failPercentile = DefaultFailPercentile
	}
	return &Engine{
		rules:          rules,
		failPercentile: failPercentile,
		reports:        make(map[string]*Report),
	}
}

// Start marks the beginning of the run; activation windows and fail-time
// percentages are measured from this instant. Idempotent.
func (e *Engine) Start(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.startTime.IsZero() {
		return
	}
	e.startTime = now
}

// Stop clears all accumulated history. The engine can be started again for
// a fresh run.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startTime = time.Time{}
	e.reports = make(map[string]*Report)
}

// Evaluate runs every configured rule against the snapshot. Checks outside
// their activation window, excluded by a skip predicate, or targeting an
// empty distribution (except length checks) leave their reports untouched.
func (e *Engine) Evaluate(snap collector.Snapshot, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startTime.IsZero() {
		return
	}
	elapsed := now.Sub(e.startTime).Seconds()

	for _, rule := range e.rules {
		metric, ok := snap.Metrics[rule.Metric]
		if !ok {
			continue
		}
		for _, key := range CheckKeys {
			values, ok := rule.Checks[key]
			if !ok {
				continue
			}
			// length is meaningful at zero; every other statistic of an
			// empty distribution would false-alarm.
			if key != CheckLength && metric.All.Count == 0 {
				continue
			}
			checkValue := statValue(metric.All, key)
			for _, rv := range values {
				e.evaluate(rule, key, rv, checkValue, elapsed, now)
			}
		}
	}
}

// evaluate applies one rule variant. Caller holds e.mu.
func (e *Engine) evaluate(rule Rule, key CheckKey, rv RuleValue, value, elapsed float64, now time.Time) {
	if !rv.inWindow(elapsed) {
		return
	}
	if rv.skipped(value) {
		return
	}

	failed, threshold := rv.check(value)
	failAmount := 0.0
	if failed {
		failAmount = computeFailAmount(value, threshold)
	}

	r := e.report(rule, key, rv)
	if failed {
		r.TotalFails++
		if !r.LastFailedAt.IsZero() {
			r.TotalFailsTime += now.Sub(r.LastFailedAt).Seconds()
		}
		r.LastFailedAt = now
		logging.LogEvent("[ALERT] %s %s: value %v failed (%s), fail amount %.1f",
			rule.Metric, key, value, r.Condition, failAmount)
	} else {
		r.LastFailedAt = time.Time{}
	}
	if elapsed > 0 {
		r.TotalFailsTimePercent = int(math.Round(100 * r.TotalFailsTime / elapsed))
	}
	r.values.Push(value)
	r.failAmounts.Push(failAmount)
	r.FailAmountPercentile = r.failAmounts.Percentile(r.failPercentile)
}

// check returns whether the value violates the variant and the most
// specific violated threshold.
func (rv RuleValue) check(value float64) (failed bool, threshold float64) {
	if rv.Eq != nil {
		return value != *rv.Eq, *rv.Eq
	}
	if rv.Lt != nil && value >= *rv.Lt {
		return true, *rv.Lt
	}
	if rv.Lte != nil && value > *rv.Lte {
		return true, *rv.Lte
	}
	if rv.Gt != nil && value <= *rv.Gt {
		return true, *rv.Gt
	}
	if rv.Gte != nil && value < *rv.Gte {
		return true, *rv.Gte
	}
	return false, 0
}

// computeFailAmount normalizes a violation into the 0-100 severity range.
func computeFailAmount(value, threshold float64) float64 {
	if threshold != 0 {
		return 100 * math.Min(1, math.Abs(value-threshold)/math.Abs(threshold))
	}
	return 100 * math.Min(1, math.Abs(value))
}

func (e *Engine) report(rule Rule, key CheckKey, rv RuleValue) *Report {
	id := rule.Metric + " " + string(key) + " " + rv.describe()
	r, ok := e.reports[id]
	if !ok {
		r = &Report{
			Metric:         rule.Metric,
			CheckKey:       key,
			Condition:      id,
			Tags:           rule.Tags,
			failPercentile: rule.FailPercentile,
			values:         stats.NewSummary(),
			failAmounts:    stats.NewSummary(),
		}
		e.reports[id] = r
	}
	return r
}

// Reports returns every report sorted by condition string.
func (e *Engine) Reports() []*Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Report, 0, len(e.reports))
	for _, r := range e.reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Condition < out[j].Condition })
	return out
}

// TagScores recomputes, for every tag, the engine-wide percentile of the
// member reports' fail-amount percentiles. A tag with no reports scores 0.
func (e *Engine) TagScores() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	byTag := make(map[string][]float64)
	for _, r := range e.reports {
		for _, tag := range r.Tags {
			byTag[tag] = append(byTag[tag], r.FailAmountPercentile)
		}
	}
	scores := make(map[string]float64, len(byTag))
	for tag, amounts := range byTag {
		scores[tag] = stats.Percentile(amounts, e.failPercentile)
	}
	return scores
}

// ExitCode decides the process exit status: 1 when any tag score or any
// report's headline severity exceeds threshold, else 0. Alerting
// correctness never depends on export availability, so this consults the
// accumulated history only.
func (e *Engine) ExitCode(threshold float64) int {
	for _, score := range e.TagScores() {
		if score > threshold {
			return 1
		}
	}
	for _, r := range e.Reports() {
		if r.FailAmountPercentile > threshold {
			return 1
		}
	}
	return 0
}
