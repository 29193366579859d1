// internal/alerts/rule.go
// Package alerts evaluates declarative threshold rules against each tick's
// metric snapshot and keeps the cumulative pass/fail history the final
// report and the process exit code are derived from.
package alerts

import (
	"strconv"
	"strings"

	"github.com/Spin-gaming/webrtcperf/internal/stats"
)

// CheckKey selects which statistic of a metric's distribution a rule value
// is checked against.
type CheckKey string

const (
	CheckLength CheckKey = "length"
	CheckSum    CheckKey = "sum"
	CheckMean   CheckKey = "mean"
	CheckStdDev CheckKey = "stddev"
	CheckP5     CheckKey = "p5"
	CheckP95    CheckKey = "p95"
	CheckMin    CheckKey = "min"
	CheckMax    CheckKey = "max"
)

// CheckKeys lists every valid check key.
var CheckKeys = []CheckKey{
	CheckLength, CheckSum, CheckMean, CheckStdDev,
	CheckP5, CheckP95, CheckMin, CheckMax,
}

// statValue extracts the statistic selected by key from a snapshot.
func statValue(sn stats.Snapshot, key CheckKey) float64 {
	switch key {
	case CheckLength:
		return float64(sn.Count)
	case CheckSum:
		return sn.Sum
	case CheckMean:
		return sn.Mean
	case CheckStdDev:
		return sn.StdDev
	case CheckP5:
		return sn.P5
	case CheckP95:
		return sn.P95
	case CheckMin:
		return sn.Min
	case CheckMax:
		return sn.Max
	default:
		return 0
	}
}

// RuleValue is one threshold variant of a rule check. Comparison operators
// define pass/fail, the activation window bounds when the check applies
// (seconds since engine start), and skip predicates exclude known-transient
// values from evaluation entirely.
type RuleValue struct {
	Eq  *float64 `json:"$eq,omitempty"`
	Gt  *float64 `json:"$gt,omitempty"`
	Gte *float64 `json:"$gte,omitempty"`
	Lt  *float64 `json:"$lt,omitempty"`
	Lte *float64 `json:"$lte,omitempty"`

	After  *float64 `json:"$after,omitempty"`
	Before *float64 `json:"$before,omitempty"`

	SkipLt  *float64 `json:"$skip_lt,omitempty"`
	SkipLte *float64 `json:"$skip_lte,omitempty"`
	SkipGt  *float64 `json:"$skip_gt,omitempty"`
	SkipGte *float64 `json:"$skip_gte,omitempty"`
}

// hasComparison reports whether at least one comparison operator is set.
func (rv RuleValue) hasComparison() bool {
	return rv.Eq != nil || rv.Gt != nil || rv.Gte != nil || rv.Lt != nil || rv.Lte != nil
}

// inWindow reports whether the check applies at the given elapsed seconds.
func (rv RuleValue) inWindow(elapsed float64) bool {
	if rv.After != nil && elapsed < *rv.After {
		return false
	}
	if rv.Before != nil && elapsed > *rv.Before {
		return false
	}
	return true
}

// skipped reports whether any skip predicate excludes the value.
func (rv RuleValue) skipped(value float64) bool {
	if rv.SkipLt != nil && value < *rv.SkipLt {
		return true
	}
	if rv.SkipLte != nil && value <= *rv.SkipLte {
		return true
	}
	if rv.SkipGt != nil && value > *rv.SkipGt {
		return true
	}
	if rv.SkipGte != nil && value >= *rv.SkipGte {
		return true
	}
	return false
}

// describe renders the variant as the stable condition string used to key
// its report, e.g. "$lt 100 $after 60".
func (rv RuleValue) describe() string {
	var parts []string
	add := func(op string, v *float64) {
		if v != nil {
			parts = append(parts, op+" "+strconv.FormatFloat(*v, 'g', -1, 64))
		}
	}
	add("$eq", rv.Eq)
	add("$gt", rv.Gt)
	add("$gte", rv.Gte)
	add("$lt", rv.Lt)
	add("$lte", rv.Lte)
	add("$after", rv.After)
	add("$before", rv.Before)
	add("$skip_lt", rv.SkipLt)
	add("$skip_lte", rv.SkipLte)
	add("$skip_gt", rv.SkipGt)
	add("$skip_gte", rv.SkipGte)
	return strings.Join(parts, " ")
}

// Rule is one declarative alert rule bound to a catalog metric.
type Rule struct {
	Metric string
	// Tags group rules for the per-tag severity scores.
	Tags []string
	// FailPercentile is the percentile of the fail-amount distribution
	// reported as the rule's headline severity. Defaults to 95.
	FailPercentile float64
	Checks         map[CheckKey][]RuleValue
}

// DefaultFailPercentile is applied when a rule omits failPercentile.
const DefaultFailPercentile = 95
