// internal/collector/value.go
package collector

import "fmt"

// Labels identifies the entity a labeled sample belongs to.
type Labels struct {
	Host            string
	Codec           string
	ParticipantName string
	TrackID         string
	PageIndex       int
}

// CompositeKey returns the string identifying the (participant, track) pair
// for per-entity point samples.
func (l Labels) CompositeKey() string {
	return l.ParticipantName + "_" + l.TrackID
}

// HostKey returns the host bucket for this sample. Samples without a host
// label all land in the "unknown" bucket.
func (l Labels) HostKey() string {
	if l.Host == "" {
		return "unknown"
	}
	return l.Host
}

// Value is the tagged union a session reports per metric per tick: either a
// single scalar, a number per labeled entity, or a string per labeled
// entity. Exactly one variant is populated, matching the metric's declared
// MetricKind.
type Value struct {
	Kind        MetricKind
	Scalar      float64
	Labeled     map[Labels]float64
	Categorical map[Labels]string
}

// ScalarValue wraps a plain number.
func ScalarValue(v float64) Value {
	return Value{Kind: KindScalar, Scalar: v}
}

// LabeledValue wraps a number per labeled entity.
func LabeledValue(m map[Labels]float64) Value {
	return Value{Kind: KindLabeled, Labeled: m}
}

// CategoricalValue wraps a string per labeled entity.
func CategoricalValue(m map[Labels]string) Value {
	return Value{Kind: KindCategorical, Categorical: m}
}

func (v Value) String() string {
	switch v.Kind {
	case KindScalar:
		return fmt.Sprintf("scalar(%v)", v.Scalar)
	case KindLabeled:
		return fmt.Sprintf("labeled(%d entries)", len(v.Labeled))
	case KindCategorical:
		return fmt.Sprintf("categorical(%d entries)", len(v.Categorical))
	default:
		return "invalid"
	}
}
