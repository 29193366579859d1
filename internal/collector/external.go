// internal/collector/external.go
package collector

import (
	"fmt"
	"time"
)

// RawDistribution carries the raw per-metric samples pushed by a remote
// collector instance, bucketed the same way a local tick buckets them.
type RawDistribution struct {
	All                   []float64            `json:"all"`
	ByHost                map[string][]float64 `json:"byHost"`
	ByCodec               map[string][]float64 `json:"byCodec"`
	ByParticipantAndTrack map[string]float64   `json:"byParticipantAndTrack"`
}

// ExternalConfig describes the remote run whose distributions were pushed.
type ExternalConfig struct {
	URL   string `json:"url"`
	Pages int    `json:"pages"`
}

// ExternalStats is one push from a remote collector instance.
type ExternalStats struct {
	RawDistributions map[string]RawDistribution `json:"rawDistributions"`
	Config           ExternalConfig             `json:"config"`
}

// Validate rejects pushes that could not have been produced by a well-formed
// remote collector.
func (e ExternalStats) Validate() error {
	if len(e.RawDistributions) == 0 {
		return fmt.Errorf("external stats carry no distributions")
	}
	return nil
}

// externalEntry is one remote push held until its TTL expires. Owned
// exclusively by the Collector.
type externalEntry struct {
	addedTime time.Time
	stats     ExternalStats
}
