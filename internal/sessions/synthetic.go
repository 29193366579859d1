// internal/sessions/synthetic.go
// Package sessions provides session implementations for the collector. Real
// browser sessions live outside this module and register through the same
// interface; the synthetic session here drives the full aggregation
// pipeline without any browser, for smoke tests and bring-up.
package sessions

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/Spin-gaming/webrtcperf/internal/collector"
)

// Synthetic simulates one browser session: each pull reports jittered but
// plausible samples for a handful of catalog metrics.
type Synthetic struct {
	id       string
	index    int
	detailed bool

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthetic builds the synthetic session at the given index.
func NewSynthetic(index int, detailed bool) *Synthetic {
	return &Synthetic{
		id:       fmt.Sprintf("synthetic-%d", index),
		index:    index,
		detailed: detailed,
		rng:      rand.New(rand.NewSource(int64(index) + 1)),
	}
}

// ID implements collector.Session.
func (s *Synthetic) ID() string { return s.id }

// DetailedStats implements collector.Session.
func (s *Synthetic) DetailedStats() bool { return s.detailed }

// CollectMetrics implements collector.Session.
func (s *Synthetic) CollectMetrics(ctx context.Context) (map[string]collector.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	jitter := func(base, spread float64) float64 {
		return base + (s.rng.Float64()-0.5)*spread
	}

	host := fmt.Sprintf("synthetic-host-%d", s.index%2)
	recv := make(map[collector.Labels]float64, 2)
	codecs := make(map[collector.Labels]string, 2)
	for p := 0; p < 2; p++ {
		labels := collector.Labels{
			Host:            host,
			ParticipantName: fmt.Sprintf("participant-%d-%d", s.index, p),
			TrackID:         fmt.Sprintf("track-%d", p),
			PageIndex:       s.index,
		}
		recv[labels] = jitter(2_000_000, 500_000)
		codecs[labels] = "VP8"
	}

	return map[string]collector.Value{
		"pages":  collector.ScalarValue(1),
		"errors": collector.ScalarValue(0),
		"cpu": collector.LabeledValue(map[collector.Labels]float64{
			{Host: host, PageIndex: s.index}: jitter(40, 20),
		}),
		"memory": collector.LabeledValue(map[collector.Labels]float64{
			{Host: host, PageIndex: s.index}: jitter(500, 100),
		}),
		"videoRecvBitrates": collector.LabeledValue(recv),
		"videoRecvCodec":    collector.CategoricalValue(codecs),
	}, nil
}
