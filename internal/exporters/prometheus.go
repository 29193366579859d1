// internal/exporters/prometheus.go
package exporters

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/Spin-gaming/webrtcperf/internal/alerts"
	"github.com/Spin-gaming/webrtcperf/internal/collector"
	"github.com/Spin-gaming/webrtcperf/internal/stats"
)

// pushTimeout bounds the gateway round trip so a slow remote cannot delay
// the next tick indefinitely.
const pushTimeout = 5 * time.Second

// PrometheusPusher exports each tick's snapshot and alert state as gauge
// series pushed to a Prometheus push gateway.
type PrometheusPusher struct {
	prefix      string
	constLabels prometheus.Labels
	registry    *prometheus.Registry
	pusher      *push.Pusher

	statGauges   map[string]*prometheus.GaugeVec
	entityGauges map[string]*prometheus.GaugeVec
	alertGauges  map[string]*prometheus.GaugeVec
	tagGauge     *prometheus.GaugeVec
}

// NewPrometheusPusher builds a pusher targeting gatewayURL under the given
// job name. Custom labels are attached to every exported series.
func NewPrometheusPusher(gatewayURL, job, prefix string, customLabels map[string]string) *PrometheusPusher {
	if prefix == "" {
		prefix = "webrtcperf"
	}
	registry := prometheus.NewRegistry()
	p := &PrometheusPusher{
		prefix:       prefix,
		constLabels:  prometheus.Labels(customLabels),
		registry:     registry,
		statGauges:   make(map[string]*prometheus.GaugeVec),
		entityGauges: make(map[string]*prometheus.GaugeVec),
		alertGauges:  make(map[string]*prometheus.GaugeVec),
		pusher: push.New(gatewayURL, job).
			Gatherer(registry).
			Client(&http.Client{Timeout: pushTimeout}),
	}
	p.tagGauge = p.gauge(p.alertGauges, prefix+"_alert_report", []string{"tag", "datetime"})
	return p
}

func (p *PrometheusPusher) gauge(cache map[string]*prometheus.GaugeVec, name string, labels []string) *prometheus.GaugeVec {
	if vec, ok := cache[name]; ok {
		return vec
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        name,
		ConstLabels: p.constLabels,
	}, labels)
	p.registry.MustRegister(vec)
	cache[name] = vec
	return vec
}

// Record loads the tick into the registry: one series per (metric,
// statistic) with host/codec breakouts, per-entity point samples, and the
// alert report state.
func (p *PrometheusPusher) Record(snap collector.Snapshot, reports []*alerts.Report, tagScores map[string]float64) {
	datetime := snap.Timestamp.UTC().Format(time.RFC3339)

	for name, metric := range snap.Metrics {
		base := p.prefix + "_" + sanitizeMetricName(name)
		for _, col := range statColumns {
			vec := p.gauge(p.statGauges, base+"_"+sanitizeMetricName(col), []string{"host", "codec", "datetime"})
			vec.Reset()
			if metric.All.Count > 0 {
				vec.WithLabelValues("", "", datetime).Set(statFor(metric.All, col))
			}
			for host, sn := range metric.ByHost {
				vec.WithLabelValues(host, "", datetime).Set(statFor(sn, col))
			}
			for codec, sn := range metric.ByCodec {
				vec.WithLabelValues("", codec, datetime).Set(statFor(sn, col))
			}
		}

		if len(metric.ByParticipantAndTrack) > 0 {
			vec := p.gauge(p.entityGauges, base, []string{"participantName", "trackId", "datetime"})
			vec.Reset()
			for key, v := range metric.ByParticipantAndTrack {
				participant, track := splitCompositeKey(key)
				vec.WithLabelValues(participant, track, datetime).Set(v)
			}
		}
	}

	// Reset once per tick, not per report: multiple rule variants on the
	// same metric and check share a gauge vec, one series per condition.
	for _, vec := range p.alertGauges {
		vec.Reset()
	}
	for _, r := range reports {
		base := p.prefix + "_alert_" + sanitizeMetricName(r.Metric) + "_" + sanitizeMetricName(string(r.CheckKey))
		for name, value := range map[string]float64{
			base:             r.FailAmountPercentile,
			base + "_report": float64(r.TotalFails),
			base + "_mean":   r.ValueMean(),
		} {
			vec := p.gauge(p.alertGauges, name, []string{"rule", "datetime"})
			vec.WithLabelValues(r.Condition, datetime).Set(value)
		}
	}

	p.tagGauge.Reset()
	for tag, score := range tagScores {
		p.tagGauge.WithLabelValues(tag, datetime).Set(score)
	}
}

// Push sends the recorded series to the gateway, bounded by pushTimeout.
func (p *PrometheusPusher) Push(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()
	return p.pusher.AddContext(ctx)
}

func statFor(sn stats.Snapshot, col string) float64 {
	switch col {
	case "length":
		return float64(sn.Count)
	case "sum":
		return sn.Sum
	case "mean":
		return sn.Mean
	case "stddev":
		return sn.StdDev
	case "5p":
		return sn.P5
	case "95p":
		return sn.P95
	case "min":
		return sn.Min
	case "max":
		return sn.Max
	default:
		return 0
	}
}

func splitCompositeKey(key string) (participant, track string) {
	if i := strings.LastIndex(key, "_"); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

// sanitizeMetricName maps arbitrary metric names onto the Prometheus
// name alphabet.
func sanitizeMetricName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
