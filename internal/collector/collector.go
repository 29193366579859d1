// internal/collector/collector.go
// Package collector implements the per-tick aggregation step: it pulls the
// latest metric samples from every active session, buckets them by host,
// codec and (participant, track), merges in distributions pushed by remote
// collector instances, and emits one immutable snapshot per tick.
package collector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Spin-gaming/webrtcperf/internal/logging"
	"github.com/Spin-gaming/webrtcperf/internal/scheduler"
	"github.com/Spin-gaming/webrtcperf/internal/stats"
)

// Session is the collaborator driving one browser session. The collector
// calls CollectMetrics once per tick; the returned map is keyed by catalog
// metric name.
type Session interface {
	// ID uniquely identifies the session for logging and removal.
	ID() string
	// CollectMetrics returns the session's latest per-tick samples. The
	// context is cancelled when the tick gives up waiting.
	CollectMetrics(ctx context.Context) (map[string]Value, error)
	// DetailedStats reports whether per (participant, track) point samples
	// should be recorded for this session.
	DetailedStats() bool
}

// MetricSnapshot holds the distributions one tick produced for one metric.
// ByParticipantAndTrack is cumulative run-state: it keeps the latest point
// sample per entity rather than a distribution, since per-entity cardinality
// is unbounded and only the newest value is actionable.
type MetricSnapshot struct {
	All                   stats.Snapshot
	ByHost                map[string]stats.Snapshot
	ByCodec               map[string]stats.Snapshot
	ByParticipantAndTrack map[string]float64
}

// AggregateConfig is the run configuration folded across this instance and
// every remote instance that pushed stats during the tick.
type AggregateConfig struct {
	URLs  []string
	Pages int
}

// Snapshot is the immutable result of one tick.
type Snapshot struct {
	Timestamp time.Time
	Metrics   map[string]MetricSnapshot
	Config    AggregateConfig
	Sessions  int
}

// Config parameterizes a Collector.
type Config struct {
	// Interval is the collection period.
	Interval time.Duration
	// RTCStatsTimeout is how long an external push keeps contributing to
	// snapshots. Must be at least Interval.
	RTCStatsTimeout time.Duration
	// CustomMetrics extends the built-in catalog.
	CustomMetrics []MetricDef
}

// State is the collector lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

// metricState is the mutable aggregation state for one catalog metric.
type metricState struct {
	kind                  MetricKind
	all                   *stats.Summary
	byHost                map[string]*stats.Summary
	byCodec               map[string]*stats.Summary
	byParticipantAndTrack map[string]float64
}

func newMetricState(kind MetricKind) *metricState {
	return &metricState{
		kind:                  kind,
		all:                   stats.NewSummary(),
		byHost:                make(map[string]*stats.Summary),
		byCodec:               make(map[string]*stats.Summary),
		byParticipantAndTrack: make(map[string]float64),
	}
}

// resetTick clears the per-tick distributions. The per-entity point samples
// survive across ticks.
func (m *metricState) resetTick() {
	m.all.Reset()
	m.byHost = make(map[string]*stats.Summary)
	m.byCodec = make(map[string]*stats.Summary)
}

func (m *metricState) host(key string) *stats.Summary {
	s, ok := m.byHost[key]
	if !ok {
		s = stats.NewSummary()
		m.byHost[key] = s
	}
	return s
}

func (m *metricState) codec(key string) *stats.Summary {
	s, ok := m.byCodec[key]
	if !ok {
		s = stats.NewSummary()
		m.byCodec[key] = s
	}
	return s
}

// Collector owns the sessions map, the external stats map, and the per-tick
// aggregation state. Lifecycle: idle, running, stopped; a stopped collector
// cannot be restarted.
type Collector struct {
	cfg     Config
	catalog *Catalog
	sched   *scheduler.Scheduler

	mu       sync.Mutex
	state    State
	metrics  map[string]*metricState
	sessions map[string]Session
	external map[string]externalEntry
	onSnap   []func(Snapshot)
}

// New builds a Collector. It fails when the configuration violates the
// construction-time invariants (interval positive, TTL at least one
// interval, well-formed custom metrics).
func New(cfg Config) (*Collector, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("collection interval must be positive, got %v", cfg.Interval)
	}
	if cfg.RTCStatsTimeout < cfg.Interval {
		return nil, fmt.Errorf("rtc stats timeout %v is below the collection interval %v", cfg.RTCStatsTimeout, cfg.Interval)
	}
	catalog, err := NewCatalog(cfg.CustomMetrics)
	if err != nil {
		return nil, err
	}

	c := &Collector{
		cfg:      cfg,
		catalog:  catalog,
		metrics:  make(map[string]*metricState),
		sessions: make(map[string]Session),
		external: make(map[string]externalEntry),
	}
	for _, name := range catalog.Names() {
		def, _ := catalog.Lookup(name)
		c.metrics[name] = newMetricState(def.Kind)
	}
	c.sched = scheduler.New(cfg.Interval, c.Collect)
	return c, nil
}

// Catalog returns the frozen metric catalog.
func (c *Collector) Catalog() *Catalog {
	return c.catalog
}

// OnSnapshot registers fn to receive every tick's snapshot. Subscribers run
// synchronously, in registration order, within the tick. Register before
// Start.
func (c *Collector) OnSnapshot(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSnap = append(c.onSnap, fn)
}

// Start moves the collector to running and begins ticking. Double starts
// and starts after Stop are no-ops.
func (c *Collector) Start() {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateRunning
	c.mu.Unlock()
	c.sched.Start()
	logging.LogEvent("[COLLECTOR] started, interval %v, %d metrics", c.cfg.Interval, len(c.metrics))
}

// Stop halts the schedule and moves the collector to stopped. Double stops
// are no-ops.
func (c *Collector) Stop() {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	c.state = StateStopped
	c.mu.Unlock()
	c.sched.Stop()
	logging.LogEvent("[COLLECTOR] stopped")
}

// StateNow returns the current lifecycle state.
func (c *Collector) StateNow() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AddSession registers a session. Sessions may come and go while running.
func (c *Collector) AddSession(s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[s.ID()] = s
}

// RemoveSession unregisters the session with the given id.
func (c *Collector) RemoveSession(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
}

// AddExternalStats stores one push from a remote collector instance, keyed
// by the remote's id. A repeat push from the same id replaces the previous
// one and restarts its TTL.
func (c *Collector) AddExternalStats(id string, st ExternalStats) error {
	if id == "" {
		return fmt.Errorf("external stats push without an id")
	}
	if err := st.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.external[id] = externalEntry{addedTime: time.Now(), stats: st}
	return nil
}

type sessionResult struct {
	id       string
	detailed bool
	metrics  map[string]Value
	err      error
}

// Collect runs one aggregation tick. It is the scheduler callback, exposed
// so tests can drive ticks with a controlled clock.
func (c *Collector) Collect(ctx context.Context, now time.Time) error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return nil
	}
	for _, ms := range c.metrics {
		ms.resetTick()
	}
	sessions := make([]Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	hasExternal := len(c.external) > 0
	c.mu.Unlock()

	if len(sessions) == 0 && !hasExternal {
		return nil
	}

	results := c.collectSessions(ctx, sessions)

	c.mu.Lock()
	for _, r := range results {
		if r.err != nil {
			logging.LogEvent("[COLLECTOR] session %s collection failed: %v", r.id, r.err)
			continue
		}
		c.mergeSession(r)
	}
	aggCfg := c.mergeExternal(now)
	snap := c.buildSnapshot(now, aggCfg, len(sessions))
	subs := c.onSnap
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return nil
}

// collectSessions fans out one metric pull per session and fans the results
// back in. Each session's failure is caught individually so one failing or
// hanging session degrades only its own contribution; sessions that have not
// answered by the tick deadline are dropped for this tick.
func (c *Collector) collectSessions(ctx context.Context, sessions []Session) []sessionResult {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Interval)
	defer cancel()

	results := make(chan sessionResult, len(sessions))
	for _, s := range sessions {
		go func(s Session) {
			res := sessionResult{id: s.ID(), detailed: s.DetailedStats()}
			defer func() {
				if r := recover(); r != nil {
					res.metrics = nil
					res.err = fmt.Errorf("panic: %v", r)
				}
				results <- res
			}()
			res.metrics, res.err = s.CollectMetrics(ctx)
		}(s)
	}

	out := make([]sessionResult, 0, len(sessions))
	for range sessions {
		select {
		case r := <-results:
			out = append(out, r)
		case <-ctx.Done():
			logging.LogEvent("[COLLECTOR] %d of %d session pulls missed the tick deadline", len(sessions)-len(out), len(sessions))
			return out
		}
	}
	return out
}

// mergeSession folds one session's per-tick metric map into the aggregation
// state. Caller holds c.mu.
func (c *Collector) mergeSession(r sessionResult) {
	for name, value := range r.metrics {
		ms, ok := c.metrics[name]
		if !ok {
			logging.Debugf("session %s reported unknown metric %q", r.id, name)
			continue
		}
		switch value.Kind {
		case KindScalar:
			if !isFinite(value.Scalar) {
				continue
			}
			ms.all.Push(value.Scalar)
		case KindLabeled:
			for labels, v := range value.Labeled {
				if !isFinite(v) {
					continue
				}
				ms.all.Push(v)
				ms.host(labels.HostKey()).Push(v)
				if r.detailed {
					ms.byParticipantAndTrack[labels.CompositeKey()] = v
				}
			}
		case KindCategorical:
			for _, v := range value.Categorical {
				if v == "" {
					continue
				}
				ms.codec(v).Push(1)
			}
		}
	}
}

// mergeExternal folds every live external push into the tick and evicts the
// expired ones, returning the aggregate run config. Caller holds c.mu.
func (c *Collector) mergeExternal(now time.Time) AggregateConfig {
	var agg AggregateConfig
	for id, entry := range c.external {
		if now.Sub(entry.addedTime) > c.cfg.RTCStatsTimeout {
			logging.LogEvent("[COLLECTOR] evicting external stats from %s after %v", id, now.Sub(entry.addedTime))
			delete(c.external, id)
			continue
		}
		for name, dist := range entry.stats.RawDistributions {
			ms, ok := c.metrics[name]
			if !ok {
				logging.Debugf("external push %s carries unknown metric %q", id, name)
				continue
			}
			pushAllFinite(ms.all, dist.All)
			for host, values := range dist.ByHost {
				pushAllFinite(ms.host(host), values)
			}
			for codec, values := range dist.ByCodec {
				pushAllFinite(ms.codec(codec), values)
			}
			for key, v := range dist.ByParticipantAndTrack {
				if isFinite(v) {
					ms.byParticipantAndTrack[key] = v
				}
			}
		}
		if entry.stats.Config.URL != "" {
			agg.URLs = append(agg.URLs, entry.stats.Config.URL)
		}
		agg.Pages += entry.stats.Config.Pages
	}
	sort.Strings(agg.URLs)
	return agg
}

// buildSnapshot derives the immutable per-metric snapshots from the live
// aggregation state. Caller holds c.mu.
func (c *Collector) buildSnapshot(now time.Time, aggCfg AggregateConfig, sessions int) Snapshot {
	snap := Snapshot{
		Timestamp: now,
		Metrics:   make(map[string]MetricSnapshot, len(c.metrics)),
		Config:    aggCfg,
		Sessions:  sessions,
	}
	for name, ms := range c.metrics {
		m := MetricSnapshot{
			All:                   ms.all.Snapshot(),
			ByHost:                make(map[string]stats.Snapshot, len(ms.byHost)),
			ByCodec:               make(map[string]stats.Snapshot, len(ms.byCodec)),
			ByParticipantAndTrack: make(map[string]float64, len(ms.byParticipantAndTrack)),
		}
		for host, s := range ms.byHost {
			m.ByHost[host] = s.Snapshot()
		}
		for codec, s := range ms.byCodec {
			m.ByCodec[codec] = s.Snapshot()
		}
		for key, v := range ms.byParticipantAndTrack {
			m.ByParticipantAndTrack[key] = v
		}
		snap.Metrics[name] = m
	}
	return snap
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func pushAllFinite(s *stats.Summary, values []float64) {
	for _, v := range values {
		if isFinite(v) {
			s.Push(v)
		}
	}
}
