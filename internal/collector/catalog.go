// internal/collector/catalog.go
package collector

import (
	"fmt"
	"sort"
)

// MetricKind declares, per metric, which shape of value sessions report for
// it. Deciding the shape at declaration time removes any runtime type
// inspection on the hot collection path.
type MetricKind int

const (
	// KindScalar metrics report a single number per session per tick.
	KindScalar MetricKind = iota
	// KindLabeled metrics report a number per labeled entity (host,
	// participant, track).
	KindLabeled
	// KindCategorical metrics report a string per labeled entity, counted
	// as occurrences per distinct value.
	KindCategorical
)

// MetricDef declares one metric of the catalog.
type MetricDef struct {
	Name string
	Kind MetricKind
}

// BuiltinMetrics returns the fixed set of metrics every run collects. Custom
// metrics from the configuration are appended to these at construction; the
// combined catalog is frozen for the lifetime of the collector.
func BuiltinMetrics() []MetricDef {
	return []MetricDef{
		{Name: "cpu", Kind: KindLabeled},
		{Name: "memory", Kind: KindLabeled},
		{Name: "pages", Kind: KindScalar},
		{Name: "errors", Kind: KindScalar},
		{Name: "warnings", Kind: KindScalar},
		{Name: "peerConnections", Kind: KindLabeled},
		{Name: "dataChannels", Kind: KindLabeled},
		{Name: "pageLoadTime", Kind: KindLabeled},

		{Name: "audioSentBitrates", Kind: KindLabeled},
		{Name: "audioRecvBitrates", Kind: KindLabeled},
		{Name: "audioSentPacketsLost", Kind: KindLabeled},
		{Name: "audioRecvPacketsLost", Kind: KindLabeled},
		{Name: "audioRecvJitter", Kind: KindLabeled},
		{Name: "audioRoundTripTime", Kind: KindLabeled},
		{Name: "audioStartDelay", Kind: KindLabeled},
		{Name: "audioSentCodec", Kind: KindCategorical},
		{Name: "audioRecvCodec", Kind: KindCategorical},

		{Name: "videoSentBitrates", Kind: KindLabeled},
		{Name: "videoRecvBitrates", Kind: KindLabeled},
		{Name: "videoSentPacketsLost", Kind: KindLabeled},
		{Name: "videoRecvPacketsLost", Kind: KindLabeled},
		{Name: "videoRecvJitter", Kind: KindLabeled},
		{Name: "videoRoundTripTime", Kind: KindLabeled},
		{Name: "videoStartDelay", Kind: KindLabeled},
		{Name: "videoSentWidth", Kind: KindLabeled},
		{Name: "videoSentHeight", Kind: KindLabeled},
		{Name: "videoSentFps", Kind: KindLabeled},
		{Name: "videoRecvWidth", Kind: KindLabeled},
		{Name: "videoRecvHeight", Kind: KindLabeled},
		{Name: "videoRecvFps", Kind: KindLabeled},
		{Name: "videoSentCodec", Kind: KindCategorical},
		{Name: "videoRecvCodec", Kind: KindCategorical},
	}
}

// Catalog is the frozen set of metric definitions for one run.
type Catalog struct {
	defs  map[string]MetricDef
	names []string
}

// NewCatalog combines the built-in metrics with the user-declared custom
// ones. Duplicate names are rejected so a custom metric cannot silently
// shadow a built-in one.
func NewCatalog(custom []MetricDef) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]MetricDef)}
	for _, def := range BuiltinMetrics() {
		c.defs[def.Name] = def
		c.names = append(c.names, def.Name)
	}
	for _, def := range custom {
		if def.Name == "" {
			return nil, fmt.Errorf("custom metric with empty name")
		}
		if _, exists := c.defs[def.Name]; exists {
			return nil, fmt.Errorf("custom metric %q clashes with an existing metric", def.Name)
		}
		c.defs[def.Name] = def
		c.names = append(c.names, def.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Names returns all metric names in stable sorted order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Lookup returns the definition for name.
func (c *Catalog) Lookup(name string) (MetricDef, bool) {
	def, ok := c.defs[name]
	return def, ok
}

// Has reports whether name is part of the catalog.
func (c *Catalog) Has(name string) bool {
	_, ok := c.defs[name]
	return ok
}
