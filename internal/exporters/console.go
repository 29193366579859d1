// internal/exporters/console.go
package exporters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/Spin-gaming/webrtcperf/internal/collector"
	"github.com/Spin-gaming/webrtcperf/internal/logging"
)

// Console writes one compact line per tick to the process log.
type Console struct {
	headline  *color.Color
	metricFmt *color.Color
	alertFmt  *color.Color
}

// NewConsole returns a console exporter.
func NewConsole() *Console {
	return &Console{
		headline:  color.New(color.FgCyan, color.Bold),
		metricFmt: color.New(color.FgWhite),
		alertFmt:  color.New(color.FgRed, color.Bold),
	}
}

// Print logs the tick: timestamp, session and page counts, every non-empty
// metric distribution, and the current tag severity scores.
func (c *Console) Print(snap collector.Snapshot, tagScores map[string]float64) {
	names := make([]string, 0, len(snap.Metrics))
	for name, metric := range snap.Metrics {
		if metric.All.Count > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		all := snap.Metrics[name].All
		parts = append(parts, c.metricFmt.Sprintf("%s n=%d mean=%.2f p95=%.2f", name, all.Count, all.Mean, all.P95))
	}

	line := c.headline.Sprintf("[STATS] %s sessions=%d pages=%d",
		snap.Timestamp.Format("15:04:05"), snap.Sessions, snap.Config.Pages)
	if len(parts) > 0 {
		line += " | " + strings.Join(parts, " | ")
	}
	logging.LogEvent("%s", line)

	if len(tagScores) > 0 {
		tags := make([]string, 0, len(tagScores))
		for tag := range tagScores {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		var scored []string
		for _, tag := range tags {
			s := fmt.Sprintf("%s=%.1f", tag, tagScores[tag])
			if tagScores[tag] > 0 {
				s = c.alertFmt.Sprint(s)
			}
			scored = append(scored, s)
		}
		logging.LogEvent("[ALERTS] %s", strings.Join(scored, " "))
	}
}
