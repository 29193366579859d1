// internal/exporters/alert_report.go
package exporters

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Spin-gaming/webrtcperf/internal/alerts"
)

// AlertReportFormat selects the final report encoding.
type AlertReportFormat string

const (
	AlertReportText AlertReportFormat = "text"
	AlertReportJSON AlertReportFormat = "json"
)

// TextAlertReport renders the fixed-width condition and tag tables.
func TextAlertReport(reports []*alerts.Report, tagScores map[string]float64) string {
	conditions := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Condition", "Fails", "Fail time (s)", "Fail time (%)", "Fail amount %")
	for _, r := range reports {
		conditions.Row(
			r.Condition,
			strconv.Itoa(r.TotalFails),
			fmt.Sprintf("%.1f", r.TotalFailsTime),
			strconv.Itoa(r.TotalFailsTimePercent),
			fmt.Sprintf("%.1f", r.FailAmountPercentile),
		)
	}
	out := conditions.Render() + "\n"

	if len(tagScores) > 0 {
		tags := make([]string, 0, len(tagScores))
		for tag := range tagScores {
			tags = append(tags, tag)
		}
		sort.Strings(tags)

		tagTable := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("Tag", "Fail amount %")
		for _, tag := range tags {
			tagTable.Row(tag, fmt.Sprintf("%.1f", tagScores[tag]))
		}
		out += tagTable.Render() + "\n"
	}
	return out
}

// WriteAlertReport writes the engine's accumulated history to path in the
// requested format.
func WriteAlertReport(path string, format AlertReportFormat, engine *alerts.Engine) error {
	var data []byte
	switch format {
	case AlertReportJSON:
		encoded, err := json.MarshalIndent(engine.JSONReport(), "", "  ")
		if err != nil {
			return err
		}
		data = encoded
	case AlertReportText, "":
		data = []byte(TextAlertReport(engine.Reports(), engine.TagScores()))
	default:
		return fmt.Errorf("unknown alert report format %q", format)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
