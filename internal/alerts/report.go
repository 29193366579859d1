// internal/alerts/report.go
package alerts

// JSONReport is the structured form of the final alert report.
type JSONReport struct {
	Tags    map[string]float64         `json:"tags"`
	Reports map[string]JSONReportEntry `json:"reports"`
}

// JSONReportEntry summarizes one report for the structured output.
type JSONReportEntry struct {
	TotalFails         int     `json:"totalFails"`
	TotalFailsTime     float64 `json:"totalFailsTime"`
	TotalFailsTimePerc int     `json:"totalFailsTimePerc"`
	FailAmount         float64 `json:"failAmount"`
	Count              int     `json:"count"`
	ValueAverage       float64 `json:"valueAverage"`
}

// JSONReport snapshots the accumulated history into its structured form.
func (e *Engine) JSONReport() JSONReport {
	out := JSONReport{
		Tags:    e.TagScores(),
		Reports: make(map[string]JSONReportEntry),
	}
	for _, r := range e.Reports() {
		out.Reports[r.Condition] = JSONReportEntry{
			TotalFails:         r.TotalFails,
			TotalFailsTime:     r.TotalFailsTime,
			TotalFailsTimePerc: r.TotalFailsTimePercent,
			FailAmount:         r.FailAmountPercentile,
			Count:              r.ValueCount(),
			ValueAverage:       r.ValueMean(),
		}
	}
	return out
}
