// internal/exporters/csv.go
// Package exporters formats each tick's snapshot and the accumulated alert
// history for the console, CSV files, a Prometheus push gateway, and the
// final alert report. Exporter failures are never fatal to the run.
package exporters

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Spin-gaming/webrtcperf/internal/collector"
	"github.com/Spin-gaming/webrtcperf/internal/stats"
)

// statColumns are the per-metric column suffixes, in output order.
var statColumns = []string{"length", "sum", "mean", "stddev", "5p", "95p", "min", "max"}

// CSVWriter appends one row per tick to a CSV file. The header is written
// once, when the writer creates or truncates the file.
type CSVWriter struct {
	path    string
	metrics []string
	file    *os.File
	w       *csv.Writer
}

// NewCSVWriter prepares a writer for the given catalog metric names, in
// column order. The file is created lazily on the first row.
func NewCSVWriter(path string, metricNames []string) *CSVWriter {
	names := make([]string, len(metricNames))
	copy(names, metricNames)
	return &CSVWriter{path: path, metrics: names}
}

func (c *CSVWriter) open() error {
	if c.file != nil {
		return nil
	}
	if dir := filepath.Dir(c.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	c.file = file
	c.w = csv.NewWriter(file)

	header := []string{"datetime"}
	for _, name := range c.metrics {
		for _, col := range statColumns {
			header = append(header, name+"_"+col)
		}
	}
	return c.w.Write(header)
}

// WriteSnapshot appends the tick's row.
func (c *CSVWriter) WriteSnapshot(snap collector.Snapshot) error {
	if err := c.open(); err != nil {
		return err
	}
	row := []string{snap.Timestamp.UTC().Format(time.RFC3339)}
	for _, name := range c.metrics {
		all := snap.Metrics[name].All
		row = append(row, statRow(all)...)
	}
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

func statRow(sn stats.Snapshot) []string {
	fmtF := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		strconv.Itoa(sn.Count),
		fmtF(sn.Sum),
		fmtF(sn.Mean),
		fmtF(sn.StdDev),
		fmtF(sn.P5),
		fmtF(sn.P95),
		fmtF(sn.Min),
		fmtF(sn.Max),
	}
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	if c.file == nil {
		return nil
	}
	c.w.Flush()
	err := c.w.Error()
	if cerr := c.file.Close(); err == nil {
		err = cerr
	}
	c.file = nil
	return err
}
