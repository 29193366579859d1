// internal/commands/run.go
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Spin-gaming/webrtcperf/internal/alerts"
	"github.com/Spin-gaming/webrtcperf/internal/appconfig"
	"github.com/Spin-gaming/webrtcperf/internal/collector"
	"github.com/Spin-gaming/webrtcperf/internal/exporters"
	"github.com/Spin-gaming/webrtcperf/internal/logging"
	"github.com/Spin-gaming/webrtcperf/internal/server"
	"github.com/Spin-gaming/webrtcperf/internal/sessions"
)

// runCmd starts the aggregation engine: the periodic collection tick, alert
// rule evaluation, the exporters, and the external stats endpoint. Browser
// sessions register with the collector programmatically; a harness run
// without local sessions still aggregates externally pushed stats.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the stats aggregation and alerting engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		synthetic, err := cmd.Flags().GetInt("synthetic")
		if err != nil {
			return err
		}
		code, err := runEngine(GetConfig(), synthetic)
		if err != nil {
			return err
		}
		if code != 0 {
			color.Red("alert thresholds exceeded, exiting %d", code)
			exitCode = code
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Int("synthetic", 0, "drive this many synthetic sessions (pipeline smoke test)")
	rootCmd.AddCommand(runCmd)
}

// runEngine wires the engine together, runs it until SIGINT/SIGTERM, and
// returns the alert-derived exit code.
func runEngine(cfg *appconfig.Config, synthetic int) (int, error) {
	defs, err := cfg.MetricDefs()
	if err != nil {
		return 0, err
	}
	coll, err := collector.New(collector.Config{
		Interval:        cfg.Interval(),
		RTCStatsTimeout: cfg.RTCStatsTimeout(),
		CustomMetrics:   defs,
	})
	if err != nil {
		return 0, err
	}

	var rules []alerts.Rule
	if cfg.AlertRulesPath != "" {
		data, err := os.ReadFile(cfg.AlertRulesPath)
		if err != nil {
			return 0, fmt.Errorf("reading alert rules %s: %w", cfg.AlertRulesPath, err)
		}
		rules, err = alerts.ParseRules(data, coll.Catalog().Has)
		if err != nil {
			return 0, err
		}
		logging.LogEvent("[ALERTS] loaded %d rules from %s", len(rules), cfg.AlertRulesPath)
	}
	engine := alerts.NewEngine(rules, cfg.EffectiveFailPercentile())

	console := exporters.NewConsole()
	var csvWriter *exporters.CSVWriter
	if cfg.CSVPath != "" {
		csvWriter = exporters.NewCSVWriter(cfg.CSVPath, coll.Catalog().Names())
	}
	var pusher *exporters.PrometheusPusher
	if cfg.PrometheusGateway != "" {
		pusher = exporters.NewPrometheusPusher(cfg.PrometheusGateway, cfg.Job(), cfg.Prefix(), cfg.PrometheusLabels)
	}

	coll.OnSnapshot(func(snap collector.Snapshot) {
		engine.Evaluate(snap, time.Now())
		tagScores := engine.TagScores()

		console.Print(snap, tagScores)
		if csvWriter != nil {
			if err := csvWriter.WriteSnapshot(snap); err != nil {
				logging.LogEvent("[EXPORT] csv write failed: %v", err)
			}
		}
		if pusher != nil {
			pusher.Record(snap, engine.Reports(), tagScores)
			if err := pusher.Push(context.Background()); err != nil {
				logging.LogEvent("[EXPORT] prometheus push failed: %v", err)
			}
		}
	})

	matcher := cfg.DetailedStatsMatcher()
	for i := 0; i < synthetic; i++ {
		coll.AddSession(sessions.NewSynthetic(i, matcher.Enabled(i)))
	}
	if synthetic > 0 {
		logging.LogEvent("[RUN] driving %d synthetic sessions", synthetic)
	}

	var ingest *server.Ingest
	if cfg.ListenAddr != "" {
		ingest = server.New(cfg.ListenAddr, coll)
		ingest.Start()
	}

	engine.Start(time.Now())
	coll.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	logging.LogEvent("[RUN] received %s, shutting down", received)

	coll.Stop()
	if ingest != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = ingest.Shutdown(ctx)
		cancel()
	}
	if csvWriter != nil {
		if err := csvWriter.Close(); err != nil {
			logging.LogEvent("[EXPORT] csv close failed: %v", err)
		}
	}

	exitCode := engine.ExitCode(cfg.FailThreshold)
	finishRun(cfg, engine)
	return exitCode, nil
}

// finishRun prints the final alert report and writes it to the configured
// file. The report reflects the accumulated history; the engine's history
// is only cleared afterwards.
func finishRun(cfg *appconfig.Config, engine *alerts.Engine) {
	defer engine.Stop()

	reports := engine.Reports()
	if len(reports) > 0 {
		fmt.Println(exporters.TextAlertReport(reports, engine.TagScores()))
	}
	if cfg.AlertReportPath == "" {
		return
	}
	format := exporters.AlertReportFormat(cfg.AlertReportFormat)
	if err := exporters.WriteAlertReport(cfg.AlertReportPath, format, engine); err != nil {
		logging.LogEvent("[EXPORT] alert report write failed: %v", err)
	}
}
