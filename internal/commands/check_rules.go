// internal/commands/check_rules.go
package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Spin-gaming/webrtcperf/internal/alerts"
	"github.com/Spin-gaming/webrtcperf/internal/collector"
)

// checkRulesCmd validates an alert rules document against the metric
// catalog without starting the engine.
var checkRulesCmd = &cobra.Command{
	Use:   "check-rules <rules.json>",
	Short: "Validate an alert rules document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		defs, err := cfg.MetricDefs()
		if err != nil {
			return err
		}
		catalog, err := collector.NewCatalog(defs)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		rules, err := alerts.ParseRules(data, catalog.Has)
		if err != nil {
			return err
		}

		for _, rule := range rules {
			checks := make([]string, 0, len(rule.Checks))
			for key := range rule.Checks {
				checks = append(checks, string(key))
			}
			fmt.Printf("%s: %d check(s), tags %v\n", rule.Metric, len(checks), rule.Tags)
		}
		color.Green("%d rule(s) valid", len(rules))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkRulesCmd)
}
