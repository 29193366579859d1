// internal/commands/root.go
package commands

import (
	"fmt"
	"os"

	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Spin-gaming/webrtcperf/internal/appconfig"
	"github.com/Spin-gaming/webrtcperf/internal/logging"
)

var (
	cfgFile       string
	currentConfig *appconfig.Config
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"

	// exitCode is stashed by subcommands so the process only exits after
	// Execute has run the cleanup path.
	exitCode int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "webrtcperf",
	Short: "webrtcperf — load-test harness stats aggregation and alerting engine",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureConfigLoaded(); err != nil {
			return err
		}

		var cfg appconfig.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		cfg.ConfigPath = cfgFile
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		currentConfig = &cfg

		if err := logging.Init(cfg.LogFilePath()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.SetDebug(cfg.Debug)
		if cfg.Debug {
			pp.Println(cfg)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	os.Exit(finish(rootCmd.Execute()))
}

// finish closes the logger and folds the command error and any stashed
// alert exit code into the process exit code. Subcommands stash rather
// than exit directly so this cleanup path always runs.
func finish(err error) int {
	logging.Close()
	if err != nil {
		return 1
	}
	return exitCode
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (e.g., config/config.json)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Int("intervalSeconds", 0, "collection interval in seconds (0 = default)")
	rootCmd.PersistentFlags().Int("rtcStatsTimeout", 0, "external stats TTL in seconds (0 = default)")
	rootCmd.PersistentFlags().String("alertRules", "", "path to the alert rules JSON document")
	rootCmd.PersistentFlags().String("csvPath", "", "append per-tick stats to this CSV file")
	rootCmd.PersistentFlags().String("prometheusGateway", "", "Prometheus push gateway URL")
	rootCmd.PersistentFlags().String("alertReportPath", "", "write the final alert report to this file")
	rootCmd.PersistentFlags().String("alertReportFormat", "", `alert report encoding: "text" or "json"`)
	rootCmd.PersistentFlags().String("listenAddr", "", "bind address for the external stats endpoint")
	rootCmd.PersistentFlags().String("detailedStats", "", `session indexes recording per-track samples, e.g. "true" or "0,2,4-6"`)
	rootCmd.PersistentFlags().String("logFile", "", "path to the log file")

	for _, name := range []string{
		"debug", "intervalSeconds", "rtcStatsTimeout", "alertRules", "csvPath",
		"prometheusGateway", "alertReportPath", "alertReportFormat",
		"listenAddr", "detailedStats", "logFile",
	} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("json")
	}
}

// ensureConfigLoaded reads the config file, tolerating its absence so the
// harness can run from flags alone.
func ensureConfigLoaded() error {
	if err := viper.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

// GetConfig returns the loaded harness configuration for other packages.
func GetConfig() *appconfig.Config {
	return currentConfig
}

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}
