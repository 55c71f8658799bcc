package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cloudscout",
	Short: "Incident detection and evidence correlation for cloud telemetry",
	Long: "CloudScout scans monitored cloud resources for saturation, error-rate,\n" +
		"usage-spike and access-denial incidents, captures the telemetry that\n" +
		"justified each finding, and routes alerts through cooldown-aware\n" +
		"webhook and NATS transports.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging installs the process-wide JSON logger. Logs go to stderr so
// table and JSON scan output stay clean on stdout.
func initLogging(level slog.Level) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}
