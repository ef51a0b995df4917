package main

import (
	"fmt"
	"os"

	"devnewz/internal/config"
	"devnewz/internal/logger"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "devnewz",
	Short: "devnewz - link aggregator API",
	Long: `devnewz serves the news feed, threaded comments and voting API.

Running without a subcommand starts the HTTP server.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"devnewz version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file (or DEVNEWZ_CONFIG)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rerankCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("devnewz %s (commit %s, built %s)\n", Version, Commit, BuildTime)
	},
}

// loadConfig reads config and initializes logging; every command starts here.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		JSONOutput: cfg.LogJSON,
	})
	return cfg, nil
}
