package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/cosmerank/internal/config"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cosmerank",
		Short: "cosmerank: weekly @cosme ranking collector",
		Long: `cosmerank collects the @cosme product rankings once a week into a
CSV snapshot and compares snapshots week over week.

Commands:
  collect   fetch every ranking in the job catalog into week<N>_cosme.csv
  diff      compute rank movement between consecutive weekly snapshots
  load      append snapshot CSVs to a SQLite table
  jobs      list the job catalog`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(collectCmd())
	rootCmd.AddCommand(diffCmd())
	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// setupLogger creates a structured logger from the logging config.
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cosmerank %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			fmt.Printf("Engine:\n")
			fmt.Printf("  Concurrency:         %d\n", cfg.Engine.Concurrency)
			fmt.Printf("  Request Timeout:     %s\n", cfg.Engine.RequestTimeout)
			fmt.Printf("  Request Sleep:       %s\n", cfg.Engine.RequestSleep)
			fmt.Printf("  Session Pause:       %s every %d requests\n", cfg.Engine.SessionPause, cfg.Engine.SessionPauseEvery)
			fmt.Printf("  Max Retries:         %d (base %s)\n", cfg.Engine.MaxRetries, cfg.Engine.RetryBase)
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Type:                %s\n", cfg.Fetcher.Type)
			fmt.Printf("  Accept-Language:     %s\n", cfg.Fetcher.AcceptLanguage)
			fmt.Printf("  HTML Cache:          %v\n", cfg.Fetcher.HTMLCache)
			fmt.Printf("\nImages:\n")
			fmt.Printf("  Enabled:             %v\n", cfg.Images.Enabled)
			fmt.Printf("  Brand Pattern:       %s\n", cfg.Images.BrandPattern)
			fmt.Printf("\nOutput:\n")
			fmt.Printf("  Directory:           %s\n", cfg.Output.OutputDir)
			fmt.Printf("  Source:              %s\n", cfg.Output.Source)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  SQLite:              %s\n", orNone(cfg.Storage.SQLitePath))
			fmt.Printf("  MongoDB:             %s\n", configured(cfg.Storage.Mongo.URI))
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:             %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:                %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// configured hides values that may carry credentials.
func configured(s string) string {
	if s == "" {
		return "(none)"
	}
	return "configured"
}
