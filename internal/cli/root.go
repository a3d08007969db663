package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"etf-tracker/internal/analysis"
	"etf-tracker/internal/cache"
	"etf-tracker/internal/config"
	"etf-tracker/internal/decision"
	"etf-tracker/internal/fetcher"
	"etf-tracker/internal/logging"
	"etf-tracker/internal/provider"
	"etf-tracker/internal/report"
	"etf-tracker/internal/store"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Cache    *cache.Cache
	Fetcher  *fetcher.Fetcher
	Analyzer *analysis.Analyzer
	Engine   *decision.Engine
	Reporter *report.Writer
	History  store.HistoryStore
}

// NewRootCmd creates the root command and wires the application graph.
// An unusable cache directory fails construction; every data command
// depends on the cache being writable.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) (*cobra.Command, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	diskCache, err := cache.New(cache.Config{
		Dir:           cfg.Cache.Dir,
		CurrentTTL:    time.Duration(cfg.Cache.CurrentTTLHours) * time.Hour,
		HistoricalTTL: time.Duration(cfg.Cache.HistoricalTTLHours) * time.Hour,
		InfoTTL:       time.Duration(cfg.Cache.InfoTTLHours) * time.Hour,
		MaxSizeBytes:  int64(cfg.Cache.MaxSizeMB) * 1024 * 1024,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing cache: %w", err)
	}
	app.Cache = diskCache

	src := provider.NewEastMoney(cfg.Provider.RequestTimeout, logger)
	app.Fetcher = fetcher.New(src, diskCache, fetcher.Config{
		MaxRetries:      cfg.Provider.MaxRetries,
		BatchSize:       cfg.Provider.BatchSize,
		FallbackWorkers: cfg.Provider.FallbackWorkers,
		RateLimitDelay:  cfg.Provider.RateLimitDelay,
		InterChunkPause: 1 * time.Second,
		BulkListTTL:     time.Duration(cfg.Provider.BulkListTTLHours) * time.Hour,
	}, logger)

	app.Analyzer = analysis.New(cfg.Analysis, logger)
	app.Engine = decision.NewEngine(cfg.Strategy, logger)
	app.Reporter = report.NewWriter(cfg.Reports.Dir, logger)

	history, err := store.NewSQLiteStore(cfg.Reports.History)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize history store, persistence disabled")
	} else {
		app.History = history
		logger.Debug().Str("path", cfg.Reports.History).Msg("History store initialized")
	}

	rootCmd := &cobra.Command{
		Use:   "etf-tracker",
		Short: "ETF tracker - fund data acquisition and analysis CLI",
		Long: `ETF tracker fetches fund quotes and history from the public market-data
API, caches them on disk, and derives technical analysis and buy/sell/hold
recommendations for a configured fund universe.

Use 'etf-tracker help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/etf-tracker)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addDataCommands(rootCmd, app)
	addAnalysisCommands(rootCmd, app)
	addCacheCommands(rootCmd, app)
	addRunCommands(rootCmd, app)

	return rootCmd, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("ETF tracker v%s\n", Version)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Provider")
	output.Printf("  Timeout:          %s\n", cfg.Provider.RequestTimeout)
	output.Printf("  Max retries:      %d\n", cfg.Provider.MaxRetries)
	output.Printf("  Batch size:       %d\n", cfg.Provider.BatchSize)
	output.Printf("  Rate limit delay: %s\n", cfg.Provider.RateLimitDelay)
	output.Println()

	output.Bold("Cache")
	output.Printf("  Directory:        %s\n", cfg.Cache.Dir)
	output.Printf("  Current TTL:      %dh\n", cfg.Cache.CurrentTTLHours)
	output.Printf("  Historical TTL:   %dh\n", cfg.Cache.HistoricalTTLHours)
	output.Printf("  Info TTL:         %dh\n", cfg.Cache.InfoTTLHours)
	output.Printf("  Size budget:      %d MB\n", cfg.Cache.MaxSizeMB)
	output.Println()

	output.Bold("Scheduler")
	output.Printf("  Poll interval:    %s\n", cfg.Scheduler.PollInterval)
	output.Printf("  Data update:      every %s (enabled: %v)\n", cfg.Scheduler.DataUpdateInterval, cfg.Scheduler.DataUpdateEnabled)
	output.Printf("  Analysis:         every %s (enabled: %v)\n", cfg.Scheduler.AnalysisInterval, cfg.Scheduler.AnalysisEnabled)
	output.Printf("  Report:           every %s (enabled: %v)\n", cfg.Scheduler.ReportInterval, cfg.Scheduler.ReportEnabled)
	output.Println()

	output.Bold("Funds")
	for _, f := range cfg.Funds {
		marker := " "
		if f.Priority {
			marker = "*"
		}
		state := "enabled"
		if !f.Enabled {
			state = "disabled"
		}
		output.Printf("  %s %s  %-20s %s\n", marker, f.Code, f.Name, state)
	}
	return nil
}
