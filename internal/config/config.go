// Package config provides configuration management for the ETF tracking application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Provider  ProviderConfig  `mapstructure:"provider"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Reports   ReportConfig    `mapstructure:"reports"`
	Funds     []FundConfig    `mapstructure:"-"` // Loaded separately from funds.yaml
}

// ProviderConfig holds market-data provider configuration.
type ProviderConfig struct {
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	BatchSize        int           `mapstructure:"batch_size"`
	RateLimitDelay   time.Duration `mapstructure:"rate_limit_delay"`
	FallbackWorkers  int           `mapstructure:"fallback_workers"`
	BulkListTTLHours int           `mapstructure:"bulk_list_ttl_hours"`
}

// CacheConfig holds on-disk cache configuration.
type CacheConfig struct {
	Dir                string `mapstructure:"dir"`
	CurrentTTLHours    int    `mapstructure:"current_ttl_hours"`
	HistoricalTTLHours int    `mapstructure:"historical_ttl_hours"`
	InfoTTLHours       int    `mapstructure:"info_ttl_hours"`
	MaxSizeMB          int    `mapstructure:"max_size_mb"`
}

// SchedulerConfig holds scheduler enablement flags and intervals.
type SchedulerConfig struct {
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	DataUpdateEnabled   bool          `mapstructure:"data_update_enabled"`
	DataUpdateInterval  time.Duration `mapstructure:"data_update_interval"`
	AnalysisEnabled     bool          `mapstructure:"analysis_enabled"`
	AnalysisInterval    time.Duration `mapstructure:"analysis_interval"`
	ReportEnabled       bool          `mapstructure:"report_enabled"`
	ReportInterval      time.Duration `mapstructure:"report_interval"`
	CleanupEnabled      bool          `mapstructure:"cleanup_enabled"`
	CleanupInterval     time.Duration `mapstructure:"cleanup_interval"`
	BulkRefreshInterval time.Duration `mapstructure:"bulk_refresh_interval"`
}

// AnalysisConfig holds technical analysis parameters.
type AnalysisConfig struct {
	AnalysisDays int     `mapstructure:"analysis_days"`
	Period       string  `mapstructure:"period"`
	RSIPeriod    int     `mapstructure:"rsi_period"`
	ShortMADays  int     `mapstructure:"short_ma_days"`
	LongMADays   int     `mapstructure:"long_ma_days"`
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`
}

// StrategyConfig holds decision thresholds.
type StrategyConfig struct {
	BuyRSIThreshold    float64 `mapstructure:"buy_rsi_threshold"`
	SellRSIThreshold   float64 `mapstructure:"sell_rsi_threshold"`
	BuyScoreThreshold  float64 `mapstructure:"buy_score_threshold"`
	SellScoreThreshold float64 `mapstructure:"sell_score_threshold"`
	StopLossPercent    float64 `mapstructure:"stop_loss_percent"`
	TakeProfitPercent  float64 `mapstructure:"take_profit_percent"`
}

// ReportConfig holds report output configuration.
type ReportConfig struct {
	Dir     string `mapstructure:"dir"`
	History string `mapstructure:"history"` // sqlite database path
}

// FundConfig describes one tracked fund.
type FundConfig struct {
	Code     string  `mapstructure:"code"`
	Name     string  `mapstructure:"name"`
	Weight   float64 `mapstructure:"weight"`
	Enabled  bool    `mapstructure:"enabled"`
	Priority bool    `mapstructure:"priority"`
}

// EnabledCodes returns the codes of all enabled funds, deduplicated.
func (c *Config) EnabledCodes() []string {
	seen := make(map[string]bool)
	var codes []string
	for _, f := range c.Funds {
		if f.Enabled && !seen[f.Code] {
			seen[f.Code] = true
			codes = append(codes, f.Code)
		}
	}
	return codes
}

// PriorityCodes returns the codes of enabled priority funds.
func (c *Config) PriorityCodes() []string {
	var codes []string
	for _, f := range c.Funds {
		if f.Enabled && f.Priority {
			codes = append(codes, f.Code)
		}
	}
	return codes
}

// IsPriority reports whether code belongs to an enabled priority fund.
func (c *Config) IsPriority(code string) bool {
	for _, f := range c.Funds {
		if f.Code == code && f.Enabled && f.Priority {
			return true
		}
	}
	return false
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/etf-tracker"
	}
	return filepath.Join(home, ".config", "etf-tracker")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
// Missing files are created from templates on first run.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.yaml: %w", err)
	}

	funds, err := loadFunds(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading funds.yaml: %w", err)
	}
	cfg.Funds = funds

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := writeTemplateConfig(configDir); err != nil {
				return err
			}
			// Fall through with defaults only.
			return v.Unmarshal(cfg)
		}
		return err
	}

	return v.Unmarshal(cfg)
}

func loadFunds(configDir string) ([]FundConfig, error) {
	v := viper.New()
	v.SetConfigName("funds")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := writeTemplateFunds(configDir); err != nil {
				return nil, err
			}
			return defaultFunds(), nil
		}
		return nil, err
	}

	var wrapper struct {
		Funds []FundConfig `mapstructure:"funds"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return nil, err
	}
	return wrapper.Funds, nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "etf-tracker")

	v.SetDefault("provider.request_timeout", 10*time.Second)
	v.SetDefault("provider.max_retries", 3)
	v.SetDefault("provider.batch_size", 10)
	v.SetDefault("provider.rate_limit_delay", 100*time.Millisecond)
	v.SetDefault("provider.fallback_workers", 3)
	v.SetDefault("provider.bulk_list_ttl_hours", 6)

	v.SetDefault("cache.dir", filepath.Join(dataDir, "cache"))
	v.SetDefault("cache.current_ttl_hours", 24)
	v.SetDefault("cache.historical_ttl_hours", 24)
	v.SetDefault("cache.info_ttl_hours", 168)
	v.SetDefault("cache.max_size_mb", 100)

	v.SetDefault("scheduler.poll_interval", 30*time.Second)
	v.SetDefault("scheduler.data_update_enabled", true)
	v.SetDefault("scheduler.data_update_interval", 24*time.Hour)
	v.SetDefault("scheduler.analysis_enabled", true)
	v.SetDefault("scheduler.analysis_interval", 24*time.Hour)
	v.SetDefault("scheduler.report_enabled", true)
	v.SetDefault("scheduler.report_interval", 168*time.Hour)
	v.SetDefault("scheduler.cleanup_enabled", true)
	v.SetDefault("scheduler.cleanup_interval", 24*time.Hour)
	v.SetDefault("scheduler.bulk_refresh_interval", 6*time.Hour)

	v.SetDefault("analysis.analysis_days", 60)
	v.SetDefault("analysis.period", "60d")
	v.SetDefault("analysis.rsi_period", 14)
	v.SetDefault("analysis.short_ma_days", 5)
	v.SetDefault("analysis.long_ma_days", 20)
	v.SetDefault("analysis.risk_free_rate", 0.025)

	v.SetDefault("strategy.buy_rsi_threshold", 30.0)
	v.SetDefault("strategy.sell_rsi_threshold", 70.0)
	v.SetDefault("strategy.buy_score_threshold", 70.0)
	v.SetDefault("strategy.sell_score_threshold", 30.0)
	v.SetDefault("strategy.stop_loss_percent", 8.0)
	v.SetDefault("strategy.take_profit_percent", 15.0)

	v.SetDefault("reports.dir", filepath.Join(dataDir, "reports"))
	v.SetDefault("reports.history", filepath.Join(dataDir, "tracker.db"))
}

// Validate checks configuration consistency. Only construction-time
// misconfiguration is fatal.
func (c *Config) Validate() error {
	if c.Provider.MaxRetries < 1 {
		return fmt.Errorf("provider.max_retries must be >= 1, got %d", c.Provider.MaxRetries)
	}
	if c.Provider.BatchSize < 1 {
		return fmt.Errorf("provider.batch_size must be >= 1, got %d", c.Provider.BatchSize)
	}
	if c.Provider.FallbackWorkers < 1 {
		return fmt.Errorf("provider.fallback_workers must be >= 1, got %d", c.Provider.FallbackWorkers)
	}
	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir must not be empty")
	}
	if c.Cache.MaxSizeMB < 1 {
		return fmt.Errorf("cache.max_size_mb must be >= 1, got %d", c.Cache.MaxSizeMB)
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler.poll_interval must be positive")
	}
	for _, f := range c.Funds {
		if len(f.Code) != 6 {
			return fmt.Errorf("fund code %q: expected 6 characters", f.Code)
		}
	}
	return nil
}
