package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# ETF tracker configuration
# Durations accept Go syntax: 30s, 5m, 24h.

provider:
  request_timeout: 10s
  max_retries: 3
  batch_size: 10
  rate_limit_delay: 100ms
  fallback_workers: 3
  bulk_list_ttl_hours: 6

cache:
  # dir defaults to ~/.local/share/etf-tracker/cache
  current_ttl_hours: 24
  historical_ttl_hours: 24
  info_ttl_hours: 168
  max_size_mb: 100

scheduler:
  poll_interval: 30s
  data_update_enabled: true
  data_update_interval: 24h
  analysis_enabled: true
  analysis_interval: 24h
  report_enabled: true
  report_interval: 168h
  cleanup_enabled: true
  cleanup_interval: 24h
  bulk_refresh_interval: 6h

analysis:
  analysis_days: 60
  period: 60d
  rsi_period: 14
  short_ma_days: 5
  long_ma_days: 20
  risk_free_rate: 0.025

strategy:
  buy_rsi_threshold: 30
  sell_rsi_threshold: 70
  buy_score_threshold: 70
  sell_score_threshold: 30
  stop_loss_percent: 8
  take_profit_percent: 15
`

const fundsTemplate = `# Tracked funds. Codes are 6-digit exchange codes.
funds:
  - code: "510300"
    name: "CSI 300 ETF"
    weight: 0.3
    enabled: true
    priority: true
  - code: "510500"
    name: "CSI 500 ETF"
    weight: 0.2
    enabled: true
    priority: true
  - code: "159915"
    name: "ChiNext ETF"
    weight: 0.2
    enabled: true
    priority: false
  - code: "513100"
    name: "NASDAQ 100 ETF"
    weight: 0.15
    enabled: true
    priority: false
  - code: "518880"
    name: "Gold ETF"
    weight: 0.15
    enabled: true
    priority: false
`

func writeTemplateConfig(configDir string) error {
	return writeTemplate(configDir, "config.yaml", configTemplate)
}

func writeTemplateFunds(configDir string) error {
	return writeTemplate(configDir, "funds.yaml", fundsTemplate)
}

func writeTemplate(configDir, name, content string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	path := filepath.Join(configDir, name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(content), 0644)
}

// defaultFunds mirrors the funds.yaml template for first-run use.
func defaultFunds() []FundConfig {
	return []FundConfig{
		{Code: "510300", Name: "CSI 300 ETF", Weight: 0.3, Enabled: true, Priority: true},
		{Code: "510500", Name: "CSI 500 ETF", Weight: 0.2, Enabled: true, Priority: true},
		{Code: "159915", Name: "ChiNext ETF", Weight: 0.2, Enabled: true},
		{Code: "513100", Name: "NASDAQ 100 ETF", Weight: 0.15, Enabled: true},
		{Code: "518880", Name: "Gold ETF", Weight: 0.15, Enabled: true},
	}
}
