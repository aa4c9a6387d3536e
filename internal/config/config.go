// Package config exposes strongly typed application configuration structs
// loaded from YAML. Credentials never live here; they arrive via environment
// variables and are passed into components as plain values.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Alpaca describes broker connectivity. Base URLs are overridable so tests
// can point the adapter at local servers.
type Alpaca struct {
	Paper       bool   `yaml:"paper"`
	Feed        string `yaml:"feed"`
	DataBaseURL string `yaml:"data_base_url"`
	TradeURL    string `yaml:"trade_base_url"`
	StreamURL   string `yaml:"stream_url"`
}

// Bot groups orchestration settings: how many symbols to trade, the target
// timeframe, and warmup depth.
type Bot struct {
	SymbolLimit      int     `yaml:"symbol_limit"`
	TimeframeMinutes int     `yaml:"timeframe_minutes"`
	HistoryLimit     int     `yaml:"history_limit"`
	WarmupDays       int     `yaml:"warmup_days"`
	ChannelBuffer    int     `yaml:"channel_buffer"`
	Capital          float64 `yaml:"capital"`
}

// StrategyParams groups tunable knobs for the strategy implementations.
type StrategyParams struct {
	BBPeriod    int     `yaml:"bb_period"`
	BBStdDev    float64 `yaml:"bb_std_dev"`
	RSIPeriod   int     `yaml:"rsi_period"`
	ROCPeriod   int     `yaml:"roc_period"`
	Stage1RSI   float64 `yaml:"stage1_rsi"`
	Stage2Entry float64 `yaml:"stage2_entry"`
	Stage2Exit  float64 `yaml:"stage2_exit"`
	ResetMargin float64 `yaml:"reset_margin"`
	MinROC      float64 `yaml:"min_roc"`
	FastPeriod  int     `yaml:"fast_period"`
	SlowPeriod  int     `yaml:"slow_period"`
}

// Strategy specifies which strategy is active along with its parameters.
type Strategy struct {
	Mode   string         `yaml:"mode"`
	Params StrategyParams `yaml:"params"`
}

// Order encodes the risk parameters applied when sizing and protecting
// positions.
type Order struct {
	RiskPercentage     float64 `yaml:"risk_percentage"`
	TPMultiplier       float64 `yaml:"tp_multiplier"`
	SLMultiplier       float64 `yaml:"sl_multiplier"`
	UseTrailingStop    bool    `yaml:"use_trailing_stop"`
	SMAShortPeriod     int     `yaml:"sma_short_period"`
	SMALongPeriod      int     `yaml:"sma_long_period"`
	CrossoverDirection string  `yaml:"crossover_direction"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Bot      Bot      `yaml:"bot"`
	Strategy Strategy `yaml:"strategy"`
	Order    Order    `yaml:"order"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
