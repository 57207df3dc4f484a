// Package config loads runtime settings. Precedence is defaults, then an
// optional YAML file, then environment variables; a .env file in the working
// directory is loaded into the environment first.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	// Venue and instrument.
	TradingPair    string  `yaml:"trading_pair"`
	BinanceAPIKey  string  `yaml:"-"`
	BinanceSecret  string  `yaml:"-"`
	BinanceBaseURL string  `yaml:"binance_base_url"`
	QuoteAsset     string  `yaml:"quote_asset"`
	MinOrderSize   float64 `yaml:"min_order_size"`

	// Execution mode.
	DryRun           bool    `yaml:"dry_run"`
	SimulatedBalance float64 `yaml:"simulated_balance"`

	// Regime detection.
	RegimeTimeframe string        `yaml:"regime_timeframe"`
	ADXPeriod       int           `yaml:"adx_period"`
	ADXTrendStart   float64       `yaml:"adx_trend_start"`
	ADXRangeReturn  float64       `yaml:"adx_range_return"`
	RegimeCooldown  time.Duration `yaml:"regime_cooldown"`

	// Mean reversion strategy.
	MeanReversionTimeframe string  `yaml:"mean_reversion_timeframe"`
	BBPeriod               int     `yaml:"bb_period"`
	BBStdDev               float64 `yaml:"bb_std_dev"`
	RSIPeriod              int     `yaml:"rsi_period"`
	RSIOversold            float64 `yaml:"rsi_oversold"`
	RSIOverbought          float64 `yaml:"rsi_overbought"`
	ATRPeriod              int     `yaml:"atr_period"`
	ATRStopMultiplier      float64 `yaml:"atr_sl_multiplier"`

	// Trend breakout strategy.
	TrendTimeframe string `yaml:"trend_timeframe"`
	DonchianPeriod int    `yaml:"donchian_period"`
	EMAPeriod      int    `yaml:"ema_period"`

	// Sizing and loop.
	PositionSizePercent float64       `yaml:"position_size_percent"`
	LoopInterval        time.Duration `yaml:"loop_interval"`

	// Persistence and surfaces.
	DatabasePath string `yaml:"database_path"`
	ListenAddr   string `yaml:"listen_addr"`
	LogLevel     string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		TradingPair:      "BTC/USDT",
		QuoteAsset:       "USDT",
		MinOrderSize:     0.0001,
		DryRun:           true,
		SimulatedBalance: 10000,

		RegimeTimeframe: "1h",
		ADXPeriod:       14,
		ADXTrendStart:   25,
		ADXRangeReturn:  20,
		RegimeCooldown:  900 * time.Second,

		MeanReversionTimeframe: "15m",
		BBPeriod:               20,
		BBStdDev:               2,
		RSIPeriod:              14,
		RSIOversold:            30,
		RSIOverbought:          70,
		ATRPeriod:              14,
		ATRStopMultiplier:      1.5,

		TrendTimeframe: "1h",
		DonchianPeriod: 20,
		EMAPeriod:      200,

		PositionSizePercent: 5,
		LoopInterval:        60 * time.Second,

		DatabasePath: "typhoon.db",
		ListenAddr:   ":8080",
		LogLevel:     "info",
	}
}

// Load builds the configuration: defaults, then the YAML file at path when
// path is non-empty, then environment overrides.
func Load(path string) (Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	setString(&c.TradingPair, "TRADING_PAIR")
	setString(&c.BinanceAPIKey, "BINANCE_API_KEY")
	setString(&c.BinanceSecret, "BINANCE_SECRET")
	setString(&c.BinanceBaseURL, "BINANCE_BASE_URL")
	setString(&c.QuoteAsset, "QUOTE_ASSET")
	setFloat(&c.MinOrderSize, "MIN_ORDER_SIZE", &errs)

	setBool(&c.DryRun, "DRY_RUN", &errs)
	setFloat(&c.SimulatedBalance, "SIMULATED_BALANCE", &errs)

	setString(&c.RegimeTimeframe, "REGIME_TIMEFRAME")
	setInt(&c.ADXPeriod, "ADX_PERIOD", &errs)
	setFloat(&c.ADXTrendStart, "ADX_TREND_START", &errs)
	setFloat(&c.ADXRangeReturn, "ADX_RANGE_RETURN", &errs)
	setSeconds(&c.RegimeCooldown, "REGIME_COOLDOWN_SECONDS", &errs)

	setString(&c.MeanReversionTimeframe, "MEAN_REVERSION_TIMEFRAME")
	setInt(&c.BBPeriod, "BB_PERIOD", &errs)
	setFloat(&c.BBStdDev, "BB_STD_DEV", &errs)
	setInt(&c.RSIPeriod, "RSI_PERIOD", &errs)
	setFloat(&c.RSIOversold, "RSI_OVERSOLD", &errs)
	setFloat(&c.RSIOverbought, "RSI_OVERBOUGHT", &errs)
	setInt(&c.ATRPeriod, "ATR_PERIOD", &errs)
	setFloat(&c.ATRStopMultiplier, "ATR_SL_MULTIPLIER", &errs)

	setString(&c.TrendTimeframe, "TREND_TIMEFRAME")
	setInt(&c.DonchianPeriod, "DONCHIAN_PERIOD", &errs)
	setInt(&c.EMAPeriod, "EMA_PERIOD", &errs)

	setFloat(&c.PositionSizePercent, "POSITION_SIZE_PERCENT", &errs)
	setSeconds(&c.LoopInterval, "LOOP_INTERVAL_SECONDS", &errs)

	setString(&c.DatabasePath, "DATABASE_PATH")
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Validate rejects configurations the trading loop cannot run safely on.
func (c Config) Validate() error {
	if c.TradingPair == "" {
		return fmt.Errorf("trading pair must be set")
	}
	if c.ADXTrendStart <= c.ADXRangeReturn {
		return fmt.Errorf("adx_trend_start (%.2f) must exceed adx_range_return (%.2f)",
			c.ADXTrendStart, c.ADXRangeReturn)
	}
	for name, period := range map[string]int{
		"adx_period":      c.ADXPeriod,
		"bb_period":       c.BBPeriod,
		"rsi_period":      c.RSIPeriod,
		"atr_period":      c.ATRPeriod,
		"donchian_period": c.DonchianPeriod,
		"ema_period":      c.EMAPeriod,
	} {
		if period <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, period)
		}
	}
	if c.PositionSizePercent <= 0 || c.PositionSizePercent > 100 {
		return fmt.Errorf("position_size_percent must be in (0, 100], got %.2f", c.PositionSizePercent)
	}
	if c.LoopInterval <= 0 {
		return fmt.Errorf("loop_interval must be positive")
	}
	if c.RegimeCooldown < 0 {
		return fmt.Errorf("regime_cooldown must not be negative")
	}
	if !c.DryRun && (c.BinanceAPIKey == "" || c.BinanceSecret == "") {
		return fmt.Errorf("live trading requires BINANCE_API_KEY and BINANCE_SECRET")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setFloat(dst *float64, key string, errs *[]error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = f
}

func setInt(dst *int, key string, errs *[]error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func setBool(dst *bool, key string, errs *[]error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}

func setSeconds(dst *time.Duration, key string, errs *[]error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = time.Duration(n) * time.Second
}
