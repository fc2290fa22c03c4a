package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/guyghost/optionsbacktest/internal/logger"
	"github.com/guyghost/optionsbacktest/internal/strategy"
	"github.com/shopspring/decimal"
)

// Data source identifiers understood by the CLIs
const (
	SourceSynthetic = "synthetic"
	SourceCSV       = "csv"
	SourcePostgres  = "postgres"
)

// AppConfig holds application-wide configuration
type AppConfig struct {
	DataSource    string
	Underlying    string
	SyntheticSeed int64
	PriceCSV      string
	VixCSV        string
	DatabaseURL   string

	InitialCapital   decimal.Decimal
	StartDate        time.Time
	EndDate          time.Time
	OptimizerWorkers int

	IncludeCommissions bool
	CommissionPerTrade decimal.Decimal
	IncludeTaxes       bool
	TaxRate            float64

	LogLevel  string
	LogFormat string
}

// Load loads application configuration from environment variables
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		DataSource:         SourceSynthetic,
		Underlying:         "SPY",
		SyntheticSeed:      42,
		InitialCapital:     decimal.NewFromInt(100000),
		OptimizerWorkers:   0, // 0 lets the optimizer pick NumCPU
		CommissionPerTrade: decimal.NewFromFloat(0.65),
		TaxRate:            0.25,
		LogLevel:           "info",
		LogFormat:          "text",
	}

	if source := os.Getenv("DATA_SOURCE"); source != "" {
		cfg.DataSource = strings.ToLower(strings.TrimSpace(source))
	}
	if underlying := os.Getenv("UNDERLYING"); underlying != "" {
		cfg.Underlying = strings.ToUpper(strings.TrimSpace(underlying))
	}
	cfg.SyntheticSeed = int64(parseIntEnv("SYNTHETIC_SEED", int(cfg.SyntheticSeed)))
	cfg.PriceCSV = os.Getenv("PRICE_CSV")
	cfg.VixCSV = os.Getenv("VIX_CSV")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	if capital := os.Getenv("INITIAL_CAPITAL"); capital != "" {
		parsed, err := decimal.NewFromString(capital)
		if err != nil {
			return nil, invalid("INITIAL_CAPITAL", "not a number: %v", err)
		}
		cfg.InitialCapital = parsed
	}

	var err error
	if cfg.StartDate, err = parseDateEnv("BACKTEST_START"); err != nil {
		return nil, err
	}
	if cfg.EndDate, err = parseDateEnv("BACKTEST_END"); err != nil {
		return nil, err
	}

	if val := parseIntEnv("OPTIMIZER_WORKERS", cfg.OptimizerWorkers); val > 0 {
		cfg.OptimizerWorkers = val
	}
	cfg.IncludeCommissions = os.Getenv("INCLUDE_COMMISSIONS") == "true"
	if commission := os.Getenv("COMMISSION_PER_TRADE"); commission != "" {
		if parsed, err := decimal.NewFromString(commission); err == nil {
			cfg.CommissionPerTrade = parsed
		}
	}
	cfg.IncludeTaxes = os.Getenv("INCLUDE_TAXES") == "true"
	cfg.TaxRate = parseFloatEnv("TAX_RATE", cfg.TaxRate)

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected data source has what it needs
func (c *AppConfig) Validate() error {
	switch c.DataSource {
	case SourceSynthetic:
	case SourceCSV:
		if c.PriceCSV == "" {
			return invalid("PRICE_CSV", "is required for the csv data source")
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return invalid("DATABASE_URL", "is required for the postgres data source")
		}
	default:
		return invalid("DATA_SOURCE", "unknown source %q", c.DataSource)
	}
	if !c.InitialCapital.IsPositive() {
		return invalid("INITIAL_CAPITAL", "must be positive, got %s", c.InitialCapital)
	}
	if c.CommissionPerTrade.IsNegative() {
		return invalid("COMMISSION_PER_TRADE", "must not be negative")
	}
	if c.TaxRate < 0 || c.TaxRate > 1 {
		return invalid("TAX_RATE", "must be within [0,1], got %g", c.TaxRate)
	}
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && c.EndDate.Before(c.StartDate) {
		return invalid("BACKTEST_END", "is before BACKTEST_START")
	}
	return nil
}

// ErrInvalidConfig marks configuration rejected at load time
var ErrInvalidConfig = errors.New("invalid configuration")

func invalid(field, format string, args ...any) error {
	return strategy.Invalid(ErrInvalidConfig, field, format, args...)
}

// parseIntEnv parses an integer environment variable
func parseIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		logger.Warn("Ignoring malformed environment value", "key", key, "value", value)
	}
	return defaultValue
}

// parseFloatEnv parses a float environment variable
func parseFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
		logger.Warn("Ignoring malformed environment value", "key", key, "value", value)
	}
	return defaultValue
}

// parseDateEnv parses a YYYY-MM-DD environment variable; unset yields zero
func parseDateEnv(key string) (time.Time, error) {
	value := os.Getenv(key)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, invalid(key, "expected YYYY-MM-DD, got %q", value)
	}
	return parsed, nil
}
