package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/guyghost/optionsbacktest/internal/logger"
	"github.com/guyghost/optionsbacktest/internal/market"
	"github.com/guyghost/optionsbacktest/internal/optimizer"
	"github.com/guyghost/optionsbacktest/internal/options"
	"github.com/guyghost/optionsbacktest/internal/strategy"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Profile is a complete backtest definition read from a YAML file
type Profile struct {
	Strategy *strategy.TradingStrategy
	Settings *strategy.Settings
	Ranges   optimizer.Ranges
}

type profileFile struct {
	Strategy  strategyFile `mapstructure:"strategy"`
	Settings  settingsFile `mapstructure:"settings"`
	Optimizer rangesFile   `mapstructure:"optimizer"`
}

type strategyFile struct {
	ID                  string     `mapstructure:"id"`
	Name                string     `mapstructure:"name"`
	OptionType          string     `mapstructure:"option_type"`
	ExpiryPreferences   []string   `mapstructure:"expiry_preferences"`
	Delta               deltaRange `mapstructure:"delta"`
	MaxPositionSize     float64    `mapstructure:"max_position_size"`
	MaxLossPercent      float64    `mapstructure:"max_loss_percent"`
	ProfitTargetPercent float64    `mapstructure:"profit_target_percent"`
	RiskLevel           int        `mapstructure:"risk_level"`
	MarketConditions    []string   `mapstructure:"market_conditions"`
}

type deltaRange struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

type settingsFile struct {
	MaxSimultaneousTrades  int                     `mapstructure:"max_simultaneous_trades"`
	MaxDailyTrades         int                     `mapstructure:"max_daily_trades"`
	MinimumConfidenceScore float64                 `mapstructure:"minimum_confidence_score"`
	PositionSizing         sizingFile              `mapstructure:"position_sizing"`
	Overrides              map[string]overrideFile `mapstructure:"market_condition_overrides"`
	Backtest               backtestFile            `mapstructure:"backtest"`
	Costs                  costsFile               `mapstructure:"costs"`
}

type sizingFile struct {
	Method          string  `mapstructure:"method"`
	FixedAmount     float64 `mapstructure:"fixed_amount"`
	Percent         float64 `mapstructure:"percent"`
	KellyMultiplier float64 `mapstructure:"kelly_multiplier"`
}

type overrideFile struct {
	Enabled      bool    `mapstructure:"enabled"`
	AdjustedRisk float64 `mapstructure:"adjusted_risk"`
}

// Dates are quoted YYYY-MM-DD strings.
type backtestFile struct {
	StartDate      string  `mapstructure:"start_date"`
	EndDate        string  `mapstructure:"end_date"`
	InitialCapital float64 `mapstructure:"initial_capital"`
	DataSource     string  `mapstructure:"data_source"`
}

type costsFile struct {
	IncludeCommissions bool    `mapstructure:"include_commissions"`
	CommissionPerTrade float64 `mapstructure:"commission_per_trade"`
	IncludeTaxes       bool    `mapstructure:"include_taxes"`
	TaxRate            float64 `mapstructure:"tax_rate"`
}

type rangesFile struct {
	DeltaRanges   []deltaRange `mapstructure:"delta_ranges"`
	PositionSizes []float64    `mapstructure:"position_sizes"`
	StopLosses    []float64    `mapstructure:"stop_losses"`
	ProfitTargets []float64    `mapstructure:"profit_targets"`
}

// LoadProfile reads a YAML profile. Keys missing from the file fall back to
// DefaultStrategy and DefaultSettings.
func LoadProfile(path string) (*Profile, error) {
	v := viper.New()
	setProfileDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var raw profileFile
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	profile, err := raw.toProfile()
	if err != nil {
		return nil, err
	}
	logger.WithField("profile", path).Info("Profile loaded",
		"strategy", profile.Strategy.ID,
		"variants", profile.Ranges.Size(),
	)
	return profile, nil
}

// setProfileDefaults mirrors the package defaults into viper
func setProfileDefaults(v *viper.Viper) {
	s := strategy.DefaultStrategy()
	v.SetDefault("strategy.id", s.ID)
	v.SetDefault("strategy.name", s.Name)
	v.SetDefault("strategy.option_type", string(s.OptionType))
	buckets := make([]string, len(s.ExpiryPreferences))
	for i, b := range s.ExpiryPreferences {
		buckets[i] = string(b)
	}
	v.SetDefault("strategy.expiry_preferences", buckets)
	v.SetDefault("strategy.delta.min", s.DeltaRange.Min)
	v.SetDefault("strategy.delta.max", s.DeltaRange.Max)
	v.SetDefault("strategy.max_position_size", s.MaxPositionSize.InexactFloat64())
	v.SetDefault("strategy.max_loss_percent", s.MaxLossPercent)
	v.SetDefault("strategy.profit_target_percent", s.ProfitTargetPercent)
	v.SetDefault("strategy.risk_level", s.RiskLevel)

	settings := strategy.DefaultSettings()
	v.SetDefault("settings.max_simultaneous_trades", settings.MaxSimultaneousTrades)
	v.SetDefault("settings.max_daily_trades", settings.MaxDailyTrades)
	v.SetDefault("settings.minimum_confidence_score", settings.MinimumConfidenceScore)
	v.SetDefault("settings.position_sizing.method", string(settings.PositionSizing.Method))
	v.SetDefault("settings.position_sizing.percent", settings.PositionSizing.Percent)
	v.SetDefault("settings.position_sizing.kelly_multiplier", settings.PositionSizing.KellyMultiplier)
	for cond, override := range settings.MarketConditionOverrides {
		prefix := "settings.market_condition_overrides." + string(cond)
		v.SetDefault(prefix+".enabled", override.Enabled)
		v.SetDefault(prefix+".adjusted_risk", override.AdjustedRisk)
	}
	v.SetDefault("settings.backtest.start_date", settings.Backtest.StartDate.Format(time.DateOnly))
	v.SetDefault("settings.backtest.end_date", settings.Backtest.EndDate.Format(time.DateOnly))
	v.SetDefault("settings.backtest.initial_capital", settings.Backtest.InitialCapital.InexactFloat64())
	v.SetDefault("settings.backtest.data_source", settings.Backtest.DataSourceID)
	v.SetDefault("settings.costs.include_commissions", settings.Costs.IncludeCommissions)
	v.SetDefault("settings.costs.commission_per_trade", settings.Costs.CommissionPerTrade.InexactFloat64())
	v.SetDefault("settings.costs.include_taxes", settings.Costs.IncludeTaxes)
	v.SetDefault("settings.costs.tax_rate", settings.Costs.TaxRate)
}

func (f profileFile) toProfile() (*Profile, error) {
	s := &strategy.TradingStrategy{
		ID:                  f.Strategy.ID,
		Name:                f.Strategy.Name,
		OptionType:          strategy.OptionFilter(strings.ToUpper(f.Strategy.OptionType)),
		DeltaRange:          strategy.DeltaRange{Min: f.Strategy.Delta.Min, Max: f.Strategy.Delta.Max},
		MaxPositionSize:     decimal.NewFromFloat(f.Strategy.MaxPositionSize),
		MaxLossPercent:      f.Strategy.MaxLossPercent,
		ProfitTargetPercent: f.Strategy.ProfitTargetPercent,
		RiskLevel:           f.Strategy.RiskLevel,
	}
	for _, b := range f.Strategy.ExpiryPreferences {
		s.ExpiryPreferences = append(s.ExpiryPreferences, options.ExpiryBucket(b))
	}
	for _, c := range f.Strategy.MarketConditions {
		s.MarketConditions = append(s.MarketConditions, market.Condition(strings.ToLower(c)))
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	start, err := parseProfileDate("settings.backtest.start_date", f.Settings.Backtest.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseProfileDate("settings.backtest.end_date", f.Settings.Backtest.EndDate)
	if err != nil {
		return nil, err
	}

	settings := &strategy.Settings{
		MaxSimultaneousTrades:  f.Settings.MaxSimultaneousTrades,
		MaxDailyTrades:         f.Settings.MaxDailyTrades,
		MinimumConfidenceScore: f.Settings.MinimumConfidenceScore,
		PositionSizing: strategy.PositionSizing{
			Method:          strategy.SizingMethod(strings.ToLower(f.Settings.PositionSizing.Method)),
			FixedAmount:     decimal.NewFromFloat(f.Settings.PositionSizing.FixedAmount),
			Percent:         f.Settings.PositionSizing.Percent,
			KellyMultiplier: f.Settings.PositionSizing.KellyMultiplier,
		},
		MarketConditionOverrides: make(map[market.Condition]strategy.RiskOverride, len(f.Settings.Overrides)),
		Backtest: strategy.BacktestWindow{
			StartDate:      start,
			EndDate:        end,
			InitialCapital: decimal.NewFromFloat(f.Settings.Backtest.InitialCapital),
			DataSourceID:   f.Settings.Backtest.DataSource,
		},
		Costs: strategy.Costs{
			IncludeCommissions: f.Settings.Costs.IncludeCommissions,
			CommissionPerTrade: decimal.NewFromFloat(f.Settings.Costs.CommissionPerTrade),
			IncludeTaxes:       f.Settings.Costs.IncludeTaxes,
			TaxRate:            f.Settings.Costs.TaxRate,
		},
	}
	for cond, override := range f.Settings.Overrides {
		settings.MarketConditionOverrides[market.Condition(cond)] = strategy.RiskOverride{
			Enabled:      override.Enabled,
			AdjustedRisk: override.AdjustedRisk,
		}
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	ranges := optimizer.Ranges{
		StopLosses:    f.Optimizer.StopLosses,
		ProfitTargets: f.Optimizer.ProfitTargets,
	}
	for _, d := range f.Optimizer.DeltaRanges {
		ranges.DeltaRanges = append(ranges.DeltaRanges, strategy.DeltaRange{Min: d.Min, Max: d.Max})
	}
	for _, size := range f.Optimizer.PositionSizes {
		ranges.PositionSizes = append(ranges.PositionSizes, decimal.NewFromFloat(size))
	}

	return &Profile{Strategy: s, Settings: settings, Ranges: ranges}, nil
}

func parseProfileDate(field, value string) (time.Time, error) {
	parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, invalid(field, "expected YYYY-MM-DD, got %q", value)
	}
	return parsed, nil
}
