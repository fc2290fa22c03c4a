package strategy

import (
	"time"

	"github.com/guyghost/optionsbacktest/internal/market"
	"github.com/guyghost/optionsbacktest/internal/options"
	"github.com/guyghost/optionsbacktest/pkg/utils"
	"github.com/shopspring/decimal"
)

// OptionFilter restricts which option rights a strategy trades
type OptionFilter string

const (
	FilterCall OptionFilter = "CALL"
	FilterPut  OptionFilter = "PUT"
	FilterBoth OptionFilter = "BOTH"
)

// Allows reports whether the filter admits typ
func (f OptionFilter) Allows(typ options.OptionType) bool {
	switch f {
	case FilterBoth:
		return true
	case FilterCall:
		return typ == options.OptionTypeCall
	case FilterPut:
		return typ == options.OptionTypePut
	}
	return false
}

// DeltaRange is an inclusive |delta| window
type DeltaRange struct {
	Min float64
	Max float64
}

// Contains reports whether |delta| lies in the range
func (r DeltaRange) Contains(absDelta float64) bool {
	return utils.IsWithinRange(absDelta, r.Min, r.Max)
}

// TradingStrategy is the immutable rule set of one backtest
type TradingStrategy struct {
	ID                  string
	Name                string
	OptionType          OptionFilter
	ExpiryPreferences   []options.ExpiryBucket
	DeltaRange          DeltaRange
	MaxPositionSize     decimal.Decimal // currency per trade
	MaxLossPercent      float64         // stop distance below entry premium, in percent
	ProfitTargetPercent float64         // target distance above entry premium, in percent
	RiskLevel           int             // 1-10
	MarketConditions    []market.Condition
}

// RiskProfile labels the strategy from its risk level
func (s *TradingStrategy) RiskProfile() string {
	switch {
	case s.RiskLevel <= 3:
		return "conservative"
	case s.RiskLevel <= 6:
		return "moderate"
	default:
		return "aggressive"
	}
}

// TradesIn reports whether the strategy's market affinity admits cond.
// An empty affinity list trades in every condition.
func (s *TradingStrategy) TradesIn(cond market.Condition) bool {
	if len(s.MarketConditions) == 0 {
		return true
	}
	for _, c := range s.MarketConditions {
		if c == cond {
			return true
		}
	}
	return false
}

// SizingMethod selects how the capital fraction per trade is derived
type SizingMethod string

const (
	SizingFixed      SizingMethod = "fixed"
	SizingPercentage SizingMethod = "percentage"
	SizingKelly      SizingMethod = "kelly"
)

// PositionSizing configures the per-trade capital fraction
type PositionSizing struct {
	Method          SizingMethod
	FixedAmount     decimal.Decimal // currency, fixed method
	Percent         float64         // percent of available capital; kelly fallback
	KellyMultiplier float64         // fraction of full Kelly, kelly method
}

// RiskOverride adjusts sizing for one market condition
type RiskOverride struct {
	Enabled      bool
	AdjustedRisk float64
}

// BacktestWindow is the default run window stored with the settings
type BacktestWindow struct {
	StartDate      time.Time
	EndDate        time.Time
	InitialCapital decimal.Decimal
	DataSourceID   string
}

// Costs toggles commissions and taxes
type Costs struct {
	IncludeCommissions bool
	CommissionPerTrade decimal.Decimal
	IncludeTaxes       bool
	TaxRate            float64
}

// Settings are the risk gates shared by every strategy run
type Settings struct {
	MaxSimultaneousTrades    int
	MaxDailyTrades           int
	MinimumConfidenceScore   float64
	PositionSizing           PositionSizing
	MarketConditionOverrides map[market.Condition]RiskOverride
	Backtest                 BacktestWindow
	Costs                    Costs
}

// RiskMultiplierFor returns the sizing multiplier for cond, 1.0 unless an
// enabled override exists.
func RiskMultiplierFor(cond market.Condition, settings *Settings) float64 {
	if settings == nil {
		return 1.0
	}
	override, ok := settings.MarketConditionOverrides[cond]
	if !ok || !override.Enabled {
		return 1.0
	}
	return override.AdjustedRisk
}

// DefaultStrategy returns a moderate short-dated call buyer
func DefaultStrategy() *TradingStrategy {
	return &TradingStrategy{
		ID:                  "default-calls",
		Name:                "Near-the-money calls",
		OptionType:          FilterCall,
		ExpiryPreferences:   []options.ExpiryBucket{options.ExpiryWeekly, options.ExpiryMonthly},
		DeltaRange:          DeltaRange{Min: 0.4, Max: 0.6},
		MaxPositionSize:     decimal.NewFromInt(5000),
		MaxLossPercent:      50,
		ProfitTargetPercent: 100,
		RiskLevel:           5,
	}
}

// DefaultSettings returns conservative risk gates over the last year
func DefaultSettings() *Settings {
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	return &Settings{
		MaxSimultaneousTrades:  3,
		MaxDailyTrades:         1,
		MinimumConfidenceScore: 0.6,
		PositionSizing: PositionSizing{
			Method:          SizingPercentage,
			Percent:         5,
			KellyMultiplier: 0.5,
		},
		MarketConditionOverrides: map[market.Condition]RiskOverride{
			market.ConditionVolatile: {Enabled: true, AdjustedRisk: 0.5},
		},
		Backtest: BacktestWindow{
			StartDate:      end.AddDate(-1, 0, 0),
			EndDate:        end,
			InitialCapital: decimal.NewFromInt(100000),
			DataSourceID:   "synthetic",
		},
		Costs: Costs{
			CommissionPerTrade: decimal.NewFromFloat(0.65),
			TaxRate:            0.25,
		},
	}
}
