package strategy

import (
	"errors"
	"testing"

	"github.com/guyghost/optionsbacktest/internal/market"
	"github.com/guyghost/optionsbacktest/internal/options"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, DefaultStrategy().Validate())
	require.NoError(t, DefaultSettings().Validate())
}

func TestStrategyValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *TradingStrategy)
		field  string
	}{
		{"missing id", func(s *TradingStrategy) { s.ID = "" }, "id"},
		{"unknown option type", func(s *TradingStrategy) { s.OptionType = "STRADDLE" }, "optionType"},
		{"empty expiry preferences", func(s *TradingStrategy) { s.ExpiryPreferences = nil }, "expiryPreferences"},
		{"unknown bucket", func(s *TradingStrategy) { s.ExpiryPreferences = []options.ExpiryBucket{"yearly"} }, "expiryPreferences"},
		{"inverted delta range", func(s *TradingStrategy) { s.DeltaRange = DeltaRange{Min: 0.6, Max: 0.4} }, "deltaRange"},
		{"delta above one", func(s *TradingStrategy) { s.DeltaRange = DeltaRange{Min: 0.4, Max: 1.2} }, "deltaRange"},
		{"zero position size", func(s *TradingStrategy) { s.MaxPositionSize = decimal.Zero }, "maxPositionSize"},
		{"stop above 100", func(s *TradingStrategy) { s.MaxLossPercent = 120 }, "maxLossPercent"},
		{"negative target", func(s *TradingStrategy) { s.ProfitTargetPercent = -1 }, "profitTargetPercent"},
		{"risk level out of range", func(s *TradingStrategy) { s.RiskLevel = 11 }, "riskLevel"},
		{"unknown condition", func(s *TradingStrategy) { s.MarketConditions = []market.Condition{"sideways"} }, "marketConditions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultStrategy()
			tt.mutate(s)

			err := s.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidStrategy))
			assert.False(t, errors.Is(err, ErrInvalidSettings))

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{"no simultaneous trades", func(s *Settings) { s.MaxSimultaneousTrades = 0 }},
		{"no daily trades", func(s *Settings) { s.MaxDailyTrades = 0 }},
		{"confidence above one", func(s *Settings) { s.MinimumConfidenceScore = 1.5 }},
		{"unknown sizing", func(s *Settings) { s.PositionSizing.Method = "martingale" }},
		{"fixed without amount", func(s *Settings) { s.PositionSizing.Method = SizingFixed }},
		{"percent zero", func(s *Settings) { s.PositionSizing.Percent = 0 }},
		{"kelly without multiplier", func(s *Settings) {
			s.PositionSizing.Method = SizingKelly
			s.PositionSizing.KellyMultiplier = 0
		}},
		{"negative override", func(s *Settings) {
			s.MarketConditionOverrides[market.ConditionBearish] = RiskOverride{Enabled: true, AdjustedRisk: -1}
		}},
		{"negative commission", func(s *Settings) { s.Costs.CommissionPerTrade = decimal.NewFromInt(-1) }},
		{"tax above one", func(s *Settings) { s.Costs.TaxRate = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(s)

			err := s.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSettings))
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestNilInputs(t *testing.T) {
	var s *TradingStrategy
	assert.ErrorIs(t, s.Validate(), ErrInvalidStrategy)

	var settings *Settings
	assert.ErrorIs(t, settings.Validate(), ErrInvalidSettings)
}

func TestRiskMultiplierFor(t *testing.T) {
	settings := &Settings{
		MarketConditionOverrides: map[market.Condition]RiskOverride{
			market.ConditionVolatile: {Enabled: true, AdjustedRisk: 0.5},
			market.ConditionBearish:  {Enabled: false, AdjustedRisk: 0},
			market.ConditionBullish:  {Enabled: true, AdjustedRisk: 0},
		},
	}

	assert.Equal(t, 0.5, RiskMultiplierFor(market.ConditionVolatile, settings))
	assert.Equal(t, 1.0, RiskMultiplierFor(market.ConditionBearish, settings))
	assert.Equal(t, 0.0, RiskMultiplierFor(market.ConditionBullish, settings))
	assert.Equal(t, 1.0, RiskMultiplierFor(market.ConditionNeutral, settings))
	assert.Equal(t, 1.0, RiskMultiplierFor(market.ConditionNeutral, nil))
}

func TestOptionFilterAllows(t *testing.T) {
	assert.True(t, FilterBoth.Allows(options.OptionTypePut))
	assert.True(t, FilterCall.Allows(options.OptionTypeCall))
	assert.False(t, FilterCall.Allows(options.OptionTypePut))
	assert.False(t, FilterPut.Allows(options.OptionTypeCall))
}

func TestRiskProfileAndAffinity(t *testing.T) {
	s := DefaultStrategy()
	s.RiskLevel = 2
	assert.Equal(t, "conservative", s.RiskProfile())
	s.RiskLevel = 8
	assert.Equal(t, "aggressive", s.RiskProfile())

	assert.True(t, s.TradesIn(market.ConditionBearish))
	s.MarketConditions = []market.Condition{market.ConditionBullish}
	assert.True(t, s.TradesIn(market.ConditionBullish))
	assert.False(t, s.TradesIn(market.ConditionBearish))
}
