package strategy

import (
	"errors"
)

// Validate rejects strategies that cannot produce a meaningful backtest
func (s *TradingStrategy) Validate() error {
	if s == nil {
		return Invalid(ErrInvalidStrategy, "strategy", "is nil")
	}
	if s.ID == "" {
		return Invalid(ErrInvalidStrategy, "id", "is required")
	}
	switch s.OptionType {
	case FilterCall, FilterPut, FilterBoth:
	default:
		return Invalid(ErrInvalidStrategy, "optionType", "unknown filter %q", s.OptionType)
	}
	if len(s.ExpiryPreferences) == 0 {
		return Invalid(ErrInvalidStrategy, "expiryPreferences", "at least one expiry bucket is required")
	}
	for _, bucket := range s.ExpiryPreferences {
		if !bucket.Valid() {
			return Invalid(ErrInvalidStrategy, "expiryPreferences", "unknown bucket %q", bucket)
		}
	}
	if s.DeltaRange.Min < 0 || s.DeltaRange.Max > 1 || s.DeltaRange.Min > s.DeltaRange.Max {
		return Invalid(ErrInvalidStrategy, "deltaRange", "[%g,%g] must satisfy 0 <= min <= max <= 1", s.DeltaRange.Min, s.DeltaRange.Max)
	}
	if !s.MaxPositionSize.IsPositive() {
		return Invalid(ErrInvalidStrategy, "maxPositionSize", "must be positive, got %s", s.MaxPositionSize)
	}
	if s.MaxLossPercent < 0 || s.MaxLossPercent > 100 {
		return Invalid(ErrInvalidStrategy, "maxLossPercent", "must be within [0,100], got %g", s.MaxLossPercent)
	}
	if s.ProfitTargetPercent < 0 {
		return Invalid(ErrInvalidStrategy, "profitTargetPercent", "must not be negative, got %g", s.ProfitTargetPercent)
	}
	if s.RiskLevel < 1 || s.RiskLevel > 10 {
		return Invalid(ErrInvalidStrategy, "riskLevel", "must be within [1,10], got %d", s.RiskLevel)
	}
	for _, cond := range s.MarketConditions {
		if !cond.Valid() {
			return Invalid(ErrInvalidStrategy, "marketConditions", "unknown condition %q", cond)
		}
	}
	return nil
}

// Validate rejects settings whose gates would never admit a trade or whose
// rates make no sense. The backtest window is checked with the run request.
func (s *Settings) Validate() error {
	if s == nil {
		return Invalid(ErrInvalidSettings, "settings", "is nil")
	}
	if s.MaxSimultaneousTrades < 1 {
		return Invalid(ErrInvalidSettings, "maxSimultaneousTrades", "must be at least 1, got %d", s.MaxSimultaneousTrades)
	}
	if s.MaxDailyTrades < 1 {
		return Invalid(ErrInvalidSettings, "maxDailyTrades", "must be at least 1, got %d", s.MaxDailyTrades)
	}
	if s.MinimumConfidenceScore < 0 || s.MinimumConfidenceScore > 1 {
		return Invalid(ErrInvalidSettings, "minimumConfidenceScore", "must be within [0,1], got %g", s.MinimumConfidenceScore)
	}

	sizing := s.PositionSizing
	switch sizing.Method {
	case SizingFixed:
		if !sizing.FixedAmount.IsPositive() {
			return Invalid(ErrInvalidSettings, "positionSizing.fixedAmount", "must be positive for fixed sizing")
		}
	case SizingPercentage, SizingKelly:
		if sizing.Percent <= 0 || sizing.Percent > 100 {
			return Invalid(ErrInvalidSettings, "positionSizing.percent", "must be within (0,100], got %g", sizing.Percent)
		}
		if sizing.Method == SizingKelly && sizing.KellyMultiplier <= 0 {
			return Invalid(ErrInvalidSettings, "positionSizing.kellyMultiplier", "must be positive, got %g", sizing.KellyMultiplier)
		}
	default:
		return Invalid(ErrInvalidSettings, "positionSizing.method", "unknown method %q", sizing.Method)
	}

	for cond, override := range s.MarketConditionOverrides {
		if !cond.Valid() {
			return Invalid(ErrInvalidSettings, "marketConditionOverrides", "unknown condition %q", cond)
		}
		if override.AdjustedRisk < 0 {
			return Invalid(ErrInvalidSettings, "marketConditionOverrides."+string(cond), "adjustedRisk must not be negative")
		}
	}

	if s.Costs.CommissionPerTrade.IsNegative() {
		return Invalid(ErrInvalidSettings, "costs.commissionPerTrade", "must not be negative")
	}
	if s.Costs.TaxRate < 0 || s.Costs.TaxRate > 1 {
		return Invalid(ErrInvalidSettings, "costs.taxRate", "must be within [0,1], got %g", s.Costs.TaxRate)
	}
	return nil
}

// IsValidationError reports whether err was produced by input validation
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
