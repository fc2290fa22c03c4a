// Package market labels simulated days with a market regime.
package market

import (
	"github.com/shopspring/decimal"
)

// Condition is the regime of one trading day
type Condition string

const (
	ConditionBullish  Condition = "bullish"
	ConditionBearish  Condition = "bearish"
	ConditionNeutral  Condition = "neutral"
	ConditionVolatile Condition = "volatile"
)

// Conditions lists every regime in a stable order
var Conditions = []Condition{ConditionBullish, ConditionBearish, ConditionNeutral, ConditionVolatile}

// Valid reports whether c is a known condition
func (c Condition) Valid() bool {
	switch c {
	case ConditionBullish, ConditionBearish, ConditionNeutral, ConditionVolatile:
		return true
	}
	return false
}

const (
	// LookbackDays is the momentum window
	LookbackDays = 10

	// VolatileVIX is the VIX level above which a day is volatile regardless of trend
	VolatileVIX = 25.0

	// TrendThreshold is the 10-day return beyond which a day is trending
	TrendThreshold = 0.02
)

// Classifier labels days from trailing momentum and the VIX level
type Classifier struct {
	lookback       int
	volatileVIX    float64
	trendThreshold float64
}

// NewClassifier returns a classifier with the default thresholds
func NewClassifier() *Classifier {
	return &Classifier{
		lookback:       LookbackDays,
		volatileVIX:    VolatileVIX,
		trendThreshold: TrendThreshold,
	}
}

// Classify labels day i of closes. Volatility dominates trend; days without
// enough history are neutral unless the VIX says volatile.
func (c *Classifier) Classify(closes []decimal.Decimal, i int, vix float64) Condition {
	if vix > c.volatileVIX {
		return ConditionVolatile
	}
	if i < c.lookback || i >= len(closes) {
		return ConditionNeutral
	}

	base := closes[i-c.lookback]
	if !base.IsPositive() {
		return ConditionNeutral
	}

	r10 := closes[i].Div(base).Sub(decimal.NewFromInt(1))
	threshold := decimal.NewFromFloat(c.trendThreshold)
	switch {
	case r10.GreaterThan(threshold):
		return ConditionBullish
	case r10.LessThan(threshold.Neg()):
		return ConditionBearish
	default:
		return ConditionNeutral
	}
}
