package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func series(start, step float64, n int) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = decimal.NewFromFloat(start + step*float64(i))
	}
	return out
}

func TestClassify(t *testing.T) {
	c := NewClassifier()
	rising := series(100, 1, 12)  // +10% over 10 days
	falling := series(100, -1, 12) // -10% over 10 days
	flat := series(100, 0, 12)

	tests := []struct {
		name     string
		closes   []decimal.Decimal
		i        int
		vix      float64
		expected Condition
	}{
		{"volatility dominates a rising trend", rising, 11, 30, ConditionVolatile},
		{"bullish", rising, 11, 15, ConditionBullish},
		{"bearish", falling, 11, 15, ConditionBearish},
		{"neutral flat", flat, 11, 15, ConditionNeutral},
		{"vix at threshold is not volatile", flat, 11, 25, ConditionNeutral},
		{"insufficient history", rising, 5, 15, ConditionNeutral},
		{"insufficient history but volatile", rising, 5, 26, ConditionVolatile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.Classify(tt.closes, tt.i, tt.vix))
		})
	}
}

func TestClassifyTrendBoundary(t *testing.T) {
	c := NewClassifier()
	closes := series(100, 0, 11)
	closes[10] = decimal.NewFromFloat(102) // exactly +2%

	assert.Equal(t, ConditionNeutral, c.Classify(closes, 10, 10))
}

func TestConditionValid(t *testing.T) {
	for _, cond := range Conditions {
		assert.True(t, cond.Valid())
	}
	assert.False(t, Condition("sideways").Valid())
}
