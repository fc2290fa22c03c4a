package options

import (
	"math"
	"time"

	"github.com/guyghost/optionsbacktest/pkg/utils"
	"github.com/shopspring/decimal"
)

const (
	// AssumedVolatility is the flat volatility of the pricing proxy
	AssumedVolatility = 0.20

	// timeValueFactor approximates the ATM normal density 1/sqrt(2*pi)
	timeValueFactor = 0.4

	// MinYearsToExpiry floors time to expiry so time value never collapses to zero
	MinYearsToExpiry = 0.001

	daysPerYear = 365.0
)

var minPremium = decimal.NewFromFloat(0.01)

// Model is the simplified pricing proxy used to build chains and mark positions.
// It is not Black-Scholes; it is good enough to compare strategies with each other.
type Model struct {
	Volatility float64
}

// NewModel returns a model using AssumedVolatility
func NewModel() *Model {
	return &Model{Volatility: AssumedVolatility}
}

// YearsToExpiry returns the floored year fraction between asOf and expiration
func YearsToExpiry(asOf, expiration time.Time) float64 {
	years := float64(DaysToExpiry(asOf, expiration)) / daysPerYear
	if years < MinYearsToExpiry {
		return MinYearsToExpiry
	}
	return years
}

// Intrinsic is the exercise value of the option at spot
func Intrinsic(typ OptionType, spot, strike decimal.Decimal) decimal.Decimal {
	var value decimal.Decimal
	if typ == OptionTypeCall {
		value = spot.Sub(strike)
	} else {
		value = strike.Sub(spot)
	}
	return utils.MaxDecimal(value, decimal.Zero)
}

// TimeValue is spot * vol * sqrt(years) scaled by the ATM factor
func (m *Model) TimeValue(spot decimal.Decimal, asOf, expiration time.Time) float64 {
	return timeValueFactor * spot.InexactFloat64() * m.Volatility * math.Sqrt(YearsToExpiry(asOf, expiration))
}

// Price returns the per-share premium rounded to cents, never below one cent
func (m *Model) Price(typ OptionType, spot, strike decimal.Decimal, expiration, asOf time.Time) decimal.Decimal {
	premium := Intrinsic(typ, spot, strike).Add(decimal.NewFromFloat(m.TimeValue(spot, asOf, expiration)))
	return utils.MaxDecimal(utils.RoundDecimal(premium, 2), minPremium)
}

// Delta is a three-zone step approximation keyed on moneyness
func (m *Model) Delta(typ OptionType, spot, strike decimal.Decimal) float64 {
	upper := strike.Mul(decimal.NewFromFloat(1.05))
	lower := strike.Mul(decimal.NewFromFloat(0.95))

	if typ == OptionTypeCall {
		switch {
		case spot.GreaterThan(upper):
			return 0.8
		case spot.LessThan(lower):
			return 0.2
		default:
			return 0.5
		}
	}

	switch {
	case spot.LessThan(lower):
		return -0.8
	case spot.GreaterThan(upper):
		return -0.2
	default:
		return -0.5
	}
}

// Greeks holds the second-order proxies shown on a chain
type Greeks struct {
	Gamma float64
	Theta float64 // per calendar day
	Vega  float64 // per volatility point
}

// Greeks returns rough sensitivities consistent with the pricing proxy
func (m *Model) Greeks(typ OptionType, spot, strike decimal.Decimal, expiration, asOf time.Time) Greeks {
	years := YearsToExpiry(asOf, expiration)
	timeValue := m.TimeValue(spot, asOf, expiration)
	days := years * daysPerYear

	gamma := 0.005
	if math.Abs(m.Delta(typ, spot, strike)) == 0.5 {
		gamma = 0.01
	}

	return Greeks{
		Gamma: gamma,
		Theta: -timeValue / (2 * days),
		Vega:  timeValueFactor * spot.InexactFloat64() * math.Sqrt(years) / 100,
	}
}
