package marketdata

import (
	"fmt"
	"sort"
	"time"

	"github.com/guyghost/optionsbacktest/internal/options"
	"github.com/shopspring/decimal"
)

const (
	// DefaultStrikeStep is the spacing between listed strikes
	DefaultStrikeStep = 5

	// DefaultStrikesPerSide is how many strikes are listed above and below the ATM strike
	DefaultStrikesPerSide = 5

	weeklyExpiries  = 2
	monthlyExpiries = 2
)

// ChainBuilder lists a daily option chain around spot using the pricing model
type ChainBuilder struct {
	Underlying     string
	StrikeStep     decimal.Decimal
	StrikesPerSide int
	model          *options.Model
}

// NewChainBuilder creates a chain builder for the given underlying
func NewChainBuilder(underlying string) *ChainBuilder {
	return &ChainBuilder{
		Underlying:     underlying,
		StrikeStep:     decimal.NewFromInt(DefaultStrikeStep),
		StrikesPerSide: DefaultStrikesPerSide,
		model:          options.NewModel(),
	}
}

// Build returns the chain quoted on asOf alone. Contracts expiring on asOf are
// still listed so open positions can be marked through expiry.
func (b *ChainBuilder) Build(asOf time.Time, spot decimal.Decimal, vix float64) options.Chain {
	return b.NewSeries().Next(asOf, spot, vix)
}

// Series lists the chains of consecutive sessions. A strike quoted on an
// earlier session stays listed until its expiry, however far spot moves.
type Series struct {
	builder *ChainBuilder
	listed  map[time.Time]map[string]decimal.Decimal // expiry -> strikes
}

// NewSeries starts an empty listing
func (b *ChainBuilder) NewSeries() *Series {
	return &Series{
		builder: b,
		listed:  make(map[time.Time]map[string]decimal.Decimal),
	}
}

// Next returns the chain quoted on asOf. Sessions must be passed in ascending
// order. An expiry is delisted after the first session on or after it, so a
// contract expiring on a market holiday is still quoted on the next session.
func (s *Series) Next(asOf time.Time, spot decimal.Decimal, vix float64) options.Chain {
	b := s.builder
	asOf = dateOnly(asOf)
	atm := spot.Div(b.StrikeStep).Round(0).Mul(b.StrikeStep)

	iv := vix / 100
	if iv <= 0 {
		iv = options.AssumedVolatility
	}

	for _, exp := range Expiries(asOf) {
		strikes, ok := s.listed[exp]
		if !ok {
			strikes = make(map[string]decimal.Decimal)
			s.listed[exp] = strikes
		}
		for step := -b.StrikesPerSide; step <= b.StrikesPerSide; step++ {
			strike := atm.Add(b.StrikeStep.Mul(decimal.NewFromInt(int64(step))))
			if strike.IsPositive() {
				strikes[strike.String()] = strike
			}
		}
	}

	expiries := make([]time.Time, 0, len(s.listed))
	size := 0
	for exp, strikes := range s.listed {
		expiries = append(expiries, exp)
		size += len(strikes) * 2
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i].Before(expiries[j]) })

	chain := make(options.Chain, 0, size)
	for _, exp := range expiries {
		for _, strike := range sortedStrikes(s.listed[exp]) {
			step := int(strike.Sub(atm).Div(b.StrikeStep).Round(0).IntPart())
			for _, typ := range []options.OptionType{options.OptionTypeCall, options.OptionTypePut} {
				chain = append(chain, b.contract(asOf, exp, spot, strike, typ, iv, step))
			}
		}
		if !exp.After(asOf) {
			delete(s.listed, exp)
		}
	}
	return chain
}

func sortedStrikes(strikes map[string]decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(strikes))
	for _, strike := range strikes {
		out = append(out, strike)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	return out
}

func (b *ChainBuilder) contract(asOf, exp time.Time, spot, strike decimal.Decimal, typ options.OptionType, iv float64, step int) options.Contract {
	greeks := b.model.Greeks(typ, spot, strike, exp, asOf)

	distance := step
	if distance < 0 {
		distance = -distance
	}
	// Liquidity thins out away from the money
	openInterest := int64(max(5000-400*distance, 100))
	volume := int64(max(1200-100*distance, 10))

	return options.Contract{
		ID:           b.contractID(exp, typ, strike),
		Strike:       strike,
		Expiration:   exp,
		Type:         typ,
		Premium:      b.model.Price(typ, spot, strike, exp, asOf),
		ImpliedVol:   iv,
		OpenInterest: openInterest,
		Volume:       volume,
		Delta:        b.model.Delta(typ, spot, strike),
		Gamma:        greeks.Gamma,
		Theta:        greeks.Theta,
		Vega:         greeks.Vega,
	}
}

// contractID renders ids like SPY-20240119-C-450
func (b *ChainBuilder) contractID(exp time.Time, typ options.OptionType, strike decimal.Decimal) string {
	return fmt.Sprintf("%s-%s-%s-%s", b.Underlying, exp.Format("20060102"), string(typ)[:1], strike.String())
}

// Expiries lists the next two weekly Friday expiries and the next two monthly
// (third Friday) expiries on or after asOf, sorted and deduplicated.
func Expiries(asOf time.Time) []time.Time {
	asOf = dateOnly(asOf)
	seen := make(map[time.Time]bool)
	var out []time.Time

	add := func(t time.Time) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}

	friday := nextFriday(asOf)
	for i := 0; i < weeklyExpiries; i++ {
		add(friday.AddDate(0, 0, 7*i))
	}

	month := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
	for found := 0; found < monthlyExpiries; month = month.AddDate(0, 1, 0) {
		third := ThirdFriday(month.Year(), month.Month())
		if third.Before(asOf) {
			continue
		}
		add(third)
		found++
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// nextFriday returns asOf if it is a Friday, otherwise the following Friday
func nextFriday(asOf time.Time) time.Time {
	offset := (int(time.Friday) - int(asOf.Weekday()) + 7) % 7
	return asOf.AddDate(0, 0, offset)
}

// ThirdFriday returns the standard monthly expiration date
func ThirdFriday(year int, month time.Month) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return nextFriday(first).AddDate(0, 0, 14)
}
