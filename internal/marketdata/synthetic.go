package marketdata

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// SyntheticConfig shapes the generated series
type SyntheticConfig struct {
	Seed         int64
	Underlying   string
	StartPrice   float64
	DailyDrift   float64
	DailyVol     float64
	VixMean      float64
	VixReversion float64
	VixNoise     float64
	VixFloor     float64
}

// DefaultSyntheticConfig returns an SPY-like random walk around 450
func DefaultSyntheticConfig(seed int64) SyntheticConfig {
	return SyntheticConfig{
		Seed:         seed,
		Underlying:   "SPY",
		StartPrice:   450,
		DailyDrift:   0.0003,
		DailyVol:     0.012,
		VixMean:      18,
		VixReversion: 0.1,
		VixNoise:     1.5,
		VixFloor:     10,
	}
}

// SyntheticSource generates prices, VIX and chains from a seeded generator.
// The same seed and range always yield the same dataset.
type SyntheticSource struct {
	config SyntheticConfig
	chains *ChainBuilder
}

// NewSyntheticSource creates a synthetic source
func NewSyntheticSource(config SyntheticConfig) *SyntheticSource {
	return &SyntheticSource{
		config: config,
		chains: NewChainBuilder(config.Underlying),
	}
}

// FetchHistoricalData implements Source
func (s *SyntheticSource) FetchHistoricalData(ctx context.Context, start, end time.Time, _ string) (*Dataset, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("synthetic: end %s before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	rng := rand.New(rand.NewSource(s.config.Seed))
	data := &Dataset{}
	series := s.chains.NewSeries()

	price := s.config.StartPrice
	vix := s.config.VixMean

	for day := dateOnly(start); !day.After(dateOnly(end)); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		open := price
		shock := rng.NormFloat64()
		price = price * math.Exp(s.config.DailyDrift-0.5*s.config.DailyVol*s.config.DailyVol+s.config.DailyVol*shock)

		wick := math.Abs(rng.NormFloat64()) * s.config.DailyVol * 0.5
		high := math.Max(open, price) * (1 + wick)
		low := math.Min(open, price) * (1 - wick)
		volume := 60_000_000 + rng.Float64()*40_000_000

		// Volatility spikes when the underlying drops
		vix += s.config.VixReversion*(s.config.VixMean-vix) + s.config.VixNoise*rng.NormFloat64() - 40*math.Min(0, math.Log(price/open))
		if vix < s.config.VixFloor {
			vix = s.config.VixFloor
		}
		vix = math.Round(vix*100) / 100

		bar := PriceBar{
			Date:   day,
			Open:   decimal.NewFromFloat(open).Round(2),
			High:   decimal.NewFromFloat(high).Round(2),
			Low:    decimal.NewFromFloat(low).Round(2),
			Close:  decimal.NewFromFloat(price).Round(2),
			Volume: decimal.NewFromFloat(volume).Round(0),
		}

		data.Prices = append(data.Prices, bar)
		data.Vix = append(data.Vix, VixPoint{Date: day, Value: vix})
		data.Chains = append(data.Chains, series.Next(day, bar.Close, vix))
	}

	if len(data.Prices) == 0 {
		return nil, ErrNoData
	}
	return data, nil
}
