package marketdata

import (
	"context"
	"time"

	"github.com/guyghost/optionsbacktest/internal/options"
)

// StaticSource serves a prepared dataset, trimmed to the requested range
type StaticSource struct {
	data *Dataset
}

// NewStaticSource wraps an in-memory dataset
func NewStaticSource(data *Dataset) *StaticSource {
	return &StaticSource{data: data}
}

// FetchHistoricalData implements Source
func (s *StaticSource) FetchHistoricalData(ctx context.Context, start, end time.Time, _ string) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.data.Len() == 0 {
		return nil, ErrNoData
	}

	out := &Dataset{}
	for i, bar := range s.data.Prices {
		if !inRange(bar.Date, start, end) {
			continue
		}
		out.Prices = append(out.Prices, bar)
		vix := VixPoint{Date: bar.Date}
		if i < len(s.data.Vix) {
			vix = s.data.Vix[i]
		}
		out.Vix = append(out.Vix, vix)

		var chain options.Chain
		if i < len(s.data.Chains) {
			chain = s.data.Chains[i]
		}
		out.Chains = append(out.Chains, chain)
	}

	if len(out.Prices) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}
