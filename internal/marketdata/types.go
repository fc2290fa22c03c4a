// Package marketdata supplies the daily price, VIX and option chain series a
// backtest replays.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/guyghost/optionsbacktest/internal/options"
	"github.com/shopspring/decimal"
)

var (
	ErrNoData        = errors.New("no price data in range")
	ErrUnknownSource = errors.New("unknown data source")
)

// PriceBar is one daily OHLCV bar of the underlying
type PriceBar struct {
	Date   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// VixPoint is the closing VIX level of one day
type VixPoint struct {
	Date  time.Time
	Value float64
}

// Dataset is an already-materialized series. Prices, Vix and Chains are
// aligned by index: Vix[i] and Chains[i] belong to Prices[i].
type Dataset struct {
	Prices []PriceBar
	Vix    []VixPoint
	Chains []options.Chain
}

// Len returns the number of trading days
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Prices)
}

// Closes returns the close series
func (d *Dataset) Closes() []decimal.Decimal {
	closes := make([]decimal.Decimal, len(d.Prices))
	for i, bar := range d.Prices {
		closes[i] = bar.Close
	}
	return closes
}

// VixAt returns the VIX of day i, 0 when missing
func (d *Dataset) VixAt(i int) float64 {
	if i < 0 || i >= len(d.Vix) {
		return 0
	}
	return d.Vix[i].Value
}

// ChainAt returns the option chain of day i, empty when missing
func (d *Dataset) ChainAt(i int) options.Chain {
	if i < 0 || i >= len(d.Chains) {
		return nil
	}
	return d.Chains[i]
}

// Source supplies historical data for a date range.
// Implementations must not retry; callers treat the result as read-only.
type Source interface {
	FetchHistoricalData(ctx context.Context, start, end time.Time, dataSourceID string) (*Dataset, error)
}

// dateOnly truncates t to a UTC calendar date
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// inRange reports whether the date of t lies within [start, end]
func inRange(t, start, end time.Time) bool {
	d := dateOnly(t)
	return !d.Before(dateOnly(start)) && !d.After(dateOnly(end))
}

// alignVix matches VIX points to price dates, carrying the previous level
// forward over gaps.
func alignVix(prices []PriceBar, points []VixPoint) []VixPoint {
	byDate := make(map[time.Time]float64, len(points))
	for _, p := range points {
		byDate[dateOnly(p.Date)] = p.Value
	}

	aligned := make([]VixPoint, len(prices))
	last := 0.0
	for i, bar := range prices {
		if v, ok := byDate[dateOnly(bar.Date)]; ok {
			last = v
		}
		aligned[i] = VixPoint{Date: bar.Date, Value: last}
	}
	return aligned
}
