// Package optimizer runs an exhaustive grid search over strategy parameters
// and ranks the variants by Sharpe ratio.
package optimizer

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"slices"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/guyghost/optionsbacktest/internal/backtesting"
	"github.com/guyghost/optionsbacktest/internal/logger"
	"github.com/guyghost/optionsbacktest/internal/marketdata"
	"github.com/guyghost/optionsbacktest/internal/strategy"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Ranges lists candidate values per parameter. An empty list keeps the base
// strategy's value.
type Ranges struct {
	DeltaRanges   []strategy.DeltaRange
	PositionSizes []decimal.Decimal
	StopLosses    []float64
	ProfitTargets []float64
}

// Size returns the number of variants the ranges generate
func (r Ranges) Size() int {
	return max(1, len(r.DeltaRanges)) * max(1, len(r.PositionSizes)) *
		max(1, len(r.StopLosses)) * max(1, len(r.ProfitTargets))
}

// Outcome pairs a strategy variant with its backtest result
type Outcome struct {
	Variant *strategy.TradingStrategy
	Result  *backtesting.BacktestResult
}

// Optimizer runs variants in parallel over one shared dataset
type Optimizer struct {
	source  marketdata.Source
	engine  *backtesting.Engine
	workers int
	log     *logger.Logger

	onProgress func(done, total int)
}

// NewOptimizer creates an optimizer fetching from source
func NewOptimizer(source marketdata.Source) *Optimizer {
	return &Optimizer{
		source:  source,
		engine:  backtesting.NewEngine(source),
		workers: runtime.NumCPU(),
		log:     logger.Component("optimizer"),
	}
}

// SetWorkers bounds the number of variants simulated at once
func (o *Optimizer) SetWorkers(n int) {
	if n > 0 {
		o.workers = n
	}
}

// SetLogger replaces the optimizer and engine logger
func (o *Optimizer) SetLogger(l *logger.Logger) {
	if l != nil {
		o.log = l
		o.engine.SetLogger(l)
	}
}

// SetOnProgress sets a callback invoked after each finished variant.
// It may be called from several goroutines.
func (o *Optimizer) SetOnProgress(callback func(done, total int)) {
	o.onProgress = callback
}

// Optimize runs every variant of req.Strategy generated by ranges and returns
// the outcomes sorted by Sharpe ratio, best first. Cancellation is honored
// between variants; a variant already running completes.
func (o *Optimizer) Optimize(ctx context.Context, req backtesting.Request, ranges Ranges) ([]Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	variants := Variants(req.Strategy, ranges)
	for _, v := range variants {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("variant %s: %w", v.Name, err)
		}
	}

	data, err := o.source.FetchHistoricalData(ctx, req.StartDate, req.EndDate, req.DataSourceID)
	if err != nil {
		return nil, fmt.Errorf("fetch historical data: %w", err)
	}

	o.log.Info("Starting optimization", "base_strategy", req.Strategy.ID, "variants", len(variants), "workers", o.workers)

	outcomes := make([]Outcome, len(variants))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for i, variant := range variants {
		if err := gctx.Err(); err != nil {
			break
		}
		i, variant := i, variant
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			vreq := req
			vreq.Strategy = variant
			result, err := o.engine.Simulate(vreq, data)
			if err != nil {
				o.log.WithError(err).WithField("variant", variant.Name).Warn("Variant failed")
				return fmt.Errorf("variant %s: %w", variant.ID, err)
			}
			outcomes[i] = Outcome{Variant: variant, Result: result}

			n := int(done.Add(1))
			o.log.WithFields(map[string]any{
				"variant": variant.Name,
				"trades":  len(result.Trades),
				"sharpe":  result.Metrics.SharpeRatio,
			}).Debug("Variant completed", "done", n)
			if o.onProgress != nil {
				o.onProgress(n, len(variants))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	SortBySharpe(outcomes)
	if len(outcomes) > 0 {
		best := outcomes[0]
		o.log.Info("Optimization completed",
			"variants", len(outcomes),
			"best_variant", best.Variant.Name,
			"best_sharpe", best.Result.Metrics.SharpeRatio,
		)
	}
	return outcomes, nil
}

// Variants builds the cartesian product of ranges over base, delta ranges
// varying slowest. Variant ids are derived from the base id and the index.
func Variants(base *strategy.TradingStrategy, ranges Ranges) []*strategy.TradingStrategy {
	deltas := ranges.DeltaRanges
	if len(deltas) == 0 {
		deltas = []strategy.DeltaRange{base.DeltaRange}
	}
	sizes := ranges.PositionSizes
	if len(sizes) == 0 {
		sizes = []decimal.Decimal{base.MaxPositionSize}
	}
	stops := ranges.StopLosses
	if len(stops) == 0 {
		stops = []float64{base.MaxLossPercent}
	}
	targets := ranges.ProfitTargets
	if len(targets) == 0 {
		targets = []float64{base.ProfitTargetPercent}
	}

	variants := make([]*strategy.TradingStrategy, 0, ranges.Size())
	for _, delta := range deltas {
		for _, size := range sizes {
			for _, stop := range stops {
				for _, target := range targets {
					v := *base
					v.ExpiryPreferences = slices.Clone(base.ExpiryPreferences)
					v.MarketConditions = slices.Clone(base.MarketConditions)
					v.DeltaRange = delta
					v.MaxPositionSize = size
					v.MaxLossPercent = stop
					v.ProfitTargetPercent = target

					idx := len(variants)
					v.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d", base.ID, idx))).String()
					v.Name = fmt.Sprintf("%s [delta %.2f-%.2f, size %s, SL %g%%, PT %g%%]",
						base.Name, delta.Min, delta.Max, size.String(), stop, target)
					variants = append(variants, &v)
				}
			}
		}
	}
	return variants
}

// SortBySharpe orders outcomes by Sharpe ratio descending, keeping the
// generation order for ties and placing NaN last.
func SortBySharpe(outcomes []Outcome) {
	sort.SliceStable(outcomes, func(i, j int) bool {
		a := outcomes[i].Result.Metrics.SharpeRatio
		b := outcomes[j].Result.Metrics.SharpeRatio
		switch {
		case math.IsNaN(a):
			return false
		case math.IsNaN(b):
			return true
		}
		return a > b
	})
}
