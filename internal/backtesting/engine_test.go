package backtesting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"testing"
	"time"

	"github.com/guyghost/optionsbacktest/internal/logger"
	"github.com/guyghost/optionsbacktest/internal/market"
	"github.com/guyghost/optionsbacktest/internal/marketdata"
	"github.com/guyghost/optionsbacktest/internal/options"
	"github.com/guyghost/optionsbacktest/internal/strategy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	baseDate = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	capital  = decimal.NewFromInt(100000)
)

func day(n int) time.Time {
	return baseDate.AddDate(0, 0, n)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func quietEngine(source marketdata.Source) *Engine {
	engine := NewEngine(source)
	engine.SetLogger(logger.New(&logger.Config{Output: io.Discard}))
	return engine
}

func call(strike int64, expiration time.Time, premium string, delta float64) options.Contract {
	return options.Contract{
		ID:         fmt.Sprintf("SPY-%s-C-%d", expiration.Format("20060102"), strike),
		Strike:     decimal.NewFromInt(strike),
		Expiration: expiration,
		Type:       options.OptionTypeCall,
		Premium:    dec(premium),
		Delta:      delta,
	}
}

// dataset builds a flat 450 series with VIX 15 and the given chains per day
func dataset(chains ...options.Chain) *marketdata.Dataset {
	data := &marketdata.Dataset{}
	for i, chain := range chains {
		data.Prices = append(data.Prices, marketdata.PriceBar{Date: day(i), Close: decimal.NewFromInt(450)})
		data.Vix = append(data.Vix, marketdata.VixPoint{Date: day(i), Value: 15})
		data.Chains = append(data.Chains, chain)
	}
	return data
}

func testStrategy() *strategy.TradingStrategy {
	s := strategy.DefaultStrategy()
	s.ExpiryPreferences = []options.ExpiryBucket{options.ExpiryShortTerm, options.ExpiryWeekly, options.ExpiryMonthly}
	s.ProfitTargetPercent = 20
	s.MaxLossPercent = 50
	return s
}

func testSettings() *strategy.Settings {
	s := strategy.DefaultSettings()
	s.MaxSimultaneousTrades = 1
	s.MaxDailyTrades = 1
	return s
}

func request(s *strategy.TradingStrategy, settings *strategy.Settings, days int) Request {
	return Request{
		Strategy:       s,
		Settings:       settings,
		StartDate:      day(0),
		EndDate:        day(days - 1),
		InitialCapital: capital,
	}
}

func simulate(t *testing.T, req Request, data *marketdata.Dataset) *BacktestResult {
	t.Helper()
	result, err := quietEngine(nil).Simulate(req, data)
	require.NoError(t, err)
	require.NotEmpty(t, result.EquityCurve)
	assert.True(t, result.EquityCurve[0].Equity.Equal(req.InitialCapital), "equity starts at initial capital")
	return result
}

func TestEngine_ProfitTarget(t *testing.T) {
	exp := day(40)
	data := dataset(
		options.Chain{call(450, exp, "10", 0.5)},
		options.Chain{call(450, exp, "13", 0.2)},
		options.Chain{call(450, exp, "14", 0.2)},
	)

	result := simulate(t, request(testStrategy(), testSettings(), 3), data)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, StatusClosed, trade.Status)
	assert.Equal(t, CloseProfitTarget, trade.CloseReason)
	require.NotNil(t, trade.ClosedAt)
	assert.Equal(t, day(1), *trade.ClosedAt)
	assert.Equal(t, int64(5), trade.Quantity)
	assert.True(t, trade.TargetPremium.Equal(dec("12")))
	assert.True(t, trade.StopPremium.Equal(dec("5")))
	assert.True(t, trade.Profit.Equal(dec("1500")), "profit %s", trade.Profit)
	assert.True(t, trade.CurrentPremium.Equal(dec("13")), "closed trade keeps its closing mark")
	assert.InDelta(t, 30.0, trade.ProfitPercent, 1e-9)
	assert.InDelta(t, 0.7, trade.ConfidenceScore, 1e-9)
	assert.Equal(t, market.ConditionNeutral, trade.Condition)

	assert.True(t, result.FinalCapital.Equal(dec("101500")), "final %s", result.FinalCapital)
	assert.Equal(t, 1, result.Metrics.TotalTrades)
	assert.Equal(t, 1.0, result.Metrics.WinRate)
	assert.True(t, math.IsInf(result.Metrics.ProfitFactor, 1), "only winners yield an infinite profit factor")
}

func TestEngine_StopBeatsTarget(t *testing.T) {
	s := testStrategy()
	s.MaxLossPercent = 0
	s.ProfitTargetPercent = 0

	exp := day(40)
	data := dataset(
		options.Chain{call(450, exp, "10", 0.5)},
		options.Chain{call(450, exp, "10", 0.2)},
	)

	result := simulate(t, request(s, testSettings(), 2), data)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.True(t, trade.StopPremium.Equal(trade.TargetPremium))
	assert.Equal(t, CloseStopLoss, trade.CloseReason)
	assert.Equal(t, day(1), *trade.ClosedAt)
	assert.True(t, trade.Profit.IsZero())
}

func TestEngine_StopLoss(t *testing.T) {
	exp := day(40)
	data := dataset(
		options.Chain{call(450, exp, "10", 0.5)},
		options.Chain{call(450, exp, "6", 0.2)},
		options.Chain{call(450, exp, "4", 0.2)},
	)

	result := simulate(t, request(testStrategy(), testSettings(), 3), data)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, CloseStopLoss, trade.CloseReason)
	assert.Equal(t, day(2), *trade.ClosedAt)
	assert.True(t, trade.Profit.Equal(dec("-3000")))
	assert.True(t, result.FinalCapital.Equal(dec("97000")))
	assert.Equal(t, 0.0, result.Metrics.ProfitFactor)
}

func TestEngine_Expiry(t *testing.T) {
	exp := day(3)
	chains := make([]options.Chain, 5)
	chains[0] = options.Chain{call(450, exp, "10", 0.5)}
	for i := 1; i < 5; i++ {
		chains[i] = options.Chain{call(450, exp, "9", 0.2)}
	}

	result := simulate(t, request(testStrategy(), testSettings(), 5), dataset(chains...))

	require.Len(t, result.Trades, 1)
	assert.Equal(t, CloseExpired, result.Trades[0].CloseReason)
	assert.Equal(t, exp, *result.Trades[0].ClosedAt)
}

func TestEngine_SkipsContractsExpiringToday(t *testing.T) {
	data := dataset(options.Chain{call(450, day(0), "10", 0.5)})

	result := simulate(t, request(testStrategy(), testSettings(), 1), data)
	assert.Empty(t, result.Trades)
}

func TestEngine_DataGapHoldsPosition(t *testing.T) {
	exp := day(2)
	data := dataset(
		options.Chain{call(450, exp, "10", 0.5)},
		nil,
		nil,
		nil,
	)

	result := simulate(t, request(testStrategy(), testSettings(), 4), data)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, StatusActive, trade.Status, "missing contract is held, expiry is not evaluated")
	assert.Nil(t, trade.ClosedAt)
	assert.True(t, trade.CurrentPremium.Equal(dec("10")))

	assert.Equal(t, 0, result.Metrics.TotalTrades)
	assert.Equal(t, 1, result.Metrics.OpenTrades)
	for _, point := range result.EquityCurve {
		assert.True(t, point.Equity.Equal(capital), "open position is marked at its last premium")
	}
}

func TestEngine_Gates(t *testing.T) {
	exp := day(40)
	firstDay := options.Chain{call(445, exp, "10", 0.5), call(450, exp, "10", 0.5), call(455, exp, "10", 0.5), call(460, exp, "10", 0.5)}
	later := options.Chain{call(445, exp, "10", 0.2), call(450, exp, "10", 0.2), call(455, exp, "10", 0.2), call(460, exp, "10", 0.2)}

	tests := []struct {
		name          string
		simultaneous  int
		daily         int
		wantOpenTrade int
	}{
		{"daily cap", 5, 2, 2},
		{"simultaneous cap", 1, 5, 1},
		{"top three only", 5, 5, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testSettings()
			settings.MaxSimultaneousTrades = tt.simultaneous
			settings.MaxDailyTrades = tt.daily
			settings.PositionSizing.Percent = 1

			result := simulate(t, request(testStrategy(), settings, 2), dataset(firstDay, later))
			assert.Len(t, result.Trades, tt.wantOpenTrade)
			for _, trade := range result.Trades {
				assert.Equal(t, day(0), trade.OpenedAt)
			}
		})
	}
}

func TestEngine_RanksByAbsoluteDelta(t *testing.T) {
	s := testStrategy()
	s.OptionType = strategy.FilterBoth
	exp := day(40)

	put := call(440, exp, "10", -0.6)
	put.Type = options.OptionTypePut
	data := dataset(options.Chain{call(450, exp, "10", 0.45), put, call(455, exp, "10", 0.5)})

	result := simulate(t, request(s, testSettings(), 1), data)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, options.OptionTypePut, result.Trades[0].Type)
	assert.InDelta(t, 0.74, result.Trades[0].ConfidenceScore, 1e-9)
}

func TestEngine_EntryFilters(t *testing.T) {
	exp := day(40)
	data := dataset(options.Chain{call(450, exp, "10", 0.5)})

	t.Run("confidence below minimum", func(t *testing.T) {
		settings := testSettings()
		settings.MinimumConfidenceScore = 0.75
		assert.Empty(t, simulate(t, request(testStrategy(), settings, 1), data).Trades)
	})

	t.Run("market affinity", func(t *testing.T) {
		s := testStrategy()
		s.MarketConditions = []market.Condition{market.ConditionBullish}
		assert.Empty(t, simulate(t, request(s, testSettings(), 1), data).Trades)
	})

	t.Run("expiry preference", func(t *testing.T) {
		s := testStrategy()
		s.ExpiryPreferences = []options.ExpiryBucket{options.ExpiryWeekly}
		assert.Empty(t, simulate(t, request(s, testSettings(), 1), data).Trades)
	})

	t.Run("option type", func(t *testing.T) {
		s := testStrategy()
		s.OptionType = strategy.FilterPut
		assert.Empty(t, simulate(t, request(s, testSettings(), 1), data).Trades)
	})

	t.Run("position size too small", func(t *testing.T) {
		s := testStrategy()
		s.MaxPositionSize = decimal.NewFromInt(500)
		assert.Empty(t, simulate(t, request(s, testSettings(), 1), data).Trades)
	})
}

func TestEngine_Sizing(t *testing.T) {
	exp := day(40)
	calm := dataset(options.Chain{call(450, exp, "10", 0.5)})

	volatile := dataset(options.Chain{call(450, exp, "10", 0.5)})
	volatile.Vix[0].Value = 30

	tests := []struct {
		name   string
		data   *marketdata.Dataset
		mutate func(*strategy.Settings)
		want   int64
	}{
		{"percentage", calm, func(*strategy.Settings) {}, 5},
		{"percentage capped by max position", calm, func(s *strategy.Settings) { s.PositionSizing.Percent = 20 }, 5},
		{"fixed amount", calm, func(s *strategy.Settings) {
			s.PositionSizing.Method = strategy.SizingFixed
			s.PositionSizing.FixedAmount = decimal.NewFromInt(3000)
		}, 3},
		{"kelly falls back to percent", calm, func(s *strategy.Settings) {
			s.PositionSizing.Method = strategy.SizingKelly
			s.PositionSizing.Percent = 2
		}, 2},
		{"volatile override halves risk", volatile, func(*strategy.Settings) {}, 2},
		{"disabled override", volatile, func(s *strategy.Settings) {
			s.MarketConditionOverrides[market.ConditionVolatile] = strategy.RiskOverride{Enabled: false, AdjustedRisk: 0.5}
		}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testSettings()
			tt.mutate(settings)

			result := simulate(t, request(testStrategy(), settings, 1), tt.data)
			require.Len(t, result.Trades, 1)
			assert.Equal(t, tt.want, result.Trades[0].Quantity)
		})
	}
}

func TestEngine_CommissionsAndTaxes(t *testing.T) {
	exp := day(40)
	data := dataset(
		options.Chain{call(450, exp, "10", 0.5)},
		options.Chain{call(450, exp, "13", 0.2)},
	)

	req := request(testStrategy(), testSettings(), 2)
	req.IncludeCommissions = true
	req.CommissionPerTrade = dec("1")
	req.IncludeTaxes = true
	req.TaxRate = 0.25

	result := simulate(t, req, data)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.True(t, trade.Commission.Equal(dec("2")))
	assert.True(t, trade.Tax.Equal(dec("375")))
	assert.True(t, trade.NetProfit().Equal(dec("1123")))
	assert.True(t, result.FinalCapital.Equal(dec("101123")), "final %s", result.FinalCapital)
	assert.True(t, result.EquityCurve[1].Equity.Equal(dec("99999")), "entry commission leaves the account")
	assert.True(t, result.Metrics.TotalFees.Equal(dec("377")))
}

func TestEngine_Callbacks(t *testing.T) {
	exp := day(40)
	data := dataset(
		options.Chain{call(450, exp, "10", 0.5)},
		options.Chain{call(450, exp, "13", 0.2)},
	)

	engine := quietEngine(nil)
	var events []TradeEvent
	var points []EquityPoint
	engine.SetOnTrade(func(event TradeEvent, trade *SimulatedTrade) {
		events = append(events, event)
		trade.Quantity = 999 // callbacks receive a copy
	})
	engine.SetOnEquityUpdate(func(point EquityPoint) {
		points = append(points, point)
	})

	result, err := engine.Simulate(request(testStrategy(), testSettings(), 2), data)
	require.NoError(t, err)

	assert.Equal(t, []TradeEvent{TradeOpened, TradeClosed}, events)
	assert.Equal(t, result.EquityCurve, points)
	assert.Equal(t, int64(5), result.Trades[0].Quantity)
}

func flatSeries(days int) *marketdata.Dataset {
	builder := marketdata.NewChainBuilder("SPY")
	spot := decimal.NewFromInt(450)
	data := &marketdata.Dataset{}
	for d := baseDate; data.Len() < days; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		data.Prices = append(data.Prices, marketdata.PriceBar{Date: d, Open: spot, High: spot, Low: spot, Close: spot})
		data.Vix = append(data.Vix, marketdata.VixPoint{Date: d, Value: 15})
		data.Chains = append(data.Chains, builder.Build(d, spot, 15))
	}
	return data
}

func TestEngine_FlatMarket(t *testing.T) {
	data := flatSeries(30)
	req := request(strategy.DefaultStrategy(), strategy.DefaultSettings(), 1)
	req.EndDate = data.Prices[len(data.Prices)-1].Date

	t.Run("no contract in delta range", func(t *testing.T) {
		s := strategy.DefaultStrategy()
		s.DeltaRange = strategy.DeltaRange{Min: 0.55, Max: 0.6}
		r := req
		r.Strategy = s

		result := simulate(t, r, data)
		assert.Empty(t, result.Trades)
		assert.True(t, result.FinalCapital.Equal(capital))
		for _, point := range result.EquityCurve {
			assert.True(t, point.Equity.Equal(capital))
		}
		assert.Equal(t, 0.0, result.MaxDrawdown.Percentage)
	})

	t.Run("at the money delta admits trades", func(t *testing.T) {
		// Near-the-money strikes carry the 0.5 delta zone, and a flat spot only decays time value
		result := simulate(t, req, data)
		require.NotEmpty(t, result.Trades)
		assert.Equal(t, 0, result.Metrics.SuccessfulTrades)
		assert.True(t, result.FinalCapital.LessThanOrEqual(capital))
		for _, trade := range result.Trades {
			assert.True(t, trade.CurrentPremium.LessThanOrEqual(trade.EntryPremium))
		}
	})
}

func syntheticRequest() Request {
	settings := strategy.DefaultSettings()
	settings.MaxDailyTrades = 2
	settings.MaxSimultaneousTrades = 4

	s := strategy.DefaultStrategy()
	s.OptionType = strategy.FilterBoth
	s.MaxLossPercent = 40
	s.ProfitTargetPercent = 60

	req := NewRequest(s, settings)
	req.StartDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	req.EndDate = time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)
	return req
}

func TestEngine_RunIsDeterministic(t *testing.T) {
	req := syntheticRequest()

	first, err := quietEngine(marketdata.NewSyntheticSource(marketdata.DefaultSyntheticConfig(42))).Run(context.Background(), req)
	require.NoError(t, err)
	second, err := quietEngine(marketdata.NewSyntheticSource(marketdata.DefaultSyntheticConfig(42))).Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.Trades)

	var a, b bytes.Buffer
	require.NoError(t, WriteTradesCSV(&a, first.Trades))
	require.NoError(t, WriteEquityCSV(&a, first.EquityCurve))
	require.NoError(t, WriteTradesCSV(&b, second.Trades))
	require.NoError(t, WriteEquityCSV(&b, second.EquityCurve))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestEngine_Invariants(t *testing.T) {
	req := syntheticRequest()
	data, err := marketdata.NewSyntheticSource(marketdata.DefaultSyntheticConfig(7)).
		FetchHistoricalData(context.Background(), req.StartDate, req.EndDate, "synthetic")
	require.NoError(t, err)

	engine := quietEngine(nil)
	closedSnapshots := make(map[string]SimulatedTrade)
	engine.SetOnTrade(func(event TradeEvent, trade *SimulatedTrade) {
		if event == TradeClosed {
			closedSnapshots[trade.ID] = *trade
		}
	})

	result, err := engine.Simulate(req, data)
	require.NoError(t, err)
	require.NotEmpty(t, result.ClosedTrades())

	t.Run("equity starts at initial capital", func(t *testing.T) {
		assert.True(t, result.EquityCurve[0].Equity.Equal(req.InitialCapital))
		assert.Len(t, result.EquityCurve, data.Len()+1)
	})

	t.Run("profit identity", func(t *testing.T) {
		for _, trade := range result.Trades {
			want := trade.CurrentPremium.Sub(trade.EntryPremium).Mul(decimal.NewFromInt(100)).Mul(decimal.NewFromInt(trade.Quantity))
			assert.True(t, trade.Profit.Equal(want), "trade %s", trade.ID)
		}
	})

	t.Run("closed trades are frozen", func(t *testing.T) {
		for _, trade := range result.ClosedTrades() {
			snapshot, ok := closedSnapshots[trade.ID]
			require.True(t, ok)
			assert.True(t, snapshot.CurrentPremium.Equal(trade.CurrentPremium))
			assert.True(t, snapshot.Profit.Equal(trade.Profit))
		}
	})

	t.Run("capital conservation", func(t *testing.T) {
		for i := 0; i < data.Len(); i++ {
			date := data.Prices[i].Date
			point := result.EquityCurve[i+1]

			marked := decimal.Zero
			for _, trade := range result.Trades {
				if trade.OpenedAt.After(date) || (trade.ClosedAt != nil && !trade.ClosedAt.After(date)) {
					continue
				}
				marked = marked.Add(markOn(data, trade, i).Mul(decimal.NewFromInt(100)).Mul(decimal.NewFromInt(trade.Quantity)))
			}
			assert.True(t, point.Equity.Equal(point.Cash.Add(marked)), "day %s", date.Format(time.DateOnly))
		}
	})

	t.Run("win rate identity", func(t *testing.T) {
		m := result.Metrics
		assert.InDelta(t, float64(m.SuccessfulTrades), m.WinRate*float64(m.TotalTrades), 1e-9)
		assert.Equal(t, m.TotalTrades, m.SuccessfulTrades+m.FailedTrades)
	})

	t.Run("no trade outlives its expiry", func(t *testing.T) {
		last := data.Prices[data.Len()-1].Date
		for _, trade := range result.Trades {
			if trade.ClosedAt == nil {
				assert.False(t, trade.Expiration.Before(last), "trade %s active past %s", trade.ID, trade.Expiration.Format(time.DateOnly))
				continue
			}
			assert.False(t, trade.ClosedAt.After(trade.Expiration), "trade %s closed after expiry", trade.ID)
		}
	})

	t.Run("drawdown bounds", func(t *testing.T) {
		assert.GreaterOrEqual(t, result.MaxDrawdown.Percentage, 0.0)
		assert.LessOrEqual(t, result.MaxDrawdown.Percentage, 100.0)
		assert.False(t, result.MaxDrawdown.EndDate.Before(result.MaxDrawdown.StartDate))
	})
}

// markOn replays the mark of trade at the close of day i: the latest quote
// found in the chains since entry.
func markOn(data *marketdata.Dataset, trade SimulatedTrade, i int) decimal.Decimal {
	mark := trade.EntryPremium
	key := trade.Key()
	for j := 0; j <= i; j++ {
		if data.Prices[j].Date.Before(trade.OpenedAt) {
			continue
		}
		if contract, ok := data.ChainAt(j).Index()[key]; ok {
			mark = contract.Premium
		}
	}
	return mark
}

func TestEngine_RejectsInvalidInput(t *testing.T) {
	data := dataset(options.Chain{call(450, day(40), "10", 0.5)})

	tests := []struct {
		name   string
		mutate func(*Request)
		want   error
	}{
		{"empty expiry preferences", func(r *Request) { r.Strategy.ExpiryPreferences = nil }, strategy.ErrInvalidStrategy},
		{"no daily trades", func(r *Request) { r.Settings.MaxDailyTrades = 0 }, strategy.ErrInvalidSettings},
		{"non-positive capital", func(r *Request) { r.InitialCapital = decimal.Zero }, strategy.ErrInvalidRequest},
		{"end before start", func(r *Request) { r.EndDate = r.StartDate.AddDate(0, 0, -1) }, strategy.ErrInvalidRequest},
		{"tax rate", func(r *Request) { r.TaxRate = 1.5 }, strategy.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request(testStrategy(), testSettings(), 1)
			tt.mutate(&req)

			_, err := quietEngine(nil).Simulate(req, data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestEngine_RunErrors(t *testing.T) {
	req := request(testStrategy(), testSettings(), 5)

	_, err := quietEngine(nil).Run(context.Background(), req)
	assert.Error(t, err)

	_, err = quietEngine(marketdata.NewStaticSource(&marketdata.Dataset{})).Run(context.Background(), req)
	assert.ErrorIs(t, err, marketdata.ErrNoData)

	_, err = quietEngine(nil).Simulate(req, &marketdata.Dataset{})
	assert.ErrorIs(t, err, marketdata.ErrNoData)
}

func TestEngine_LongRunKeepsTrading(t *testing.T) {
	for _, seed := range []int64{1, 42, 99} {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			req := syntheticRequest()
			req.StartDate = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
			req.EndDate = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

			result, err := quietEngine(marketdata.NewSyntheticSource(marketdata.DefaultSyntheticConfig(seed))).Run(context.Background(), req)
			require.NoError(t, err)
			require.NotEmpty(t, result.Trades)

			last := result.EquityCurve[len(result.EquityCurve)-1].Date
			quarters := make(map[string]bool)
			var lastOpen time.Time
			for _, trade := range result.Trades {
				quarters[fmt.Sprintf("%d-Q%d", trade.OpenedAt.Year(), (int(trade.OpenedAt.Month())-1)/3+1)] = true
				if trade.OpenedAt.After(lastOpen) {
					lastOpen = trade.OpenedAt
				}
				if trade.ClosedAt == nil {
					assert.False(t, trade.Expiration.Before(last), "trade %s active past expiry", trade.ID)
					continue
				}
				assert.False(t, trade.ClosedAt.After(trade.Expiration), "trade %s closed after expiry", trade.ID)
			}

			assert.Len(t, quarters, 8, "trades open in every quarter")
			assert.True(t, lastOpen.After(req.EndDate.AddDate(0, -3, 0)), "last open %s", lastOpen.Format(time.DateOnly))
			assert.LessOrEqual(t, len(result.Trades)-result.Metrics.TotalTrades, req.Settings.MaxSimultaneousTrades)
		})
	}
}

func TestEngine_OpeningPointDatedOnStart(t *testing.T) {
	data := dataset(options.Chain{}, options.Chain{})

	req := request(testStrategy(), testSettings(), 2)
	result := simulate(t, req, data)
	require.Len(t, result.EquityCurve, 3)
	assert.Equal(t, day(0), result.EquityCurve[0].Date)
	assert.True(t, result.EquityCurve[0].Cash.Equal(capital))

	// window opens on a weekend before the first session
	req.StartDate = day(-2)
	result = simulate(t, req, data)
	assert.Equal(t, day(-2), result.EquityCurve[0].Date)
	assert.Equal(t, day(0), result.EquityCurve[1].Date)
	assert.Equal(t, day(1), result.EquityCurve[2].Date)
}
