package backtesting

import (
	"math"
	"sort"
	"time"

	"github.com/guyghost/optionsbacktest/internal/marketdata"
	"github.com/guyghost/optionsbacktest/pkg/utils"
	"github.com/shopspring/decimal"
)

const (
	// RiskFreeRate is the annual rate subtracted in the Sharpe and Sortino ratios
	RiskFreeRate = 0.02

	// TradingDaysPerYear annualizes daily volatility
	TradingDaysPerYear = 252

	// sortinoEpsilon replaces a zero downside deviation
	sortinoEpsilon = 1e-9
)

// tradeSummary aggregates closed trades
type tradeSummary struct {
	total       int
	wins        int
	failed      int
	grossProfit decimal.Decimal
	grossLoss   decimal.Decimal // positive amount
	best        decimal.Decimal
	worst       decimal.Decimal
}

func summarizeTrades(closed []SimulatedTrade) tradeSummary {
	sum := tradeSummary{total: len(closed)}
	for i, t := range closed {
		if i == 0 || t.Profit.GreaterThan(sum.best) {
			sum.best = t.Profit
		}
		if i == 0 || t.Profit.LessThan(sum.worst) {
			sum.worst = t.Profit
		}

		if t.Profit.IsPositive() {
			sum.wins++
			sum.grossProfit = sum.grossProfit.Add(t.Profit)
		} else {
			sum.failed++
			sum.grossLoss = sum.grossLoss.Add(t.Profit.Neg())
		}
	}
	return sum
}

func (s tradeSummary) winRate() float64 {
	if s.total == 0 {
		return 0
	}
	return float64(s.wins) / float64(s.total)
}

func (s tradeSummary) averageWin() decimal.Decimal {
	if s.wins == 0 {
		return decimal.Zero
	}
	return s.grossProfit.Div(decimal.NewFromInt(int64(s.wins)))
}

func (s tradeSummary) averageLoss() decimal.Decimal {
	if s.failed == 0 {
		return decimal.Zero
	}
	return s.grossLoss.Div(decimal.NewFromInt(int64(s.failed)))
}

// profitFactor is +Inf with profits and no losses, 0 with neither
func (s tradeSummary) profitFactor() float64 {
	if s.grossLoss.IsZero() {
		if s.grossProfit.IsPositive() {
			return math.Inf(1)
		}
		return 0
	}
	return s.grossProfit.Div(s.grossLoss).InexactFloat64()
}

// kellyPercentage is (W - (1-W)/R) * 100 with R = averageWin/averageLoss,
// or 0 when either average is zero.
func kellyPercentage(s tradeSummary) float64 {
	avgWin := s.averageWin()
	avgLoss := s.averageLoss()
	if !avgWin.IsPositive() || !avgLoss.IsPositive() {
		return 0
	}
	w := s.winRate()
	ratio := avgWin.Div(avgLoss).InexactFloat64()
	return (w - (1-w)/ratio) * 100
}

// streaks returns the longest runs of wins and losses in open order
func streaks(closed []SimulatedTrade) (wins, losses int) {
	ordered := make([]SimulatedTrade, len(closed))
	copy(ordered, closed)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OpenedAt.Before(ordered[j].OpenedAt)
	})

	var curWins, curLosses int
	for _, t := range ordered {
		if t.Profit.IsPositive() {
			curWins++
			curLosses = 0
		} else {
			curLosses++
			curWins = 0
		}
		wins = max(wins, curWins)
		losses = max(losses, curLosses)
	}
	return wins, losses
}

// annualizedReturn is (final/initial)^(1/years) - 1 with years = (end-start)/365 days
func annualizedReturn(initial, final decimal.Decimal, start, end time.Time) float64 {
	years := end.Sub(start).Hours() / 24 / 365
	if years <= 0 || !initial.IsPositive() {
		return 0
	}
	ratio := final.Div(initial).InexactFloat64()
	if ratio <= 0 {
		return -1
	}
	return math.Pow(ratio, 1/years) - 1
}

// CalculateMetrics derives the performance record of a finished run.
// Trade statistics use closed trades only; open trades are reflected through
// the equity curve.
func CalculateMetrics(result *BacktestResult, prices []marketdata.PriceBar) PerformanceMetrics {
	closed := result.ClosedTrades()
	sum := summarizeTrades(closed)

	m := PerformanceMetrics{
		TotalTrades:      sum.total,
		SuccessfulTrades: sum.wins,
		FailedTrades:     sum.failed,
		OpenTrades:       len(result.Trades) - len(closed),
		WinRate:          sum.winRate(),
		ProfitFactor:     sum.profitFactor(),
		NetProfit:        sum.grossProfit.Sub(sum.grossLoss),
		TotalProfit:      sum.grossProfit,
		TotalLoss:        sum.grossLoss,
		AverageWin:       sum.averageWin(),
		AverageLoss:      sum.averageLoss(),
		BestTrade:        sum.best,
		WorstTrade:       sum.worst,
		KellyPercentage:  kellyPercentage(sum),
	}
	m.ConsecutiveWins, m.ConsecutiveLosses = streaks(closed)

	for _, t := range result.Trades {
		m.TotalFees = m.TotalFees.Add(t.Commission).Add(t.Tax)
	}

	m.DailyReturns = dailyReturns(result.EquityCurve)
	m.MonthlyReturns = periodReturns(result.EquityCurve, "2006-01")
	m.AnnualReturns = periodReturns(result.EquityCurve, "2006")

	returns := make([]float64, len(m.DailyReturns))
	for i, r := range m.DailyReturns {
		returns[i] = r.Return
	}
	m.ReturnsVolatility = utils.StdDev(returns)

	annualized := annualizedReturn(result.InitialCapital, result.FinalCapital, result.StartDate, result.EndDate)
	sqrtYear := math.Sqrt(TradingDaysPerYear)

	if m.ReturnsVolatility > 0 {
		m.SharpeRatio = (annualized - RiskFreeRate) / (m.ReturnsVolatility * sqrtYear)
	}

	downside := utils.DownsideDeviation(returns) * sqrtYear
	if downside == 0 {
		downside = sortinoEpsilon
	}
	m.SortinoRatio = (annualized - RiskFreeRate) / downside

	if dd := result.MaxDrawdown.Percentage; dd > 0 {
		m.CalmarRatio = annualized / (dd / 100)
	} else {
		m.CalmarRatio = annualized
	}

	if result.InitialCapital.IsPositive() {
		m.TotalReturnPercent = utils.PercentChange(result.InitialCapital, result.FinalCapital).InexactFloat64()
	}
	m.Benchmark = benchmark(prices, m.TotalReturnPercent)
	return m
}

// benchmark compares the strategy return with buying and holding the underlying
func benchmark(prices []marketdata.PriceBar, strategyReturn float64) BenchmarkComparison {
	cmp := BenchmarkComparison{StrategyReturn: strategyReturn}
	if len(prices) > 0 {
		first := prices[0].Close
		last := prices[len(prices)-1].Close
		if first.IsPositive() {
			cmp.UnderlyingReturn = utils.PercentChange(first, last).InexactFloat64()
		}
	}
	cmp.Outperformance = cmp.StrategyReturn - cmp.UnderlyingReturn
	return cmp
}
