package backtesting

import (
	"github.com/guyghost/optionsbacktest/pkg/utils"
	"github.com/shopspring/decimal"
)

// MaxDrawdown scans the curve once, tracking the running peak. The record
// keeps the date of the peak and of the deepest trough that followed it.
func MaxDrawdown(curve []EquityPoint) Drawdown {
	var dd Drawdown
	if len(curve) == 0 {
		return dd
	}

	hundred := decimal.NewFromInt(100)
	peak := curve[0].Equity
	peakDate := curve[0].Date
	dd.StartDate = peakDate
	dd.EndDate = peakDate

	for _, point := range curve {
		if point.Equity.GreaterThan(peak) {
			peak = point.Equity
			peakDate = point.Date
		}
		if !peak.IsPositive() {
			continue
		}

		amount := peak.Sub(point.Equity)
		pct := amount.Div(peak).Mul(hundred).InexactFloat64()
		if pct > dd.Percentage {
			dd.Amount = amount
			dd.Percentage = utils.ClampFloat(pct, 0, 100)
			dd.StartDate = peakDate
			dd.EndDate = point.Date
		}
	}
	return dd
}

// dailyReturns derives ret[i] = equity[i]/equity[i-1] - 1
func dailyReturns(curve []EquityPoint) []DailyReturn {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]DailyReturn, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		ret := 0.0
		if prev.IsPositive() {
			ret = curve[i].Equity.Div(prev).InexactFloat64() - 1
		}
		returns = append(returns, DailyReturn{Date: curve[i].Date, Return: ret})
	}
	return returns
}

// periodReturns partitions the curve by the layout-formatted date and returns
// last/first - 1 for each bucket in curve order.
func periodReturns(curve []EquityPoint, layout string) []PeriodReturn {
	var out []PeriodReturn
	var first decimal.Decimal

	for _, point := range curve {
		period := point.Date.Format(layout)
		if len(out) == 0 || out[len(out)-1].Period != period {
			out = append(out, PeriodReturn{Period: period, Start: point.Date})
			first = point.Equity
		}
		bucket := &out[len(out)-1]
		bucket.End = point.Date
		if first.IsPositive() {
			bucket.Return = point.Equity.Div(first).InexactFloat64() - 1
		}
	}
	return out
}
