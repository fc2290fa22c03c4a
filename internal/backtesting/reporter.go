package backtesting

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Reporter generates reports from backtesting results
type Reporter struct{}

// NewReporter creates a new reporter
func NewReporter() *Reporter {
	return &Reporter{}
}

// GenerateReport generates a formatted text report
func (r *Reporter) GenerateReport(result *BacktestResult) string {
	var sb strings.Builder
	m := result.Metrics

	sb.WriteString("═══════════════════════════════════════════════════════\n")
	sb.WriteString("           OPTIONS BACKTEST PERFORMANCE REPORT\n")
	sb.WriteString("═══════════════════════════════════════════════════════\n\n")

	sb.WriteString(fmt.Sprintf("Strategy:             %s (%s)\n", result.StrategyName, result.StrategyID))
	sb.WriteString(fmt.Sprintf("Risk Profile:         %s\n", result.RiskProfile))
	sb.WriteString(fmt.Sprintf("Period:               %s → %s\n\n",
		result.StartDate.Format(time.DateOnly), result.EndDate.Format(time.DateOnly)))

	// Overall Performance
	sb.WriteString("📊 OVERALL PERFORMANCE\n")
	sb.WriteString("───────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("Initial Capital:      $%s\n", result.InitialCapital.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Final Capital:        $%s (%.2f%%)\n",
		result.FinalCapital.StringFixed(2), m.TotalReturnPercent))
	sb.WriteString(fmt.Sprintf("Annualized Return:    %.2f%%\n", result.AnnualizedReturn*100))
	sb.WriteString(fmt.Sprintf("Max Drawdown:         $%s (%.2f%%) %s → %s\n",
		result.MaxDrawdown.Amount.StringFixed(2),
		result.MaxDrawdown.Percentage,
		result.MaxDrawdown.StartDate.Format(time.DateOnly),
		result.MaxDrawdown.EndDate.Format(time.DateOnly)))
	sb.WriteString(fmt.Sprintf("Sharpe Ratio:         %.2f\n", m.SharpeRatio))
	sb.WriteString(fmt.Sprintf("Sortino Ratio:        %s\n", formatRatio(m.SortinoRatio)))
	sb.WriteString(fmt.Sprintf("Calmar Ratio:         %.2f\n", m.CalmarRatio))
	sb.WriteString(fmt.Sprintf("Daily Volatility:     %.4f\n", m.ReturnsVolatility))
	sb.WriteString(fmt.Sprintf("Underlying Return:    %.2f%% (outperformance %.2f%%)\n\n",
		m.Benchmark.UnderlyingReturn, m.Benchmark.Outperformance))

	// Trade Statistics
	sb.WriteString("📈 TRADE STATISTICS\n")
	sb.WriteString("───────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("Closed Trades:        %d\n", m.TotalTrades))
	sb.WriteString(fmt.Sprintf("Open At End:          %d\n", m.OpenTrades))
	sb.WriteString(fmt.Sprintf("Winning Trades:       %d\n", m.SuccessfulTrades))
	sb.WriteString(fmt.Sprintf("Losing Trades:        %d\n", m.FailedTrades))
	sb.WriteString(fmt.Sprintf("Win Rate:             %.2f%%\n", m.WinRate*100))
	sb.WriteString(fmt.Sprintf("Longest Win Streak:   %d\n", m.ConsecutiveWins))
	sb.WriteString(fmt.Sprintf("Longest Loss Streak:  %d\n", m.ConsecutiveLosses))
	sb.WriteString(fmt.Sprintf("Kelly:                %.2f%%\n\n", m.KellyPercentage))

	// Profit/Loss Analysis
	sb.WriteString("💰 PROFIT/LOSS ANALYSIS\n")
	sb.WriteString("───────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("Net Profit:           $%s\n", m.NetProfit.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Total Profit:         $%s\n", m.TotalProfit.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Total Loss:           $%s\n", m.TotalLoss.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Fees and Taxes:       $%s\n", m.TotalFees.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Profit Factor:        %s\n", formatRatio(m.ProfitFactor)))
	sb.WriteString(fmt.Sprintf("Avg Win:              $%s\n", m.AverageWin.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Avg Loss:             $%s\n", m.AverageLoss.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Best Trade:           $%s\n", m.BestTrade.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Worst Trade:          $%s\n\n", m.WorstTrade.StringFixed(2)))

	if len(m.MonthlyReturns) > 0 {
		sb.WriteString("🗓  MONTHLY RETURNS\n")
		sb.WriteString("───────────────────────────────────────────────────────\n")
		for _, p := range m.MonthlyReturns {
			sb.WriteString(fmt.Sprintf("%s:              %+.2f%%\n", p.Period, p.Return*100))
		}
		sb.WriteString("\n")
	}

	// Recent Trades
	if len(result.Trades) > 0 {
		sb.WriteString("📋 RECENT TRADES (Last 10)\n")
		sb.WriteString("───────────────────────────────────────────────────────\n")

		start := len(result.Trades) - 10
		if start < 0 {
			start = 0
		}

		for i := start; i < len(result.Trades); i++ {
			trade := result.Trades[i]
			symbol := "📈"
			if trade.Profit.IsNegative() {
				symbol = "📉"
			}
			reason := string(trade.CloseReason)
			if trade.IsActive() {
				reason = "open"
			}
			sb.WriteString(fmt.Sprintf("%s %s %s x%d: Entry=$%s Mark=$%s PnL=$%s (%.2f%%) %s\n",
				symbol,
				trade.OpenedAt.Format(time.DateOnly),
				trade.ContractID,
				trade.Quantity,
				trade.EntryPremium.StringFixed(2),
				trade.CurrentPremium.StringFixed(2),
				trade.Profit.StringFixed(2),
				trade.ProfitPercent,
				reason,
			))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("═══════════════════════════════════════════════════════\n")

	return sb.String()
}

// GenerateSummary generates a short summary
func (r *Reporter) GenerateSummary(result *BacktestResult) string {
	m := result.Metrics
	return fmt.Sprintf(
		"Return: %.2f%% | Trades: %d | Win Rate: %.2f%% | Max DD: %.2f%% | Sharpe: %.2f | Profit Factor: %s",
		m.TotalReturnPercent,
		m.TotalTrades,
		m.WinRate*100,
		result.MaxDrawdown.Percentage,
		m.SharpeRatio,
		formatRatio(m.ProfitFactor),
	)
}

// formatRatio prints infinite ratios as ∞
func formatRatio(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "∞"
	case math.IsInf(v, -1):
		return "-∞"
	case math.IsNaN(v):
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}
