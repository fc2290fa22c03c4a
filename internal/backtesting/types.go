package backtesting

import (
	"time"

	"github.com/guyghost/optionsbacktest/internal/market"
	"github.com/guyghost/optionsbacktest/internal/options"
	"github.com/guyghost/optionsbacktest/internal/strategy"
	"github.com/shopspring/decimal"
)

// ContractMultiplier is the number of shares one option contract controls
const ContractMultiplier = 100

var contractMultiplier = decimal.NewFromInt(ContractMultiplier)

// TradeStatus is the lifecycle state of a simulated trade
type TradeStatus string

const (
	StatusActive TradeStatus = "active"
	StatusClosed TradeStatus = "closed"
)

// CloseReason records which trigger closed a trade
type CloseReason string

const (
	CloseExpired      CloseReason = "expired"
	CloseStopLoss     CloseReason = "stop_loss"
	CloseProfitTarget CloseReason = "profit_target"
)

// SimulatedTrade is one long option position opened by the engine
type SimulatedTrade struct {
	ID              string
	ContractID      string
	Type            options.OptionType
	Strike          decimal.Decimal
	Expiration      time.Time
	EntryPremium    decimal.Decimal
	CurrentPremium  decimal.Decimal
	TargetPremium   decimal.Decimal
	StopPremium     decimal.Decimal
	Quantity        int64
	Status          TradeStatus
	OpenedAt        time.Time
	ClosedAt        *time.Time
	Profit          decimal.Decimal // (current - entry) * 100 * quantity, before costs
	ProfitPercent   float64
	ConfidenceScore float64
	Delta           float64
	CloseReason     CloseReason
	Condition       market.Condition // classification of the entry day
	Commission      decimal.Decimal  // entry plus exit
	Tax             decimal.Decimal
}

// Key returns the contract matching key of the trade
func (t *SimulatedTrade) Key() options.ContractKey {
	return options.KeyOf(t.Strike, t.Type, t.Expiration)
}

// IsActive reports whether the trade is still open
func (t *SimulatedTrade) IsActive() bool {
	return t.Status == StatusActive
}

// MarketValue is the mark-to-market value of the position
func (t *SimulatedTrade) MarketValue() decimal.Decimal {
	return t.CurrentPremium.Mul(contractMultiplier).Mul(decimal.NewFromInt(t.Quantity))
}

// NetProfit is the profit after commissions and taxes
func (t *SimulatedTrade) NetProfit() decimal.Decimal {
	return t.Profit.Sub(t.Commission).Sub(t.Tax)
}

// mark updates the current premium and the derived profit of an active trade
func (t *SimulatedTrade) mark(premium decimal.Decimal) {
	if !t.IsActive() {
		return
	}
	t.CurrentPremium = premium
	t.Profit = premium.Sub(t.EntryPremium).Mul(contractMultiplier).Mul(decimal.NewFromInt(t.Quantity))
	if t.EntryPremium.IsPositive() {
		t.ProfitPercent = premium.Sub(t.EntryPremium).Div(t.EntryPremium).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
}

// EquityPoint is the account value at the close of one day. The first point
// of a curve is the pre-open snapshot holding the initial capital; it may share
// its date with the first session's close.
type EquityPoint struct {
	Date   time.Time
	Equity decimal.Decimal
	Cash   decimal.Decimal
}

// Drawdown is the worst peak-to-trough decline of an equity curve
type Drawdown struct {
	Amount     decimal.Decimal
	Percentage float64
	StartDate  time.Time // date of the peak
	EndDate    time.Time // date of the worst trough after the peak
}

// PeriodReturn is the return of one calendar bucket
type PeriodReturn struct {
	Period string // "2006-01" for months, "2006" for years
	Start  time.Time
	End    time.Time
	Return float64
}

// DailyReturn is the return between two consecutive equity points
type DailyReturn struct {
	Date   time.Time
	Return float64
}

// BenchmarkComparison compares the strategy with holding the underlying, in percent
type BenchmarkComparison struct {
	UnderlyingReturn float64
	StrategyReturn   float64
	Outperformance   float64
}

// PerformanceMetrics summarizes closed trades and the equity curve
type PerformanceMetrics struct {
	// Trade statistics
	TotalTrades      int
	SuccessfulTrades int
	FailedTrades     int
	OpenTrades       int
	WinRate          float64 // fraction in [0,1]
	ProfitFactor     float64 // +Inf when there are profits and no losses

	// Profit/Loss
	NetProfit   decimal.Decimal
	TotalProfit decimal.Decimal
	TotalLoss   decimal.Decimal // positive amount
	AverageWin  decimal.Decimal
	AverageLoss decimal.Decimal // positive amount
	BestTrade   decimal.Decimal
	WorstTrade  decimal.Decimal
	TotalFees   decimal.Decimal

	// Risk-adjusted
	TotalReturnPercent float64
	ReturnsVolatility  float64
	SharpeRatio        float64
	SortinoRatio       float64
	CalmarRatio        float64
	KellyPercentage    float64

	// Streaks
	ConsecutiveWins   int
	ConsecutiveLosses int

	// Time buckets
	DailyReturns   []DailyReturn
	MonthlyReturns []PeriodReturn
	AnnualReturns  []PeriodReturn

	Benchmark BenchmarkComparison
}

// BacktestResult is the full output of one run
type BacktestResult struct {
	StrategyID       string
	StrategyName     string
	RiskProfile      string
	StartDate        time.Time
	EndDate          time.Time
	InitialCapital   decimal.Decimal
	FinalCapital     decimal.Decimal
	Trades           []SimulatedTrade
	EquityCurve      []EquityPoint
	Metrics          PerformanceMetrics
	MaxDrawdown      Drawdown
	AnnualizedReturn float64
	BenchmarkReturn  float64 // underlying return in percent
}

// ClosedTrades returns the closed trades in open order
func (r *BacktestResult) ClosedTrades() []SimulatedTrade {
	closed := make([]SimulatedTrade, 0, len(r.Trades))
	for _, t := range r.Trades {
		if t.Status == StatusClosed {
			closed = append(closed, t)
		}
	}
	return closed
}

// Request is the input of one backtest run
type Request struct {
	Strategy           *strategy.TradingStrategy
	Settings           *strategy.Settings
	StartDate          time.Time
	EndDate            time.Time
	InitialCapital     decimal.Decimal
	IncludeCommissions bool
	CommissionPerTrade decimal.Decimal
	IncludeTaxes       bool
	TaxRate            float64
	DataSourceID       string
}

// NewRequest builds a request from the backtest window and costs stored in settings
func NewRequest(s *strategy.TradingStrategy, settings *strategy.Settings) Request {
	req := Request{Strategy: s, Settings: settings}
	if settings != nil {
		req.StartDate = settings.Backtest.StartDate
		req.EndDate = settings.Backtest.EndDate
		req.InitialCapital = settings.Backtest.InitialCapital
		req.DataSourceID = settings.Backtest.DataSourceID
		req.IncludeCommissions = settings.Costs.IncludeCommissions
		req.CommissionPerTrade = settings.Costs.CommissionPerTrade
		req.IncludeTaxes = settings.Costs.IncludeTaxes
		req.TaxRate = settings.Costs.TaxRate
	}
	return req
}

// Validate rejects requests that cannot be simulated
func (r Request) Validate() error {
	if err := r.Strategy.Validate(); err != nil {
		return err
	}
	if err := r.Settings.Validate(); err != nil {
		return err
	}
	if !r.InitialCapital.IsPositive() {
		return strategy.Invalid(strategy.ErrInvalidRequest, "initialCapital", "must be positive, got %s", r.InitialCapital)
	}
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return strategy.Invalid(strategy.ErrInvalidRequest, "dates", "start and end are required")
	}
	if r.EndDate.Before(r.StartDate) {
		return strategy.Invalid(strategy.ErrInvalidRequest, "endDate", "%s is before start %s",
			r.EndDate.Format(time.DateOnly), r.StartDate.Format(time.DateOnly))
	}
	if r.CommissionPerTrade.IsNegative() {
		return strategy.Invalid(strategy.ErrInvalidRequest, "commissionPerTrade", "must not be negative")
	}
	if r.TaxRate < 0 || r.TaxRate > 1 {
		return strategy.Invalid(strategy.ErrInvalidRequest, "taxRate", "must be within [0,1], got %g", r.TaxRate)
	}
	return nil
}

// commission returns the per-fill commission charged by the request
func (r Request) commission() decimal.Decimal {
	if !r.IncludeCommissions {
		return decimal.Zero
	}
	return r.CommissionPerTrade
}
