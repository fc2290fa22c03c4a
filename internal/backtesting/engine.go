package backtesting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/guyghost/optionsbacktest/internal/logger"
	"github.com/guyghost/optionsbacktest/internal/market"
	"github.com/guyghost/optionsbacktest/internal/marketdata"
	"github.com/guyghost/optionsbacktest/internal/options"
	"github.com/guyghost/optionsbacktest/internal/strategy"
	"github.com/guyghost/optionsbacktest/pkg/utils"
	"github.com/shopspring/decimal"
)

const (
	// MaxCandidatesPerDay is how many ranked contracts are considered for entry each day
	MaxCandidatesPerDay = 3

	// KellyMinTrades is the number of closed trades needed before Kelly sizing applies
	KellyMinTrades = 5

	maxConfidence = 0.95
)

// TradeEvent tells a trade callback whether the trade was opened or closed
type TradeEvent string

const (
	TradeOpened TradeEvent = "open"
	TradeClosed TradeEvent = "close"
)

// Engine replays a strategy over a dataset. An engine holds no per-run
// state, so one engine may run several simulations concurrently as long as
// its callbacks are safe for concurrent use.
type Engine struct {
	source     marketdata.Source
	classifier *market.Classifier
	log        *logger.Logger

	// Callbacks
	onTrade        func(TradeEvent, *SimulatedTrade)
	onEquityUpdate func(EquityPoint)
}

// NewEngine creates a new backtesting engine fetching from source
func NewEngine(source marketdata.Source) *Engine {
	return &Engine{
		source:     source,
		classifier: market.NewClassifier(),
		log:        logger.Component("backtesting"),
	}
}

// SetLogger replaces the engine logger
func (e *Engine) SetLogger(l *logger.Logger) {
	if l != nil {
		e.log = l
	}
}

// SetOnTrade sets the callback for trade opens and closes
func (e *Engine) SetOnTrade(callback func(TradeEvent, *SimulatedTrade)) {
	e.onTrade = callback
}

// SetOnEquityUpdate sets the callback for equity updates
func (e *Engine) SetOnEquityUpdate(callback func(EquityPoint)) {
	e.onEquityUpdate = callback
}

// Run validates req, fetches its data and executes the backtest
func (e *Engine) Run(ctx context.Context, req Request) (*BacktestResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if e.source == nil {
		return nil, fmt.Errorf("backtesting: no data source configured")
	}

	data, err := e.source.FetchHistoricalData(ctx, req.StartDate, req.EndDate, req.DataSourceID)
	if err != nil {
		return nil, fmt.Errorf("fetch historical data: %w", err)
	}
	return e.Simulate(req, data)
}

// Simulate executes the backtest over an already fetched dataset.
// The dataset is only read.
func (e *Engine) Simulate(req Request, data *marketdata.Dataset) (*BacktestResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if data.Len() == 0 {
		return nil, marketdata.ErrNoData
	}

	sim := newSimulation(e, req, data)
	sim.run()

	result := sim.result()
	e.log.Strategy(req.Strategy.ID).Info("Backtest completed",
		"trades", len(result.Trades),
		"closed", result.Metrics.TotalTrades,
		"final_capital", result.FinalCapital.StringFixed(2),
		"sharpe", result.Metrics.SharpeRatio,
		"max_drawdown_pct", result.MaxDrawdown.Percentage,
	)
	return result, nil
}

// simulation is the mutable state of one run
type simulation struct {
	engine  *Engine
	req     Request
	data    *marketdata.Dataset
	closes  []decimal.Decimal
	log     *logger.Logger
	idSpace uuid.UUID

	// State
	currentIndex int
	cash         decimal.Decimal
	trades       []*SimulatedTrade
	active       []*SimulatedTrade
	equityCurve  []EquityPoint
	closedCount  int
}

func newSimulation(e *Engine, req Request, data *marketdata.Dataset) *simulation {
	return &simulation{
		engine:      e,
		req:         req,
		data:        data,
		closes:      data.Closes(),
		log:         e.log.Strategy(req.Strategy.ID),
		idSpace:     uuid.NewSHA1(uuid.NameSpaceOID, []byte(req.Strategy.ID)),
		cash:        req.InitialCapital,
		equityCurve: make([]EquityPoint, 0, data.Len()+1),
	}
}

func (s *simulation) run() {
	// The opening point is dated on the requested start, which precedes the
	// first session unless the window opens on a trading day.
	opening := s.req.StartDate
	if first := s.data.Prices[0].Date; opening.After(first) {
		opening = first
	}
	s.recordPoint(EquityPoint{Date: opening, Equity: s.req.InitialCapital, Cash: s.req.InitialCapital})

	for s.currentIndex = 0; s.currentIndex < s.data.Len(); s.currentIndex++ {
		date := s.data.Prices[s.currentIndex].Date
		chain := s.data.ChainAt(s.currentIndex)
		index := chain.Index()

		s.processActiveTrades(date, index)

		condition := s.engine.classifier.Classify(s.closes, s.currentIndex, s.data.VixAt(s.currentIndex))
		s.openTrades(date, chain, condition)

		s.recordEquity(date)
	}
}

// processActiveTrades re-marks open trades and closes those whose trigger fired.
// A trade missing from today's chain keeps its previous mark and is not evaluated.
func (s *simulation) processActiveTrades(date time.Time, index map[options.ContractKey]options.Contract) {
	remaining := s.active[:0]
	for _, trade := range s.active {
		contract, ok := index[trade.Key()]
		if !ok {
			remaining = append(remaining, trade)
			continue
		}

		trade.mark(contract.Premium)

		reason, hit := exitTrigger(trade, date)
		if !hit {
			remaining = append(remaining, trade)
			continue
		}
		s.closeTrade(trade, date, reason)
	}
	s.active = remaining
}

// exitTrigger evaluates expiry, then stop, then target. The stop is checked
// before the target so a day satisfying both closes on the stop.
func exitTrigger(trade *SimulatedTrade, date time.Time) (CloseReason, bool) {
	switch {
	case options.DaysToExpiry(date, trade.Expiration) <= 0:
		return CloseExpired, true
	case trade.CurrentPremium.LessThanOrEqual(trade.StopPremium):
		return CloseStopLoss, true
	case trade.CurrentPremium.GreaterThanOrEqual(trade.TargetPremium):
		return CloseProfitTarget, true
	}
	return "", false
}

func (s *simulation) closeTrade(trade *SimulatedTrade, date time.Time, reason CloseReason) {
	commission := s.req.commission()

	tax := decimal.Zero
	if s.req.IncludeTaxes && trade.Profit.IsPositive() {
		tax = trade.Profit.Mul(decimal.NewFromFloat(s.req.TaxRate))
	}

	proceeds := trade.MarketValue().Sub(commission).Sub(tax)
	s.cash = s.cash.Add(proceeds)

	closedAt := date
	trade.Status = StatusClosed
	trade.ClosedAt = &closedAt
	trade.CloseReason = reason
	trade.Commission = trade.Commission.Add(commission)
	trade.Tax = tax
	s.closedCount++

	s.log.Trade(string(TradeClosed), map[string]any{
		"trade_id": trade.ID,
		"contract": trade.ContractID,
		"reason":   string(reason),
		"premium":  trade.CurrentPremium.String(),
		"profit":   trade.Profit.StringFixed(2),
		"date":     date.Format(time.DateOnly),
	})
	s.notify(TradeClosed, trade)
}

// openTrades admits new trades from today's chain under the settings gates
func (s *simulation) openTrades(date time.Time, chain options.Chain, condition market.Condition) {
	settings := s.req.Settings
	st := s.req.Strategy

	if !st.TradesIn(condition) {
		return
	}

	openedToday := 0
	if !s.canOpen(openedToday) {
		return
	}

	adjustedRisk := strategy.RiskMultiplierFor(condition, settings)

	for _, contract := range s.candidates(date, chain) {
		if !s.canOpen(openedToday) {
			break
		}

		absDelta := math.Abs(contract.Delta)
		confidence := math.Min(maxConfidence, 0.5+absDelta*0.4)
		if confidence < settings.MinimumConfidenceScore {
			continue
		}

		quantity := s.positionSize(contract.Premium, adjustedRisk)
		if quantity <= 0 {
			continue
		}

		commission := s.req.commission()
		cost := contract.Premium.Mul(contractMultiplier).Mul(decimal.NewFromInt(quantity)).Add(commission)
		if cost.GreaterThan(s.cash) {
			continue
		}

		s.cash = s.cash.Sub(cost)
		trade := &SimulatedTrade{
			ID:              s.tradeID(date, contract),
			ContractID:      contract.ID,
			Type:            contract.Type,
			Strike:          contract.Strike,
			Expiration:      contract.Expiration,
			EntryPremium:    contract.Premium,
			CurrentPremium:  contract.Premium,
			TargetPremium:   percentOf(contract.Premium, 100+st.ProfitTargetPercent),
			StopPremium:     percentOf(contract.Premium, 100-st.MaxLossPercent),
			Quantity:        quantity,
			Status:          StatusActive,
			OpenedAt:        date,
			Profit:          decimal.Zero,
			ConfidenceScore: confidence,
			Delta:           contract.Delta,
			Condition:       condition,
			Commission:      commission,
			Tax:             decimal.Zero,
		}
		s.trades = append(s.trades, trade)
		s.active = append(s.active, trade)
		openedToday++

		s.log.Trade(string(TradeOpened), map[string]any{
			"trade_id":   trade.ID,
			"contract":   trade.ContractID,
			"premium":    trade.EntryPremium.String(),
			"quantity":   quantity,
			"confidence": confidence,
			"condition":  string(condition),
			"date":       date.Format(time.DateOnly),
		})
		s.notify(TradeOpened, trade)
	}
}

func (s *simulation) canOpen(openedToday int) bool {
	return len(s.active) < s.req.Settings.MaxSimultaneousTrades &&
		openedToday < s.req.Settings.MaxDailyTrades
}

// candidates filters today's chain by the strategy rules and returns the top
// contracts ranked by |delta|, highest first.
func (s *simulation) candidates(date time.Time, chain options.Chain) []options.Contract {
	st := s.req.Strategy

	held := make(map[options.ContractKey]bool, len(s.active))
	for _, trade := range s.active {
		held[trade.Key()] = true
	}

	var out []options.Contract
	for _, contract := range chain {
		dte := options.DaysToExpiry(date, contract.Expiration)
		switch {
		case dte < 1:
			continue
		case !st.OptionType.Allows(contract.Type):
			continue
		case !st.DeltaRange.Contains(math.Abs(contract.Delta)):
			continue
		case !options.MatchesPreference(dte, st.ExpiryPreferences):
			continue
		case !contract.Premium.IsPositive():
			continue
		case held[contract.Key()]:
			continue
		}
		out = append(out, contract)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Delta) > math.Abs(out[j].Delta)
	})
	if len(out) > MaxCandidatesPerDay {
		out = out[:MaxCandidatesPerDay]
	}
	return out
}

// positionSize returns the contract count allowed by both the strategy's
// max position size and the sizing rule applied to available cash.
func (s *simulation) positionSize(premium decimal.Decimal, adjustedRisk float64) int64 {
	unitCost := premium.Mul(contractMultiplier)
	byPosition := utils.FloorContracts(s.req.Strategy.MaxPositionSize, unitCost)

	budget := s.sizingBudget(adjustedRisk)
	byCapital := utils.FloorContracts(budget, unitCost)

	if byCapital < byPosition {
		return byCapital
	}
	return byPosition
}

// sizingBudget is the capital the sizing rule allows for one trade
func (s *simulation) sizingBudget(adjustedRisk float64) decimal.Decimal {
	sizing := s.req.Settings.PositionSizing
	risk := decimal.NewFromFloat(adjustedRisk)

	switch sizing.Method {
	case strategy.SizingFixed:
		return utils.MinDecimal(sizing.FixedAmount, s.cash).Mul(risk)
	case strategy.SizingKelly:
		fraction := sizing.Percent / 100
		if s.closedCount >= KellyMinTrades {
			fraction = utils.ClampFloat(sizing.KellyMultiplier*s.kellyFraction(), 0, 1)
		}
		return s.cash.Mul(risk).Mul(decimal.NewFromFloat(fraction))
	default:
		return s.cash.Mul(risk).Mul(decimal.NewFromFloat(sizing.Percent / 100))
	}
}

// kellyFraction derives the full Kelly fraction from the trades closed so far
func (s *simulation) kellyFraction() float64 {
	closed := make([]SimulatedTrade, 0, s.closedCount)
	for _, t := range s.trades {
		if t.Status == StatusClosed {
			closed = append(closed, *t)
		}
	}
	return kellyPercentage(summarizeTrades(closed)) / 100
}

func (s *simulation) recordEquity(date time.Time) {
	equity := s.cash
	for _, trade := range s.active {
		equity = equity.Add(trade.MarketValue())
	}
	s.recordPoint(EquityPoint{Date: date, Equity: equity, Cash: s.cash})
}

func (s *simulation) recordPoint(point EquityPoint) {
	s.equityCurve = append(s.equityCurve, point)
	if s.engine.onEquityUpdate != nil {
		s.engine.onEquityUpdate(point)
	}
}

func (s *simulation) notify(event TradeEvent, trade *SimulatedTrade) {
	if s.engine.onTrade != nil {
		snapshot := *trade
		s.engine.onTrade(event, &snapshot)
	}
}

// tradeID derives a stable id from the strategy, the entry date and the contract
func (s *simulation) tradeID(date time.Time, contract options.Contract) string {
	name := fmt.Sprintf("%s|%s|%d", date.Format(time.DateOnly), contract.Key(), len(s.trades))
	return uuid.NewSHA1(s.idSpace, []byte(name)).String()
}

func (s *simulation) result() *BacktestResult {
	trades := make([]SimulatedTrade, len(s.trades))
	for i, t := range s.trades {
		trades[i] = *t
	}

	st := s.req.Strategy
	result := &BacktestResult{
		StrategyID:     st.ID,
		StrategyName:   st.Name,
		RiskProfile:    st.RiskProfile(),
		StartDate:      s.req.StartDate,
		EndDate:        s.req.EndDate,
		InitialCapital: s.req.InitialCapital,
		FinalCapital:   s.equityCurve[len(s.equityCurve)-1].Equity,
		Trades:         trades,
		EquityCurve:    s.equityCurve,
	}

	result.MaxDrawdown = MaxDrawdown(s.equityCurve)
	result.Metrics = CalculateMetrics(result, s.data.Prices)
	result.AnnualizedReturn = annualizedReturn(result.InitialCapital, result.FinalCapital, result.StartDate, result.EndDate)
	result.BenchmarkReturn = result.Metrics.Benchmark.UnderlyingReturn
	return result
}

// percentOf returns value * pct / 100
func percentOf(value decimal.Decimal, pct float64) decimal.Decimal {
	return value.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))
}
