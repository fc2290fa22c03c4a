package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/guyghost/optionsbacktest/internal/backtesting"
	"github.com/guyghost/optionsbacktest/internal/config"
	"github.com/guyghost/optionsbacktest/internal/logger"
	"github.com/guyghost/optionsbacktest/internal/strategy"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

var (
	profilePath = flag.String("profile", "", "Path to a YAML backtest profile (defaults to the built-in strategy)")
	source      = flag.String("source", "", "Data source id: synthetic, csv or postgres (overrides DATA_SOURCE)")
	startDate   = flag.String("start", "", "Backtest start date YYYY-MM-DD")
	endDate     = flag.String("end", "", "Backtest end date YYYY-MM-DD")
	capital     = flag.Float64("capital", 0, "Initial capital (overrides profile and INITIAL_CAPITAL)")

	// Output options
	tradesCSV = flag.String("trades-csv", "", "Write the trade log to this CSV file")
	equityCSV = flag.String("equity-csv", "", "Write the equity curve to this CSV file")
	verbose   = flag.Bool("verbose", false, "Print every trade as it opens and closes")
)

func main() {
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	if err := run(); err != nil {
		logger.WithError(err).Error("Backtest failed")
		os.Exit(1)
	}
}

func run() error {
	printBanner()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetDefault(logger.New(&logger.Config{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	}))

	req, err := buildRequest(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	registry, closeSources, err := config.BuildRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSources()

	log.Println("\n⚙️  Backtest Configuration:")
	log.Printf("   Strategy:         %s (%s)\n", req.Strategy.Name, req.Strategy.ID)
	log.Printf("   Data Source:      %s\n", req.DataSourceID)
	log.Printf("   Period:           %s → %s\n", req.StartDate.Format(time.DateOnly), req.EndDate.Format(time.DateOnly))
	log.Printf("   Initial Capital:  $%s\n", req.InitialCapital.StringFixed(2))
	log.Printf("   Delta Range:      %.2f - %.2f\n", req.Strategy.DeltaRange.Min, req.Strategy.DeltaRange.Max)
	log.Printf("   Stop / Target:    %.0f%% / %.0f%%\n", req.Strategy.MaxLossPercent, req.Strategy.ProfitTargetPercent)

	engine := backtesting.NewEngine(registry)
	engine.SetLogger(logger.Default().Component("backtesting").WithField("source", req.DataSourceID))

	tradeCount := 0
	engine.SetOnTrade(func(event backtesting.TradeEvent, trade *backtesting.SimulatedTrade) {
		if !*verbose {
			return
		}
		if event == backtesting.TradeOpened {
			tradeCount++
			log.Printf("[Trade #%d] ▶ %s %s %s x%d @ $%s (%s)\n",
				tradeCount,
				trade.Type,
				trade.Strike.String(),
				trade.Expiration.Format(time.DateOnly),
				trade.Quantity,
				trade.EntryPremium.StringFixed(2),
				trade.Condition,
			)
			return
		}
		symbol := "✓"
		if trade.Profit.IsNegative() {
			symbol = "✗"
		}
		log.Printf("           %s %s %s: $%s → $%s = $%s (%.2f%%) [%s]\n",
			symbol,
			trade.Type,
			trade.Strike.String(),
			trade.EntryPremium.StringFixed(2),
			trade.CurrentPremium.StringFixed(2),
			trade.Profit.StringFixed(2),
			trade.ProfitPercent,
			trade.CloseReason,
		)
	})

	log.Println("🚀 Running backtest...")
	startRun := time.Now()

	result, err := engine.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("run backtest: %w", err)
	}
	log.Printf("✓ Backtest completed in %s\n\n", time.Since(startRun).Round(time.Millisecond))

	fmt.Println(backtesting.NewReporter().GenerateReport(result))

	if *tradesCSV != "" {
		if err := writeFile(*tradesCSV, func(f *os.File) error {
			return backtesting.WriteTradesCSV(f, result.Trades)
		}); err != nil {
			return fmt.Errorf("failed to export trades: %w", err)
		}
		log.Printf("✓ Trades written to %s\n", *tradesCSV)
	}
	if *equityCSV != "" {
		if err := writeFile(*equityCSV, func(f *os.File) error {
			return backtesting.WriteEquityCSV(f, result.EquityCurve)
		}); err != nil {
			return fmt.Errorf("failed to export equity curve: %w", err)
		}
		log.Printf("✓ Equity curve written to %s\n", *equityCSV)
	}

	return nil
}

// buildRequest layers the profile, the environment and the flags, in that order
func buildRequest(cfg *config.AppConfig) (backtesting.Request, error) {
	s := strategy.DefaultStrategy()
	settings := strategy.DefaultSettings()
	if *profilePath != "" {
		profile, err := config.LoadProfile(*profilePath)
		if err != nil {
			return backtesting.Request{}, err
		}
		s, settings = profile.Strategy, profile.Settings
	} else {
		settings.Backtest.DataSourceID = cfg.DataSource
		settings.Backtest.InitialCapital = cfg.InitialCapital
		settings.Costs = strategy.Costs{
			IncludeCommissions: cfg.IncludeCommissions,
			CommissionPerTrade: cfg.CommissionPerTrade,
			IncludeTaxes:       cfg.IncludeTaxes,
			TaxRate:            cfg.TaxRate,
		}
	}

	req := backtesting.NewRequest(s, settings)
	if !cfg.StartDate.IsZero() {
		req.StartDate = cfg.StartDate
	}
	if !cfg.EndDate.IsZero() {
		req.EndDate = cfg.EndDate
	}

	if *source != "" {
		req.DataSourceID = *source
	}
	if *capital > 0 {
		req.InitialCapital = decimal.NewFromFloat(*capital)
	}
	var err error
	if *startDate != "" {
		if req.StartDate, err = time.Parse(time.DateOnly, *startDate); err != nil {
			return req, fmt.Errorf("invalid -start: %w", err)
		}
	}
	if *endDate != "" {
		if req.EndDate, err = time.Parse(time.DateOnly, *endDate); err != nil {
			return req, fmt.Errorf("invalid -end: %w", err)
		}
	}
	return req, nil
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printBanner() {
	banner := `
╔═══════════════════════════════════════════════════════╗
║                                                       ║
║        OPTIONS BACKTEST ENGINE                        ║
║        Simulated trades · Performance analytics       ║
║                                                       ║
╚═══════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
}
