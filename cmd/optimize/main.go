package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/guyghost/optionsbacktest/internal/backtesting"
	"github.com/guyghost/optionsbacktest/internal/config"
	"github.com/guyghost/optionsbacktest/internal/logger"
	"github.com/guyghost/optionsbacktest/internal/optimizer"
	"github.com/guyghost/optionsbacktest/internal/strategy"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
)

var (
	profilePath = flag.String("profile", "", "Path to a YAML profile with an optimizer section")
	top         = flag.Int("top", 10, "Number of ranked variants to print")
	workers     = flag.Int("workers", 0, "Parallel variants (overrides OPTIMIZER_WORKERS, 0 = NumCPU)")
)

// defaultRanges is the grid searched when no profile is given
var defaultRanges = optimizer.Ranges{
	DeltaRanges: []strategy.DeltaRange{
		{Min: 0.3, Max: 0.5},
		{Min: 0.4, Max: 0.6},
		{Min: 0.5, Max: 0.7},
	},
	PositionSizes: []decimal.Decimal{decimal.NewFromInt(2500), decimal.NewFromInt(5000)},
	StopLosses:    []float64{25, 50},
	ProfitTargets: []float64{50, 100},
}

func main() {
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	if err := run(); err != nil {
		logger.Error("Optimization failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	// logs go to stderr, the ranking to stdout
	logger.SetDefault(logger.New(&logger.Config{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: os.Stderr,
	}))

	s, settings, ranges := strategy.DefaultStrategy(), strategy.DefaultSettings(), defaultRanges
	if *profilePath != "" {
		profile, err := config.LoadProfile(*profilePath)
		if err != nil {
			return err
		}
		s, settings, ranges = profile.Strategy, profile.Settings, profile.Ranges
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	registry, closeSources, err := config.BuildRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSources()

	opt := optimizer.NewOptimizer(registry)
	if *workers > 0 {
		opt.SetWorkers(*workers)
	} else {
		opt.SetWorkers(cfg.OptimizerWorkers)
	}

	bar := initProgressBar(ranges.Size())
	var (
		mu   sync.Mutex
		last int
	)
	opt.SetOnProgress(func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if done > last {
			last = done
			_ = bar.Set(done)
		}
	})

	startRun := time.Now()
	outcomes, err := opt.Optimize(ctx, req, ranges)
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		return fmt.Errorf("optimize: %w", err)
	}

	fmt.Printf("Evaluated %d variants in %s\n\n", len(outcomes), time.Since(startRun).Round(time.Millisecond))
	fmt.Println(ranking(outcomes, *top))
	return nil
}

func ranking(outcomes []optimizer.Outcome, n int) string {
	var sb strings.Builder
	sb.WriteString("🏆 TOP VARIANTS BY SHARPE RATIO\n")
	sb.WriteString("───────────────────────────────────────────────────────\n")
	reporter := backtesting.NewReporter()
	for i, o := range outcomes {
		if i >= n {
			break
		}
		sb.WriteString(fmt.Sprintf("%2d. %s\n", i+1, o.Variant.Name))
		sb.WriteString("    " + reporter.GenerateSummary(o.Result) + "\n")
	}
	return sb.String()
}

func initProgressBar(maxTicks int) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("Optimizing variants..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
