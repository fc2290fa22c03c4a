package config

import (
	"context"
	"fmt"

	"github.com/guyghost/optionsbacktest/internal/logger"
	"github.com/guyghost/optionsbacktest/internal/marketdata"
)

// BuildRegistry registers every data source the configuration can serve.
// The synthetic source is always available; csv and postgres only when their
// location is set. The returned close func releases database connections.
func BuildRegistry(ctx context.Context, cfg *AppConfig) (*marketdata.Registry, func(), error) {
	registry := marketdata.NewRegistry()
	closeFn := func() {}

	synthetic := marketdata.DefaultSyntheticConfig(cfg.SyntheticSeed)
	synthetic.Underlying = cfg.Underlying
	registry.Register(SourceSynthetic, marketdata.NewSyntheticSource(synthetic))

	if cfg.PriceCSV != "" {
		registry.Register(SourceCSV, marketdata.NewCSVSource(cfg.PriceCSV, cfg.VixCSV, cfg.Underlying))
	}

	if cfg.DatabaseURL != "" {
		pg, err := marketdata.NewPostgresSource(ctx, cfg.DatabaseURL, cfg.Underlying)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres source: %w", err)
		}
		registry.Register(SourcePostgres, pg)
		closeFn = pg.Close
	}

	logger.Info("Data sources registered", "sources", registry.IDs(), "selected", cfg.DataSource)
	return registry, closeFn, nil
}
