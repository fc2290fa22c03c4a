package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/guyghost/optionsbacktest/internal/logger"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	barsQuery = `SELECT date, open, high, low, close, volume::numeric
FROM daily_bars
WHERE symbol = $1 AND date BETWEEN $2 AND $3
ORDER BY date`

	vixQuery = `SELECT date, close::float8
FROM vix_daily
WHERE date BETWEEN $1 AND $2
ORDER BY date`

	// ConnectTimeout bounds the retries of the initial ping
	ConnectTimeout = 15 * time.Second
)

type historyStore interface {
	Bars(ctx context.Context, symbol string, start, end time.Time) ([]PriceBar, error)
	Vix(ctx context.Context, start, end time.Time) ([]VixPoint, error)
}

// PostgresSource reads daily bars and VIX closes from PostgreSQL and lists
// chains from them with the pricing model.
type PostgresSource struct {
	store      historyStore
	underlying string
	chains     *ChainBuilder
	pool       *pgxpool.Pool
}

// NewPostgresSource connects to dbURL and verifies connectivity
func NewPostgresSource(ctx context.Context, dbURL, underlying string) (*PostgresSource, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// Register shopspring decimal
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Use exponential backoff while the database comes up
	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = ConnectTimeout
	log := logger.Component("marketdata")
	ping := func() error { return pool.Ping(ctx) }
	notify := func(err error, wait time.Duration) {
		log.WithError(err).Debug("Database not ready, retrying", "wait", wait)
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(retry, ctx), notify); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database after retries: %w", err)
	}

	return &PostgresSource{
		store:      &pgStore{pool: pool},
		underlying: underlying,
		chains:     NewChainBuilder(underlying),
		pool:       pool,
	}, nil
}

// Close releases the connection pool
func (s *PostgresSource) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// FetchHistoricalData implements Source
func (s *PostgresSource) FetchHistoricalData(ctx context.Context, start, end time.Time, _ string) (*Dataset, error) {
	bars, err := s.store.Bars(ctx, s.underlying, dateOnly(start), dateOnly(end))
	if err != nil {
		return nil, fmt.Errorf("load %s bars: %w", s.underlying, err)
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}

	vix, err := s.store.Vix(ctx, dateOnly(start), dateOnly(end))
	if err != nil {
		return nil, fmt.Errorf("load vix: %w", err)
	}

	data := &Dataset{Prices: bars, Vix: alignVix(bars, vix)}
	series := s.chains.NewSeries()
	for i, bar := range bars {
		data.Chains = append(data.Chains, series.Next(bar.Date, bar.Close, data.Vix[i].Value))
	}
	return data, nil
}

type pgStore struct {
	pool *pgxpool.Pool
}

func (p *pgStore) Bars(ctx context.Context, symbol string, start, end time.Time) ([]PriceBar, error) {
	rows, err := p.pool.Query(ctx, barsQuery, symbol, start, end)
	if err != nil {
		return nil, err
	}
	bars, err := pgx.CollectRows(rows, pgx.RowToStructByPos[PriceBar])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return bars, err
}

func (p *pgStore) Vix(ctx context.Context, start, end time.Time) ([]VixPoint, error) {
	rows, err := p.pool.Query(ctx, vixQuery, start, end)
	if err != nil {
		return nil, err
	}
	points, err := pgx.CollectRows(rows, pgx.RowToStructByPos[VixPoint])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return points, err
}
