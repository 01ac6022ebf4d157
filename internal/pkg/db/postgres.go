// Package db provides PostgreSQL connection management and the atomic unit
// every ledger mutation runs in.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"payout-ledger/internal/config"
)

// Default bounds for an atomic unit when the ledger config leaves them unset.
const (
	DefaultUnitTimeout = 30 * time.Second
	DefaultLockTimeout = 10 * time.Second
)

// Unit errors.
var (
	// ErrLockTimeout is returned when a unit could not acquire a row lock in time.
	ErrLockTimeout = errors.New("lock acquisition timeout")
	// ErrUnitTimeout is returned when a unit exceeded its overall deadline.
	ErrUnitTimeout = errors.New("atomic unit timeout")
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
// Repositories run against either, so the same code serves plain reads and
// statements inside an atomic unit.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool wraps pgxpool.Pool with additional functionality.
type Pool struct {
	*pgxpool.Pool
	unitTimeout time.Duration
	lockTimeout time.Duration
}

// NewPool creates a new PostgreSQL connection pool.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig, ledger config.LedgerConfig) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.PoolSize)
	poolConfig.MinConns = int32(cfg.PoolSize / 4) // 25% of max as minimum
	if poolConfig.MinConns < 1 {
		poolConfig.MinConns = 1
	}

	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	} else {
		poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second
	}

	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	} else {
		poolConfig.MaxConnLifetime = time.Hour
	}

	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	} else {
		poolConfig.MaxConnIdleTime = 30 * time.Minute
	}

	poolConfig.HealthCheckPeriod = 30 * time.Second

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Int("pool_size", cfg.PoolSize).
		Msg("Connecting to PostgreSQL")

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to PostgreSQL")

	return Wrap(pool, ledger), nil
}

// Wrap builds a Pool around an existing pgxpool.Pool.
func Wrap(pool *pgxpool.Pool, ledger config.LedgerConfig) *Pool {
	p := &Pool{
		Pool:        pool,
		unitTimeout: ledger.UnitTimeout,
		lockTimeout: ledger.LockTimeout,
	}
	if p.unitTimeout <= 0 {
		p.unitTimeout = DefaultUnitTimeout
	}
	if p.lockTimeout <= 0 {
		p.lockTimeout = DefaultLockTimeout
	}
	return p
}

// InTx runs fn as one atomic unit: every statement fn issues through tx
// commits together or not at all. The unit is bounded by the configured
// overall timeout and row-lock wait; fn must issue its statements with the
// ctx it is given.
func (p *Pool) InTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.unitTimeout)
	defer cancel()

	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(ctx, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockStmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", p.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, lockStmt); err != nil {
		return classify(ctx, fmt.Errorf("failed to set lock timeout: %w", err))
	}

	if err := fn(ctx, tx); err != nil {
		return classify(ctx, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(ctx, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// classify tags store timeouts so callers can tell them from other failures.
func classify(ctx context.Context, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
		return fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUnitTimeout, err)
	}
	return err
}

// Close closes the connection pool.
func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
		log.Info().Msg("PostgreSQL connection pool closed")
	}
}

// HealthCheck performs a health check on the database connection.
func (p *Pool) HealthCheck(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}
