// Package postgres implements the Database Gateway (spec §4: "typed access
// to organizations, animals, scrape_logs; connection pool; transactional
// batch writer") on top of pgx's connection pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rescuedogs/aggregator/internal/batchproc"
	"github.com/rescuedogs/aggregator/internal/config"
	"github.com/rescuedogs/aggregator/internal/domain/animals"
	"github.com/rescuedogs/aggregator/internal/domain/organizations"
	"github.com/rescuedogs/aggregator/internal/domain/scrapelogs"
	"github.com/rescuedogs/aggregator/internal/quality"
)

// Gateway owns the shared connection pool and hands out domain repositories.
// It is a process-wide singleton (spec §9); every scrape borrows connections
// from it per-transaction rather than holding one across batches (spec §5).
type Gateway struct {
	pool *pgxpool.Pool
}

// Open establishes the pool per cfg and verifies connectivity with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Gateway, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MaxIdle > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdle)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Gateway{pool: pool}, nil
}

// Close releases every pooled connection.
func (g *Gateway) Close() {
	g.pool.Close()
}

// Organizations returns a repository backed directly by the pool (no open
// transaction). The return type is the domain interface, not the concrete
// repository, so callers outside this package (the Scraper Framework) depend
// on the port, not the adapter.
func (g *Gateway) Organizations() organizations.Repository {
	return &OrganizationRepository{q: g.pool}
}

// Animals returns a repository backed directly by the pool.
func (g *Gateway) Animals() animals.Repository {
	return &AnimalRepository{q: g.pool}
}

// ScrapeLogs returns a repository backed directly by the pool.
func (g *Gateway) ScrapeLogs() scrapelogs.Repository {
	return &ScrapeLogRepository{q: g.pool}
}

// OrganizationConfigs returns the database-backed half of the
// DB-first/YAML-fallback organization config loader.
func (g *Gateway) OrganizationConfigs() *OrganizationConfigRepository {
	return &OrganizationConfigRepository{q: g.pool}
}

// Quality returns a repository backed directly by the pool, used by the
// offline Quality Monitor (spec §4.9).
func (g *Gateway) Quality() quality.Repository {
	return &QualityRepository{q: g.pool, animals: &AnimalRepository{q: g.pool}}
}

// TxRepos bundles the three domain repositories scoped to one open
// transaction, so a caller needing cross-repository atomicity (e.g. the
// Session Manager's session-close transitions, spec §5: "applied atomically
// relative to the animals table for one organization") gets a single
// consistent view.
type TxRepos struct {
	Organizations organizations.Repository
	Animals       animals.Repository
	ScrapeLogs    scrapelogs.Repository
}

// WithTx runs fn inside one transaction, committing on success and rolling
// back on error or panic re-propagation.
func (g *Gateway) WithTx(ctx context.Context, fn func(context.Context, TxRepos) error) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin transaction: %w", err)
	}

	repos := TxRepos{
		Organizations: &OrganizationRepository{q: tx},
		Animals:       &AnimalRepository{q: tx},
		ScrapeLogs:    &ScrapeLogRepository{q: tx},
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, repos); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit transaction: %w", err)
	}
	return nil
}

// Beginner adapts the pool to batchproc.Beginner, so the Batch Processor can
// drive its own outer-transaction/savepoint lifecycle without depending on
// pgx directly.
func (g *Gateway) Beginner() batchproc.Beginner {
	return poolBeginner{pool: g.pool}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting a repository
// work identically whether it was obtained from the pool or from inside a
// transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type poolBeginner struct {
	pool *pgxpool.Pool
}

func (b poolBeginner) Begin(ctx context.Context) (batchproc.Tx, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return pgxTx{tx: tx}, nil
}

// pgxTx adapts a pgx.Tx to batchproc.Tx. Begin on an already-open pgxTx
// issues a real SAVEPOINT (pgx's nested-transaction support), which is what
// lets the Batch Processor retry/roll back one window without discarding
// windows already folded into the same outer transaction.
type pgxTx struct {
	tx pgx.Tx
}

func (p pgxTx) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := p.tx.Exec(ctx, sql, args...)
	return err
}

func (p pgxTx) Begin(ctx context.Context) (batchproc.Tx, error) {
	nested, err := p.tx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return pgxTx{tx: nested}, nil
}

func (p pgxTx) Commit(ctx context.Context) error   { return p.tx.Commit(ctx) }
func (p pgxTx) Rollback(ctx context.Context) error { return p.tx.Rollback(ctx) }
