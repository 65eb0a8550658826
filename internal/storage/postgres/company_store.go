// Package postgres stores enriched directory entries in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/directory-crawler/internal/directory"
)

const defaultTable = "companies"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// Run identifies the crawl the stored rows came from.
type Run struct {
	ID        string
	Keyword   string
	ScrapedAt time.Time
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// CompanyStore writes one row per entry of a run.
type CompanyStore struct {
	pool  pool
	table string
}

// NewCompanyStore connects a pool using cfg.
func NewCompanyStore(ctx context.Context, cfg Config) (*CompanyStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewCompanyStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewCompanyStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCompanyStoreWithPool(p pool, table string) (*CompanyStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &CompanyStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *CompanyStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the table when it does not exist yet.
func (s *CompanyStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id           TEXT        NOT NULL,
	keyword          TEXT        NOT NULL,
	position         INTEGER     NOT NULL,
	company_name     TEXT        NOT NULL,
	link             TEXT        NOT NULL,
	official_website TEXT        NOT NULL,
	phone            TEXT        NOT NULL,
	address          TEXT        NOT NULL,
	scraped_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, position)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// SaveRun inserts every entry of run inside one transaction.
func (s *CompanyStore) SaveRun(ctx context.Context, run Run, entries []directory.Entry) (err error) {
	if s == nil || s.pool == nil {
		return fmt.Errorf("company store is not configured")
	}
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	keyword,
	position,
	company_name,
	link,
	official_website,
	phone,
	address,
	scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`, s.table)
	for i, e := range entries {
		if _, err = tx.Exec(ctx, query,
			run.ID,
			run.Keyword,
			i,
			e.Name,
			e.Link,
			e.Website,
			e.Phone,
			e.Address,
			run.ScrapedAt,
		); err != nil {
			return fmt.Errorf("insert company %q: %w", e.Name, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit companies: %w", err)
	}
	return nil
}
