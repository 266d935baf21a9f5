package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invgraph/graphcore/pkg/errs"
)

// PoolConfig holds database connection pool settings. Adapted from the
// teacher's pkg/db.Config/DefaultConfig — same pgxpool knobs, renamed
// to sit next to the EntityStore it now backs instead of a standalone
// db package with no callers.
type PoolConfig struct {
	URI             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns production-ready pool settings for uri.
func DefaultPoolConfig(uri string) PoolConfig {
	return PoolConfig{
		URI:             uri,
		MaxConns:        10,
		MinConns:        2,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// Connect creates a PostgreSQL connection pool using cfg and verifies
// connectivity with a ping.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URI: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// DB abstracts the pool operations the Postgres store needs, satisfied
// by *pgxpool.Pool in production and pgxmock in tests — same shape as
// the teacher's services/storage.DB interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Postgres is an EntityStore[T] backed by a single JSONB-valued table,
// generic over any JSON-marshalable entity. One physical table per Go
// type keeps the schema trivial (id, data) while letting every
// durable component (subscriptions, deferred edges, workflow
// instances) share this one implementation instead of a bespoke
// repository each, mirroring the teacher's
// UpsertWorkflow/GetWorkflow but generalized over entity
// kind instead of specialized to workflows.
type Postgres[T any] struct {
	db    DB
	table string
}

// NewPostgres creates a Postgres-backed EntityStore[T] that reads and
// writes rows of table (id text primary key, data jsonb).
func NewPostgres[T any](db DB, table string) (*Postgres[T], error) {
	if db == nil {
		return nil, errs.Internal("entity store: db connection cannot be nil", nil)
	}
	return &Postgres[T]{db: db, table: table}, nil
}

func (s *Postgres[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var data []byte
	err := s.db.QueryRow(timeoutCtx,
		fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, s.table), id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, errs.NotFound("no entity with id " + id)
		}
		return zero, errs.Internal("query entity", err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, errs.Internal("unmarshal entity", err)
	}
	return v, nil
}

func (s *Postgres[T]) Put(ctx context.Context, id string, value T) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := json.Marshal(value)
	if err != nil {
		return errs.Internal("marshal entity", err)
	}

	tx, err := s.db.BeginTx(timeoutCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errs.Internal("begin transaction for put", err)
	}
	defer tx.Rollback(timeoutCtx)

	_, err = tx.Exec(timeoutCtx, fmt.Sprintf(`
		INSERT INTO %s (id, data)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`, s.table),
		id, data)
	if err != nil {
		return errs.Internal("upsert entity", err)
	}
	if err := tx.Commit(timeoutCtx); err != nil {
		return errs.Internal("commit put", err)
	}
	return nil
}

func (s *Postgres[T]) Delete(ctx context.Context, id string) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := s.db.Exec(timeoutCtx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id)
	if err != nil {
		return errs.Internal("delete entity", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("no entity with id " + id)
	}
	return nil
}

func (s *Postgres[T]) List(ctx context.Context) ([]T, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.Query(timeoutCtx, fmt.Sprintf(`SELECT data FROM %s ORDER BY id`, s.table))
	if err != nil {
		return nil, errs.Internal("list entities", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, errs.Internal("scan entity row", err)
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, errs.Internal("unmarshal entity", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Internal("entity rows error", err)
	}
	return out, nil
}
