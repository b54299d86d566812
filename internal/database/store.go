package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/inventory/internal/core"
)

// Store is the PostgreSQL core.Store.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ core.Store = (*Store)(nil)

// New returns a Store on pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		logger: slog.With("component", "postgres_store"),
	}
}

// Pool exposes the underlying pool for collaborators such as the job queue.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Begin starts the transaction one import runs in. Read committed is enough:
// the unique indexes on names, tag IDs and IPs are the real arbiters of
// concurrent imports racing to create the same record.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx implements core.Tx on a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

var _ core.Tx = (*Tx)(nil)

func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback is a no-op after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// Unique-violation SQLSTATE.
const uniqueViolation = "23505"

// wrapWrite annotates write errors. Unique violations keep the constraint
// name so core.MapError can explain them.
func wrapWrite(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: duplicate key (%s): %w", op, pgErr.ConstraintName, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
