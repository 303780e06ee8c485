package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"soroban-stream-indexer/internal/storage"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// querier is the query surface shared by *Pool and pgx.Tx. Stores are
// built over it so the same code runs on the pool or inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UnitOfWork implements storage.UnitOfWork using PostgreSQL transactions.
type UnitOfWork struct {
	pool *Pool
}

// NewUnitOfWork creates a new UnitOfWork.
func NewUnitOfWork(pool *Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// Compile-time interface check.
var _ storage.UnitOfWork = (*UnitOfWork)(nil)

// WithinTx runs fn inside a single transaction. The transaction commits
// if fn returns nil and rolls back otherwise.
func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	ptx, err := u.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer ptx.Rollback(ctx)

	if err := fn(&pgTx{tx: ptx}); err != nil {
		return err
	}

	if err := ptx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// pgTx adapts a pgx transaction to storage.Tx.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Streams() storage.StreamStore           { return &StreamStore{db: t.tx} }
func (t *pgTx) StreamEvents() storage.StreamEventStore { return &StreamEventStore{db: t.tx} }
func (t *pgTx) Users() storage.UserStore               { return &UserStore{db: t.tx} }

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505" // unique_violation
)

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	// Use pgconn.PgError for reliable error code detection
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}

	return false
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
