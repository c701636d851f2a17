package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

// ScopeKey is the context key for the request-scoped database connection.
const ScopeKey contextKey = "dbScope"

// ErrNoScope is returned when a repository runs without a scope in context.
var ErrNoScope = errors.New("no database scope in context")

// Querier is the part of pgx shared by pooled connections and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Scope is a pooled connection held for one request or job, optionally
// inside a transaction.
type Scope struct {
	Conn *pgxpool.Conn
	tx   pgx.Tx
}

// Querier returns the open transaction, or the connection when none is open.
func (s *Scope) Querier() Querier {
	if s.tx != nil {
		return s.tx
	}
	return s.Conn
}

// InTx reports whether the scope is inside a transaction.
func (s *Scope) InTx() bool {
	return s.tx != nil
}

// Close releases the connection to the pool. Safe on a nil Conn.
func (s *Scope) Close() {
	if s.Conn == nil {
		return
	}
	s.Conn.Release()
}

// Acquire takes a connection from the pool. The returned Scope MUST be closed.
func (db *DB) Acquire(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Scope{Conn: conn}, nil
}

// GetScope retrieves the scope from context.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(ScopeKey).(*Scope)
	return scope, ok
}

// SetScope stores scope in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// QuerierFrom returns the querier of the scope in ctx.
func QuerierFrom(ctx context.Context) (Querier, error) {
	scope, ok := GetScope(ctx)
	if !ok {
		return nil, ErrNoScope
	}
	return scope.Querier(), nil
}

// InTx runs fn in a transaction on the scope in ctx. A call made while a
// transaction is already open joins it. The transaction commits only if fn
// succeeds and ctx is still live.
func InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	scope, ok := GetScope(ctx)
	if !ok {
		return ErrNoScope
	}
	if scope.tx != nil {
		return fn(ctx)
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := fn(SetScope(ctx, &Scope{Conn: scope.Conn, tx: tx})); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ScopeProvider creates scoped contexts for callers outside the HTTP
// middleware, such as MCP tools and start-up jobs.
type ScopeProvider struct {
	db *DB
}

// NewScopeProvider creates a ScopeProvider for db.
func NewScopeProvider(db *DB) *ScopeProvider {
	return &ScopeProvider{db: db}
}

// WithScope returns a context carrying a fresh scope. The cleanup function
// must be called when the scope is no longer needed.
func (p *ScopeProvider) WithScope(ctx context.Context) (context.Context, func(), error) {
	scope, err := p.db.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return SetScope(ctx, scope), scope.Close, nil
}
