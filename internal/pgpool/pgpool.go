// Package pgpool wraps pgxpool with the gateway's leasing rules: bounded
// acquisition, a liveness probe before every handout, a server-side
// statement timeout on every new connection, and poison-aware release that
// discards connections instead of returning them in an unknown state.
package pgpool

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config tunes the pool. Zero durations leave the pgxpool defaults alone.
type Config struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	// AcquireTimeout bounds how long Acquire waits for a free connection.
	AcquireTimeout time.Duration
	// StatementTimeout is set server-side on every new connection, as a
	// floor under client deadlines: even if a context deadline is lost,
	// no statement runs unbounded.
	StatementTimeout time.Duration
}

// Conn is an exclusive lease on one pooled connection. Release must be
// called when done; extra calls are no-ops.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// Release returns the connection to the pool. poisoned discards the
	// underlying connection instead, forcing the pool to replace it.
	Release(poisoned bool)
}

// Manager owns the pgxpool and hands out leases.
type Manager struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
	leased         atomic.Int64
}

// New parses connString, applies cfg, and creates the pool. Connections
// are established lazily; call Ping to verify reachability.
func New(ctx context.Context, connString string, cfg Config) (*Manager, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	// QueryExecModeExec uses the extended protocol without preparing
	// statements, so one-shot statements cost a single round trip.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	if cfg.StatementTimeout > 0 {
		ms := cfg.StatementTimeout.Milliseconds()
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if _, err := conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = %d", ms)); err != nil {
				return fmt.Errorf("failed to set statement_timeout: %w", err)
			}
			return nil
		}
	}

	// Probe candidates before handing them out. A dead connection fails
	// the probe, gets destroyed, and the pool retries with another.
	poolConfig.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		return conn.Ping(ctx) == nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &Manager{pool: pool, acquireTimeout: cfg.AcquireTimeout}, nil
}

// Acquire leases a connection, waiting at most the configured acquire
// timeout for one to free up. It never blocks unboundedly: a saturated
// pool surfaces as an error the caller can retry, not a hung request.
func (m *Manager) Acquire(ctx context.Context) (Conn, error) {
	acquireCtx := ctx
	if m.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, m.acquireTimeout)
		defer cancel()
	}
	conn, err := m.pool.Acquire(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("no connection available within %s (max_conns=%d): %w",
			m.acquireTimeout, m.pool.Config().MaxConns, err)
	}
	m.leased.Add(1)
	return &lease{conn: conn, mgr: m}, nil
}

// Leased returns the number of leases currently outstanding.
func (m *Manager) Leased() int64 {
	return m.leased.Load()
}

// Ping verifies the database is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.pool.Ping(ctx)
}

// Stat exposes the underlying pool counters.
func (m *Manager) Stat() *pgxpool.Stat {
	return m.pool.Stat()
}

// Close closes the pool, waiting for leased connections to be released.
func (m *Manager) Close() {
	m.pool.Close()
}

type lease struct {
	conn     *pgxpool.Conn
	mgr      *Manager
	released atomic.Bool
}

func (l *lease) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return l.conn.Query(ctx, sql, args...)
}

func (l *lease) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return l.conn.Exec(ctx, sql, args...)
}

// Release is idempotent: only the first call returns the lease. A poisoned
// release closes the raw connection first; pgxpool destroys closed
// connections instead of pooling them.
func (l *lease) Release(poisoned bool) {
	if !l.released.CompareAndSwap(false, true) {
		return
	}
	if poisoned {
		_ = l.conn.Conn().Close(context.Background())
	}
	l.conn.Release()
	l.mgr.leased.Add(-1)
}
