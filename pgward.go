package pgward

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfelczak/pgward/internal/deadline"
	"github.com/jfelczak/pgward/internal/pgerr"
	"github.com/jfelczak/pgward/internal/pgpool"
	"github.com/jfelczak/pgward/internal/scrub"
)

// connSource is the pool surface Execute depends on. pgpool.Manager
// implements it; tests substitute a fake.
type connSource interface {
	Acquire(ctx context.Context) (pgpool.Conn, error)
	Ping(ctx context.Context) error
	Leased() int64
	Close()
}

// Gateway executes named operations and ad-hoc SQL against a single
// PostgreSQL database, behind statement classification, identifier
// binding, and per-class deadlines.
// All exported methods are safe for concurrent use from multiple goroutines.
type Gateway struct {
	config    Config
	pool      connSource
	registry  *Registry
	deadlines *deadline.Resolver
	scrubber  *scrub.Scrubber
	errs      *pgerr.Classifier
	logger    zerolog.Logger
}

// Option is a functional option for New().
type Option func(*options)

type options struct {
	operations []Operation
}

// WithOperations registers additional operations on top of the built-in
// catalog and Config.Operations. Names must be unique across all three
// sources.
func WithOperations(ops ...Operation) Option {
	return func(o *options) {
		o.operations = append(o.operations, ops...)
	}
}

// New creates a Gateway.
// connString is the PostgreSQL connection string (must include credentials).
// Panics on invalid config, including invalid operation definitions.
// Returns error only for runtime failures (e.g., pool creation).
func New(ctx context.Context, connString string, config Config, logger zerolog.Logger, opts ...Option) (*Gateway, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	// --- Config validation (panics on invalid config) ---

	if connString == "" {
		panic("pgward: connString must be non-empty")
	}
	if config.Pool.MaxConns <= 0 {
		panic("pgward: pool.max_conns must be > 0")
	}
	if config.Pool.MinConns < 0 {
		panic("pgward: pool.min_conns must be >= 0")
	}
	if config.Pool.MinConns > config.Pool.MaxConns {
		panic("pgward: pool.min_conns must be <= pool.max_conns")
	}
	if config.Pool.AcquireTimeoutSeconds < 0 {
		panic("pgward: pool.acquire_timeout_seconds must be >= 0")
	}
	if config.Exec.ReadTimeoutSeconds <= 0 {
		panic("pgward: exec.read_timeout_seconds must be > 0")
	}
	if config.Exec.WriteTimeoutSeconds <= 0 {
		panic("pgward: exec.write_timeout_seconds must be > 0")
	}
	if config.Exec.AdminTimeoutSeconds <= 0 {
		panic("pgward: exec.admin_timeout_seconds must be > 0")
	}
	if config.Exec.MaxTimeoutSeconds < 0 {
		panic("pgward: exec.max_timeout_seconds must be >= 0")
	}
	if config.Exec.StatementTimeoutSeconds < 0 {
		panic("pgward: exec.statement_timeout_seconds must be >= 0")
	}

	// Apply defaults for zero values
	if config.Pool.AcquireTimeoutSeconds == 0 {
		config.Pool.AcquireTimeoutSeconds = 5
	}
	if config.Exec.MaxSQLLength == 0 {
		config.Exec.MaxSQLLength = 100000
	}
	if config.Exec.MaxResultRows == 0 {
		config.Exec.MaxResultRows = 10000
	}
	if config.Exec.MaxSQLLength < 0 {
		panic("pgward: exec.max_sql_length must be > 0")
	}
	if config.Exec.MaxResultRows < 0 {
		panic("pgward: exec.max_result_rows must be > 0")
	}
	if config.Exec.StatementTimeoutSeconds == 0 {
		config.Exec.StatementTimeoutSeconds = slowestTimeoutSeconds(config.Exec) + 30
	}

	scrubber, err := scrub.New(mapScrubRules(config.Scrub))
	if err != nil {
		panic(fmt.Sprintf("pgward: invalid scrub rule: %v", err))
	}

	ops := BuiltinOperations()
	ops = append(ops, config.Operations...)
	ops = append(ops, o.operations...)
	registry, err := NewRegistry(ops)
	if err != nil {
		panic(fmt.Sprintf("pgward: %v", err))
	}

	// --- Configure pool ---

	poolCfg := pgpool.Config{
		MaxConns:         int32(config.Pool.MaxConns),
		MinConns:         int32(config.Pool.MinConns),
		AcquireTimeout:   time.Duration(config.Pool.AcquireTimeoutSeconds) * time.Second,
		StatementTimeout: time.Duration(config.Exec.StatementTimeoutSeconds) * time.Second,
	}
	if config.Pool.MaxConnLifetime != "" {
		d, err := time.ParseDuration(config.Pool.MaxConnLifetime)
		if err != nil {
			panic(fmt.Sprintf("pgward: invalid pool.max_conn_lifetime %q: %v", config.Pool.MaxConnLifetime, err))
		}
		poolCfg.MaxConnLifetime = d
	}
	if config.Pool.MaxConnIdleTime != "" {
		d, err := time.ParseDuration(config.Pool.MaxConnIdleTime)
		if err != nil {
			panic(fmt.Sprintf("pgward: invalid pool.max_conn_idle_time %q: %v", config.Pool.MaxConnIdleTime, err))
		}
		poolCfg.MaxConnIdleTime = d
	}
	if config.Pool.HealthCheckPeriod != "" {
		d, err := time.ParseDuration(config.Pool.HealthCheckPeriod)
		if err != nil {
			panic(fmt.Sprintf("pgward: invalid pool.health_check_period %q: %v", config.Pool.HealthCheckPeriod, err))
		}
		poolCfg.HealthCheckPeriod = d
	}

	pool, err := pgpool.New(ctx, connString, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	deadlines := deadline.NewResolver(deadline.Config{
		Read:  time.Duration(config.Exec.ReadTimeoutSeconds) * time.Second,
		Write: time.Duration(config.Exec.WriteTimeoutSeconds) * time.Second,
		Admin: time.Duration(config.Exec.AdminTimeoutSeconds) * time.Second,
		Max:   time.Duration(config.Exec.MaxTimeoutSeconds) * time.Second,
	})

	return &Gateway{
		config:    config,
		pool:      pool,
		registry:  registry,
		deadlines: deadlines,
		scrubber:  scrubber,
		errs:      pgerr.NewClassifier(scrubber),
		logger:    logger,
	}, nil
}

// Registry returns the operation catalog in registration order.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Ping verifies the database is reachable. The returned error, if any,
// has already been classified and scrubbed.
func (g *Gateway) Ping(ctx context.Context) error {
	if err := g.pool.Ping(ctx); err != nil {
		return g.errs.Classify(err)
	}
	return nil
}

// Leased reports the number of connections currently held by in-flight
// executions.
func (g *Gateway) Leased() int64 {
	return g.pool.Leased()
}

// Close closes the connection pool. Accepts context for API forward-compatibility,
// but does not currently use it — pgxpool.Pool.Close() does not support context-based shutdown.
func (g *Gateway) Close(ctx context.Context) {
	g.pool.Close()
}

// classEnabled reports whether the gate allows a statement class. Reads
// are always allowed.
func (g *Gateway) classEnabled(class Class) bool {
	switch class {
	case ClassWrite:
		return g.config.Gate.AllowWrite
	case ClassAdmin:
		return g.config.Gate.AllowAdmin
	default:
		return true
	}
}

// slowestTimeoutSeconds returns the largest configured class or cap timeout.
func slowestTimeoutSeconds(exec ExecConfig) int {
	s := exec.ReadTimeoutSeconds
	for _, v := range []int{exec.WriteTimeoutSeconds, exec.AdminTimeoutSeconds, exec.MaxTimeoutSeconds} {
		if v > s {
			s = v
		}
	}
	return s
}

// mapScrubRules converts pgward ScrubRules to internal scrub.Rules.
func mapScrubRules(rules []ScrubRule) []scrub.Rule {
	result := make([]scrub.Rule, len(rules))
	for i, r := range rules {
		result[i] = scrub.Rule{
			Pattern:     r.Pattern,
			Replacement: r.Replacement,
		}
	}
	return result
}
