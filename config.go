package pgward

// Config is the base configuration used by library mode via New().
type Config struct {
	Pool       PoolConfig  `json:"pool"`
	Exec       ExecConfig  `json:"exec"`
	Gate       GateConfig  `json:"gate"`
	Scrub      []ScrubRule `json:"scrub"`
	Operations []Operation `json:"operations"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Connection ConnectionConfig `json:"connection"`
	Server     ServerSettings   `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
}

// ConnectionConfig holds database connection parameters used by CLI mode.
type ConnectionConfig struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	DBName  string `json:"dbname"`
	SSLMode string `json:"sslmode"`
}

// PoolConfig holds connection pool settings. Lifetime fields use Go
// duration strings ("1h", "30m").
type PoolConfig struct {
	MaxConns          int    `json:"max_conns"`
	MinConns          int    `json:"min_conns"`
	MaxConnLifetime   string `json:"max_conn_lifetime"`
	MaxConnIdleTime   string `json:"max_conn_idle_time"`
	HealthCheckPeriod string `json:"health_check_period"`
	// AcquireTimeoutSeconds bounds the wait for a free connection.
	// Defaults to 5.
	AcquireTimeoutSeconds int `json:"acquire_timeout_seconds"`
}

// ExecConfig holds execution deadline and size settings. The three class
// timeouts are required; everything else has a usable default.
type ExecConfig struct {
	ReadTimeoutSeconds  int `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int `json:"write_timeout_seconds"`
	AdminTimeoutSeconds int `json:"admin_timeout_seconds"`
	// MaxTimeoutSeconds caps caller-requested deadlines. Zero = uncapped.
	MaxTimeoutSeconds int `json:"max_timeout_seconds"`
	// StatementTimeoutSeconds is set server-side on every connection as a
	// floor under client deadlines. Zero derives it from the slowest class
	// timeout plus headroom.
	StatementTimeoutSeconds int `json:"statement_timeout_seconds"`
	// MaxSQLLength bounds statement text size in bytes. Defaults to 100000.
	MaxSQLLength int `json:"max_sql_length"`
	// MaxResultRows bounds result size in rows; results over the cap are
	// rejected whole. Defaults to 10000.
	MaxResultRows int `json:"max_result_rows"`
}

// GateConfig controls which statement classes the gateway will execute.
// Reads are always allowed; writes and admin default to blocked.
type GateConfig struct {
	AllowWrite bool `json:"allow_write"`
	AllowAdmin bool `json:"allow_admin"`
}

// ScrubRule defines a regex-based redaction rule applied to error messages
// and log text, on top of the built-in credential rules.
type ScrubRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Description string `json:"description"`
}

// ServerSettings holds HTTP server settings for CLI mode.
type ServerSettings struct {
	Port               int    `json:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, stderr, or file path
}
