package pgward

// SQL templates for the built-in operations. Each is a single statement;
// $N placeholders are value parameters, {{slot}} markers are identifiers.

const serverVersionSQL = `
SELECT current_setting('server_version') AS server_version,
       current_setting('server_version_num') AS server_version_num,
       version() AS version_string;
`

const listSchemasSQL = `
SELECT n.nspname AS schema,
       pg_catalog.pg_get_userbyid(n.nspowner) AS owner,
       has_schema_privilege(n.oid, 'USAGE') AS usable
FROM pg_catalog.pg_namespace n
WHERE n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
  AND n.nspname NOT LIKE 'pg_temp_%'
  AND n.nspname NOT LIKE 'pg_toast_temp_%'
ORDER BY n.nspname;
`

const listTablesSQL = `
SELECT
    n.nspname AS schema,
    c.relname AS name,
    CASE c.relkind
        WHEN 'r' THEN 'table'
        WHEN 'v' THEN 'view'
        WHEN 'm' THEN 'materialized_view'
        WHEN 'f' THEN 'foreign_table'
        WHEN 'p' THEN 'partitioned_table'
    END AS type,
    pg_catalog.pg_get_userbyid(c.relowner) AS owner,
    NOT has_schema_privilege(n.oid, 'USAGE') AS schema_access_limited
FROM pg_catalog.pg_class c
LEFT JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('r', 'v', 'm', 'f', 'p')
  AND n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
  AND has_table_privilege(c.oid, 'SELECT')
ORDER BY n.nspname, c.relname;
`

const describeTableSQL = `
SELECT
    c.column_name AS name,
    c.data_type AS type,
    CASE c.is_nullable WHEN 'YES' THEN true ELSE false END AS nullable,
    COALESCE(c.column_default, '') AS default_val,
    CASE WHEN pk.column_name IS NOT NULL THEN true ELSE false END AS is_primary_key
FROM information_schema.columns c
LEFT JOIN (
    SELECT kcu.column_name
    FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage kcu
        ON tc.constraint_name = kcu.constraint_name
        AND tc.table_schema = kcu.table_schema
    WHERE tc.constraint_type = 'PRIMARY KEY'
        AND tc.table_schema = COALESCE($1::text, 'public')
        AND tc.table_name = $2
) pk ON pk.column_name = c.column_name
WHERE c.table_schema = COALESCE($1::text, 'public')
    AND c.table_name = $2
ORDER BY c.ordinal_position;
`

const tableIndexesSQL = `
SELECT
    pi.indexname AS name,
    pi.indexdef AS definition,
    i.indisunique AS is_unique,
    i.indisprimary AS is_primary
FROM pg_catalog.pg_indexes pi
JOIN pg_catalog.pg_class c ON c.relname = pi.indexname AND c.relnamespace = (
    SELECT oid FROM pg_catalog.pg_namespace WHERE nspname = pi.schemaname
)
JOIN pg_catalog.pg_index i ON i.indexrelid = c.oid
WHERE pi.schemaname = COALESCE($1::text, 'public')
  AND pi.tablename = $2
ORDER BY pi.indexname;
`

const tableConstraintsSQL = `
SELECT
    con.conname AS name,
    CASE con.contype
        WHEN 'p' THEN 'PRIMARY KEY'
        WHEN 'f' THEN 'FOREIGN KEY'
        WHEN 'u' THEN 'UNIQUE'
        WHEN 'c' THEN 'CHECK'
        WHEN 'x' THEN 'EXCLUSION'
    END AS type,
    pg_catalog.pg_get_constraintdef(con.oid, true) AS definition
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = COALESCE($1::text, 'public')
  AND c.relname = $2
ORDER BY con.conname;
`

const tableForeignKeysSQL = `
SELECT
    con.conname AS name,
    (
        SELECT string_agg(a.attname, ', ' ORDER BY array_position(con.conkey, a.attnum))
        FROM pg_catalog.pg_attribute a
        WHERE a.attrelid = con.conrelid AND a.attnum = ANY(con.conkey)
    ) AS columns,
    fc.relname AS referenced_table,
    (
        SELECT string_agg(a.attname, ', ' ORDER BY array_position(con.confkey, a.attnum))
        FROM pg_catalog.pg_attribute a
        WHERE a.attrelid = con.confrelid AND a.attnum = ANY(con.confkey)
    ) AS referenced_columns,
    CASE con.confupdtype
        WHEN 'a' THEN 'NO ACTION'
        WHEN 'r' THEN 'RESTRICT'
        WHEN 'c' THEN 'CASCADE'
        WHEN 'n' THEN 'SET NULL'
        WHEN 'd' THEN 'SET DEFAULT'
    END AS on_update,
    CASE con.confdeltype
        WHEN 'a' THEN 'NO ACTION'
        WHEN 'r' THEN 'RESTRICT'
        WHEN 'c' THEN 'CASCADE'
        WHEN 'n' THEN 'SET NULL'
        WHEN 'd' THEN 'SET DEFAULT'
    END AS on_delete
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
JOIN pg_catalog.pg_class fc ON fc.oid = con.confrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE con.contype = 'f'
  AND n.nspname = COALESCE($1::text, 'public')
  AND c.relname = $2
ORDER BY con.conname;
`

const tableSizesSQL = `
SELECT n.nspname AS schema,
       c.relname AS name,
       pg_size_pretty(pg_total_relation_size(c.oid)) AS total_size,
       pg_size_pretty(pg_relation_size(c.oid)) AS table_size,
       pg_size_pretty(pg_indexes_size(c.oid)) AS index_size,
       c.reltuples::bigint AS row_estimate
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('r', 'm', 'p')
  AND n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
ORDER BY pg_total_relation_size(c.oid) DESC
LIMIT COALESCE($1::int, 20);
`

const databaseSizesSQL = `
SELECT d.datname AS database,
       pg_size_pretty(pg_database_size(d.datname)) AS size,
       pg_database_size(d.datname) AS size_bytes
FROM pg_catalog.pg_database d
WHERE NOT d.datistemplate
ORDER BY pg_database_size(d.datname) DESC;
`

const connectionActivitySQL = `
SELECT datname AS database,
       usename AS username,
       state,
       count(*) AS connections
FROM pg_catalog.pg_stat_activity
WHERE pid <> pg_backend_pid()
GROUP BY datname, usename, state
ORDER BY connections DESC;
`

const longRunningQueriesSQL = `
SELECT pid,
       usename AS username,
       datname AS database,
       state,
       now() - query_start AS duration,
       wait_event_type,
       wait_event,
       left(query, 200) AS query
FROM pg_catalog.pg_stat_activity
WHERE state <> 'idle'
  AND pid <> pg_backend_pid()
  AND query_start < now() - make_interval(secs => COALESCE($1::int, 60))
ORDER BY query_start;
`

const blockingLocksSQL = `
SELECT blocked.pid AS blocked_pid,
       blocked_activity.usename AS blocked_user,
       left(blocked_activity.query, 200) AS blocked_query,
       blocking.pid AS blocking_pid,
       blocking_activity.usename AS blocking_user,
       left(blocking_activity.query, 200) AS blocking_query
FROM pg_catalog.pg_locks blocked
JOIN pg_catalog.pg_stat_activity blocked_activity ON blocked_activity.pid = blocked.pid
JOIN pg_catalog.pg_locks blocking
    ON blocking.locktype = blocked.locktype
    AND blocking.database IS NOT DISTINCT FROM blocked.database
    AND blocking.relation IS NOT DISTINCT FROM blocked.relation
    AND blocking.page IS NOT DISTINCT FROM blocked.page
    AND blocking.tuple IS NOT DISTINCT FROM blocked.tuple
    AND blocking.virtualxid IS NOT DISTINCT FROM blocked.virtualxid
    AND blocking.transactionid IS NOT DISTINCT FROM blocked.transactionid
    AND blocking.classid IS NOT DISTINCT FROM blocked.classid
    AND blocking.objid IS NOT DISTINCT FROM blocked.objid
    AND blocking.objsubid IS NOT DISTINCT FROM blocked.objsubid
    AND blocking.pid <> blocked.pid
JOIN pg_catalog.pg_stat_activity blocking_activity ON blocking_activity.pid = blocking.pid
WHERE NOT blocked.granted
  AND blocking.granted;
`

const indexUsageSQL = `
SELECT s.schemaname AS schema,
       s.relname AS table_name,
       s.indexrelname AS index_name,
       s.idx_scan AS scans,
       pg_size_pretty(pg_relation_size(s.indexrelid)) AS size
FROM pg_catalog.pg_stat_user_indexes s
WHERE ($1::text IS NULL OR s.schemaname = $1)
ORDER BY s.idx_scan ASC, pg_relation_size(s.indexrelid) DESC
LIMIT 100;
`

const unusedIndexesSQL = `
SELECT s.schemaname AS schema,
       s.relname AS table_name,
       s.indexrelname AS index_name,
       pg_size_pretty(pg_relation_size(s.indexrelid)) AS size
FROM pg_catalog.pg_stat_user_indexes s
JOIN pg_catalog.pg_index i ON i.indexrelid = s.indexrelid
WHERE s.idx_scan = 0
  AND NOT i.indisunique
  AND NOT i.indisprimary
ORDER BY pg_relation_size(s.indexrelid) DESC;
`

const deadTuplesSQL = `
SELECT schemaname AS schema,
       relname AS table_name,
       n_live_tup AS live_tuples,
       n_dead_tup AS dead_tuples,
       round(n_dead_tup * 100.0 / greatest(n_live_tup + n_dead_tup, 1), 2) AS dead_ratio,
       last_vacuum,
       last_autovacuum,
       last_analyze,
       last_autoanalyze
FROM pg_catalog.pg_stat_user_tables
WHERE n_dead_tup > 0
ORDER BY n_dead_tup DESC
LIMIT 50;
`

const cacheHitRatioSQL = `
SELECT datname AS database,
       blks_hit,
       blks_read,
       round(blks_hit * 100.0 / greatest(blks_hit + blks_read, 1), 2) AS hit_ratio
FROM pg_catalog.pg_stat_database
WHERE datname IS NOT NULL
ORDER BY blks_hit + blks_read DESC;
`

const slowStatementsSQL = `
SELECT left(query, 200) AS query,
       calls,
       round(total_exec_time::numeric, 2) AS total_ms,
       round(mean_exec_time::numeric, 2) AS mean_ms,
       rows
FROM pg_stat_statements
ORDER BY mean_exec_time DESC
LIMIT COALESCE($1::int, 20);
`

const replicationStatusSQL = `
SELECT client_addr,
       usename AS username,
       application_name,
       state,
       sync_state,
       pg_wal_lsn_diff(pg_current_wal_lsn(), replay_lsn) AS replay_lag_bytes
FROM pg_catalog.pg_stat_replication;
`

const vacuumProgressSQL = `
SELECT p.pid,
       p.datname AS database,
       c.relname AS table_name,
       p.phase,
       p.heap_blks_total,
       p.heap_blks_scanned,
       p.heap_blks_vacuumed
FROM pg_catalog.pg_stat_progress_vacuum p
LEFT JOIN pg_catalog.pg_class c ON c.oid = p.relid;
`

const serverSettingsSQL = `
SELECT name, setting, unit, category, short_desc, context
FROM pg_catalog.pg_settings
WHERE ($1::text[] IS NULL OR name = ANY($1::text[]))
ORDER BY name;
`

const vacuumTableSQL = `VACUUM (VERBOSE) {{table}};`

const vacuumAnalyzeTableSQL = `VACUUM (ANALYZE, VERBOSE) {{table}};`

const analyzeTableSQL = `ANALYZE {{table}};`

const reindexTableSQL = `REINDEX TABLE {{table}};`

const terminateBackendSQL = `SELECT pg_terminate_backend($1::int) AS terminated;`

const cancelBackendSQL = `SELECT pg_cancel_backend($1::int) AS cancelled;`

const reloadConfigurationSQL = `SELECT pg_reload_conf() AS reloaded;`

// BuiltinOperations returns the stock catalog: inspection and diagnostics
// as reads, maintenance and backend control as admin. There are no
// built-in writes; DML against application tables is always schema
// specific and belongs in the deployment's own operation list.
func BuiltinOperations() []Operation {
	schemaParam := ParamSpec{Name: "schema", Type: ParamText, Description: "Schema name; defaults to public"}
	tableParam := ParamSpec{Name: "table", Type: ParamText, Required: true, Description: "Table name without schema qualification"}
	tableIdent := IdentSpec{Name: "table", Description: "Target table, optionally schema-qualified (schema.name)"}

	return []Operation{
		{
			Name:        "server_version",
			Description: "Report the PostgreSQL server version",
			Class:       ClassRead,
			SQL:         serverVersionSQL,
		},
		{
			Name:        "list_schemas",
			Description: "List non-system schemas with owner and usability",
			Class:       ClassRead,
			SQL:         listSchemasSQL,
		},
		{
			Name:        "list_tables",
			Description: "List tables, views, materialized views, and foreign tables visible to the current role",
			Class:       ClassRead,
			SQL:         listTablesSQL,
		},
		{
			Name:        "describe_table",
			Description: "List a table's columns with types, nullability, defaults, and primary key membership",
			Class:       ClassRead,
			SQL:         describeTableSQL,
			Params:      []ParamSpec{schemaParam, tableParam},
		},
		{
			Name:        "table_indexes",
			Description: "List a table's indexes with their definitions",
			Class:       ClassRead,
			SQL:         tableIndexesSQL,
			Params:      []ParamSpec{schemaParam, tableParam},
		},
		{
			Name:        "table_constraints",
			Description: "List a table's constraints with their definitions",
			Class:       ClassRead,
			SQL:         tableConstraintsSQL,
			Params:      []ParamSpec{schemaParam, tableParam},
		},
		{
			Name:        "table_foreign_keys",
			Description: "List a table's foreign keys with referenced tables and actions",
			Class:       ClassRead,
			SQL:         tableForeignKeysSQL,
			Params:      []ParamSpec{schemaParam, tableParam},
		},
		{
			Name:        "table_sizes",
			Description: "Largest tables by total size, including indexes",
			Class:       ClassRead,
			SQL:         tableSizesSQL,
			Params: []ParamSpec{
				{Name: "limit", Type: ParamInteger, Description: "Number of tables to return; defaults to 20"},
			},
		},
		{
			Name:        "database_sizes",
			Description: "Size of every non-template database",
			Class:       ClassRead,
			SQL:         databaseSizesSQL,
		},
		{
			Name:        "connection_activity",
			Description: "Connection counts grouped by database, user, and state",
			Class:       ClassRead,
			SQL:         connectionActivitySQL,
		},
		{
			Name:        "long_running_queries",
			Description: "Statements running longer than a threshold, with wait events",
			Class:       ClassRead,
			SQL:         longRunningQueriesSQL,
			Params: []ParamSpec{
				{Name: "min_seconds", Type: ParamInteger, Description: "Minimum runtime in seconds; defaults to 60"},
			},
		},
		{
			Name:        "blocking_locks",
			Description: "Lock waits paired with the sessions holding the blocking locks",
			Class:       ClassRead,
			SQL:         blockingLocksSQL,
		},
		{
			Name:        "index_usage",
			Description: "Index scan counts and sizes, least used first",
			Class:       ClassRead,
			SQL:         indexUsageSQL,
			Params: []ParamSpec{
				{Name: "schema", Type: ParamText, Description: "Restrict to one schema; defaults to all"},
			},
		},
		{
			Name:        "unused_indexes",
			Description: "Never-scanned non-unique indexes, largest first",
			Class:       ClassRead,
			SQL:         unusedIndexesSQL,
		},
		{
			Name:        "dead_tuples",
			Description: "Tables with dead tuples and their last vacuum and analyze times",
			Class:       ClassRead,
			SQL:         deadTuplesSQL,
		},
		{
			Name:        "cache_hit_ratio",
			Description: "Buffer cache hit ratio per database",
			Class:       ClassRead,
			SQL:         cacheHitRatioSQL,
		},
		{
			Name:        "slow_statements",
			Description: "Slowest statements by mean execution time; requires the pg_stat_statements extension",
			Class:       ClassRead,
			SQL:         slowStatementsSQL,
			Params: []ParamSpec{
				{Name: "limit", Type: ParamInteger, Description: "Number of statements to return; defaults to 20"},
			},
		},
		{
			Name:        "replication_status",
			Description: "Streaming replication peers with sync state and replay lag",
			Class:       ClassRead,
			SQL:         replicationStatusSQL,
		},
		{
			Name:        "vacuum_progress",
			Description: "Progress of currently running VACUUM operations",
			Class:       ClassRead,
			SQL:         vacuumProgressSQL,
		},
		{
			Name:        "server_settings",
			Description: "Server settings, optionally restricted to specific names",
			Class:       ClassRead,
			SQL:         serverSettingsSQL,
			Params: []ParamSpec{
				{Name: "names", Type: ParamTextArray, Description: "Setting names to return; defaults to all"},
			},
		},
		{
			Name:        "vacuum_table",
			Description: "VACUUM one table",
			Class:       ClassAdmin,
			SQL:         vacuumTableSQL,
			Identifiers: []IdentSpec{tableIdent},
		},
		{
			Name:        "vacuum_analyze_table",
			Description: "VACUUM and refresh planner statistics for one table",
			Class:       ClassAdmin,
			SQL:         vacuumAnalyzeTableSQL,
			Identifiers: []IdentSpec{tableIdent},
		},
		{
			Name:        "analyze_table",
			Description: "Refresh planner statistics for one table",
			Class:       ClassAdmin,
			SQL:         analyzeTableSQL,
			Identifiers: []IdentSpec{tableIdent},
		},
		{
			Name:        "reindex_table",
			Description: "Rebuild all indexes on one table; takes exclusive locks",
			Class:       ClassAdmin,
			SQL:         reindexTableSQL,
			Identifiers: []IdentSpec{tableIdent},
		},
		{
			Name:        "terminate_backend",
			Description: "Terminate one backend by pid",
			Class:       ClassAdmin,
			SQL:         terminateBackendSQL,
			Params: []ParamSpec{
				{Name: "pid", Type: ParamInteger, Required: true, Description: "Backend process id from connection_activity or blocking_locks"},
			},
		},
		{
			Name:        "cancel_backend",
			Description: "Cancel the running statement of one backend by pid",
			Class:       ClassAdmin,
			SQL:         cancelBackendSQL,
			Params: []ParamSpec{
				{Name: "pid", Type: ParamInteger, Required: true, Description: "Backend process id"},
			},
		},
		{
			Name:        "reload_configuration",
			Description: "Signal the server to reload its configuration files",
			Class:       ClassAdmin,
			SQL:         reloadConfigurationSQL,
		},
	}
}
