package classify

import (
	"errors"
	"testing"
)

func assertClass(t *testing.T, sql string, want Class) {
	t.Helper()
	got, err := Detect(sql)
	if err != nil {
		t.Fatalf("Detect(%q) failed: %v", sql, err)
	}
	if got != want {
		t.Fatalf("Detect(%q): expected %s, got %s", sql, want, got)
	}
}

func assertDetectError(t *testing.T, sql string, sentinel error) {
	t.Helper()
	_, err := Detect(sql)
	if err == nil {
		t.Fatalf("Detect(%q): expected error, got none", sql)
	}
	if sentinel != nil && !errors.Is(err, sentinel) {
		t.Fatalf("Detect(%q): expected %v, got %v", sql, sentinel, err)
	}
}

// --- Read Statements ---

func TestDetect_Select(t *testing.T) {
	t.Parallel()
	assertClass(t, "SELECT 1", ClassRead)
	assertClass(t, "SELECT id, name FROM users WHERE id = $1", ClassRead)
	assertClass(t, "select * from orders order by created_at desc limit 10", ClassRead)
	assertClass(t, "SELECT count(*) FROM t GROUP BY x HAVING count(*) > 1", ClassRead)
	assertClass(t, "TABLE users", ClassRead)
	assertClass(t, "VALUES (1), (2)", ClassRead)
}

func TestDetect_SelectWithComments(t *testing.T) {
	t.Parallel()
	assertClass(t, "-- just looking\nSELECT 1 /* honest */", ClassRead)
}

func TestDetect_Show(t *testing.T) {
	t.Parallel()
	assertClass(t, "SHOW server_version", ClassRead)
	assertClass(t, "SHOW ALL", ClassRead)
}

func TestDetect_SelectUnion(t *testing.T) {
	t.Parallel()
	assertClass(t, "SELECT 1 UNION ALL SELECT 2", ClassRead)
}

func TestDetect_ReadCTE(t *testing.T) {
	t.Parallel()
	assertClass(t, "WITH recent AS (SELECT * FROM orders WHERE ts > now() - interval '1 day') SELECT count(*) FROM recent", ClassRead)
}

func TestDetect_SelectForUpdateIsStillRead(t *testing.T) {
	t.Parallel()
	// Lock acquisition without data modification stays read; the lock is
	// released when the connection's implicit transaction ends.
	assertClass(t, "SELECT * FROM jobs WHERE id = $1 FOR UPDATE", ClassRead)
}

// --- Write Statements ---

func TestDetect_DML(t *testing.T) {
	t.Parallel()
	assertClass(t, "INSERT INTO t (a) VALUES ($1)", ClassWrite)
	assertClass(t, "UPDATE t SET a = $1 WHERE id = $2", ClassWrite)
	assertClass(t, "DELETE FROM t WHERE id = $1", ClassWrite)
	assertClass(t, "MERGE INTO t USING s ON t.id = s.id WHEN MATCHED THEN UPDATE SET a = s.a", ClassWrite)
}

func TestDetect_InsertSelect(t *testing.T) {
	t.Parallel()
	assertClass(t, "INSERT INTO archive SELECT * FROM live WHERE ts < $1", ClassWrite)
}

func TestDetect_InsertReturning(t *testing.T) {
	t.Parallel()
	assertClass(t, "INSERT INTO t (a) VALUES ($1) RETURNING id", ClassWrite)
}

// --- CTE Escalation ---

func TestDetect_WritingCTEEscalatesSelect(t *testing.T) {
	t.Parallel()
	assertClass(t, "WITH moved AS (DELETE FROM queue WHERE done RETURNING *) SELECT count(*) FROM moved", ClassWrite)
	assertClass(t, "WITH ins AS (INSERT INTO audit (msg) VALUES ($1) RETURNING id) SELECT id FROM ins", ClassWrite)
}

func TestDetect_NestedWritingCTE(t *testing.T) {
	t.Parallel()
	sql := `WITH outer_cte AS (
		WITH inner_cte AS (UPDATE t SET a = 1 RETURNING *)
		SELECT * FROM inner_cte
	) SELECT count(*) FROM outer_cte`
	assertClass(t, sql, ClassWrite)
}

func TestDetect_WritingCTEInInsert(t *testing.T) {
	t.Parallel()
	// Already write; a writing CTE must not lower or change that.
	assertClass(t, "WITH d AS (DELETE FROM a RETURNING id) INSERT INTO b SELECT id FROM d", ClassWrite)
}

// --- EXPLAIN ---

func TestDetect_ExplainSelect(t *testing.T) {
	t.Parallel()
	assertClass(t, "EXPLAIN SELECT * FROM t", ClassRead)
	assertClass(t, "EXPLAIN (ANALYZE, BUFFERS) SELECT * FROM t", ClassRead)
}

func TestDetect_ExplainDML(t *testing.T) {
	t.Parallel()
	// EXPLAIN ANALYZE INSERT actually inserts. Plain EXPLAIN INSERT does
	// not, but classification is structural and takes the stricter view.
	assertClass(t, "EXPLAIN ANALYZE INSERT INTO t (a) VALUES (1)", ClassWrite)
	assertClass(t, "EXPLAIN UPDATE t SET a = 1", ClassWrite)
}

// --- Admin Statements ---

func TestDetect_DDLIsAdmin(t *testing.T) {
	t.Parallel()
	assertClass(t, "CREATE TABLE t (id int)", ClassAdmin)
	assertClass(t, "DROP TABLE t", ClassAdmin)
	assertClass(t, "ALTER TABLE t ADD COLUMN b text", ClassAdmin)
	assertClass(t, "TRUNCATE t", ClassAdmin)
	assertClass(t, "CREATE INDEX ON t (a)", ClassAdmin)
}

func TestDetect_MaintenanceIsAdmin(t *testing.T) {
	t.Parallel()
	assertClass(t, "VACUUM t", ClassAdmin)
	assertClass(t, "VACUUM (ANALYZE, VERBOSE) t", ClassAdmin)
	assertClass(t, "ANALYZE t", ClassAdmin)
	assertClass(t, "REINDEX TABLE t", ClassAdmin)
	assertClass(t, "CLUSTER t", ClassAdmin)
}

func TestDetect_SessionAndTxnControlIsAdmin(t *testing.T) {
	t.Parallel()
	assertClass(t, "SET work_mem = '64MB'", ClassAdmin)
	assertClass(t, "RESET ALL", ClassAdmin)
	assertClass(t, "BEGIN", ClassAdmin)
	assertClass(t, "COMMIT", ClassAdmin)
	assertClass(t, "LOCK TABLE t", ClassAdmin)
	assertClass(t, "DISCARD ALL", ClassAdmin)
}

func TestDetect_PrivilegeAndRoutineIsAdmin(t *testing.T) {
	t.Parallel()
	assertClass(t, "GRANT SELECT ON t TO readonly", ClassAdmin)
	assertClass(t, "REVOKE ALL ON t FROM public", ClassAdmin)
	assertClass(t, "CALL do_things()", ClassAdmin)
	assertClass(t, "DO $$ BEGIN NULL; END $$", ClassAdmin)
	assertClass(t, "COPY t FROM stdin", ClassAdmin)
	assertClass(t, "COPY (SELECT * FROM t) TO stdout", ClassAdmin)
	assertClass(t, "PREPARE p AS SELECT 1", ClassAdmin)
	assertClass(t, "LISTEN channel_a", ClassAdmin)
	assertClass(t, "NOTIFY channel_a", ClassAdmin)
}

// --- Admin Function Detection ---

func TestDetect_AdminFunctionInTargetList(t *testing.T) {
	t.Parallel()
	assertClass(t, "SELECT pg_terminate_backend(12345)", ClassAdmin)
	assertClass(t, "SELECT pg_cancel_backend($1)", ClassAdmin)
	assertClass(t, "SELECT pg_reload_conf()", ClassAdmin)
	assertClass(t, "SELECT pg_switch_wal()", ClassAdmin)
	assertClass(t, "SELECT pg_drop_replication_slot('slot_a')", ClassAdmin)
}

func TestDetect_AdminFunctionSchemaQualified(t *testing.T) {
	t.Parallel()
	assertClass(t, "SELECT pg_catalog.pg_terminate_backend(1)", ClassAdmin)
}

func TestDetect_AdminFunctionCaseInsensitive(t *testing.T) {
	t.Parallel()
	assertClass(t, "SELECT PG_TERMINATE_BACKEND(1)", ClassAdmin)
}

func TestDetect_AdminFunctionInWhere(t *testing.T) {
	t.Parallel()
	assertClass(t, "SELECT pid FROM pg_stat_activity WHERE pg_cancel_backend(pid)", ClassAdmin)
	assertClass(t, "SELECT 1 WHERE pg_reload_conf() AND true", ClassAdmin)
}

func TestDetect_AdminFunctionInFrom(t *testing.T) {
	t.Parallel()
	assertClass(t, "SELECT * FROM pg_promote()", ClassAdmin)
}

func TestDetect_AdminFunctionNested(t *testing.T) {
	t.Parallel()
	assertClass(t, "SELECT coalesce(pg_terminate_backend(pid), false) FROM pg_stat_activity", ClassAdmin)
	assertClass(t, "SELECT CASE WHEN true THEN pg_terminate_backend(1) ELSE false END", ClassAdmin)
	assertClass(t, "SELECT * FROM t WHERE EXISTS (SELECT pg_terminate_backend(pid) FROM pg_stat_activity)", ClassAdmin)
	assertClass(t, "SELECT * FROM (SELECT pg_terminate_backend(1)) sub", ClassAdmin)
	assertClass(t, "SELECT pg_terminate_backend(pid)::text FROM pg_stat_activity", ClassAdmin)
}

func TestDetect_AdminFunctionInUnionArm(t *testing.T) {
	t.Parallel()
	assertClass(t, "SELECT 1 UNION ALL SELECT CASE WHEN pg_terminate_backend(2) THEN 1 ELSE 0 END", ClassAdmin)
}

func TestDetect_AdminFunctionInDMLStaysEscalated(t *testing.T) {
	t.Parallel()
	assertClass(t, "UPDATE t SET a = 1 WHERE pg_terminate_backend(pid)", ClassAdmin)
	assertClass(t, "DELETE FROM t WHERE pg_cancel_backend(pid)", ClassAdmin)
}

func TestDetect_MonitoringFunctionsStayRead(t *testing.T) {
	t.Parallel()
	// Informational WAL and backend functions are read-only and must not
	// trip the admin set.
	assertClass(t, "SELECT pg_current_wal_lsn()", ClassRead)
	assertClass(t, "SELECT pg_backend_pid()", ClassRead)
	assertClass(t, "SELECT pg_is_in_recovery()", ClassRead)
	assertClass(t, "SELECT pg_database_size('postgres')", ClassRead)
}

// --- Rejections ---

func TestDetect_MultiStatement(t *testing.T) {
	t.Parallel()
	assertDetectError(t, "SELECT 1; SELECT 2", ErrMultiStatement)
	assertDetectError(t, "SELECT 1; DROP TABLE users", ErrMultiStatement)
	assertDetectError(t, "DELETE FROM t; DELETE FROM u; DELETE FROM v", ErrMultiStatement)
}

func TestDetect_TrailingSemicolonOK(t *testing.T) {
	t.Parallel()
	assertClass(t, "SELECT 1;", ClassRead)
}

func TestDetect_Empty(t *testing.T) {
	t.Parallel()
	assertDetectError(t, "", ErrEmpty)
	assertDetectError(t, "   \n\t  ", ErrEmpty)
	assertDetectError(t, "-- nothing but a comment", ErrEmpty)
	assertDetectError(t, ";", ErrEmpty)
}

func TestDetect_ParseError(t *testing.T) {
	t.Parallel()
	assertDetectError(t, "SELEC 1", ErrParse)
	assertDetectError(t, "SELECT * FROM", ErrParse)
	assertDetectError(t, "not sql at all", ErrParse)
}

func TestDetect_SemicolonInsideLiteralIsNotMultiStatement(t *testing.T) {
	t.Parallel()
	assertClass(t, "SELECT 'a; b; c'", ClassRead)
}
