// Package classify determines the privilege class of a SQL statement by
// parsing it with the real PostgreSQL parser. Classification is structural:
// it looks at what the statement is, never at what it is called or how it
// is spelled, so comments, casing, and whitespace cannot change the answer.
package classify

import (
	"errors"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Class is the privilege class of a statement. Classes are ordered:
// read < write < admin. A compound statement takes the highest class of
// any of its parts.
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
	ClassAdmin Class = "admin"
)

var (
	// ErrEmpty is returned for statements with no executable content.
	ErrEmpty = errors.New("empty statement")
	// ErrMultiStatement is returned when a request contains more than one
	// statement. Compound requests are rejected wholesale, never split.
	ErrMultiStatement = errors.New("multi-statement requests are not allowed")
	// ErrParse is returned when the statement does not parse.
	ErrParse = errors.New("statement does not parse")
)

// Detect parses sql and returns its class. The text must contain exactly
// one statement; anything unparseable, empty, or compound is an error.
func Detect(sql string) (Class, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(result.Stmts) == 0 {
		return "", ErrEmpty
	}
	if len(result.Stmts) > 1 {
		return "", fmt.Errorf("%w: found %d statements", ErrMultiStatement, len(result.Stmts))
	}
	return stmtClass(result.Stmts[0].Stmt), nil
}

func rank(c Class) int {
	switch c {
	case ClassRead:
		return 0
	case ClassWrite:
		return 1
	default:
		return 2
	}
}

func maxClass(a, b Class) Class {
	if rank(b) > rank(a) {
		return b
	}
	return a
}

// stmtClass classifies a single parsed statement. Only SELECT and SHOW are
// read; INSERT, UPDATE, DELETE, and MERGE are write. Every other statement
// type (DDL, SET, transaction control, COPY, CALL, DO, maintenance
// commands) falls through to admin, so a statement type this code has
// never seen is treated as the most privileged, not the least.
func stmtClass(node *pg_query.Node) Class {
	if node == nil || node.Node == nil {
		return ClassAdmin
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		return selectClass(n.SelectStmt)

	case *pg_query.Node_VariableShowStmt:
		return ClassRead

	case *pg_query.Node_ExplainStmt:
		// EXPLAIN ANALYZE executes the statement it explains, so the inner
		// statement decides the class.
		if n.ExplainStmt.Query == nil {
			return ClassRead
		}
		return stmtClass(n.ExplainStmt.Query)

	case *pg_query.Node_InsertStmt:
		c := maxClass(ClassWrite, cteClass(n.InsertStmt.WithClause))
		if n.InsertStmt.SelectStmt != nil {
			c = maxClass(c, stmtClass(n.InsertStmt.SelectStmt))
		}
		return c

	case *pg_query.Node_UpdateStmt:
		c := maxClass(ClassWrite, cteClass(n.UpdateStmt.WithClause))
		if hasAdminCallList(n.UpdateStmt.TargetList) || hasAdminCall(n.UpdateStmt.WhereClause) {
			c = ClassAdmin
		}
		return c

	case *pg_query.Node_DeleteStmt:
		c := maxClass(ClassWrite, cteClass(n.DeleteStmt.WithClause))
		if hasAdminCall(n.DeleteStmt.WhereClause) {
			c = ClassAdmin
		}
		return c

	case *pg_query.Node_MergeStmt:
		return maxClass(ClassWrite, cteClass(n.MergeStmt.WithClause))
	}
	return ClassAdmin
}

// selectClass classifies a SELECT, escalating for data-modifying CTEs,
// set-operation arms, and calls to administrative functions anywhere in
// the target list, FROM clause, WHERE, or HAVING.
func selectClass(sel *pg_query.SelectStmt) Class {
	if sel == nil {
		return ClassAdmin
	}
	c := maxClass(ClassRead, cteClass(sel.WithClause))
	if sel.Larg != nil {
		c = maxClass(c, selectClass(sel.Larg))
	}
	if sel.Rarg != nil {
		c = maxClass(c, selectClass(sel.Rarg))
	}
	if hasAdminCallList(sel.TargetList) ||
		hasAdminCallList(sel.FromClause) ||
		hasAdminCall(sel.WhereClause) ||
		hasAdminCall(sel.HavingClause) {
		c = ClassAdmin
	}
	return c
}

// cteClass returns the highest class among the CTEs of a WITH clause.
// A data-modifying CTE makes the whole statement at least a write, no
// matter how read-shaped the outer query is.
func cteClass(with *pg_query.WithClause) Class {
	if with == nil {
		return ClassRead
	}
	c := ClassRead
	for _, cte := range with.Ctes {
		node, ok := cte.Node.(*pg_query.Node_CommonTableExpr)
		if !ok {
			continue
		}
		c = maxClass(c, stmtClass(node.CommonTableExpr.Ctequery))
	}
	return c
}

// adminFunctions are server-control functions callable from an otherwise
// read-shaped SELECT. Any call to one makes the statement admin.
var adminFunctions = map[string]struct{}{
	"pg_terminate_backend":                {},
	"pg_cancel_backend":                   {},
	"pg_reload_conf":                      {},
	"pg_rotate_logfile":                   {},
	"pg_switch_wal":                       {},
	"pg_promote":                          {},
	"pg_create_restore_point":             {},
	"pg_create_physical_replication_slot": {},
	"pg_create_logical_replication_slot":  {},
	"pg_drop_replication_slot":            {},
	"pg_wal_replay_pause":                 {},
	"pg_wal_replay_resume":                {},
}

func hasAdminCallList(nodes []*pg_query.Node) bool {
	for _, n := range nodes {
		if hasAdminCall(n) {
			return true
		}
	}
	return false
}

// hasAdminCall walks the expression shapes a SELECT can smuggle a function
// call through. Unknown node types are treated as call-free: statement
// types that can hide arbitrary execution (DO, CALL, CREATE FUNCTION) are
// already admin at the statement level.
func hasAdminCall(node *pg_query.Node) bool {
	if node == nil || node.Node == nil {
		return false
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_ResTarget:
		return hasAdminCall(n.ResTarget.Val)
	case *pg_query.Node_FuncCall:
		if isAdminFunction(n.FuncCall.Funcname) {
			return true
		}
		return hasAdminCallList(n.FuncCall.Args)
	case *pg_query.Node_TypeCast:
		return hasAdminCall(n.TypeCast.Arg)
	case *pg_query.Node_AExpr:
		return hasAdminCall(n.AExpr.Lexpr) || hasAdminCall(n.AExpr.Rexpr)
	case *pg_query.Node_BoolExpr:
		return hasAdminCallList(n.BoolExpr.Args)
	case *pg_query.Node_NullTest:
		return hasAdminCall(n.NullTest.Arg)
	case *pg_query.Node_BooleanTest:
		return hasAdminCall(n.BooleanTest.Arg)
	case *pg_query.Node_CaseExpr:
		if hasAdminCall(n.CaseExpr.Arg) || hasAdminCall(n.CaseExpr.Defresult) {
			return true
		}
		return hasAdminCallList(n.CaseExpr.Args)
	case *pg_query.Node_CaseWhen:
		return hasAdminCall(n.CaseWhen.Expr) || hasAdminCall(n.CaseWhen.Result)
	case *pg_query.Node_CoalesceExpr:
		return hasAdminCallList(n.CoalesceExpr.Args)
	case *pg_query.Node_MinMaxExpr:
		return hasAdminCallList(n.MinMaxExpr.Args)
	case *pg_query.Node_RowExpr:
		return hasAdminCallList(n.RowExpr.Args)
	case *pg_query.Node_List:
		return hasAdminCallList(n.List.Items)
	case *pg_query.Node_SubLink:
		return stmtClass(n.SubLink.Subselect) == ClassAdmin
	case *pg_query.Node_RangeSubselect:
		return stmtClass(n.RangeSubselect.Subquery) == ClassAdmin
	case *pg_query.Node_RangeFunction:
		return hasAdminCallList(n.RangeFunction.Functions)
	case *pg_query.Node_JoinExpr:
		return hasAdminCall(n.JoinExpr.Larg) ||
			hasAdminCall(n.JoinExpr.Rarg) ||
			hasAdminCall(n.JoinExpr.Quals)
	}
	return false
}

// isAdminFunction matches the last segment of a possibly schema-qualified
// function name against the admin set. pg_catalog.pg_reload_conf and
// pg_reload_conf are the same function.
func isAdminFunction(funcname []*pg_query.Node) bool {
	if len(funcname) == 0 {
		return false
	}
	last, ok := funcname[len(funcname)-1].Node.(*pg_query.Node_String_)
	if !ok {
		return false
	}
	_, found := adminFunctions[strings.ToLower(last.String_.Sval)]
	return found
}
