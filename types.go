package pgward

import "time"

// Class is the declared privilege class of an operation. The gateway
// verifies the declaration against what the PostgreSQL parser detects and
// rejects any disagreement, so a class can be trusted as a capability
// boundary rather than a label.
type Class string

const (
	// ClassRead covers SELECT and SHOW.
	ClassRead Class = "read"
	// ClassWrite covers INSERT, UPDATE, DELETE, and MERGE.
	ClassWrite Class = "write"
	// ClassAdmin covers everything else: DDL, maintenance commands,
	// session and transaction control, and server-control functions.
	ClassAdmin Class = "admin"
)

// Valid reports whether c is one of the three known classes.
func (c Class) Valid() bool {
	return c == ClassRead || c == ClassWrite || c == ClassAdmin
}

// OperationRequest is one fully-specified execution request. Most callers
// go through ExecuteOperation, which builds the request from a registered
// operation; Execute accepts a request directly for ad-hoc statements.
type OperationRequest struct {
	// Name labels the request in logs. Diagnostic only.
	Name string
	// Template is the SQL text, with $N value placeholders and {{slot}}
	// identifier slots.
	Template string
	// Class is the declared privilege class. It must match what the
	// parser detects for the statement or the request is rejected.
	Class Class
	// Params are the positional values bound to $1..$N. Values are never
	// interpolated into the statement text.
	Params []any
	// Identifiers fill the template's {{slot}} slots. Each value must
	// pass the identifier grammar.
	Identifiers map[string]string
	// Timeout overrides the per-class execution deadline when positive.
	// It is still clamped to the configured maximum.
	Timeout time.Duration
}

// Column describes one column of an execution result.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ExecutionResult is the normalized outcome of a successful execution.
// Rows are ordered as the server returned them. A SQL NULL is nil, never a
// zero value, so callers can tell "no value" from "empty value".
type ExecutionResult struct {
	Columns      []Column      `json:"columns"`
	Rows         [][]any       `json:"rows"`
	RowCount     int           `json:"row_count"`
	RowsAffected int64         `json:"rows_affected"`
	Elapsed      time.Duration `json:"-"`
}
