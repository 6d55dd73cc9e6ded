package pgward

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jfelczak/pgward/internal/bind"
	"github.com/jfelczak/pgward/internal/classify"
	"github.com/jfelczak/pgward/internal/normalize"
	"github.com/jfelczak/pgward/internal/pgerr"
)

// Pipeline stage names recorded on failure logs.
const (
	stageValidate = "validate"
	stageBind     = "bind"
	stageClassify = "classify"
	stageAcquire  = "acquire"
	stageExecute  = "execute"
)

// Execute runs one request through the full pipeline: validate, expand
// identifier slots, classify and gate, acquire a connection, execute under
// the class deadline, and normalize the result.
// A request is rejected before a connection is acquired whenever possible;
// the pool is only touched once the statement is known to be executable.
// The returned error is always a *pgerr.Error.
func (g *Gateway) Execute(ctx context.Context, req OperationRequest) (*ExecutionResult, error) {
	startTime := time.Now()
	logger := g.logger.With().
		Str("request_id", uuid.NewString()).
		Str("op", req.Name).
		Logger()

	fail := func(stage string, e *pgerr.Error) (*ExecutionResult, error) {
		logger.Warn().
			Str("stage", stage).
			Str("kind", string(e.Kind)).
			Bool("retryable", e.Retryable()).
			Msg(e.Message)
		return nil, e
	}

	// 1. Refuse work if the caller is already gone
	if err := ctx.Err(); err != nil {
		return fail(stageValidate, g.errs.Classify(err))
	}

	// 2. Check request shape before any parsing
	if strings.TrimSpace(req.Template) == "" {
		return fail(stageValidate, pgerr.New(pgerr.KindValidation, "empty statement"))
	}
	if !req.Class.Valid() {
		return fail(stageValidate, pgerr.New(pgerr.KindValidation, "unknown class %q", string(req.Class)))
	}
	if len(req.Template) > g.config.Exec.MaxSQLLength {
		return fail(stageValidate, pgerr.New(pgerr.KindValidation,
			"statement too long: %d bytes exceeds maximum of %d bytes", len(req.Template), g.config.Exec.MaxSQLLength))
	}

	// 3. Expand identifier slots. Identifiers are quoted into the text;
	// values never are — they travel as wire parameters.
	sql, err := bind.Expand(req.Template, req.Identifiers)
	if err != nil {
		if errors.Is(err, bind.ErrInvalidIdentifier) {
			return fail(stageBind, pgerr.New(pgerr.KindInvalidIdentifier, "%s", err))
		}
		return fail(stageBind, pgerr.New(pgerr.KindValidation, "%s", err))
	}

	// 4. Check parameter arity against the expanded text
	want, err := bind.Placeholders(sql)
	if err != nil {
		return fail(stageBind, pgerr.New(pgerr.KindValidation, "%s", err))
	}
	if want != len(req.Params) {
		return fail(stageBind, pgerr.New(pgerr.KindValidation,
			"statement uses %d placeholders but %d parameters were bound", want, len(req.Params)))
	}

	// 5. Classify via the parser and compare with the declaration
	detected, err := classify.Detect(sql)
	if err != nil {
		if errors.Is(err, classify.ErrMultiStatement) {
			return fail(stageClassify, pgerr.New(pgerr.KindMultiStatement, "%s", err))
		}
		return fail(stageClassify, pgerr.New(pgerr.KindValidation, "%s", err))
	}
	class := Class(detected)
	if class != req.Class {
		return fail(stageClassify, pgerr.New(pgerr.KindClassMismatch,
			"declared class %s but statement classifies as %s", req.Class, class))
	}

	// 6. Gate write and admin classes
	if !g.classEnabled(class) {
		return fail(stageClassify, pgerr.New(pgerr.KindPermissionDenied,
			"%s statements are disabled on this gateway", string(class)))
	}

	// 7. Acquire a connection. Failure here is retryable back-pressure,
	// not a statement problem.
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return fail(stageAcquire, pgerr.New(pgerr.KindResourceExhausted,
			"no connection available: %s; retry with backoff", g.scrubber.String(err.Error())))
	}
	poisoned := false
	defer func() { conn.Release(poisoned) }()

	// 8. Execute under the class deadline
	timeout := g.deadlines.Resolve(detected, req.Timeout)
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := conn.Query(execCtx, sql, req.Params...)
	if err != nil {
		e := g.errs.Classify(err)
		poisoned = e.Kind.Poisons()
		return fail(stageExecute, e)
	}

	// 9. Collect and normalize rows
	collected, err := normalize.Collect(rows, g.config.Exec.MaxResultRows)
	if err != nil {
		if errors.Is(err, normalize.ErrRowLimit) {
			// The cap fired but the connection itself is fine.
			return fail(stageExecute, pgerr.New(pgerr.KindValidation, "%s", err))
		}
		e := g.errs.Classify(err)
		poisoned = e.Kind.Poisons()
		return fail(stageExecute, e)
	}

	columns := make([]Column, len(collected.Columns))
	for i, c := range collected.Columns {
		columns[i] = Column{Name: c.Name, Type: c.Type}
	}
	result := &ExecutionResult{
		Columns:      columns,
		Rows:         collected.Rows,
		RowCount:     len(collected.Rows),
		RowsAffected: collected.RowsAffected,
		Elapsed:      time.Since(startTime),
	}

	// 10. Log successful execution with pipeline details
	logger.Info().
		Str("class", string(class)).
		Str("sql", truncateForLog(sql, 200)).
		Dur("duration", result.Elapsed).
		Int("row_count", result.RowCount).
		Int64("rows_affected", result.RowsAffected).
		Msg("operation executed")

	return result, nil
}

// ExecuteOperation looks up a registered operation and executes it with
// named arguments. Arguments are routed by name: identifier slots must be
// strings, everything else is coerced against the operation's parameter
// specs and bound by position. The returned error is always a *pgerr.Error.
func (g *Gateway) ExecuteOperation(ctx context.Context, name string, args map[string]any) (*ExecutionResult, error) {
	op, ok := g.registry.Get(name)
	if !ok {
		return nil, pgerr.New(pgerr.KindValidation, "unknown operation %q", name)
	}

	values := make(map[string]any, len(args))
	for k, v := range args {
		values[k] = v
	}

	idents := make(map[string]string, len(op.Identifiers))
	for _, spec := range op.Identifiers {
		raw, ok := values[spec.Name]
		if !ok {
			return nil, pgerr.New(pgerr.KindValidation, "operation %q: missing identifier %q", name, spec.Name)
		}
		s, ok := raw.(string)
		if !ok {
			return nil, pgerr.New(pgerr.KindValidation, "operation %q: identifier %q must be a string", name, spec.Name)
		}
		idents[spec.Name] = s
		delete(values, spec.Name)
	}

	params, err := bind.Values(bindParams(op.Params), values)
	if err != nil {
		return nil, pgerr.New(pgerr.KindValidation, "operation %q: %s", name, err)
	}

	return g.Execute(ctx, OperationRequest{
		Name:        op.Name,
		Template:    op.SQL,
		Class:       op.Class,
		Params:      params,
		Identifiers: idents,
	})
}

// bindParams converts an operation's parameter specs to the binder's form.
func bindParams(specs []ParamSpec) []bind.Param {
	result := make([]bind.Param, len(specs))
	for i, s := range specs {
		result[i] = bind.Param{
			Name:     s.Name,
			Type:     bind.Type(s.Type),
			Required: s.Required,
		}
	}
	return result
}

// truncateForLog truncates a string for log output to avoid oversized log entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}
