package pgward

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jfelczak/pgward/internal/pgerr"
)

// toolPayload is the JSON shape returned to the agent on success.
type toolPayload struct {
	Columns      []Column `json:"columns"`
	Rows         [][]any  `json:"rows"`
	RowCount     int      `json:"row_count"`
	RowsAffected int64    `json:"rows_affected"`
	ElapsedMS    int64    `json:"elapsed_ms"`
}

// toolError is the JSON shape returned to the agent on failure. Kind and
// Retryable give the agent a stable signal to branch on.
type toolError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	SQLState  string `json:"sqlstate,omitempty"`
	Retryable bool   `json:"retryable"`
}

// RegisterMCPTools registers one MCP tool per enabled catalog operation,
// plus the free-form query tools, on the given MCP server. Operations
// whose class is gated off are not advertised at all.
func RegisterMCPTools(mcpServer *server.MCPServer, gw *Gateway) {
	for _, op := range gw.Registry().Operations() {
		if !gw.classEnabled(op.Class) {
			continue
		}
		op := op
		mcpServer.AddTool(operationTool(op), gw.loggedToolHandler(op.Name, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return toolResult(gw.ExecuteOperation(ctx, op.Name, req.GetArguments()))
		}))
	}

	// Free-form reads are always available.
	queryTool := mcp.NewTool("query",
		mcp.WithDescription("Run a single read-only SQL statement (SELECT, SHOW, EXPLAIN) against the PostgreSQL database. Returns results as JSON."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The SQL statement to execute"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(queryTool, gw.loggedToolHandler("query", gw.freeformHandler("adhoc_read", ClassRead)))

	// Free-form writes only exist when the gate allows them. Ad-hoc admin
	// is never exposed; admin actions go through catalog operations.
	if gw.config.Gate.AllowWrite {
		execTool := mcp.NewTool("execute_sql",
			mcp.WithDescription("Run a single write SQL statement (INSERT, UPDATE, DELETE, MERGE) against the PostgreSQL database. Returns affected row counts and any RETURNING rows as JSON."),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description("The SQL statement to execute"),
			),
		)
		mcpServer.AddTool(execTool, gw.loggedToolHandler("execute_sql", gw.freeformHandler("adhoc_write", ClassWrite)))
	}
}

// operationTool builds the MCP tool definition for one catalog operation.
// Parameter specs become typed tool arguments; identifier slots become
// required strings.
func operationTool(op Operation) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(op.Description)}
	if op.Class == ClassRead {
		opts = append(opts, mcp.WithReadOnlyHintAnnotation(true))
	}
	for _, p := range op.Params {
		var popts []mcp.PropertyOption
		if p.Required {
			popts = append(popts, mcp.Required())
		}
		popts = append(popts, mcp.Description(paramDescription(p)))
		switch p.Type {
		case ParamInteger, ParamDouble:
			opts = append(opts, mcp.WithNumber(p.Name, popts...))
		case ParamBoolean:
			opts = append(opts, mcp.WithBoolean(p.Name, popts...))
		default:
			opts = append(opts, mcp.WithString(p.Name, popts...))
		}
	}
	for _, id := range op.Identifiers {
		opts = append(opts, mcp.WithString(id.Name,
			mcp.Required(),
			mcp.Description(id.Description),
		))
	}
	return mcp.NewTool(op.Name, opts...)
}

// paramDescription annotates array-typed parameters with their wire
// encoding, since they ride in a plain string argument.
func paramDescription(p ParamSpec) string {
	switch p.Type {
	case ParamTextArray, ParamIntegerArray:
		if p.Description == "" {
			return "Comma-separated list"
		}
		return p.Description + "; pass multiple values comma-separated"
	default:
		return p.Description
	}
}

// freeformHandler returns a tool handler that executes raw SQL under the
// given declared class. The statement still goes through the full
// pipeline, so a mismatched class is rejected before execution.
func (g *Gateway) freeformHandler(name string, class Class) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return mcp.NewToolResultError("sql parameter is required"), nil
		}
		return toolResult(g.Execute(ctx, OperationRequest{
			Name:     name,
			Template: sql,
			Class:    class,
		}))
	}
}

// toolResult converts an execution outcome into an MCP tool result. Both
// success and failure are reported as JSON text; pipeline failures never
// become protocol errors.
func toolResult(result *ExecutionResult, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		var e *pgerr.Error
		if !errors.As(err, &e) {
			e = pgerr.New(pgerr.KindUnknown, "%s", err)
		}
		b, jsonErr := json.Marshal(toolError{
			Kind:      string(e.Kind),
			Message:   e.Message,
			SQLState:  e.Code,
			Retryable: e.Retryable(),
		})
		if jsonErr != nil {
			return mcp.NewToolResultError(e.Error()), nil
		}
		return mcp.NewToolResultError(string(b)), nil
	}
	b, jsonErr := json.Marshal(toolPayload{
		Columns:      result.Columns,
		Rows:         result.Rows,
		RowCount:     result.RowCount,
		RowsAffected: result.RowsAffected,
		ElapsedMS:    result.Elapsed.Milliseconds(),
	})
	if jsonErr != nil {
		return mcp.NewToolResultError("failed to marshal result"), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// loggedToolHandler wraps a tool handler to log request and response lengths.
func (g *Gateway) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		g.logger.Info().
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
