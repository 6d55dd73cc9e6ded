// Package pgward provides guarded PostgreSQL access for AI agents through
// the Model Context Protocol (MCP).
//
// Every statement runs through the same pipeline: identifier slots are
// expanded with strict validation and quoting, the statement is classified
// as read, write, or admin using PostgreSQL's actual C parser via
// pg_query, the detected class is checked against the declaration and the
// gateway's gate, and execution happens on a pooled connection under a
// per-class deadline. Results are normalized to JSON-friendly values;
// failures map onto a fixed error taxonomy with scrubbed messages.
//
// SQL injection is prevented at the protocol level: caller values travel
// as wire parameters via pgx extended query protocol (QueryExecModeExec)
// and never enter the statement text. Identifiers, which cannot be wire
// parameters, pass a strict grammar and are quoted before splicing.
//
// # Library Usage
//
//	gw, err := pgward.New(ctx, connString, pgward.Config{
//		Pool: pgward.PoolConfig{MaxConns: 10},
//		Exec: pgward.ExecConfig{
//			ReadTimeoutSeconds:  30,
//			WriteTimeoutSeconds: 30,
//			AdminTimeoutSeconds: 120,
//		},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer gw.Close(ctx)
//
//	// Run a catalog operation by name
//	result, err := gw.ExecuteOperation(ctx, "list_tables", nil)
//
//	// Or register every operation as MCP tools
//	pgward.RegisterMCPTools(mcpServer, gw)
//
// # Operations
//
// The gateway serves a catalog of named operations: a SQL template, a
// declared class, and a parameter schema. [BuiltinOperations] covers
// inspection, diagnostics, and maintenance; deployments add their own
// through Config.Operations or [WithOperations]:
//
//	pgward.New(ctx, connString, config, logger,
//		pgward.WithOperations(pgward.Operation{
//			Name:        "orders_by_status",
//			Description: "Count orders grouped by status",
//			Class:       pgward.ClassRead,
//			SQL:         "SELECT status, count(*) FROM {{table}} GROUP BY status",
//			Identifiers: []pgward.IdentSpec{{Name: "table"}},
//		}))
//
// Writes and admin statements are blocked unless Config.Gate enables the
// class, and a statement whose parsed class differs from its declaration
// is rejected before it touches a connection.
package pgward
