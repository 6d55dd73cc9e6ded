package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/jfelczak/pgward"
	"github.com/jfelczak/pgward/internal/meta"

	"github.com/rs/zerolog"
)

func runDoctor() error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration file")
	fs.Parse(os.Args[2:])

	connString := os.Getenv("PGWARD_PG_CONNSTRING")
	if connString == "" {
		connString = os.Getenv("DATABASE_URL")
	}

	useColor := isTTY(os.Stderr.Fd())
	return doctor(os.Stderr, useColor, *configPath, connString)
}

// doctor validates the config file and prints agent connection snippets.
// When connString is non-empty it also probes the database.
func doctor(w io.Writer, useColor bool, configPath, connString string) error {
	printBanner(w, useColor)
	fmt.Fprintf(w, "pgward %s\n\n", meta.Version)

	// Load and validate config
	config, ok := doctorValidateConfig(w, useColor, configPath)
	if !ok {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'pgward doctor' again.")
		return nil
	}

	// Probe the database when a connection string is available. Offline
	// runs skip this and stay purely static.
	if connString != "" {
		fmt.Fprintln(w)
		doctorProbe(w, useColor, connString, config)
	}

	// Print agent connection snippets
	fmt.Fprintln(w)
	printAgentSnippets(w, useColor, config)
	return nil
}

// doctorValidateConfig loads and validates the config file, printing check
// results. Returns the parsed config and true if all checks passed. A
// passing config is also guaranteed not to trip the constructor panics in
// pgward.New.
func doctorValidateConfig(w io.Writer, useColor bool, configPath string) (*pgward.ServerConfig, bool) {
	allPassed := true

	// Check 1: Config file exists and is valid JSON
	data, err := os.ReadFile(configPath)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config file readable (%s)", configPath))
		allPassed = false
		return nil, allPassed
	}
	printCheck(w, useColor, true, fmt.Sprintf("Config file readable (%s)", configPath))

	var config pgward.ServerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config file is valid JSON: %v", err))
		allPassed = false
		return nil, allPassed
	}
	printCheck(w, useColor, true, "Config file is valid JSON")

	// Check 2: connection.dbname is set
	if config.Connection.DBName == "" {
		printCheck(w, useColor, false, "connection.dbname is set")
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("connection.dbname is set (%s)", config.Connection.DBName))
	}

	// Check 3: server.port > 0
	if config.Server.Port <= 0 {
		printCheck(w, useColor, false, "server.port is > 0")
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("server.port is > 0 (%d)", config.Server.Port))
	}

	// Check 4: Health check path set when enabled
	if config.Server.HealthCheckEnabled {
		if config.Server.HealthCheckPath == "" {
			printCheck(w, useColor, false, "health_check_path is set (required when health_check_enabled)")
			allPassed = false
		} else {
			printCheck(w, useColor, true, fmt.Sprintf("health_check_path is set (%s)", config.Server.HealthCheckPath))
		}
	}

	// Check 5: Pool and exec limits are in range
	limitsOK := true
	limitChecks := []struct {
		ok  bool
		msg string
	}{
		{config.Pool.MaxConns > 0, "pool.max_conns is > 0"},
		{config.Pool.MinConns >= 0, "pool.min_conns is >= 0"},
		{config.Pool.MinConns <= config.Pool.MaxConns, "pool.min_conns is <= pool.max_conns"},
		{config.Pool.AcquireTimeoutSeconds >= 0, "pool.acquire_timeout_seconds is >= 0"},
		{config.Exec.ReadTimeoutSeconds > 0, "exec.read_timeout_seconds is > 0"},
		{config.Exec.WriteTimeoutSeconds > 0, "exec.write_timeout_seconds is > 0"},
		{config.Exec.AdminTimeoutSeconds > 0, "exec.admin_timeout_seconds is > 0"},
		{config.Exec.MaxTimeoutSeconds >= 0, "exec.max_timeout_seconds is >= 0"},
		{config.Exec.StatementTimeoutSeconds >= 0, "exec.statement_timeout_seconds is >= 0"},
		{config.Exec.MaxSQLLength >= 0, "exec.max_sql_length is >= 0"},
		{config.Exec.MaxResultRows >= 0, "exec.max_result_rows is >= 0"},
	}
	for _, c := range limitChecks {
		if !c.ok {
			printCheck(w, useColor, false, c.msg)
			limitsOK = false
			allPassed = false
		}
	}
	if limitsOK {
		printCheck(w, useColor, true, "Pool and exec limits are in range")
	}

	// Check 6: Pool duration strings parse
	durationsOK := true
	durationFields := []struct {
		name  string
		value string
	}{
		{"pool.max_conn_lifetime", config.Pool.MaxConnLifetime},
		{"pool.max_conn_idle_time", config.Pool.MaxConnIdleTime},
		{"pool.health_check_period", config.Pool.HealthCheckPeriod},
	}
	for _, f := range durationFields {
		if f.value == "" {
			continue
		}
		if _, err := time.ParseDuration(f.value); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("%s parses as a Go duration: %v", f.name, err))
			durationsOK = false
			allPassed = false
		}
	}
	if durationsOK {
		printCheck(w, useColor, true, "Pool duration strings parse")
	}

	// Check 7: Scrub rule regexes compile
	regexOK := true
	for i, rule := range config.Scrub {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("scrub[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}
	if regexOK {
		printCheck(w, useColor, true, "All scrub rule regexes compile")
	}

	// Check 8: Operation catalog validates (built-in + custom)
	catalog := append(pgward.BuiltinOperations(), config.Operations...)
	if _, err := pgward.NewRegistry(catalog); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("operation catalog validates: %v", err))
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("operation catalog validates (%d built-in, %d custom)",
			len(catalog)-len(config.Operations), len(config.Operations)))
	}

	return &config, allPassed
}

// doctorProbe opens a short-lived pool and pings the database. Only called
// once doctorValidateConfig has passed, so pgward.New cannot panic here.
func doctorProbe(w io.Writer, useColor bool, connString string, config *pgward.ServerConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	gw, err := pgward.New(ctx, connString, config.Config, zerolog.Nop())
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Database reachable: %v", err))
		return
	}
	defer gw.Close(ctx)

	if err := gw.Ping(ctx); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Database reachable: %v", err))
		return
	}
	printCheck(w, useColor, true, "Database reachable")
}

// printCheck prints a colored ✓ or ✗ check line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	if pass {
		if useColor {
			fmt.Fprintf(w, "  \033[32m✓\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✓ %s\n", msg)
		}
	} else {
		if useColor {
			fmt.Fprintf(w, "  \033[31m✗\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✗ %s\n", msg)
		}
	}
}

// printAgentSnippets prints MCP connection config snippets for various AI agents.
func printAgentSnippets(w io.Writer, useColor bool, config *pgward.ServerConfig) {
	port := config.Server.Port
	url := fmt.Sprintf("http://localhost:%d/mcp", port)

	heading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "\033[1;36m%s\033[0m\n", title)
		} else {
			fmt.Fprintln(w, title)
		}
	}

	subheading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "  \033[1m%s\033[0m\n", title)
		} else {
			fmt.Fprintf(w, "  %s\n", title)
		}
	}

	heading("Agent Connection Snippets")
	fmt.Fprintln(w)

	// Claude Code
	subheading("Claude Code")
	fmt.Fprintf(w, "  Run this command to add the server:\n\n")
	fmt.Fprintf(w, "    claude mcp add --transport http postgres %s\n\n", url)
	fmt.Fprintf(w, "  Or add to .mcp.json (project scope):\n\n")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "postgres": {
        "type": "http",
        "url": "%s"
      }
    }
  }
`, url)
	fmt.Fprintln(w)

	// Copilot CLI
	subheading("Copilot CLI (~/.copilot/mcp-config.json)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "postgres": {
        "type": "http",
        "url": "%s"
      }
    }
  }
`, url)
	fmt.Fprintln(w)

	// Gemini CLI
	subheading("Gemini CLI (~/.gemini/settings.json)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "postgres": {
        "httpUrl": "%s"
      }
    }
  }
`, url)
	fmt.Fprintln(w)

	// OpenCode
	subheading("OpenCode (opencode.json)")
	fmt.Fprintf(w, `  {
    "mcp": {
      "postgres": {
        "type": "remote",
        "url": "%s"
      }
    }
  }
`, url)
	fmt.Fprintln(w)

	// Cursor
	subheading("Cursor (.cursor/mcp.json)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "postgres": {
        "url": "%s"
      }
    }
  }
`, url)
	fmt.Fprintln(w)

	// Windsurf
	subheading("Windsurf (~/.codeium/windsurf/mcp_config.json)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "postgres": {
        "serverUrl": "%s"
      }
    }
  }
`, url)
}
