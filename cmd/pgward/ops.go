package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jfelczak/pgward"
)

func runOps() error {
	fs := flag.NewFlagSet("ops", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "Path to configuration file")
	fs.Parse(os.Args[2:])

	return ops(os.Stdout, *configPath)
}

// ops prints the operation catalog: built-in operations plus any custom
// operations from the config file. A missing config file is fine; the
// built-in catalog is printed with the default (all-blocked) gate.
func ops(w io.Writer, configPath string) error {
	var custom []pgward.Operation
	var gate pgward.GateConfig
	if data, err := os.ReadFile(configPath); err == nil {
		var config pgward.ServerConfig
		if err := json.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
		custom = config.Operations
		gate = config.Gate
	}

	registry, err := pgward.NewRegistry(append(pgward.BuiltinOperations(), custom...))
	if err != nil {
		return fmt.Errorf("invalid operation catalog: %w", err)
	}

	fmt.Fprintf(w, "%d operations (%d custom), writes %s, admin %s\n\n",
		registry.Len(), len(custom), gateWord(gate.AllowWrite), gateWord(gate.AllowAdmin))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCLASS\tARGUMENTS\tDESCRIPTION")
	for _, op := range registry.Operations() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", op.Name, op.Class, argSummary(op), op.Description)
	}
	return tw.Flush()
}

func gateWord(allowed bool) string {
	if allowed {
		return "enabled"
	}
	return "disabled"
}

// argSummary renders an operation's parameters and identifier slots as a
// compact signature, e.g. "schema?, table, {{table}}". Optional parameters
// carry a trailing question mark.
func argSummary(op pgward.Operation) string {
	parts := make([]string, 0, len(op.Params)+len(op.Identifiers))
	for _, p := range op.Params {
		if p.Required {
			parts = append(parts, p.Name)
		} else {
			parts = append(parts, p.Name+"?")
		}
	}
	for _, id := range op.Identifiers {
		parts = append(parts, "{{"+id.Name+"}}")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}
