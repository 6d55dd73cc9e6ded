package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "ops":
		if err := runOps(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "doctor":
		if err := runDoctor(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "configure":
		if err := runConfigure(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("pgward — PostgreSQL query gateway for AI agents")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pgward serve       Start the MCP server")
	fmt.Println("  pgward ops         Print the operation catalog")
	fmt.Println("  pgward doctor      Validate configuration and print agent snippets")
	fmt.Println("  pgward configure   Run interactive configuration wizard")
	fmt.Println("  pgward --help      Show this help message")
}

// defaultConfigPath returns PGWARD_CONFIG_PATH when set, otherwise the
// conventional location relative to the working directory.
func defaultConfigPath() string {
	if p := os.Getenv("PGWARD_CONFIG_PATH"); p != "" {
		return p
	}
	return ".pgward/config.json"
}
