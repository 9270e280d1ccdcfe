package main

import (
	"fmt"
	"os"

	"github.com/mrlokans/biblioteca/internal/cli"
	"github.com/mrlokans/biblioteca/internal/config"
	"github.com/mrlokans/biblioteca/internal/entrypoint"
)

// Version information - set at build time via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

type command interface {
	ParseFlags(args []string) error
	Run() error
}

func main() {
	config.LoadDotEnv()

	// If no arguments or "serve" command, run the HTTP server
	if len(os.Args) < 2 || os.Args[1] == "serve" {
		cfg := config.NewConfig()
		entrypoint.Run(cfg, Version)
		return
	}

	name := os.Args[1]
	args := os.Args[2:]

	var cmd command
	switch name {
	case "seed":
		cmd = cli.NewSeedCommand()
	case "lookup":
		cmd = cli.NewLookupCommand()
	case "oauth-check":
		cmd = cli.NewOAuthCheckCommand()
	case "create-oauth-app":
		cmd = cli.NewCreateOAuthAppCommand()
	case "version":
		fmt.Printf("biblioteca %s (%s)\n", Version, Commit)
		return
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	if err := cmd.ParseFlags(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve             Start the HTTP server (default if no command given)\n")
	fmt.Fprintf(os.Stderr, "  seed              Create sample users, books and loans\n")
	fmt.Fprintf(os.Stderr, "  lookup            Look up an ISBN in Google Books\n")
	fmt.Fprintf(os.Stderr, "  oauth-check       Obtain an OAuth token and call the catalog with it\n")
	fmt.Fprintf(os.Stderr, "  create-oauth-app  Register an OAuth application\n")
	fmt.Fprintf(os.Stderr, "  version           Print the version\n")
	fmt.Fprintf(os.Stderr, "\nUse '%s <command> -h' for help on a specific command.\n", os.Args[0])
}
