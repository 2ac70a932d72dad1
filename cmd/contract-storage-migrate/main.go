// Package main is the entry point for the contract storage database migration tool.
// It applies the embedded schema for the configured driver.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/prn-tf/contract-storage/internal/config"
	"github.com/prn-tf/contract-storage/internal/database"
	"github.com/prn-tf/contract-storage/internal/logging"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	fs := flag.NewFlagSet("contract-storage-migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the config file")
	fs.Usage = printUsage

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	_ = fs.Parse(os.Args[2:])

	switch command {
	case "version":
		fmt.Printf("Contract Storage Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		return

	case "up", "status":
		if err := run(command, *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func run(command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.NewWithWriter(cfg.Logging, os.Stderr).With().Str("service", "contract-storage-migrate").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	opened, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer opened.Database.Close()

	before, err := opened.Database.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if command == "status" {
		fmt.Printf("Driver: %s\nSchema version: %d\n", cfg.Database.Driver, before)
		return nil
	}

	if err := opened.Database.Migrate(ctx); err != nil {
		return err
	}
	after, err := opened.Database.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	logger.Info().
		Int("from_version", before).
		Int("to_version", after).
		Msg("Migrations applied")
	if after == before {
		fmt.Printf("Schema is up to date at version %d\n", after)
	} else {
		fmt.Printf("Migrated schema from version %d to %d\n", before, after)
	}
	return nil
}

func printUsage() {
	fmt.Println(`Contract Storage Migration Tool

Usage:
  contract-storage-migrate <command> [-config path]

Commands:
  up          Apply all pending migrations
  status      Show the current schema version
  version     Print version information
  help        Show this help message

Configuration is read from config.yaml or CONTRACTSTORE_* environment variables.

Examples:
  contract-storage-migrate up -config /etc/contract-storage/config.yaml
  CONTRACTSTORE_DATABASE_DRIVER=sqlite contract-storage-migrate status`)
}
