// Package main is the entry point for the contract storage admin CLI.
// It runs the service operations directly against the configured database
// and storage providers and prints every result as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prn-tf/contract-storage/internal/app"
	"github.com/prn-tf/contract-storage/internal/config"
	"github.com/prn-tf/contract-storage/internal/logging"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// errFailed marks a command whose result reported a failure. The result has
// already been printed.
var errFailed = errors.New("operation failed")

// command runs one subcommand against an initialized App.
type command struct {
	usage string
	run   func(ctx context.Context, a *app.App, args []string) error
}

const (
	configUsage  = "config set-backup [-org ID] -type TYPE [-active=false] [-cred key=value ...] [-seal]"
	pricingUsage = "pricing set -type TYPE -price PER_GB"
)

var commands = map[string]command{
	"backup":       {"backup -org ID -document ID [-kind daily|replication]", runBackup},
	"backup-daily": {"backup-daily -org ID", runBackupDaily},
	"restore":      {"restore -org ID -backup UUID", runRestore},
	"version":      {"version -org ID -document ID", runVersion},
	"versions":     {"versions -org ID -document ID [-limit N]", runVersions},
	"migrate":      {"migrate -org ID -document ID -from TYPE -to TYPE", runMigrate},
	"migrate-all":  {"migrate-all -org ID -from TYPE -to TYPE", runMigrateAll},
	"migrations":   {"migrations -org ID [-limit N]", runMigrations},
	"usage":        {"usage -org ID [-refresh] [-history N]", runUsage},
	"usage-all":    {"usage-all", runUsageAll},
	"billing":      {"billing -org ID [-month YYYY-MM | -start RFC3339 -end RFC3339] [-list N]", runBilling},
	"billing-all":  {"billing-all", runBillingAll},
	"config":       {configUsage, runConfig},
	"pricing":      {pricingUsage, runPricing},
	"info":         {"info", runInfo},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Global flags come before the subcommand.
	global := flag.NewFlagSet("contract-storage-admin", flag.ExitOnError)
	configPath := global.String("config", "", "path to the config file")
	global.Usage = printUsage
	_ = global.Parse(os.Args[1:])

	args := global.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	name, rest := args[0], args[1:]

	switch name {
	case "help", "-h", "--help":
		printUsage()
		return
	case "seal":
		exit(runSeal(*configPath, rest))
		return
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		exit(err)
	}
	logger := logging.NewWithWriter(cfg.Logging, os.Stderr).With().Str("service", "contract-storage-admin").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Options{Migrate: cfg.Database.IsEmbedded()})
	if err != nil {
		exit(err)
	}
	err = cmd.run(ctx, a, rest)
	if cerr := a.Close(); cerr != nil {
		logger.Warn().Err(cerr).Msg("Failed to close resources")
	}
	exit(err)
}

func exit(err error) {
	if err == nil {
		return
	}
	if !errors.Is(err, errFailed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

// printJSON writes v to stdout, indented.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult prints v and turns a reported failure into errFailed.
func printResult(v any, success bool) error {
	if err := printJSON(v); err != nil {
		return err
	}
	if !success {
		return errFailed
	}
	return nil
}

func printUsage() {
	fmt.Println(`Contract Storage Admin CLI

Usage:
  contract-storage-admin [-config path] <command> [arguments]

Commands:`)
	for _, name := range []string{
		"backup", "backup-daily", "restore",
		"version", "versions",
		"migrate", "migrate-all", "migrations",
		"usage", "usage-all", "billing", "billing-all",
		"config", "pricing", "info",
	} {
		fmt.Printf("  %s\n", commands[name].usage)
	}
	fmt.Println(`  seal [-value V | -generate-key]

Storage types: primary, s3, firebase, google_drive, azure_blob

Examples:
  contract-storage-admin backup -org acme -document c-42
  contract-storage-admin migrate-all -org acme -from primary -to s3
  contract-storage-admin config set-backup -org acme -type s3 -cred bucket=backups -cred region=eu-west-1 -cred access_key_id=AK -cred secret_access_key=SK -seal
  contract-storage-admin pricing set -type primary -price 0.023`)
}
