package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prn-tf/contract-storage/internal/app"
	"github.com/prn-tf/contract-storage/internal/config"
	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/pkg/crypto"
	"github.com/prn-tf/contract-storage/internal/service"
	"github.com/prn-tf/contract-storage/internal/storage"
)

func newFlags(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ExitOnError)
}

func required(values map[string]string) error {
	var missing []string
	for name, v := range values {
		if v == "" {
			missing = append(missing, "-"+name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	return nil
}

// =============================================================================
// Backups and Versions
// =============================================================================

func runBackup(ctx context.Context, a *app.App, args []string) error {
	fs := newFlags("backup")
	org := fs.String("org", "", "organization id")
	doc := fs.String("document", "", "contract id")
	kind := fs.String("kind", string(domain.BackupKindReplication), "backup kind: daily or replication")
	_ = fs.Parse(args)
	if err := required(map[string]string{"org": *org, "document": *doc}); err != nil {
		return err
	}

	k, err := domain.ParseBackupKind(*kind)
	if err != nil {
		return err
	}
	if k == domain.BackupKindVersion {
		return errors.New("use the version command to create versions")
	}
	result := a.Backups.CreateBackup(ctx, service.CreateBackupInput{
		DocumentID:     *doc,
		OrganizationID: *org,
		Kind:           k,
	})
	return printResult(result, result.Success)
}

func runBackupDaily(ctx context.Context, a *app.App, args []string) error {
	fs := newFlags("backup-daily")
	org := fs.String("org", "", "organization id")
	_ = fs.Parse(args)
	if err := required(map[string]string{"org": *org}); err != nil {
		return err
	}
	result := a.Backups.CreateDailyBackup(ctx, *org)
	return printResult(result, batchSucceeded(result))
}

func runRestore(ctx context.Context, a *app.App, args []string) error {
	fs := newFlags("restore")
	org := fs.String("org", "", "organization id")
	backup := fs.String("backup", "", "backup id")
	_ = fs.Parse(args)
	if err := required(map[string]string{"org": *org, "backup": *backup}); err != nil {
		return err
	}
	id, err := uuid.Parse(*backup)
	if err != nil {
		return fmt.Errorf("invalid backup id: %w", err)
	}
	result := a.Backups.RestoreBackup(ctx, id, *org)
	return printResult(result, result.Success)
}

func runVersion(ctx context.Context, a *app.App, args []string) error {
	fs := newFlags("version")
	org := fs.String("org", "", "organization id")
	doc := fs.String("document", "", "contract id")
	_ = fs.Parse(args)
	if err := required(map[string]string{"org": *org, "document": *doc}); err != nil {
		return err
	}
	result := a.Versions.CreateVersion(ctx, *doc, *org)
	return printResult(result, result.Success)
}

func runVersions(ctx context.Context, a *app.App, args []string) error {
	fs := newFlags("versions")
	org := fs.String("org", "", "organization id")
	doc := fs.String("document", "", "contract id")
	limit := fs.Int("limit", 0, "maximum number of versions")
	_ = fs.Parse(args)
	if err := required(map[string]string{"org": *org, "document": *doc}); err != nil {
		return err
	}
	versions, err := a.Versions.ListVersions(ctx, *doc, *org, *limit)
	if err != nil {
		return err
	}
	return printJSON(versions)
}

// =============================================================================
// Migrations
// =============================================================================

func runMigrate(ctx context.Context, a *app.App, args []string) error {
	fs := newFlags("migrate")
	org := fs.String("org", "", "organization id")
	doc := fs.String("document", "", "contract id")
	from := fs.String("from", "", "source storage type")
	to := fs.String("to", "", "destination storage type")
	_ = fs.Parse(args)
	if err := required(map[string]string{"org": *org, "document": *doc, "from": *from, "to": *to}); err != nil {
		return err
	}
	result := a.Migrations.MigrateDocument(ctx, service.MigrateInput{
		DocumentID:     *doc,
		OrganizationID: *org,
		From:           *from,
		To:             *to,
	})
	return printResult(result, result.Success)
}

func runMigrateAll(ctx context.Context, a *app.App, args []string) error {
	fs := newFlags("migrate-all")
	org := fs.String("org", "", "organization id")
	from := fs.String("from", "", "source storage type")
	to := fs.String("to", "", "destination storage type")
	_ = fs.Parse(args)
	if err := required(map[string]string{"org": *org, "from": *from, "to": *to}); err != nil {
		return err
	}
	result := a.Migrations.MigrateAllDocuments(ctx, service.MigrateAllInput{
		OrganizationID: *org,
		From:           *from,
		To:             *to,
	})
	return printResult(result, batchSucceeded(result))
}

func runMigrations(ctx context.Context, a *app.App, args []string) error {
	fs := newFlags("migrations")
	org := fs.String("org", "", "organization id")
	limit := fs.Int("limit", 0, "maximum number of migrations")
	_ = fs.Parse(args)
	if err := required(map[string]string{"org": *org}); err != nil {
		return err
	}
	migrations, err := a.Migrations.ListMigrations(ctx, *org, *limit)
	if err != nil {
		return err
	}
	return printJSON(migrations)
}

// =============================================================================
// Usage and Billing
// =============================================================================

func runUsage(ctx context.Context, a *app.App, args []string) error {
	fs := newFlags("usage")
	org := fs.String("org", "", "organization id")
	refresh := fs.Bool("refresh", false, "recompute usage from the active provider first")
	history := fs.Int("history", 0, "print up to N historical records instead of the latest")
	_ = fs.Parse(args)
	if err := required(map[string]string{"org": *org}); err != nil {
		return err
	}

	if *refresh {
		if _, err := a.Usage.UpdateUsage(ctx, *org); err != nil {
			return err
		}
	}
	if *history > 0 {
		records, err := a.Usage.GetUsageHistory(ctx, *org, *history)
		if err != nil {
			return err
		}
		return printJSON(records)
	}
	summary, err := a.Usage.GetUsage(ctx, *org)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func runUsageAll(ctx context.Context, a *app.App, args []string) error {
	result := a.Usage.UpdateAllOrganizations(ctx)
	return printResult(result, batchSucceeded(result))
}

func runBilling(ctx context.Context, a *app.App, args []string) error {
	fs := newFlags("billing")
	org := fs.String("org", "", "organization id")
	month := fs.String("month", "", "bill a calendar month, YYYY-MM")
	startFlag := fs.String("start", "", "window start, RFC3339")
	endFlag := fs.String("end", "", "window end, RFC3339")
	list := fs.Int("list", 0, "print up to N billing records instead of calculating")
	_ = fs.Parse(args)
	if err := required(map[string]string{"org": *org}); err != nil {
		return err
	}

	if *list > 0 {
		records, err := a.Billing.ListBillings(ctx, *org, *list)
		if err != nil {
			return err
		}
		return printJSON(records)
	}

	start, end, err := billingWindow(*month, *startFlag, *endFlag, time.Now())
	if err != nil {
		return err
	}
	record, err := a.Billing.CalculateBilling(ctx, *org, start, end)
	if err != nil {
		return err
	}
	return printJSON(record)
}

// billingWindow resolves the window flags. Without any it is the current month.
func billingWindow(month, start, end string, now time.Time) (time.Time, time.Time, error) {
	switch {
	case month != "":
		t, err := time.Parse("2006-01", month)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -month: %w", err)
		}
		return domain.PeriodBounds(t, domain.PeriodMonthly)
	case start != "" || end != "":
		s, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -start: %w", err)
		}
		e, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -end: %w", err)
		}
		return s.UTC(), e.UTC(), nil
	default:
		s, e := domain.CurrentMonth(now)
		return s, e, nil
	}
}

func runBillingAll(ctx context.Context, a *app.App, args []string) error {
	result := a.Billing.CalculateAllBillings(ctx)
	return printResult(result, batchSucceeded(result))
}

func batchSucceeded(r service.BatchResult) bool {
	return !r.Skipped && r.Error == "" && r.Failed == 0
}

// =============================================================================
// Configuration
// =============================================================================

// credFlags collects repeated -cred key=value flags.
type credFlags map[string]string

func (c credFlags) String() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return strings.Join(keys, ",")
}

func (c credFlags) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	c[key] = value
	return nil
}

func runConfig(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 || args[0] != "set-backup" {
		return errors.New("usage: " + configUsage)
	}

	fs := newFlags("config set-backup")
	org := fs.String("org", "", "organization id, empty for the global row")
	backupType := fs.String("type", "", "backup storage type")
	metered := fs.String("storage-type", string(domain.StorageTypePrimary), "storage type whose usage is metered")
	active := fs.Bool("active", true, "enable backups")
	seal := fs.Bool("seal", false, "seal every credential value with the configured key")
	creds := credFlags{}
	fs.Var(creds, "cred", "provider setting as key=value, repeatable")
	_ = fs.Parse(args[1:])

	cfg, err := buildStorageConfig(*org, *backupType, *metered, *active, creds)
	if err != nil {
		return err
	}
	if *seal {
		if a.Sealer == nil {
			return errors.New("security.credentials_key is not configured")
		}
		for k, v := range cfg.BackupConfig {
			sealed, err := a.Sealer.Seal(v)
			if err != nil {
				return fmt.Errorf("failed to seal %s: %w", k, err)
			}
			cfg.BackupConfig[k] = sealed
		}
	}

	if err := a.Repos.StorageConfig.Save(ctx, cfg); err != nil {
		return err
	}
	return printJSON(cfg)
}

// buildStorageConfig validates the flags against the provider registry.
func buildStorageConfig(org, backupType, metered string, active bool, creds map[string]string) (*domain.StorageConfig, error) {
	storageType, err := domain.ParseStorageType(metered)
	if err != nil {
		return nil, err
	}
	bt, err := domain.ParseStorageType(backupType)
	if err != nil {
		return nil, err
	}
	if !bt.IsBackupType() {
		return nil, fmt.Errorf("%s is not a backup storage type", bt)
	}
	provider, ok := storage.DefaultProviders()[bt]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %s", bt)
	}
	if err := provider.Validate(creds); err != nil {
		return nil, err
	}

	cfg := &domain.StorageConfig{
		StorageType:       storageType,
		BackupStorageType: string(bt),
		BackupConfig:      creds,
		BackupIsActive:    active,
		IsActive:          true,
	}
	if org != "" {
		cfg.OrganizationID = &org
	}
	return cfg, nil
}

func runPricing(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 || args[0] != "set" {
		return errors.New("usage: " + pricingUsage)
	}

	fs := newFlags("pricing set")
	storageType := fs.String("type", "", "storage type")
	price := fs.Float64("price", -1, "price per GB")
	_ = fs.Parse(args[1:])

	t, err := domain.ParseStorageType(*storageType)
	if err != nil {
		return err
	}
	if *price < 0 {
		return errors.New("-price must be zero or positive")
	}
	p := &domain.Pricing{StorageType: t, PricePerGB: *price}
	if err := a.Repos.Pricing.Save(ctx, p); err != nil {
		return err
	}
	return printJSON(p)
}

// runSeal needs only the credentials key, so it runs without opening the database.
func runSeal(configPath string, args []string) error {
	fs := newFlags("seal")
	value := fs.String("value", "", "plaintext to seal")
	generate := fs.Bool("generate-key", false, "print a new credentials key")
	_ = fs.Parse(args)

	if *generate {
		key, err := crypto.GenerateMasterKey()
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"credentials_key": key})
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Security.CredentialsKey == "" {
		return errors.New("security.credentials_key is not configured")
	}
	if *value == "" {
		return errors.New("missing required flag: -value")
	}
	sealer, err := crypto.NewSealerFromHex(cfg.Security.CredentialsKey)
	if err != nil {
		return err
	}
	sealed, err := sealer.Seal(*value)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"sealed": sealed})
}

// =============================================================================
// Info
// =============================================================================

func runInfo(ctx context.Context, a *app.App, args []string) error {
	schema, err := a.Database.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	health := "healthy"
	if err := a.Database.Health(ctx); err != nil {
		health = err.Error()
	}
	host, _ := os.Hostname()

	return printJSON(map[string]any{
		"version":          Version,
		"build_time":       BuildTime,
		"git_commit":       GitCommit,
		"host":             host,
		"database_driver":  a.Config.Database.Driver,
		"database_health":  health,
		"schema_version":   schema,
		"primary_backend":  a.Config.Storage.Primary.Backend,
		"primary_bucket":   a.Config.Storage.Primary.Bucket,
		"redis_enabled":    a.Config.Redis.Enabled,
		"scheduler":        a.Config.Scheduler,
		"batch_workers":    a.Config.Batch.Workers,
		"sealer_available": a.Sealer != nil,
	})
}
