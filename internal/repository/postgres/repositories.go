package postgres

import "github.com/prn-tf/contract-storage/internal/repository"

// NewRepositories builds every repository on db.
func NewRepositories(db *DB) *repository.Repositories {
	return &repository.Repositories{
		Contracts:     NewContractRepository(db),
		Organizations: NewOrganizationRepository(db),
		Backups:       NewBackupRepository(db),
		Migrations:    NewMigrationRepository(db),
		Usage:         NewUsageRepository(db),
		Billing:       NewBillingRepository(db),
		StorageConfig: NewStorageConfigRepository(db),
		Pricing:       NewPricingRepository(db),
	}
}
