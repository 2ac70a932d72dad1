package domain

import (
	"time"

	"github.com/google/uuid"
)

// StorageConfig selects the active and backup storage for an organization.
// A nil OrganizationID marks the global row.
type StorageConfig struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID *string   `json:"organization_id,omitempty"`

	// StorageType is the type whose usage is metered. Defaults to primary.
	StorageType StorageType `json:"storage_type"`

	// BackupStorageType is kept raw so unknown stored values can be detected.
	BackupStorageType string `json:"backup_storage_type,omitempty"`

	// BackupConfig holds provider specific settings and credentials.
	BackupConfig map[string]string `json:"-"`

	BackupIsActive bool      `json:"backup_is_active"`
	IsActive       bool      `json:"is_active"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ActiveStorageType returns the metered storage type. A missing or inactive
// row meters primary.
func (c *StorageConfig) ActiveStorageType() (StorageType, error) {
	if c == nil || !c.IsActive || c.StorageType == "" {
		return StorageTypePrimary, nil
	}
	return ParseStorageType(string(c.StorageType))
}

// BackupEnabled reports whether the row asks for a backup provider.
func (c *StorageConfig) BackupEnabled() bool {
	return c != nil && c.IsActive && c.BackupIsActive && c.BackupStorageType != ""
}

// IsGlobal reports whether the row applies to every organization.
func (c *StorageConfig) IsGlobal() bool {
	return c.OrganizationID == nil
}
