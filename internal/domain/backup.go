package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Backup is a point-in-time copy of a document in some provider.
// Backups are immutable once created.
type Backup struct {
	ID uuid.UUID `json:"id"`

	ContractID string `json:"contract_id"`

	// OrganizationID is resolved through the contract and is not stored on the row.
	OrganizationID string `json:"organization_id,omitempty"`

	StorageType StorageType `json:"storage_type"`

	BackupURL string `json:"backup_url"`

	Kind BackupKind `json:"backup_type"`

	// VersionNumber is set only for version backups.
	VersionNumber *int `json:"version_number,omitempty"`

	FileSize int64 `json:"file_size"`

	// Checksum is the hex SHA-256 of the transferred bytes.
	Checksum string `json:"checksum"`

	CreatedAt time.Time `json:"created_at"`
}

// NewBackup creates a backup record after validating kind and version consistency.
func NewBackup(contractID string, storageType StorageType, url string, kind BackupKind, version *int, size int64, checksum string) (*Backup, error) {
	if !storageType.IsValid() {
		return nil, NewDomainError(ErrUnknownStorageType, "backup storage type", string(storageType))
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBackupKind, kind)
	}
	if kind == BackupKindVersion && (version == nil || *version < 1) {
		return nil, fmt.Errorf("%w: version backups require a number >= 1", ErrInvalidVersionNumber)
	}
	if kind != BackupKindVersion && version != nil {
		return nil, fmt.Errorf("%w: only version backups carry a number", ErrInvalidVersionNumber)
	}

	return &Backup{
		ID:            uuid.New(),
		ContractID:    contractID,
		StorageType:   storageType,
		BackupURL:     url,
		Kind:          kind,
		VersionNumber: version,
		FileSize:      size,
		Checksum:      checksum,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// IsVersion reports whether the backup is a numbered version.
func (b *Backup) IsVersion() bool {
	return b.Kind == BackupKindVersion && b.VersionNumber != nil
}

// BackupObjectLabel derives the object kind label from a backup kind and version.
func BackupObjectLabel(kind BackupKind, version *int) string {
	if kind == BackupKindVersion && version != nil {
		return fmt.Sprintf("%s-v%d", kind, *version)
	}
	return string(kind)
}
