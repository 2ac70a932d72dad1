package domain

import (
	"fmt"
	"strings"
)

// StorageType identifies a storage provider implementation.
// The set is closed: every persisted record references one of these values.
type StorageType string

const (
	// StorageTypePrimary is the fixed provider holding canonical documents.
	StorageTypePrimary StorageType = "primary"

	// StorageTypeS3 is an S3-compatible cloud bucket.
	StorageTypeS3 StorageType = "s3"

	// StorageTypeFirebase is a Firebase Storage (GCS) managed bucket.
	StorageTypeFirebase StorageType = "firebase"

	// StorageTypeGoogleDrive is a folder in a user's Google Drive.
	StorageTypeGoogleDrive StorageType = "google_drive"

	// StorageTypeAzureBlob is an Azure Blob Storage container.
	StorageTypeAzureBlob StorageType = "azure_blob"
)

// AllStorageTypes lists every supported storage type.
var AllStorageTypes = []StorageType{
	StorageTypePrimary,
	StorageTypeS3,
	StorageTypeFirebase,
	StorageTypeGoogleDrive,
	StorageTypeAzureBlob,
}

// ParseStorageType converts a string into a StorageType.
// Unknown values fail with ErrUnknownStorageType.
func ParseStorageType(s string) (StorageType, error) {
	t := StorageType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", NewDomainError(ErrUnknownStorageType, "unsupported value", s)
	}
	return t, nil
}

// IsValid reports whether t is one of the supported storage types.
func (t StorageType) IsValid() bool {
	for _, known := range AllStorageTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsBackupType reports whether t may be configured as backup storage.
func (t StorageType) IsBackupType() bool {
	return t.IsValid() && t != StorageTypePrimary
}

// String implements fmt.Stringer.
func (t StorageType) String() string {
	return string(t)
}

// BackupKind describes why a backup was taken.
type BackupKind string

const (
	BackupKindDaily       BackupKind = "daily"
	BackupKindReplication BackupKind = "replication"
	BackupKindVersion     BackupKind = "version"
)

// ParseBackupKind converts a string into a BackupKind.
func ParseBackupKind(s string) (BackupKind, error) {
	switch k := BackupKind(strings.ToLower(strings.TrimSpace(s))); k {
	case BackupKindDaily, BackupKindReplication, BackupKindVersion:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBackupKind, s)
	}
}

// IsValid reports whether k is a known backup kind.
func (k BackupKind) IsValid() bool {
	_, err := ParseBackupKind(string(k))
	return err == nil
}
