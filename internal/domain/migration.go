package domain

import (
	"time"

	"github.com/google/uuid"
)

// MigrationStatus is the state of a migration attempt.
type MigrationStatus string

const (
	MigrationInProgress MigrationStatus = "in_progress"
	MigrationCompleted  MigrationStatus = "completed"
	MigrationFailed     MigrationStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s MigrationStatus) IsTerminal() bool {
	return s == MigrationCompleted || s == MigrationFailed
}

// Migration records one attempt to move a document's canonical copy.
// Transitions: in_progress -> completed, in_progress -> failed.
type Migration struct {
	ID           uuid.UUID       `json:"id"`
	ContractID   string          `json:"contract_id"`
	FromStorage  StorageType     `json:"from_storage"`
	ToStorage    StorageType     `json:"to_storage"`
	Status       MigrationStatus `json:"status"`
	OldURL       string          `json:"old_url"`
	NewURL       *string         `json:"new_url,omitempty"`
	FileSize     *int64          `json:"file_size,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// NewMigration creates a migration in the in_progress state.
func NewMigration(contractID string, from, to StorageType, oldURL string) *Migration {
	return &Migration{
		ID:          uuid.New(),
		ContractID:  contractID,
		FromStorage: from,
		ToStorage:   to,
		Status:      MigrationInProgress,
		OldURL:      oldURL,
		CreatedAt:   time.Now().UTC(),
	}
}

// Complete marks the migration completed with its new location.
func (m *Migration) Complete(newURL string, size int64) error {
	if m.Status != MigrationInProgress {
		return NewDomainError(ErrInvalidMigrationTransition, string(m.Status), m.ID.String())
	}
	now := time.Now().UTC()
	m.Status = MigrationCompleted
	m.NewURL = &newURL
	m.FileSize = &size
	m.CompletedAt = &now
	return nil
}

// Fail marks the migration failed with the captured error message.
func (m *Migration) Fail(message string) error {
	if m.Status != MigrationInProgress {
		return NewDomainError(ErrInvalidMigrationTransition, string(m.Status), m.ID.String())
	}
	if message == "" {
		message = "unknown error"
	}
	now := time.Now().UTC()
	m.Status = MigrationFailed
	m.ErrorMessage = &message
	m.CompletedAt = &now
	return nil
}
