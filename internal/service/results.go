package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prn-tf/contract-storage/internal/domain"
)

// outcome is embedded by every single-item result.
type outcome struct {
	Success bool    `json:"success"`
	Failure Failure `json:"failure,omitempty"`
	Error   string  `json:"error,omitempty"`

	// Err is the underlying cause, usable with errors.Is.
	Err error `json:"-"`
}

func (o *outcome) fail(err error) {
	o.Success = false
	o.Failure = Classify(err)
	o.Error = err.Error()
	o.Err = err
}

// BackupResult is the outcome of creating one backup.
type BackupResult struct {
	outcome

	Backup *domain.Backup `json:"backup,omitempty"`

	// BackupURL is set once the upload succeeded, even if persisting failed.
	BackupURL string `json:"backup_url,omitempty"`
}

// RestoreResult is the outcome of restoring a backup into primary storage.
type RestoreResult struct {
	outcome

	BackupID    uuid.UUID `json:"backup_id"`
	DocumentID  string    `json:"document_id,omitempty"`
	RestoredURL string    `json:"restored_url,omitempty"`
	FileSize    int64     `json:"file_size,omitempty"`
}

// MigrationResult is the outcome of migrating one document.
type MigrationResult struct {
	outcome

	// Migration is nil when the request was refused before a record was written.
	Migration *domain.Migration `json:"migration,omitempty"`

	NewURL string `json:"new_url,omitempty"`
}

// ItemError describes one failed item of a batch.
type ItemError struct {
	ID      string  `json:"id"`
	Failure Failure `json:"failure"`
	Message string  `json:"message"`
}

// BatchResult aggregates a batch run.
type BatchResult struct {
	Job     string      `json:"job"`
	Total   int         `json:"total"`
	Success int         `json:"success"`
	Failed  int         `json:"failed"`
	Errors  []ItemError `json:"errors,omitempty"`

	// Skipped is set when another run held the job lock.
	Skipped bool `json:"skipped,omitempty"`

	// Error is set when the item list could not be built.
	Error string `json:"error,omitempty"`

	Duration time.Duration `json:"duration"`
}

// String returns a one line summary of the run.
func (r BatchResult) String() string {
	if r.Skipped {
		return fmt.Sprintf("%s: skipped", r.Job)
	}
	return fmt.Sprintf("%s: %d/%d succeeded, %d failed in %s", r.Job, r.Success, r.Total, r.Failed, r.Duration)
}
