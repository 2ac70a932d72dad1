package handler

import (
	"net/http"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/service"
)

// CreateBackupRequest is the body of POST .../documents/{documentID}/backups.
type CreateBackupRequest struct {
	// Kind defaults to replication.
	Kind string `json:"kind"`
}

func (rt *Router) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	var req CreateBackupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	kind := domain.BackupKindReplication
	if req.Kind != "" {
		k, err := domain.ParseBackupKind(req.Kind)
		if err != nil {
			writeError(w, r, err)
			return
		}
		kind = k
	}
	if kind == domain.BackupKindVersion {
		writeError(w, r, invalid("versions are created through the versions endpoint"))
		return
	}

	result := rt.backups.CreateBackup(r.Context(), service.CreateBackupInput{
		DocumentID:     documentParam(r),
		OrganizationID: orgParam(r),
		Kind:           kind,
	})
	writeOutcome(w, r, true, result.Failure, result.Error, result)
}

func (rt *Router) handleDailyBackup(w http.ResponseWriter, r *http.Request) {
	writeBatch(w, r, rt.backups.CreateDailyBackup(r.Context(), orgParam(r)))
}

func (rt *Router) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	id, err := backupParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result := rt.backups.RestoreBackup(r.Context(), id, orgParam(r))
	writeOutcome(w, r, false, result.Failure, result.Error, result)
}

func (rt *Router) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	result := rt.versions.CreateVersion(r.Context(), documentParam(r), orgParam(r))
	writeOutcome(w, r, true, result.Failure, result.Error, result)
}

func (rt *Router) handleListVersions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	versions, err := rt.versions.ListVersions(r.Context(), documentParam(r), orgParam(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, versions)
}

func (rt *Router) handleRestoreVersion(w http.ResponseWriter, r *http.Request) {
	id, err := backupParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result := rt.versions.RestoreVersion(r.Context(), id, orgParam(r))
	writeOutcome(w, r, false, result.Failure, result.Error, result)
}
