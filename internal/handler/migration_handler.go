package handler

import (
	"net/http"

	"github.com/prn-tf/contract-storage/internal/domain"
	"github.com/prn-tf/contract-storage/internal/service"
)

// MigrateRequest is the body of both migration endpoints.
type MigrateRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (rt *Router) handleMigrateDocument(w http.ResponseWriter, r *http.Request) {
	var req MigrateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result := rt.migrations.MigrateDocument(r.Context(), service.MigrateInput{
		DocumentID:     documentParam(r),
		OrganizationID: orgParam(r),
		From:           req.From,
		To:             req.To,
	})
	writeOutcome(w, r, true, result.Failure, result.Error, result)
}

func (rt *Router) handleMigrateAll(w http.ResponseWriter, r *http.Request) {
	var req MigrateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateMigration(req); err != nil {
		writeError(w, r, err)
		return
	}
	writeBatch(w, r, rt.migrations.MigrateAllDocuments(r.Context(), service.MigrateAllInput{
		OrganizationID: orgParam(r),
		From:           req.From,
		To:             req.To,
	}))
}

// validateMigration rejects a batch request before it takes the job lock.
func validateMigration(req MigrateRequest) error {
	from, err := domain.ParseStorageType(req.From)
	if err != nil {
		return invalid("from: %v", err)
	}
	to, err := domain.ParseStorageType(req.To)
	if err != nil {
		return invalid("to: %v", err)
	}
	if from == to {
		return domain.ErrSameStorageType
	}
	return nil
}

func (rt *Router) handleListMigrations(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	migrations, err := rt.migrations.ListMigrations(r.Context(), orgParam(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, migrations)
}
