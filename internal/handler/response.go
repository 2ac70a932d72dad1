package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/prn-tf/contract-storage/internal/service"
)

// Envelope wraps every API response body.
type Envelope struct {
	Success   bool            `json:"success"`
	Data      any             `json:"data,omitempty"`
	Failure   service.Failure `json:"failure,omitempty"`
	Error     string          `json:"error,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// StatusFor maps a failure kind to its HTTP status code.
func StatusFor(f service.Failure) int {
	switch f {
	case "":
		return http.StatusOK
	case service.FailureConfigurationMissing:
		return http.StatusConflict
	case service.FailureSourceNotFound:
		return http.StatusNotFound
	case service.FailureChecksumMismatch:
		return http.StatusUnprocessableEntity
	case service.FailurePersistenceFailed:
		return http.StatusInternalServerError
	case service.FailureAccessDenied:
		return http.StatusForbidden
	case service.FailureInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData writes a successful envelope.
func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, Envelope{
		Success:   true,
		Data:      data,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeError classifies err and writes a failed envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	f := service.Classify(err)
	writeJSON(w, StatusFor(f), Envelope{
		Failure:   f,
		Error:     err.Error(),
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeOutcome writes a single-item result, which carries its own failure.
func writeOutcome(w http.ResponseWriter, r *http.Request, created bool, failure service.Failure, message string, data any) {
	status := StatusFor(failure)
	if failure == "" && created {
		status = http.StatusCreated
	}
	writeJSON(w, status, Envelope{
		Success:   failure == "",
		Data:      data,
		Failure:   failure,
		Error:     message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeBatch writes a batch run. A run lost to a concurrent one is a conflict,
// and a run whose item list could not be built is a server error.
func writeBatch(w http.ResponseWriter, r *http.Request, result service.BatchResult) {
	status := http.StatusOK
	switch {
	case result.Skipped:
		status = http.StatusConflict
	case result.Error != "":
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, Envelope{
		Success:   status == http.StatusOK,
		Data:      result,
		Error:     result.Error,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", service.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// decodeBody reads an optional JSON body into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return invalid("request body exceeds %d bytes", tooLarge.Limit)
		}
		return invalid("malformed request body: %v", err)
	}
	return nil
}

// queryLimit parses the limit query parameter. Zero means the default page size.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, invalid("limit must be a non-negative integer")
	}
	return n, nil
}
