package handler

import (
	"net/http"
	"time"

	"github.com/prn-tf/contract-storage/internal/domain"
)

// BillingRequest is the body of POST .../billing. Without an explicit window
// the current period of PeriodType is billed, a month when that is empty too.
type BillingRequest struct {
	PeriodStart *time.Time `json:"period_start"`
	PeriodEnd   *time.Time `json:"period_end"`
	PeriodType  string     `json:"period_type"`
}

func (rt *Router) handleUpdateUsage(w http.ResponseWriter, r *http.Request) {
	record, err := rt.usage.UpdateUsage(r.Context(), orgParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, record)
}

func (rt *Router) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	summary, err := rt.usage.GetUsage(r.Context(), orgParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, summary)
}

func (rt *Router) handleUsageHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	history, err := rt.usage.GetUsageHistory(r.Context(), orgParam(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, history)
}

func (rt *Router) handleCalculateBilling(w http.ResponseWriter, r *http.Request) {
	var req BillingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	start, end, err := req.window(rt.now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	record, err := rt.billing.CalculateBilling(r.Context(), orgParam(r), start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, record)
}

func (rt *Router) handleListBillings(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := rt.billing.ListBillings(r.Context(), orgParam(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, records)
}

func (rt *Router) handleUsageJob(w http.ResponseWriter, r *http.Request) {
	writeBatch(w, r, rt.usage.UpdateAllOrganizations(r.Context()))
}

func (rt *Router) handleBillingJob(w http.ResponseWriter, r *http.Request) {
	writeBatch(w, r, rt.billing.CalculateAllBillings(r.Context()))
}

func (req BillingRequest) window(now time.Time) (time.Time, time.Time, error) {
	switch {
	case req.PeriodStart == nil && req.PeriodEnd == nil:
		if req.PeriodType == "" {
			start, end := domain.CurrentMonth(now)
			return start, end, nil
		}
		p, err := domain.ParsePeriodType(req.PeriodType)
		if err != nil {
			return time.Time{}, time.Time{}, invalid("%v", err)
		}
		return domain.PeriodBounds(now, p)
	case req.PeriodStart == nil || req.PeriodEnd == nil:
		return time.Time{}, time.Time{}, invalid("period_start and period_end must be given together")
	case req.PeriodType != "":
		return time.Time{}, time.Time{}, invalid("period_type cannot be combined with an explicit window")
	default:
		return req.PeriodStart.UTC(), req.PeriodEnd.UTC(), nil
	}
}
