package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"library_turnover/backend/internal/gateway/util"
	"library_turnover/backend/internal/shared"
	"library_turnover/backend/internal/snapshot"
	"library_turnover/backend/internal/turnoverrpc"
)

const (
	defaultCallTimeout    = 5 * time.Second
	defaultExecuteTimeout = 5 * time.Minute
)

// TurnoverHandler exposes the turnover service over REST. Every call is scoped
// to the account carried by the caller's token.
type TurnoverHandler struct {
	Client *turnoverrpc.TurnoverServiceClient

	// CallTimeout bounds ordinary calls, ExecuteTimeout bounds turnover runs.
	CallTimeout    time.Duration
	ExecuteTimeout time.Duration
}

// CreateYearRequest mirrors the JSON input for POST /years
type CreateYearRequest struct {
	Year string `json:"year" validate:"required,numeric"`
}

func (h *TurnoverHandler) callContext(r *http.Request, long bool) (context.Context, context.CancelFunc) {
	timeout := h.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if long {
		timeout = h.ExecuteTimeout
		if timeout <= 0 {
			timeout = defaultExecuteTimeout
		}
	}
	return context.WithTimeout(r.Context(), timeout)
}

// accountFrom writes a 401 and returns false when the middleware did not set an account
func accountFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	account, ok := util.AccountFromContext(r.Context())
	if !ok {
		util.WriteJSONError(w, http.StatusUnauthorized, "Authentication required")
	}
	return account, ok
}

// ============================================================================
// Academic Years
// ============================================================================

// GetActiveYear handles GET /years/active
func (h *TurnoverHandler) GetActiveYear(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.callContext(r, false)
	defer cancel()

	resp, err := h.Client.GetActiveYear(ctx, &turnoverrpc.AccountRequest{AccountID: account})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"year":    resp.Year,
	})
}

// ListYears handles GET /years
func (h *TurnoverHandler) ListYears(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.callContext(r, false)
	defer cancel()

	resp, err := h.Client.ListYears(ctx, &turnoverrpc.AccountRequest{AccountID: account})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"years":   resp.Years,
	})
}

// CreateYear handles POST /years
// Creates the year and archives whichever year was active.
func (h *TurnoverHandler) CreateYear(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(w, r)
	if !ok {
		return
	}

	var req CreateYearRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.callContext(r, false)
	defer cancel()

	resp, err := h.Client.CreateYear(ctx, &turnoverrpc.YearRequest{AccountID: account, Year: req.Year})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"year":    resp.Year,
	})
}

// ============================================================================
// Turnover
// ============================================================================

// PrepareTurnover handles GET /turnover/prepare
func (h *TurnoverHandler) PrepareTurnover(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.callContext(r, false)
	defer cancel()

	resp, err := h.Client.PrepareTurnover(ctx, &turnoverrpc.AccountRequest{AccountID: account})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, resp.Preparation)
}

// ValidateTurnover handles POST /turnover/validate
// Body: TurnoverConfig. Always 200; the result says whether it is valid.
func (h *TurnoverHandler) ValidateTurnover(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(w, r)
	if !ok {
		return
	}

	var cfg shared.TurnoverConfig
	if err := util.DecodeJSON(r, &cfg); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.callContext(r, false)
	defer cancel()

	resp, err := h.Client.ValidateTurnover(ctx, &turnoverrpc.TurnoverRequest{AccountID: account, Config: cfg})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, resp.Result)
}

// ExecuteTurnover handles POST /turnover/execute
// A rejected or failed turnover is reported with 422 and the execution result.
func (h *TurnoverHandler) ExecuteTurnover(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(w, r)
	if !ok {
		return
	}

	var cfg shared.TurnoverConfig
	if err := util.DecodeJSON(r, &cfg); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.callContext(r, true)
	defer cancel()

	resp, err := h.Client.ExecuteTurnover(ctx, &turnoverrpc.TurnoverRequest{AccountID: account, Config: cfg})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	writeExecution(w, resp.Result)
}

// ResumeTurnover handles POST /turnover/history/{id}/resume
func (h *TurnoverHandler) ResumeTurnover(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.callContext(r, true)
	defer cancel()

	resp, err := h.Client.ResumeTurnover(ctx, &turnoverrpc.HistoryRequest{AccountID: account, HistoryID: chi.URLParam(r, "id")})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	writeExecution(w, resp.Result)
}

// CancelTurnover handles POST /turnover/history/{id}/cancel
func (h *TurnoverHandler) CancelTurnover(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.callContext(r, false)
	defer cancel()

	_, err := h.Client.CancelTurnover(ctx, &turnoverrpc.HistoryRequest{AccountID: account, HistoryID: chi.URLParam(r, "id")})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Turnover cancelled",
	})
}

// GetTurnoverHistory handles GET /turnover/history
func (h *TurnoverHandler) GetTurnoverHistory(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.callContext(r, false)
	defer cancel()

	resp, err := h.Client.GetTurnoverHistory(ctx, &turnoverrpc.AccountRequest{AccountID: account})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"history": resp.History,
	})
}

func writeExecution(w http.ResponseWriter, res shared.ExecutionResult) {
	code := http.StatusOK
	if !res.Success {
		code = http.StatusUnprocessableEntity
	}
	util.WriteJSON(w, code, map[string]interface{}{
		"success":    res.Success,
		"statistics": res.Statistics,
		"historyId":  res.HistoryID,
		"error":      res.Error,
	})
}

// ============================================================================
// Snapshots
// ============================================================================

// CreateSnapshot handles POST /snapshots/{year}
func (h *TurnoverHandler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.callContext(r, true)
	defer cancel()

	resp, err := h.Client.CreateSnapshot(ctx, &turnoverrpc.YearRequest{AccountID: account, Year: chi.URLParam(r, "year")})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, resp.Snapshot)
}

// GetSnapshot handles GET /snapshots/{year}
func (h *TurnoverHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.callContext(r, false)
	defer cancel()

	resp, err := h.Client.GetSnapshot(ctx, &turnoverrpc.YearRequest{AccountID: account, Year: chi.URLParam(r, "year")})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, resp.Snapshot)
}

// ListSnapshots handles GET /snapshots
func (h *TurnoverHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.callContext(r, false)
	defer cancel()

	resp, err := h.Client.ListSnapshots(ctx, &turnoverrpc.AccountRequest{AccountID: account})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"snapshots": resp.Snapshots,
	})
}

// FilterSnapshot handles GET /snapshots/{year}/filter?start=...&end=...
// Dates are RFC 3339 or YYYY-MM-DD; a bare end date covers the whole day.
func (h *TurnoverHandler) FilterSnapshot(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(w, r)
	if !ok {
		return
	}

	rng, err := parseRange(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.callContext(r, false)
	defer cancel()

	resp, err := h.Client.FilterSnapshot(ctx, &turnoverrpc.FilterSnapshotRequest{
		AccountID: account,
		Year:      chi.URLParam(r, "year"),
		Range:     rng,
	})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, resp.Data)
}

func parseRange(start, end string) (snapshot.DateRange, error) {
	if start == "" || end == "" {
		return snapshot.DateRange{}, fmt.Errorf("start and end are required")
	}
	s, _, err := parseDate(start)
	if err != nil {
		return snapshot.DateRange{}, fmt.Errorf("invalid start: %w", err)
	}
	e, dateOnly, err := parseDate(end)
	if err != nil {
		return snapshot.DateRange{}, fmt.Errorf("invalid end: %w", err)
	}
	if dateOnly {
		e = e.Add(24*time.Hour - time.Millisecond)
	}
	return snapshot.DateRange{StartDate: s, EndDate: e}, nil
}

func parseDate(v string) (time.Time, bool, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	return t, false, err
}
