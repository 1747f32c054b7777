package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"library_turnover/backend/internal/gateway/util"
	"library_turnover/backend/internal/shared"
	"library_turnover/backend/internal/wizard"
)

// WizardHandler serves the turnover wizard. Sessions live in the gateway, one per account.
type WizardHandler struct {
	Sessions *wizard.Sessions
	Turnover *TurnoverHandler
}

// ClassMappingsRequest mirrors the JSON input for PUT /wizard/mappings
type ClassMappingsRequest struct {
	Mappings []shared.ClassMapping `json:"mappings" validate:"dive"`
}

// writeWizardError maps wizard and transport errors to HTTP
func writeWizardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, wizard.ErrStepLocked),
		errors.Is(err, wizard.ErrTerminal),
		errors.Is(err, wizard.ErrExecutionLocked),
		errors.Is(err, wizard.ErrNotCompleted),
		errors.Is(err, wizard.ErrNotPrepared):
		util.WriteJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, wizard.ErrCancelled):
		util.WriteJSONError(w, http.StatusGone, err.Error())
	case errors.Is(err, wizard.ErrUnknownStep),
		errors.Is(err, wizard.ErrUnknownStudent),
		errors.Is(err, wizard.ErrUnknownClass),
		errors.Is(err, wizard.ErrInvalidClass),
		errors.Is(err, wizard.ErrInvalidAction),
		errors.Is(err, wizard.ErrMissingDest):
		util.WriteJSONError(w, http.StatusBadRequest, err.Error())
	default:
		// status.FromError sees through the wizard's wrapping
		util.HandleGRPCError(w, err)
	}
}

// session returns the caller's wizard or writes the error response
func (h *WizardHandler) session(w http.ResponseWriter, r *http.Request) (*wizard.Wizard, bool) {
	account, ok := accountFrom(w, r)
	if !ok {
		return nil, false
	}
	wz, ok := h.Sessions.Get(account)
	if !ok {
		util.WriteJSONError(w, http.StatusNotFound, "No turnover wizard in progress")
		return nil, false
	}
	return wz, true
}

func writeState(w http.ResponseWriter, code int, wz *wizard.Wizard) {
	util.WriteJSON(w, code, wz.State())
}

// Open handles POST /wizard
// Resumes the account's running wizard or starts a new one at step 1.
func (h *WizardHandler) Open(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.Turnover.callContext(r, false)
	defer cancel()

	wz, err := h.Sessions.Open(ctx, account)
	if err != nil {
		writeWizardError(w, err)
		return
	}
	writeState(w, http.StatusOK, wz)
}

// State handles GET /wizard
func (h *WizardHandler) State(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.session(w, r)
	if !ok {
		return
	}
	writeState(w, http.StatusOK, wz)
}

// Close handles DELETE /wizard
func (h *WizardHandler) Close(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(w, r)
	if !ok {
		return
	}
	h.Sessions.Close(account)
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Wizard closed",
	})
}

// Next handles POST /wizard/next
func (h *WizardHandler) Next(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.session(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.Turnover.callContext(r, false)
	defer cancel()

	if _, err := wz.Next(ctx); err != nil {
		writeWizardError(w, err)
		return
	}
	writeState(w, http.StatusOK, wz)
}

// Back handles POST /wizard/back
func (h *WizardHandler) Back(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := wz.Back(); err != nil {
		writeWizardError(w, err)
		return
	}
	writeState(w, http.StatusOK, wz)
}

// CompleteStep handles POST /wizard/steps/{step}/complete
func (h *WizardHandler) CompleteStep(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.session(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "step"))
	if err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "step must be a number")
		return
	}
	if err := wz.CompleteStep(wizard.Step(n)); err != nil {
		writeWizardError(w, err)
		return
	}
	writeState(w, http.StatusOK, wz)
}

// AddClass handles POST /wizard/classes
// Body: NewClass; the id is generated when empty.
func (h *WizardHandler) AddClass(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.session(w, r)
	if !ok {
		return
	}
	var nc shared.NewClass
	if err := util.DecodeJSON(r, &nc); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := wz.AddNewClass(nc)
	if err != nil {
		writeWizardError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, created)
}

// RemoveClass handles DELETE /wizard/classes/{id}
func (h *WizardHandler) RemoveClass(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := wz.RemoveNewClass(chi.URLParam(r, "id")); err != nil {
		writeWizardError(w, err)
		return
	}
	writeState(w, http.StatusOK, wz)
}

// SetMappings handles PUT /wizard/mappings
func (h *WizardHandler) SetMappings(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ClassMappingsRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := wz.SetClassMappings(req.Mappings); err != nil {
		writeWizardError(w, err)
		return
	}
	writeState(w, http.StatusOK, wz)
}

// AssignActions handles POST /wizard/actions
// Body: {"studentIds": [...], "action": "promote", "newClassId": "..."}
func (h *WizardHandler) AssignActions(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.session(w, r)
	if !ok {
		return
	}
	var req wizard.Assignment
	if err := util.DecodeJSON(r, &req); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := wz.AssignAction(req)
	if err != nil {
		writeWizardError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"updated": n,
		"state":   wz.State(),
	})
}

// Execute handles POST /wizard/execute
// The wizard ends on the completion step whatever the outcome.
func (h *WizardHandler) Execute(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.session(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.Turnover.callContext(r, true)
	defer cancel()

	res, err := wz.Execute(ctx)
	if err != nil {
		writeWizardError(w, err)
		return
	}
	writeExecution(w, res)
}

// Report handles GET /wizard/report
// Downloads the CSV audit report of a completed turnover.
func (h *WizardHandler) Report(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.session(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := wz.WriteAuditReport(&buf); err != nil {
		writeWizardError(w, err)
		return
	}

	cfg := wz.Config()
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="virada-%s-%s.csv"`, cfg.FromYear, cfg.ToYear))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
