package http

import (
	"net/http"

	"github.com/phaseline/phaseline/internal/domain/workflow"
)

// CreateWorkflow handles POST /api/v1/workflows
func (h *Handlers) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[workflow.CreateRequest](w, r)
	if !ok {
		return
	}

	created, err := h.Workflows.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetWorkflow handles GET /api/v1/workflows/{id}
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.Workflows.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// ListWorkflows handles GET /api/v1/workflows?subject_id=...
func (h *Handlers) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	subjectID := r.URL.Query().Get("subject_id")
	if subjectID == "" {
		writeError(w, http.StatusBadRequest, "subject_id query parameter is required")
		return
	}

	wfs, err := h.Workflows.ListBySubject(r.Context(), subjectID)
	if err != nil {
		writeDomainError(w, err, "workflows not found")
		return
	}
	if wfs == nil {
		wfs = []workflow.Workflow{}
	}
	writeJSON(w, http.StatusOK, wfs)
}

// StartWorkflow handles POST /api/v1/workflows/{id}/start
func (h *Handlers) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.Workflows.Start(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// AdvanceWorkflow handles POST /api/v1/workflows/{id}/advance
func (h *Handlers) AdvanceWorkflow(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[workflow.AdvanceRequest](w, r)
	if !ok {
		return
	}
	if req.Trigger == "" {
		writeError(w, http.StatusBadRequest, "trigger is required")
		return
	}

	wf, err := h.Workflows.Advance(r.Context(), urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// WorkflowHistory handles GET /api/v1/workflows/{id}/history
func (h *Handlers) WorkflowHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := h.Workflows.History(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	if hist == nil {
		hist = []workflow.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, hist)
}
