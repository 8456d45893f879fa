package http

import (
	"net/http"

	"github.com/phaseline/phaseline/internal/domain/escalation"
)

// ListPendingEscalations handles GET /api/v1/escalations
func (h *Handlers) ListPendingEscalations(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Escalations.ListPending(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if pending == nil {
		pending = []escalation.Escalation{}
	}
	writeJSON(w, http.StatusOK, pending)
}

// GetEscalation handles GET /api/v1/escalations/{id}
func (h *Handlers) GetEscalation(w http.ResponseWriter, r *http.Request) {
	e, err := h.Escalations.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "escalation not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// ResolveEscalation handles POST /api/v1/escalations/{id}/resolve
//
// The resolution runs through the exchange pipeline: confirm and correct
// finalize the answer, add_context re-dispatches the question and may open
// the next-generation escalation.
func (h *Handlers) ResolveEscalation(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[escalation.ResolveRequest](w, r)
	if !ok {
		return
	}

	result, err := h.Exchange.ResolveEscalation(r.Context(), urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err, "escalation not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
