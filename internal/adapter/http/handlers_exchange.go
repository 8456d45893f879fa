package http

import (
	"net/http"

	"github.com/phaseline/phaseline/internal/domain/audit"
	"github.com/phaseline/phaseline/internal/service"
)

// Ask handles POST /api/v1/ask
func (h *Handlers) Ask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.DispatchRequest](w, r)
	if !ok {
		return
	}
	h.ask(w, r, req)
}

// AskTopic handles POST /api/v1/ask/{topic}, with the topic taken from the
// path instead of the body.
func (h *Handlers) AskTopic(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.DispatchRequest](w, r)
	if !ok {
		return
	}
	req.Topic = urlParam(r, "topic")
	h.ask(w, r, req)
}

func (h *Handlers) ask(w http.ResponseWriter, r *http.Request, req service.DispatchRequest) {
	result, err := h.Exchange.Ask(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "dispatch failed")
		return
	}

	status := http.StatusOK
	if result.Escalated {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

// SubjectAuditTrail handles GET /api/v1/subjects/{id}/audit
func (h *Handlers) SubjectAuditTrail(w http.ResponseWriter, r *http.Request) {
	entries := []audit.Entry{}
	for entry, err := range h.Exchange.AuditBySubject(r.Context(), urlParam(r, "id")) {
		if err != nil {
			writeInternalError(w, err)
			return
		}
		entries = append(entries, entry)
	}
	writeJSON(w, http.StatusOK, entries)
}
