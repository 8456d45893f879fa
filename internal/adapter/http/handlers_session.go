package http

import (
	"encoding/json"
	"net/http"

	"github.com/phaseline/phaseline/internal/domain/session"
)

// CreateSession handles POST /api/v1/sessions
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[session.CreateRequest](w, r)
	if !ok {
		return
	}

	sess, err := h.Sessions.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// GetSession handles GET /api/v1/sessions/{id}
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Sessions.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// ListSessionMessages handles GET /api/v1/sessions/{id}/messages
func (h *Handlers) ListSessionMessages(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, err := h.Sessions.Get(r.Context(), id); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}

	msgs, err := h.Sessions.History(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	if msgs == nil {
		msgs = []session.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type appendMessageRequest struct {
	Role     string          `json:"role"`
	Content  string          `json:"content"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// AppendSessionMessage handles POST /api/v1/sessions/{id}/messages
func (h *Handlers) AppendSessionMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[appendMessageRequest](w, r)
	if !ok {
		return
	}
	switch req.Role {
	case session.RoleAsker, session.RoleResponder, session.RoleHuman:
	default:
		writeError(w, http.StatusBadRequest, "role must be asker, responder, or human")
		return
	}

	msg, err := h.Sessions.AppendMessage(r.Context(), urlParam(r, "id"), req.Role, req.Content, req.Metadata)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// CloseSession handles POST /api/v1/sessions/{id}/close
func (h *Handlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Sessions.Close(r.Context(), id); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}

	sess, err := h.Sessions.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
