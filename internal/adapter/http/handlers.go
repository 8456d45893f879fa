package http

import (
	"context"
	"net/http"

	"github.com/phaseline/phaseline/internal/adapter/ws"
	"github.com/phaseline/phaseline/internal/domain/workflow"
	"github.com/phaseline/phaseline/internal/service"
)

// Pinger reports backend liveness, satisfied by pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Workflows   *service.WorkflowService
	Sessions    *service.SessionService
	Escalations *service.EscalationService
	Exchange    *service.ExchangeService
	Router      *service.RouterService
	Hub         *ws.Hub
	DB          Pinger
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		if err := h.DB.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListTopics handles GET /api/v1/topics
func (h *Handlers) ListTopics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"topics": h.Router.Topics()})
}

// ListWorkflowTypes handles GET /api/v1/workflow-types
func (h *Handlers) ListWorkflowTypes(w http.ResponseWriter, _ *http.Request) {
	types := workflow.Types()
	out := make(map[string][]workflow.Phase, len(types))
	for _, t := range types {
		phases, err := workflow.Phases(t)
		if err != nil {
			writeInternalError(w, err)
			return
		}
		out[t] = phases
	}
	writeJSON(w, http.StatusOK, out)
}
