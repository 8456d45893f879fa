package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	if h.Hub != nil {
		r.Get("/ws", h.Hub.HandleWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Discovery
		r.Get("/topics", h.ListTopics)
		r.Get("/workflow-types", h.ListWorkflowTypes)

		// Workflows
		r.Post("/workflows", h.CreateWorkflow)
		r.Get("/workflows", h.ListWorkflows)
		r.Get("/workflows/{id}", h.GetWorkflow)
		r.Post("/workflows/{id}/start", h.StartWorkflow)
		r.Post("/workflows/{id}/advance", h.AdvanceWorkflow)
		r.Get("/workflows/{id}/history", h.WorkflowHistory)

		// Sessions
		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions/{id}", h.GetSession)
		r.Get("/sessions/{id}/messages", h.ListSessionMessages)
		r.Post("/sessions/{id}/messages", h.AppendSessionMessage)
		r.Post("/sessions/{id}/close", h.CloseSession)
		r.Delete("/sessions/{id}", h.CloseSession)

		// Question exchange
		r.Post("/ask", h.Ask)
		r.Post("/ask/{topic}", h.AskTopic)

		// Escalations
		r.Get("/escalations", h.ListPendingEscalations)
		r.Get("/escalations/{id}", h.GetEscalation)
		r.Post("/escalations/{id}", h.ResolveEscalation)
		r.Post("/escalations/{id}/resolve", h.ResolveEscalation)

		// Audit trail
		r.Get("/subjects/{id}/audit", h.SubjectAuditTrail)
	})
}
