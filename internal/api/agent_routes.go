package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/inboxorcist/inboxorcist/internal/jobs"
	"github.com/inboxorcist/inboxorcist/internal/store"
	"github.com/inboxorcist/inboxorcist/internal/throttle"
)

// RegisterAgentRoutes mounts the query/mutation/health surface an
// assistant drives: read-only queries and stats under
// /api/accounts/{accountID}, bulk mutations and the query-cache preview
// under the same prefix, and job control under /api/jobs/{jobID}.
// Every route runs behind AuthMiddleware + TokenMiddleware so handlers
// can assume ContextUserIDKey/ContextTokenKey are populated.
func RegisterAgentRoutes(r chi.Router, st store.Store, runner *jobs.Runner, th *throttle.Throttle, oauthClientID string) {
	query := NewQueryHandler(st)
	mutation := NewMutationHandler(st, runner)
	health := NewHealthHandler(st, th)
	auth := AuthMiddleware(oauthClientID)

	r.With(auth).Route("/api/accounts/{accountID}", func(r chi.Router) {
		r.Get("/emails", query.QueryEmails)
		r.Get("/stats", query.CalculateStats)
		r.Get("/breakdown", query.Breakdown)
		r.Get("/senders", query.SenderSuggestions)
		r.Get("/health", health.Health)

		r.Get("/query_preview", mutation.PreviewQuery)
		r.Post("/sync", mutation.EnqueueSync)
		r.Post("/trash", mutation.EnqueueTrash)
		r.Post("/delete", mutation.EnqueueDelete)
		r.Post("/apply_label", mutation.EnqueueApplyLabel)
	})

	r.With(auth).Route("/api/jobs/{jobID}", func(r chi.Router) {
		r.Post("/cancel", mutation.CancelJob)
		r.Post("/pause", mutation.PauseJob)
		r.Post("/resume", mutation.ResumeJob)
	})
}
