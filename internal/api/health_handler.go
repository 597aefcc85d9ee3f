package api

import (
	"net/http"

	"github.com/inboxorcist/inboxorcist/internal/models"
	"github.com/inboxorcist/inboxorcist/internal/store"
	"github.com/inboxorcist/inboxorcist/internal/throttle"
)

// HealthHandler reports one account's sync progress and the shared
// throttle's current pacing, the signal a collaborator polls instead of
// tailing logs.
type HealthHandler struct {
	Store    store.Store
	Throttle *throttle.Throttle
}

func NewHealthHandler(st store.Store, th *throttle.Throttle) *HealthHandler {
	return &HealthHandler{Store: st, Throttle: th}
}

type accountHealth struct {
	SyncStatus        models.SyncStatus   `json:"sync_status"`
	ProcessedMessages int64               `json:"processed_messages"`
	TotalMessages     int64               `json:"total_messages"`
	LastError         string              `json:"last_error,omitempty"`
	Throttle          throttle.Snapshot   `json:"throttle"`
	ActiveJob         *models.Job         `json:"active_job,omitempty"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	accountID, err := ValidateIDParam(r, "accountID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := h.Store.GetAccount(r.Context(), accountID)
	if err != nil {
		RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	resp := accountHealth{
		SyncStatus: account.SyncStatus,
		Throttle:   h.Throttle.Snapshot(),
	}
	if account.SyncError != nil {
		resp.LastError = *account.SyncError
	}

	job, err := h.Store.ListActiveJobByAccountAndType(r.Context(), accountID, models.JobTypeSync)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job != nil {
		resp.ActiveJob = job
		resp.ProcessedMessages = job.ProcessedMessages
		resp.TotalMessages = job.TotalMessages
	}
	RespondJSON(w, http.StatusOK, resp)
}
