package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/inboxorcist/inboxorcist/internal/jobs"
	"github.com/inboxorcist/inboxorcist/internal/models"
	"github.com/inboxorcist/inboxorcist/internal/store"
)

// MutationHandler exposes enqueue_sync/trash/delete/apply_label plus
// cancel/pause/resume, and the query-cache preview an agent uses to get
// a confirmation handle before committing to a bulk mutation.
type MutationHandler struct {
	Store  store.Store
	Runner *jobs.Runner
}

func NewMutationHandler(st store.Store, runner *jobs.Runner) *MutationHandler {
	return &MutationHandler{Store: st, Runner: runner}
}

// PreviewQuery resolves a filter to its count/size and stores it under an
// opaque query_id, so a later confirmed mutation can refer back to
// exactly what was shown without re-evaluating the filter at a different
// point in time.
func (h *MutationHandler) PreviewQuery(w http.ResponseWriter, r *http.Request) {
	accountID, err := ValidateIDParam(r, "accountID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	f := parseFilter(r.URL.Query())

	ids, size, err := h.Store.IDsWithSizeForFilter(r.Context(), accountID, f)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	entry := &models.QueryCacheEntry{
		QueryID:   uuid.NewString(),
		AccountID: accountID,
		Filter:    f,
		Count:     int64(len(ids)),
		SizeBytes: size,
	}
	if err := h.Store.SaveQueryCache(r.Context(), entry); err != nil {
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, entry)
}

// resolveFilter prefers a previously cached query_id, falling back to an
// inline filter from query parameters, so a mutation can be called
// either after a preview or directly.
func (h *MutationHandler) resolveFilter(r *http.Request, accountID string) (models.Filter, error) {
	if qid := r.URL.Query().Get("query_id"); qid != "" {
		entry, err := h.Store.GetQueryCache(r.Context(), qid)
		if err != nil {
			return models.Filter{}, err
		}
		return entry.Filter, nil
	}
	return parseFilter(r.URL.Query()), nil
}

func (h *MutationHandler) EnqueueSync(w http.ResponseWriter, r *http.Request) {
	accountID, err := ValidateIDParam(r, "accountID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	j, err := h.Runner.EnqueueSync(r.Context(), accountID)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	RespondJSON(w, http.StatusAccepted, j)
}

func (h *MutationHandler) EnqueueTrash(w http.ResponseWriter, r *http.Request) {
	accountID, err := ValidateIDParam(r, "accountID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := ValidateAuth(r)
	if err != nil {
		RespondError(w, http.StatusUnauthorized, err.Error())
		return
	}
	f, err := h.resolveFilter(r, accountID)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	j, err := h.Runner.EnqueueTrash(r.Context(), accountID, userID, f)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	RespondJSON(w, http.StatusAccepted, j)
}

func (h *MutationHandler) EnqueueDelete(w http.ResponseWriter, r *http.Request) {
	accountID, err := ValidateIDParam(r, "accountID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := ValidateAuth(r)
	if err != nil {
		RespondError(w, http.StatusUnauthorized, err.Error())
		return
	}
	f, err := h.resolveFilter(r, accountID)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	j, err := h.Runner.EnqueueDelete(r.Context(), accountID, userID, f)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	RespondJSON(w, http.StatusAccepted, j)
}

// EnqueueApplyLabel takes add[]/remove[] from the request body alongside
// the usual filter query parameters.
func (h *MutationHandler) EnqueueApplyLabel(w http.ResponseWriter, r *http.Request) {
	accountID, err := ValidateIDParam(r, "accountID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, err := ValidateAuth(r)
	if err != nil {
		RespondError(w, http.StatusUnauthorized, err.Error())
		return
	}
	f, err := h.resolveFilter(r, accountID)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body struct {
		Add    []string `json:"add"`
		Remove []string `json:"remove"`
	}
	if r.Body != nil {
		_ = DecodeJSON(r, &body)
	}
	j, err := h.Runner.EnqueueApplyLabel(r.Context(), accountID, userID, f, body.Add, body.Remove)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	RespondJSON(w, http.StatusAccepted, j)
}

func (h *MutationHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := ValidateIDParam(r, "jobID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Runner.Cancel(r.Context(), jobID); err != nil {
		RespondError(w, http.StatusConflict, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *MutationHandler) PauseJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := ValidateIDParam(r, "jobID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Runner.Pause(r.Context(), jobID); err != nil {
		RespondError(w, http.StatusConflict, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (h *MutationHandler) ResumeJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := ValidateIDParam(r, "jobID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Runner.Resume(r.Context(), jobID); err != nil {
		RespondError(w, http.StatusConflict, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}
