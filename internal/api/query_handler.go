package api

import (
	"net/http"
	"strconv"

	"github.com/inboxorcist/inboxorcist/internal/models"
	"github.com/inboxorcist/inboxorcist/internal/store"
)

// QueryHandler exposes the read-only query surface over one account's
// local email mirror: filtered listing, aggregate stats, and breakdowns.
type QueryHandler struct {
	Store store.Store
}

func NewQueryHandler(st store.Store) *QueryHandler {
	return &QueryHandler{Store: st}
}

func (h *QueryHandler) QueryEmails(w http.ResponseWriter, r *http.Request) {
	accountID, err := ValidateIDParam(r, "accountID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	f := parseFilter(r.URL.Query())
	page := parsePage(r)
	sort := parseSort(r)

	emails, err := h.Store.QueryEmails(r.Context(), accountID, f, page, sort)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	count, err := h.Store.CountFiltered(r.Context(), accountID, f)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"emails": emails,
		"total":  count,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

func (h *QueryHandler) CalculateStats(w http.ResponseWriter, r *http.Request) {
	accountID, err := ValidateIDParam(r, "accountID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	stats, err := h.Store.CalculateStats(r.Context(), accountID)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, stats)
}

func (h *QueryHandler) Breakdown(w http.ResponseWriter, r *http.Request) {
	accountID, err := ValidateIDParam(r, "accountID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	f := parseFilter(r.URL.Query())
	sort := parseSort(r)
	by := models.BreakdownBy(r.URL.Query().Get("by"))
	if by == "" {
		by = models.BreakdownBySender
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	rows, err := h.Store.Breakdown(r.Context(), accountID, f, by, sort, limit)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, rows)
}

func (h *QueryHandler) SenderSuggestions(w http.ResponseWriter, r *http.Request) {
	accountID, err := ValidateIDParam(r, "accountID")
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	query := r.URL.Query().Get("q")
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	senders, err := h.Store.SenderSuggestions(r.Context(), accountID, query, limit)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, senders)
}
