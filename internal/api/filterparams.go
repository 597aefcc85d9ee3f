package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/inboxorcist/inboxorcist/internal/models"
)

// parseFilter reads the filter grammar from query parameters, the shape
// shared by the query API and the mutation APIs (enqueue_trash,
// enqueue_delete, enqueue_apply_label all take the same grammar).
func parseFilter(q map[string][]string) models.Filter {
	get := func(k string) string {
		if v, ok := q[k]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}
	list := func(k string) []string {
		v := get(k)
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	i64 := func(k string) *int64 {
		v := get(k)
		if v == "" {
			return nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		return &n
	}
	tri := func(k string) models.TriState {
		v := get(k)
		switch v {
		case "true":
			return models.TriTrue
		case "false":
			return models.TriFalse
		default:
			return models.TriAbsent
		}
	}

	return models.Filter{
		Sender:         get("sender"),
		SenderEmail:    list("sender_email"),
		SenderDomain:   list("sender_domain"),
		Category:       get("category"),
		DateFrom:       i64("date_from"),
		DateTo:         i64("date_to"),
		SizeMin:        i64("size_min"),
		SizeMax:        i64("size_max"),
		IsUnread:       tri("is_unread"),
		IsStarred:      tri("is_starred"),
		HasAttachments: tri("has_attachments"),
		IsTrash:        tri("is_trash"),
		IsSpam:         tri("is_spam"),
		IsImportant:    tri("is_important"),
		IsSent:         tri("is_sent"),
		IsArchived:     tri("is_archived"),
		LabelIDs:       list("label_ids"),
		Search:         get("search"),
	}
}

func parsePage(r *http.Request) models.Page {
	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	if limit > 500 {
		limit = 500
	}
	return models.Page{Limit: limit, Offset: offset}
}

func parseSort(r *http.Request) models.Sort {
	field := models.SortByDate
	if r.URL.Query().Get("sort") == "size" {
		field = models.SortBySize
	}
	order := models.SortDesc
	if r.URL.Query().Get("order") == "asc" {
		order = models.SortAsc
	}
	return models.Sort{Field: field, Order: order}
}
