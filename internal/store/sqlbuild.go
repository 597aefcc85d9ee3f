package store

import (
	"encoding/json"
	"fmt"

	"github.com/inboxorcist/inboxorcist/internal/models"
)

// OrderByClause renders a Sort into "ORDER BY <col> <dir>". Defaults to
// internal_date desc when s.Field is unset, matching the natural
// newest-first order of an inbox.
// Placeholders renders n comma-separated bound placeholders starting at
// bind offset startAt (1-indexed), for building "IN (...)" clauses across
// dialects that don't support passing a slice as one bound parameter
// (sqlite does not; pgx's ANY($n) does, so the sqlite engine is the one
// that needs this helper).
func Placeholders(n, startAt int, bind Bind) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = bind(startAt + i)
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func OrderByClause(s models.Sort) string {
	col := "internal_date"
	if s.Field == models.SortBySize {
		col = "size_bytes"
	}
	dir := "DESC"
	if s.Order == models.SortAsc {
		dir = "ASC"
	}
	return fmt.Sprintf("ORDER BY %s %s, message_id %s", col, dir, dir)
}

func MarshalLabels(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	b, err := json.Marshal(labels)
	return string(b), err
}

func UnmarshalLabels(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var labels []string
	if err := json.Unmarshal([]byte(raw), &labels); err != nil {
		return nil, err
	}
	return labels, nil
}

func MarshalAttachments(a []models.Attachment) (string, error) {
	if a == nil {
		return "", nil
	}
	b, err := json.Marshal(a)
	return string(b), err
}

func UnmarshalAttachments(raw string) ([]models.Attachment, error) {
	if raw == "" {
		return nil, nil
	}
	var a []models.Attachment
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, err
	}
	return a, nil
}
