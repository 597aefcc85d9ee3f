package store

import (
	"fmt"
	"strings"

	"github.com/inboxorcist/inboxorcist/internal/models"
)

// Bind produces the dialect-specific placeholder for the n-th bound
// argument (1-indexed). Postgres uses "$1", "$2", ...; sqlite uses "?"
// for every position. Keeping the WHERE-clause builder dialect-agnostic
// lets both engine backends share one implementation of the filter
// grammar.
type Bind func(n int) string

func PostgresBind(n int) string { return fmt.Sprintf("$%d", n) }
func SQLiteBind(int) string     { return "?" }

// BuildWhere translates the filter grammar into a SQL WHERE clause (without the "WHERE" keyword) plus positional args, scoped
// to accountCol = accountID. All top-level conditions are ANDed; the
// internal OR groups (sender_email, sender_domain, label_ids, search) are
// each wrapped in their own parens.
func BuildWhere(accountCol, accountID string, f models.Filter, bind Bind) (string, []any) {
	var conds []string
	var args []any
	n := 0
	next := func(v any) string {
		n++
		args = append(args, v)
		return bind(n)
	}

	conds = append(conds, fmt.Sprintf("%s = %s", accountCol, next(accountID)))

	if f.Sender != "" {
		needle := "%" + strings.ToLower(f.Sender) + "%"
		conds = append(conds, fmt.Sprintf("(LOWER(from_name) LIKE %s OR LOWER(from_email) LIKE %s)", next(needle), next(needle)))
	}
	if len(f.SenderEmail) > 0 {
		var or []string
		for _, e := range f.SenderEmail {
			or = append(or, fmt.Sprintf("LOWER(from_email) = %s", next(strings.ToLower(strings.TrimSpace(e)))))
		}
		conds = append(conds, "("+strings.Join(or, " OR ")+")")
	}
	if len(f.SenderDomain) > 0 {
		var or []string
		for _, d := range f.SenderDomain {
			suffix := "@" + strings.ToLower(strings.TrimSpace(d))
			or = append(or, fmt.Sprintf("LOWER(from_email) LIKE %s", next("%"+suffix)))
		}
		conds = append(conds, "("+strings.Join(or, " OR ")+")")
	}
	if f.Category != "" {
		conds = append(conds, fmt.Sprintf("category = %s", next(f.Category)))
	}
	if f.DateFrom != nil {
		conds = append(conds, fmt.Sprintf("internal_date >= %s", next(*f.DateFrom)))
	}
	if f.DateTo != nil {
		conds = append(conds, fmt.Sprintf("internal_date <= %s", next(*f.DateTo)))
	}
	if f.SizeMin != nil {
		conds = append(conds, fmt.Sprintf("size_bytes >= %s", next(*f.SizeMin)))
	}
	if f.SizeMax != nil {
		conds = append(conds, fmt.Sprintf("size_bytes <= %s", next(*f.SizeMax)))
	}

	addBool := func(col string, tri models.TriState) {
		switch tri {
		case models.TriTrue:
			conds = append(conds, fmt.Sprintf("%s = %s", col, next(true)))
		case models.TriFalse:
			conds = append(conds, fmt.Sprintf("%s = %s", col, next(false)))
		}
	}
	addBool("is_unread", f.IsUnread)
	addBool("is_starred", f.IsStarred)
	addBool("is_trash", f.IsTrash)
	addBool("is_spam", f.IsSpam)
	addBool("is_important", f.IsImportant)

	if f.HasAttachments == models.TriTrue {
		conds = append(conds, "has_attachments > 0")
	} else if f.HasAttachments == models.TriFalse {
		conds = append(conds, "has_attachments = 0")
	}

	// is_sent ≡ labels contains SENT. Stored as a JSON array; dialects
	// differ in JSON containment operators, so both engines fall back to
	// a portable LIKE over the serialized labels column populated at
	// write time (see EmailStore.UpsertEmails in each engine package).
	switch f.IsSent {
	case models.TriTrue:
		conds = append(conds, fmt.Sprintf("labels LIKE %s", next(`%"SENT"%`)))
	case models.TriFalse:
		conds = append(conds, fmt.Sprintf("labels NOT LIKE %s", next(`%"SENT"%`)))
	}

	// is_archived ≡ NOT INBOX AND NOT trash AND NOT spam.
	switch f.IsArchived {
	case models.TriTrue:
		conds = append(conds, fmt.Sprintf("labels NOT LIKE %s AND is_trash = %s AND is_spam = %s", next(`%"INBOX"%`), next(false), next(false)))
	case models.TriFalse:
		conds = append(conds, fmt.Sprintf("(labels LIKE %s OR is_trash = %s OR is_spam = %s)", next(`%"INBOX"%`), next(true), next(true)))
	}

	if len(f.LabelIDs) > 0 {
		var or []string
		for _, l := range f.LabelIDs {
			or = append(or, fmt.Sprintf("labels LIKE %s", next("%\""+strings.TrimSpace(l)+"\"%")))
		}
		conds = append(conds, "("+strings.Join(or, " OR ")+")")
	}

	if f.Search != "" {
		if clause := buildSearchClause(f.Search, next); clause != "" {
			conds = append(conds, clause)
		}
	}

	return strings.Join(conds, " AND "), args
}

// buildSearchClause implements a tiny boolean grammar over the subject
// line: split on "\sOR\s" (case-insensitive) first; if present, OR the
// tokens. Otherwise split on "\sAND\s" and AND them. Otherwise treat the
// whole string as one substring. Quotes are stripped per-token. No nesting.
func buildSearchClause(search string, next func(any) string) string {
	orTokens := splitCI(search, " OR ")
	if len(orTokens) > 1 {
		var parts []string
		for _, t := range orTokens {
			parts = append(parts, fmt.Sprintf("LOWER(subject) LIKE %s", next(likeArg(t))))
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	}
	andTokens := splitCI(search, " AND ")
	if len(andTokens) > 1 {
		var parts []string
		for _, t := range andTokens {
			parts = append(parts, fmt.Sprintf("LOWER(subject) LIKE %s", next(likeArg(t))))
		}
		return "(" + strings.Join(parts, " AND ") + ")"
	}
	return fmt.Sprintf("LOWER(subject) LIKE %s", next(likeArg(search)))
}

func likeArg(token string) string {
	t := strings.TrimSpace(token)
	t = strings.Trim(t, `"'`)
	return "%" + strings.ToLower(t) + "%"
}

// splitCI splits s on sep case-insensitively, trimming surrounding
// whitespace from each token.
func splitCI(s, sep string) []string {
	lower := strings.ToUpper(s)
	sepUpper := strings.ToUpper(sep)
	idxs := []int{}
	start := 0
	for {
		i := strings.Index(lower[start:], sepUpper)
		if i < 0 {
			break
		}
		idxs = append(idxs, start+i)
		start = start + i + len(sepUpper)
	}
	if len(idxs) == 0 {
		return []string{strings.TrimSpace(s)}
	}
	var out []string
	prev := 0
	for _, i := range idxs {
		out = append(out, strings.TrimSpace(s[prev:i]))
		prev = i + len(sep)
	}
	out = append(out, strings.TrimSpace(s[prev:]))
	return out
}
