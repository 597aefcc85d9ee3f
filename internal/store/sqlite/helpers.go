package sqlite

import (
	"database/sql"
	"time"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func nullStringToTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		// sqlite's strftime default omits the literal 'Z' layout mismatch on
		// some builds; fall back to RFC3339Nano for rows written outside Go.
		t, err = time.Parse(time.RFC3339Nano, ns.String)
		if err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func stringPtrToNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullToStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// adaptArgs converts Go bools to 0/1 so comparisons against SQLite's
// INTEGER-backed boolean columns are reliable; the shared store.BuildWhere
// helper is dialect-agnostic and always emits real Go bools.
func adaptArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if b, ok := a.(bool); ok {
			if b {
				out[i] = int64(1)
			} else {
				out[i] = int64(0)
			}
			continue
		}
		out[i] = a
	}
	return out
}
