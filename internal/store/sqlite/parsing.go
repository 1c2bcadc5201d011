package sqlite

import (
	"database/sql"
	"time"
)

// timeLayouts are tried in order when a DATETIME column comes back as a
// string rather than already converted to time.Time by the driver. The
// ncruces/go-sqlite3 driver auto-converts TEXT -> time.Time only for
// columns declared DATETIME and only when the stored text matches one of
// a few well-known layouts; values written by other tools can still need
// a manual parse, so callers fall back to this list rather than trusting
// the driver unconditionally.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

func parseTimeString(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseNullableTimeString(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTimeString(ns.String)
	return &t
}

func nullableTimeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}
