package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rtyy/commentsd/internal/types"
)

// AppendEvent inserts a new event log row. e_date is stamped with the
// current time regardless of any value the caller set, matching the
// append-only contract: never mutated after write, e_date := now() at
// append.
func (s *Store) AppendEvent(ctx context.Context, e *types.EventLog) error {
	e.EDate = nowUTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO event_log (user_id, tree_id, author_id, comment_id, comment_cdate, e_type, e_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.TreeID, e.AuthorID, e.CommentID,
		e.CommentCDate.UTC().Format(time.RFC3339Nano), string(e.EType), e.EDate.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: append event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: append event: %w", err)
	}
	e.ID = id
	return nil
}

// HasEventSince reports whether any event exists with e_date > since that
// matches the optional tree/author scope and the optional comment_cdate
// window, implementing the download orchestrator's cache re-validation
// query.
func (s *Store) HasEventSince(ctx context.Context, since time.Time, treeID *int64, authorID *int64, start, end *time.Time) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM event_log WHERE e_date > ?`
	args := []any{since.UTC().Format(time.RFC3339Nano)}

	if treeID != nil {
		query += ` AND tree_id = ?`
		args = append(args, *treeID)
	}
	if authorID != nil {
		query += ` AND author_id = ?`
		args = append(args, *authorID)
	}
	if start != nil && end != nil {
		query += ` AND comment_cdate BETWEEN ? AND ?`
		args = append(args, start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano))
	} else if start != nil {
		query += ` AND comment_cdate >= ?`
		args = append(args, start.UTC().Format(time.RFC3339Nano))
	} else if end != nil {
		query += ` AND comment_cdate <= ?`
		args = append(args, end.UTC().Format(time.RFC3339Nano))
	}
	query += `)`

	var exists int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("sqlite: event-since check: %w", err)
	}
	return exists != 0, nil
}
