package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rtyy/commentsd/internal/types"
)

// GetOrCreateUserDlRequest records that userID has requested dlReqID,
// creating the link the first time and doing nothing on subsequent calls.
func (s *Store) GetOrCreateUserDlRequest(ctx context.Context, userID, dlReqID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_dl_request (user_id, dlrequest_id, created)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, dlrequest_id) DO NOTHING`, userID, dlReqID, nowUTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: link user dl request: %w", err)
	}
	return nil
}

// ListUserDlRequests returns userID's prior DlRequests, ordered by link
// creation time descending (when the user first asked for each report,
// not when the report itself was built).
func (s *Store) ListUserDlRequests(ctx context.Context, userID int64) ([]*types.DlRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.itype_id, d.i_id, d.has_i_id, d.author_id, d.has_author, d.start_ts, d.has_start,
			d.end_ts, d.has_end, d.fmt, d.state, d.filename, d.created
		FROM dl_request d
		JOIN user_dl_request u ON u.dlrequest_id = d.id
		WHERE u.user_id = ?
		ORDER BY u.created DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list user dl requests: %w", err)
	}
	defer rows.Close()

	var out []*types.DlRequest
	for rows.Next() {
		req, err := scanDlRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list user dl requests: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}
