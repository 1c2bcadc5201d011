package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rtyy/commentsd/internal/types"
)

const dlRequestColumns = `id, itype_id, i_id, has_i_id, author_id, has_author, start_ts, has_start, end_ts, has_end, fmt, state, filename, created`

func scanDlRequest(row interface {
	Scan(dest ...any) error
}) (*types.DlRequest, error) {
	var req types.DlRequest
	var iID, authorID int64
	var hasIID, hasAuthor, hasStart, hasEnd int
	var startTS, endTS *string
	var fmtStr, stateStr, created string

	err := row.Scan(&req.ID, &req.ItypeID, &iID, &hasIID, &authorID, &hasAuthor,
		&startTS, &hasStart, &endTS, &hasEnd, &fmtStr, &stateStr, &req.Filename, &created)
	if err != nil {
		return nil, err
	}

	if hasIID != 0 {
		req.IID = &iID
	}
	if hasAuthor != 0 {
		req.AuthorID = &authorID
	}
	if hasStart != 0 && startTS != nil {
		t := parseTimeString(*startTS)
		req.Start = &t
	}
	if hasEnd != 0 && endTS != nil {
		t := parseTimeString(*endTS)
		req.End = &t
	}
	req.Fmt = types.DlFormat(fmtStr)
	req.State = types.DlState(stateStr)
	req.Created = parseTimeString(created)
	return &req, nil
}

// cacheKeyArgs builds the ordered argument list for every not-NULL column
// participating in the cache key, each paired with its own has_* sentinel
// flag so "no filter supplied" and "filter supplied as zero value" can
// never collide in the unique index or a lookup.
func cacheKeyArgs(itypeID int64, iID *int64, authorID *int64, start, end *time.Time, fmtVal types.DlFormat) []any {
	var iIDVal int64
	hasIID := 0
	if iID != nil {
		iIDVal = *iID
		hasIID = 1
	}
	var author int64
	hasAuthor := 0
	if authorID != nil {
		author = *authorID
		hasAuthor = 1
	}
	var startStr, endStr any = "", ""
	hasStart, hasEnd := 0, 0
	if start != nil {
		startStr = start.UTC().Format(time.RFC3339Nano)
		hasStart = 1
	}
	if end != nil {
		endStr = end.UTC().Format(time.RFC3339Nano)
		hasEnd = 1
	}
	return []any{itypeID, iIDVal, hasIID, author, hasAuthor, startStr, hasStart, endStr, hasEnd, string(fmtVal)}
}

// FindDlRequest looks up the DlRequest matching the full cache key.
func (s *Store) FindDlRequest(ctx context.Context, itypeID int64, iID *int64, authorID *int64, start, end *time.Time, fmtVal types.DlFormat) (*types.DlRequest, error) {
	args := cacheKeyArgs(itypeID, iID, authorID, start, end, fmtVal)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+dlRequestColumns+` FROM dl_request
		WHERE itype_id = ? AND i_id = ? AND has_i_id = ? AND author_id = ? AND has_author = ?
			AND start_ts IS ? AND has_start = ? AND end_ts IS ? AND has_end = ? AND fmt = ?`, args...)
	req, err := scanDlRequest(row)
	if err != nil {
		return nil, wrapDBError("find dl request", err)
	}
	return req, nil
}

// GetDlRequest loads a DlRequest by id.
func (s *Store) GetDlRequest(ctx context.Context, id int64) (*types.DlRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dlRequestColumns+` FROM dl_request WHERE id = ?`, id)
	req, err := scanDlRequest(row)
	if err != nil {
		return nil, wrapDBError("get dl request", err)
	}
	return req, nil
}

// CreateDlRequest inserts a new DlRequest row, assigning req.ID.
func (s *Store) CreateDlRequest(ctx context.Context, req *types.DlRequest) error {
	args := cacheKeyArgs(req.ItypeID, req.IID, req.AuthorID, req.Start, req.End, req.Fmt)
	args = append(args, string(req.State), req.Filename, req.Created.UTC().Format(time.RFC3339Nano))
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO dl_request (itype_id, i_id, has_i_id, author_id, has_author, start_ts, has_start, end_ts, has_end, fmt, state, filename, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("sqlite: create dl request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: create dl request: %w", err)
	}
	req.ID = id
	return nil
}

// SaveDlRequest persists state/filename/created — the fields the builder
// and the orchestrator mutate after creation. The cache key columns are
// immutable once set.
func (s *Store) SaveDlRequest(ctx context.Context, req *types.DlRequest) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE dl_request SET state = ?, filename = ?, created = ? WHERE id = ?`,
		string(req.State), req.Filename, req.Created.UTC().Format(time.RFC3339Nano), req.ID)
	if err != nil {
		return fmt.Errorf("sqlite: save dl request: %w", err)
	}
	return nil
}
