package sqlite

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rtyy/commentsd/internal/store"
	"github.com/rtyy/commentsd/internal/treeindex"
	"github.com/rtyy/commentsd/internal/types"
)

const commentColumns = `id, itype_id, i_id, author_id, content, created, updated,
	tree_id, parent_id, children_cnt, scale, lft_num, lft_den, rht_num, rht_den,
	lft_ins_num, lft_ins_den`

func scanComment(row interface {
	Scan(dest ...any) error
}) (*types.Comment, error) {
	var c types.Comment
	var created, updated string
	var parentID *int64
	err := row.Scan(&c.ID, &c.ItypeID, &c.IID, &c.AuthorID, &c.Content, &created, &updated,
		&c.TreeID, &parentID, &c.ChildrenCnt, &c.Scale, &c.LftNum, &c.LftDen, &c.RhtNum, &c.RhtDen,
		&c.LftInsNum, &c.LftInsDen)
	if err != nil {
		return nil, err
	}
	c.Created = parseTimeString(created)
	c.Updated = parseTimeString(updated)
	c.ParentID = parentID
	return &c, nil
}

// GetComment loads a comment by id.
func (s *Store) GetComment(ctx context.Context, id int64) (*types.Comment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comment WHERE id = ?`, id)
	c, err := scanComment(row)
	if err != nil {
		return nil, wrapDBError("get comment", err)
	}
	return c, nil
}

// InsertComment persists a new comment row whose keys have already been
// computed by the tree engine.
func (s *Store) InsertComment(ctx context.Context, c *types.Comment) error {
	lftFloat := treeindex.AsFloat(c.LftNum, c.LftDen)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO comment (itype_id, i_id, author_id, content, created, updated,
			tree_id, parent_id, children_cnt, scale, lft_num, lft_den, rht_num, rht_den,
			lft_ins_num, lft_ins_den, lft_float)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ItypeID, c.IID, c.AuthorID, c.Content,
		c.Created.UTC().Format(time.RFC3339Nano), c.Updated.UTC().Format(time.RFC3339Nano),
		c.TreeID, c.ParentID, c.Scale, c.LftNum, c.LftDen, c.RhtNum, c.RhtDen,
		c.LftInsNum, c.LftInsDen, lftFloat)
	if err != nil {
		return fmt.Errorf("sqlite: insert comment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: insert comment: %w", err)
	}
	c.ID = id
	return nil
}

// UpdateCommentContent changes only content and updated; keys are
// immutable once inserted.
func (s *Store) UpdateCommentContent(ctx context.Context, id int64, content string, updated time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE comment SET content = ?, updated = ? WHERE id = ?`,
		content, updated.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("sqlite: update comment content: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update comment content: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite: update comment content: %w", store.ErrNotFound)
	}
	return nil
}

// SaveComment persists the mediant-base / children_cnt fields of a comment
// acting as a parent (the tree engine only ever re-saves these two fields
// post-insert/delete; content updates go through UpdateCommentContent).
func (s *Store) SaveComment(ctx context.Context, c *types.Comment) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE comment SET children_cnt = ?, lft_ins_num = ?, lft_ins_den = ?
		WHERE id = ?`, c.ChildrenCnt, c.LftInsNum, c.LftInsDen, c.ID)
	if err != nil {
		return fmt.Errorf("sqlite: save comment: %w", err)
	}
	return nil
}

// DeleteCommentsInRange deletes every row in treeID with
// lftNum/lftDen <= lft < rhtNum/rhtDen and scale >= minScale, the branch
// delete's range-scan contract. Comparisons are done in SQL using the
// float hint column for the index scan, then re-checked in Go with exact
// big.Int cross-multiplication before counting a row as deleted, so no
// row outside the exact range is deleted. A row whose lft_float rounds to
// a value outside [lo, hi) is not selected by the scan at all.
func (s *Store) DeleteCommentsInRange(ctx context.Context, treeID, lftNum, lftDen, rhtNum, rhtDen, minScale int64) (int64, error) {
	lo := treeindex.AsFloat(lftNum, lftDen)
	hi := treeindex.AsFloat(rhtNum, rhtDen)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lft_num, lft_den FROM comment
		WHERE tree_id = ? AND scale >= ? AND lft_float >= ? AND lft_float < ?`,
		treeID, minScale, lo, hi)
	if err != nil {
		return 0, fmt.Errorf("sqlite: range delete scan: %w", err)
	}

	var toDelete []int64
	for rows.Next() {
		var id, num, den int64
		if err := rows.Scan(&id, &num, &den); err != nil {
			rows.Close()
			return 0, fmt.Errorf("sqlite: range delete scan: %w", err)
		}
		if treeindex.LessEq(lftNum, lftDen, num, den) && treeindex.Less(num, den, rhtNum, rhtDen) {
			toDelete = append(toDelete, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("sqlite: range delete scan: %w", err)
	}
	rows.Close()

	if len(toDelete) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: range delete: %w", err)
	}
	defer tx.Rollback()

	var removed int64
	for _, id := range toDelete {
		res, err := tx.ExecContext(ctx, `DELETE FROM comment WHERE id = ?`, id)
		if err != nil {
			return 0, fmt.Errorf("sqlite: range delete: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: range delete: %w", err)
	}
	return removed, nil
}

func (s *Store) queryComments(ctx context.Context, query string, args ...any) ([]*types.Comment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list comments: %w", err)
	}
	defer rows.Close()

	var out []*types.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list comments: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// sortByLeftKey re-sorts a result set by the exact rational left key using
// big.Int cross-multiplication. The SQL queries that produce these rows
// order by the lft_float hint column only to narrow the index scan; that
// column is lossy, so the authoritative order is always recomputed here
// before the rows are handed back, per the no-float-cast-ordering rule.
func sortByLeftKey(cs []*types.Comment) {
	sort.SliceStable(cs, func(i, j int) bool {
		return treeindex.Less(cs[i].LftNum, cs[i].LftDen, cs[j].LftNum, cs[j].LftDen)
	})
}

// ListDirectChildrenOfInstance returns the top-level comments of treeID,
// ordered by left key, optionally paginated from lastID with an optional
// limit.
func (s *Store) ListDirectChildrenOfInstance(ctx context.Context, treeID int64, lastID *int64, limit int) ([]*types.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comment WHERE tree_id = ? AND parent_id IS NULL`
	args := []any{treeID}
	query, args = applyPagination(ctx, s, query, args, lastID, limit)
	out, err := s.queryComments(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	sortByLeftKey(out)
	return out, nil
}

// ListDirectChildrenOfComment returns the direct children of parentID,
// ordered by left key, optionally paginated.
func (s *Store) ListDirectChildrenOfComment(ctx context.Context, parentID int64, lastID *int64, limit int) ([]*types.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comment WHERE parent_id = ?`
	args := []any{parentID}
	query, args = applyPagination(ctx, s, query, args, lastID, limit)
	out, err := s.queryComments(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	sortByLeftKey(out)
	return out, nil
}

// applyPagination appends the ORDER BY / optional last_id / optional
// limit clauses shared by both direct-children queries.
func applyPagination(ctx context.Context, s *Store, query string, args []any, lastID *int64, limit int) (string, []any) {
	if lastID != nil {
		if last, err := s.GetComment(ctx, *lastID); err == nil {
			query += ` AND lft_float > ?`
			args = append(args, treeindex.AsFloat(last.LftNum, last.LftDen))
		}
	}
	query += ` ORDER BY lft_float ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return query, args
}

// ListSubtreeOfInstance returns every comment in treeID, in exact
// pre-order (sorted by the rational left key, not the float hint column).
func (s *Store) ListSubtreeOfInstance(ctx context.Context, treeID int64) ([]*types.Comment, error) {
	out, err := s.queryComments(ctx, `
		SELECT `+commentColumns+` FROM comment
		WHERE tree_id = ? ORDER BY lft_float ASC, scale ASC`, treeID)
	if err != nil {
		return nil, err
	}
	sortByLeftKey(out)
	return out, nil
}

// ListSubtreeOfComment returns the transitive descendants of a comment
// whose own keys are (scale, lftNum/lftDen, rhtNum/rhtDen). The float
// comparison in the WHERE clause only narrows the index scan; membership
// is re-verified exactly below with big.Int cross-multiplication, and the
// surviving rows are re-sorted by the exact rational left key so a float
// precision tie or inversion can never produce a wrong pre-order.
func (s *Store) ListSubtreeOfComment(ctx context.Context, treeID int64, scale, lftNum, lftDen, rhtNum, rhtDen int64) ([]*types.Comment, error) {
	lo := treeindex.AsFloat(lftNum, lftDen)
	hi := treeindex.AsFloat(rhtNum, rhtDen)
	rows, err := s.queryComments(ctx, `
		SELECT `+commentColumns+` FROM comment
		WHERE tree_id = ? AND scale > ? AND lft_float >= ? AND lft_float < ?
		ORDER BY lft_float ASC, scale ASC`, treeID, scale, lo, hi)
	if err != nil {
		return nil, err
	}
	filtered := rows[:0]
	for _, c := range rows {
		if treeindex.LessEq(lftNum, lftDen, c.LftNum, c.LftDen) && treeindex.Less(c.LftNum, c.LftDen, rhtNum, rhtDen) {
			filtered = append(filtered, c)
		}
	}
	sortByLeftKey(filtered)
	return filtered, nil
}

// ListAllComments returns every comment, used when a download request has
// no i_id (report covers the whole corpus).
func (s *Store) ListAllComments(ctx context.Context) ([]*types.Comment, error) {
	return s.queryComments(ctx, `SELECT `+commentColumns+` FROM comment ORDER BY created ASC`)
}

// ListCommentsByAuthor returns every comment by authorID ordered by
// created, used by the by-author streaming feed.
func (s *Store) ListCommentsByAuthor(ctx context.Context, authorID int64) ([]*types.Comment, error) {
	return s.queryComments(ctx, `SELECT `+commentColumns+` FROM comment WHERE author_id = ? ORDER BY created ASC`, authorID)
}
