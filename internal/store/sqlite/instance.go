package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/rtyy/commentsd/internal/store"
	"github.com/rtyy/commentsd/internal/types"
)

// GetInstance loads the instance uniquely keyed by (itypeID, iID).
func (s *Store) GetInstance(ctx context.Context, itypeID, iID int64) (*types.Instance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, itype_id, i_id, children_cnt, lft_ins_num, lft_ins_den
		FROM instance WHERE itype_id = ? AND i_id = ?`, itypeID, iID)

	var inst types.Instance
	err := row.Scan(&inst.ID, &inst.ItypeID, &inst.IID, &inst.ChildrenCnt, &inst.LftInsNum, &inst.LftInsDen)
	if err != nil {
		return nil, wrapDBError("get instance", err)
	}
	return &inst, nil
}

// GetOrCreateInstance loads the instance for (itypeID, iID), creating it
// lazily with the synthetic-root defaults (children_cnt 0, mediant base
// 0/1) the first time a comment targets this pair.
func (s *Store) GetOrCreateInstance(ctx context.Context, itypeID, iID int64) (*types.Instance, error) {
	inst, err := s.GetInstance(ctx, itypeID, iID)
	if err == nil {
		return inst, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO instance (itype_id, i_id, children_cnt, lft_ins_num, lft_ins_den)
		VALUES (?, ?, 0, 0, 1)
		ON CONFLICT(itype_id, i_id) DO NOTHING`, itypeID, iID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create instance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost a race with a concurrent creator; fall through to re-read.
		return s.GetInstance(ctx, itypeID, iID)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create instance: %w", err)
	}
	return &types.Instance{ID: id, ItypeID: itypeID, IID: iID, LftInsNum: 0, LftInsDen: 1}, nil
}

// SaveInstance persists the mediant-base / children_cnt fields of inst.
func (s *Store) SaveInstance(ctx context.Context, inst *types.Instance) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE instance SET children_cnt = ?, lft_ins_num = ?, lft_ins_den = ?
		WHERE id = ?`, inst.ChildrenCnt, inst.LftInsNum, inst.LftInsDen, inst.ID)
	if err != nil {
		return fmt.Errorf("sqlite: save instance: %w", err)
	}
	return nil
}
