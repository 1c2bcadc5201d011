package treeindex

import (
	"context"
	"fmt"
	"time"

	"github.com/rtyy/commentsd/internal/store"
	"github.com/rtyy/commentsd/internal/types"
)

// Engine drives insert/delete/read tree mutations against a Store,
// following the insert and delete contracts exactly: compute keys,
// persist the child, advance and persist the parent's mediant base.
type Engine struct {
	Store store.Store
}

// NewEngine returns an Engine backed by s.
func NewEngine(s store.Store) *Engine {
	return &Engine{Store: s}
}

// InsertInput carries the caller-supplied fields of a new comment. ItypeID
// == 0 means "this is a reply to comment IID" (the overloaded convention
// the spec preserves as-is); ItypeID != 0 means "top-level comment on
// external instance (ItypeID, IID)".
type InsertInput struct {
	ItypeID  int64
	IID      int64
	AuthorID int64
	Content  string
}

// Insert creates a new Comment following the mediant insert contract and
// returns the persisted row.
func (e *Engine) Insert(ctx context.Context, in InsertInput) (*types.Comment, error) {
	now := time.Now().UTC()
	c := &types.Comment{
		ItypeID:  in.ItypeID,
		IID:      in.IID,
		AuthorID: in.AuthorID,
		Content:  in.Content,
		Created:  now,
		Updated:  now,
	}

	if in.ItypeID != 0 {
		inst, err := e.Store.GetOrCreateInstance(ctx, in.ItypeID, in.IID)
		if err != nil {
			return nil, fmt.Errorf("treeindex: resolve instance: %w", err)
		}
		c.TreeID = inst.TreeID()
		c.ParentID = nil
		c.Scale = 0

		lftNum, lftDen, rhtNum, rhtDen := NextChildKeys(inst)
		c.LftNum, c.LftDen = lftNum, lftDen
		c.RhtNum, c.RhtDen = rhtNum, rhtDen
		c.LftInsNum, c.LftInsDen = lftNum, lftDen

		if err := e.Store.InsertComment(ctx, c); err != nil {
			return nil, fmt.Errorf("treeindex: insert comment: %w", err)
		}

		inst.SetLeftIns(rhtNum, rhtDen)
		inst.IncChildren(1)
		if err := e.Store.SaveInstance(ctx, inst); err != nil {
			return nil, fmt.Errorf("treeindex: advance instance cursor: %w", err)
		}
		return c, nil
	}

	parent, err := e.Store.GetComment(ctx, in.IID)
	if err != nil {
		return nil, fmt.Errorf("treeindex: resolve parent comment: %w", err)
	}
	c.ParentID = &parent.ID
	c.TreeID = parent.TreeID
	c.Scale = parent.Scale + 1

	lftNum, lftDen, rhtNum, rhtDen := NextChildKeys(parent)
	c.LftNum, c.LftDen = lftNum, lftDen
	c.RhtNum, c.RhtDen = rhtNum, rhtDen
	c.LftInsNum, c.LftInsDen = lftNum, lftDen

	if err := e.Store.InsertComment(ctx, c); err != nil {
		return nil, fmt.Errorf("treeindex: insert comment: %w", err)
	}

	parent.SetLeftIns(rhtNum, rhtDen)
	parent.IncChildren(1)
	if err := e.Store.SaveComment(ctx, parent); err != nil {
		return nil, fmt.Errorf("treeindex: advance parent cursor: %w", err)
	}
	return c, nil
}

// UpdateContent changes only content and bumps updated; keys are
// immutable after insert.
func (e *Engine) UpdateContent(ctx context.Context, id int64, content string) error {
	return e.Store.UpdateCommentContent(ctx, id, content, time.Now().UTC())
}

// Delete removes the entire branch rooted at c, following the delete
// contract: locate the mediant-base holder, roll its cursor back if c was
// the most recent child, range-delete the branch, decrement the holder's
// direct-child count by exactly one. It returns the number of rows
// removed. The caller (httpapi) is responsible for the "children_cnt == 0"
// policy check — the engine itself must support recursive delete for
// author-initiated branch removal in other call paths.
func (e *Engine) Delete(ctx context.Context, c *types.Comment) (int64, error) {
	var holder interface {
		LeftIns() (int64, int64)
		SetLeftIns(int64, int64)
		IncChildren(int64)
	}
	var saveHolder func(context.Context) error

	if c.ParentID != nil {
		parent, err := e.Store.GetComment(ctx, *c.ParentID)
		if err != nil {
			return 0, fmt.Errorf("treeindex: load parent comment: %w", err)
		}
		holder = parent
		saveHolder = func(ctx context.Context) error { return e.Store.SaveComment(ctx, parent) }
	} else {
		inst, err := e.Store.GetInstance(ctx, c.ItypeID, rootIIDFor(c))
		if err != nil {
			return 0, fmt.Errorf("treeindex: load parent instance: %w", err)
		}
		holder = inst
		saveHolder = func(ctx context.Context) error { return e.Store.SaveInstance(ctx, inst) }
	}

	insNum, insDen := holder.LeftIns()
	if Equal(c.RhtNum, c.RhtDen, insNum, insDen) {
		holder.SetLeftIns(c.LftNum, c.LftDen)
	}

	removed, err := e.Store.DeleteCommentsInRange(ctx, c.TreeID, c.LftNum, c.LftDen, c.RhtNum, c.RhtDen, c.Scale)
	if err != nil {
		return 0, fmt.Errorf("treeindex: range delete: %w", err)
	}

	holder.IncChildren(-1)
	if err := saveHolder(ctx); err != nil {
		return 0, fmt.Errorf("treeindex: persist parent after delete: %w", err)
	}
	return removed, nil
}

// rootIIDFor recovers the instance's external i_id from a top-level
// comment's own IID field, which the insert contract copies straight
// through for itype_id != 0 rows.
func rootIIDFor(c *types.Comment) int64 { return c.IID }

// ListChildrenOfInstance returns the top-level comments of the instance
// (itypeID, iID), ordered by left key, optionally paginated from lastID
// with an optional limit.
func (e *Engine) ListChildrenOfInstance(ctx context.Context, itypeID, iID int64, lastID *int64, limit int) ([]*types.Comment, error) {
	inst, err := e.Store.GetInstance(ctx, itypeID, iID)
	if err != nil {
		return nil, err
	}
	return e.Store.ListDirectChildrenOfInstance(ctx, inst.TreeID(), lastID, limit)
}

// ListChildrenOfComment returns the direct children of comment parentID.
func (e *Engine) ListChildrenOfComment(ctx context.Context, parentID int64, lastID *int64, limit int) ([]*types.Comment, error) {
	return e.Store.ListDirectChildrenOfComment(ctx, parentID, lastID, limit)
}

// Subtree resolves the root per the itype_id convention and returns
// (root, descendants) in pre-order (L, scale). root is nil when itypeID
// != 0 (the root is a virtual Instance, not a Comment row).
func (e *Engine) Subtree(ctx context.Context, itypeID, iID int64) (root *types.Comment, descendants []*types.Comment, err error) {
	if itypeID != 0 {
		inst, err := e.Store.GetInstance(ctx, itypeID, iID)
		if err != nil {
			return nil, nil, err
		}
		descendants, err = e.Store.ListSubtreeOfInstance(ctx, inst.TreeID())
		if err != nil {
			return nil, nil, err
		}
		return nil, descendants, nil
	}

	root, err = e.Store.GetComment(ctx, iID)
	if err != nil {
		return nil, nil, err
	}
	descendants, err = e.Store.ListSubtreeOfComment(ctx, root.TreeID, root.Scale, root.LftNum, root.LftDen, root.RhtNum, root.RhtDen)
	if err != nil {
		return nil, nil, err
	}
	return root, descendants, nil
}
