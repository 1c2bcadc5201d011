// Package types holds the plain data shapes persisted by the comments
// service: instances, comments, event log entries, and download requests.
// None of these types carry behavior beyond small accessors — mutation
// logic lives in internal/treeindex and internal/store.
package types

import "time"

// EventType enumerates the append-only event log's e_type column.
type EventType string

const (
	EventCreated EventType = "CREATED"
	EventChanged EventType = "CHANGED"
	EventDeleted EventType = "DELETED"
)

// DlState is the lifecycle state of a materialized download request.
type DlState string

const (
	DlStateValid   DlState = "VALID"
	DlStateInvalid DlState = "INVALID"
)

// DlFormat enumerates supported report output formats. XML is the only
// format the engine currently builds.
type DlFormat string

const (
	FormatXML DlFormat = "xml"
)

// Instance is the synthetic root of a tree anchored to an external
// (itype_id, i_id) pair. Its effective left/right keys are always 0/1 and
// 1/1; only the mediant base (LftInsNum/LftInsDen) is stored.
type Instance struct {
	ID          int64
	ItypeID     int64
	IID         int64
	ChildrenCnt int64
	LftInsNum   int64
	LftInsDen   int64
}

// TreeID returns the value other rows use to reference this instance as
// their tree root.
func (i *Instance) TreeID() int64 { return i.ID }

// LeftIns returns the current mediant base.
func (i *Instance) LeftIns() (num, den int64) { return i.LftInsNum, i.LftInsDen }

// SetLeftIns advances the mediant base after a child insert/delete.
func (i *Instance) SetLeftIns(num, den int64) { i.LftInsNum, i.LftInsDen = num, den }

// ReferenceRight returns the rational a new direct child's right key is
// computed against. An Instance's reference right is always 1/1.
func (i *Instance) ReferenceRight() (num, den int64) { return 1, 1 }

// IncChildren bumps the direct-child counter by delta (may be negative).
func (i *Instance) IncChildren(delta int64) { i.ChildrenCnt += delta }

// Comment is a single node inside exactly one tree.
type Comment struct {
	ID          int64
	ItypeID     int64
	IID         int64
	AuthorID    int64
	Content     string
	Created     time.Time
	Updated     time.Time
	TreeID      int64
	ParentID    *int64
	ChildrenCnt int64
	Scale       int64

	LftNum int64
	LftDen int64
	RhtNum int64
	RhtDen int64

	LftInsNum int64
	LftInsDen int64
}

// LeftIns returns the current mediant base for this comment acting as a
// parent.
func (c *Comment) LeftIns() (num, den int64) { return c.LftInsNum, c.LftInsDen }

// SetLeftIns advances the mediant base after a child insert/delete.
func (c *Comment) SetLeftIns(num, den int64) { c.LftInsNum, c.LftInsDen = num, den }

// ReferenceRight returns the rational a new direct child's right key is
// computed against: a Comment parent's own right key.
func (c *Comment) ReferenceRight() (num, den int64) { return c.RhtNum, c.RhtDen }

// IncChildren bumps the direct-child counter by delta (may be negative).
func (c *Comment) IncChildren(delta int64) { c.ChildrenCnt += delta }

// EventLog is an append-only record of a comment mutation.
type EventLog struct {
	ID           int64
	UserID       int64
	TreeID       int64
	AuthorID     int64
	CommentID    int64
	CommentCDate time.Time
	EType        EventType
	EDate        time.Time
}

// DlRequest is a materialized report: the cache key plus its build state.
// IID is nil when the request is scoped to "everything by this author"
// rather than a single instance — distinct from IID pointing at 0, which
// is a legitimate instance id.
type DlRequest struct {
	ID       int64
	ItypeID  int64
	IID      *int64
	AuthorID *int64
	Start    *time.Time
	End      *time.Time
	Fmt      DlFormat
	State    DlState
	Filename string
	Created  time.Time
}

// UserDlRequest links a user to a DlRequest they have asked for, recording
// when that link was first created.
type UserDlRequest struct {
	ID        int64
	UserID    int64
	DlReqID   int64
	Created   time.Time
}
