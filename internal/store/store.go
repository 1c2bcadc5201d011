// Package store defines the persistence boundary the tree engine, report
// builder, and download orchestrator all depend on. internal/store/sqlite
// is the one concrete implementation, backed by github.com/ncruces/go-sqlite3.
package store

import (
	"context"
	"time"

	"github.com/rtyy/commentsd/internal/types"
)

// Store is the persistence primitives the rest of the system is built on.
// Every method that can fail to find its referent returns ErrNotFound;
// every method is safe to call concurrently.
type Store interface {
	// Instances.
	GetInstance(ctx context.Context, itypeID, iID int64) (*types.Instance, error)
	GetOrCreateInstance(ctx context.Context, itypeID, iID int64) (*types.Instance, error)
	SaveInstance(ctx context.Context, inst *types.Instance) error

	// Comments.
	GetComment(ctx context.Context, id int64) (*types.Comment, error)
	InsertComment(ctx context.Context, c *types.Comment) error
	UpdateCommentContent(ctx context.Context, id int64, content string, updated time.Time) error
	SaveComment(ctx context.Context, c *types.Comment) error
	DeleteCommentsInRange(ctx context.Context, treeID int64, lftNum, lftDen, rhtNum, rhtDen, minScale int64) (int64, error)

	ListDirectChildrenOfInstance(ctx context.Context, treeID int64, lastID *int64, limit int) ([]*types.Comment, error)
	ListDirectChildrenOfComment(ctx context.Context, parentID int64, lastID *int64, limit int) ([]*types.Comment, error)
	ListSubtreeOfInstance(ctx context.Context, treeID int64) ([]*types.Comment, error)
	ListSubtreeOfComment(ctx context.Context, treeID int64, scale, lftNum, lftDen, rhtNum, rhtDen int64) ([]*types.Comment, error)
	ListAllComments(ctx context.Context) ([]*types.Comment, error)
	ListCommentsByAuthor(ctx context.Context, authorID int64) ([]*types.Comment, error)

	// Event log.
	AppendEvent(ctx context.Context, e *types.EventLog) error
	HasEventSince(ctx context.Context, since time.Time, treeID *int64, authorID *int64, start, end *time.Time) (bool, error)

	// Download requests.
	FindDlRequest(ctx context.Context, itypeID int64, iID *int64, authorID *int64, start, end *time.Time, fmt types.DlFormat) (*types.DlRequest, error)
	GetDlRequest(ctx context.Context, id int64) (*types.DlRequest, error)
	CreateDlRequest(ctx context.Context, req *types.DlRequest) error
	SaveDlRequest(ctx context.Context, req *types.DlRequest) error

	GetOrCreateUserDlRequest(ctx context.Context, userID, dlReqID int64) error
	ListUserDlRequests(ctx context.Context, userID int64) ([]*types.DlRequest, error)

	// Close releases underlying resources (the DB connection pool).
	Close() error
}
