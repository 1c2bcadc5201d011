// Package download is the download orchestrator: resolves or creates a
// DlRequest, re-validates it against the event log, and returns either
// the cached blob (with a known Content-Length) or a live stream that
// blocks on the report builder via a one-shot response channel. Grounded
// on the original aiocomments/views/user_requests.py `download` handler
// and aiocomments/consumers.py's DlResponseConsumer.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rtyy/commentsd/internal/pubsub"
	"github.com/rtyy/commentsd/internal/store"
	"github.com/rtyy/commentsd/internal/types"
)

// BlobReader is the subset of blobstore.Store the orchestrator needs to
// read a completed report and to reserve a name for a new one.
type BlobReader interface {
	GenerateFilename(ext string) string
	Open(filename string) (io.ReadCloser, error)
	Stat(filename string) (int64, error)
}

// ErrBadRequest signals the caller supplied neither i_id nor author_id.
var ErrBadRequest = fmt.Errorf("download: i_id or author_id required")

// Request is the caller-supplied download parameters.
type Request struct {
	UserID   int64
	ItypeID  int64
	IID      *int64
	AuthorID *int64
	Start    *time.Time
	End      *time.Time
	Fmt      types.DlFormat
}

// Result is what the HTTP handler needs to write a response: either a
// cache hit (ContentLength set) or a live build (ContentLength nil). In
// both cases Open reads the blob; for a live build, Download has already
// waited for the builder before returning the Result.
type Result struct {
	ContentLength *int64
	Open          func() (io.ReadCloser, error)
}

// Orchestrator ties the store, the blob store, and the pub/sub fabric
// together to satisfy download requests.
type Orchestrator struct {
	Store store.Store
	Blobs BlobReader
	Reg   *pubsub.Registry
}

// New returns an Orchestrator.
func New(s store.Store, blobs BlobReader, reg *pubsub.Registry) *Orchestrator {
	return &Orchestrator{Store: s, Blobs: blobs, Reg: reg}
}

// Download resolves req to a Result, creating or re-validating the
// backing DlRequest and, if needed, waiting for the report builder.
func (o *Orchestrator) Download(ctx context.Context, req Request) (*Result, error) {
	if req.IID == nil && req.AuthorID == nil {
		return nil, ErrBadRequest
	}
	if req.Fmt == "" {
		req.Fmt = types.FormatXML
	}

	var rootTreeID *int64
	if req.IID != nil {
		treeID, err := o.resolveRootTreeID(ctx, req.ItypeID, *req.IID)
		if err != nil {
			return nil, err
		}
		rootTreeID = &treeID
	}

	dlReq, err := o.Store.FindDlRequest(ctx, req.ItypeID, req.IID, req.AuthorID, req.Start, req.End, req.Fmt)
	if err != nil {
		if err2 := o.mustBeNotFound(err); err2 != nil {
			return nil, err2
		}
		dlReq = &types.DlRequest{
			ItypeID:  req.ItypeID,
			IID:      req.IID,
			AuthorID: req.AuthorID,
			Start:    req.Start,
			End:      req.End,
			Fmt:      req.Fmt,
			State:    types.DlStateInvalid,
			Filename: o.Blobs.GenerateFilename(string(req.Fmt)),
			Created:  time.Now().UTC(),
		}
		if err := o.Store.CreateDlRequest(ctx, dlReq); err != nil {
			return nil, fmt.Errorf("download: create dl request: %w", err)
		}
	}

	if err := o.Store.GetOrCreateUserDlRequest(ctx, req.UserID, dlReq.ID); err != nil {
		return nil, fmt.Errorf("download: link user request: %w", err)
	}

	if dlReq.State == types.DlStateValid {
		stale, err := o.Store.HasEventSince(ctx, dlReq.Created, rootTreeID, req.AuthorID, req.Start, req.End)
		if err != nil {
			return nil, fmt.Errorf("download: revalidate cache: %w", err)
		}
		if stale {
			dlReq.State = types.DlStateInvalid
			if err := o.Store.SaveDlRequest(ctx, dlReq); err != nil {
				return nil, fmt.Errorf("download: invalidate cache: %w", err)
			}
		}
	}

	if dlReq.State == types.DlStateValid {
		size, err := o.Blobs.Stat(dlReq.Filename)
		if err != nil {
			return nil, fmt.Errorf("download: stat cached blob: %w", err)
		}
		filename := dlReq.Filename
		return &Result{
			ContentLength: &size,
			Open:          func() (io.ReadCloser, error) { return o.Blobs.Open(filename) },
		}, nil
	}

	if err := o.waitForBuild(ctx, dlReq.ID, req.Fmt); err != nil {
		return nil, err
	}

	filename := dlReq.Filename
	return &Result{
		ContentLength: nil,
		Open:          func() (io.ReadCloser, error) { return o.Blobs.Open(filename) },
	}, nil
}

// waitForBuild subscribes a one-shot consumer to the request's per-id
// response channel, publishes the request id on the builder's input
// channel, and blocks until the builder wakes the consumer (or ctx is
// cancelled). Grounded on DlResponseConsumer: subscribe first, then
// publish, so the wake-up can never be missed.
func (o *Orchestrator) waitForBuild(ctx context.Context, dlReqID int64, fmtVal types.DlFormat) error {
	responseChannel := fmt.Sprintf("%s-dl-request-%d", fmtVal, dlReqID)
	requestChannel := fmt.Sprintf("%s-dl-request", fmtVal)

	done := make(chan int, 1)
	var con *pubsub.Consumer
	con = pubsub.NewConsumer(o.Reg, func(_ context.Context, msg any) error {
		if v, ok := msg.(int); ok {
			select {
			case done <- v:
			default:
			}
		}
		con.Stop() // one-shot: unsubscribe and terminate Run once woken, per DlResponseConsumer
		return nil
	})
	con.Subscribe(responseChannel)
	defer con.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go con.Run(runCtx)

	o.Reg.Channel(requestChannel).Publish(dlReqID)

	select {
	case result := <-done:
		if result == 0 {
			return fmt.Errorf("download: report build failed for request %d", dlReqID)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mustBeNotFound returns nil when err is store.ErrNotFound (the expected
// "no cached request yet" case) and a wrapped error otherwise.
func (o *Orchestrator) mustBeNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return fmt.Errorf("download: find dl request: %w", err)
}

// resolveRootTreeID confirms the root (Instance or Comment, per the
// itype_id convention) exists and returns its tree_id, 404-ing via
// store.ErrNotFound when it does not.
func (o *Orchestrator) resolveRootTreeID(ctx context.Context, itypeID, iID int64) (int64, error) {
	if itypeID != 0 {
		inst, err := o.Store.GetInstance(ctx, itypeID, iID)
		if err != nil {
			return 0, fmt.Errorf("download: resolve instance root: %w", err)
		}
		return inst.TreeID(), nil
	}
	c, err := o.Store.GetComment(ctx, iID)
	if err != nil {
		return 0, fmt.Errorf("download: resolve comment root: %w", err)
	}
	return c.TreeID, nil
}
