// Package report is the background XML report builder: a BackgroundConsumer
// subscribed to "xml-dl-request" that loads a DlRequest, resolves its root,
// applies filters, streams the result to a blob in chunks, marks the
// request VALID, and wakes waiters by publishing on the request's
// per-id response channel. Grounded on CommentsXMLReporter in the
// original aiocomments/lib/xml_reporter.py.
package report

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rtyy/commentsd/internal/pubsub"
	"github.com/rtyy/commentsd/internal/store"
	"github.com/rtyy/commentsd/internal/treeindex"
	"github.com/rtyy/commentsd/internal/types"
)

// DefaultCapacity is the builder's worker pool size absent configuration,
// matching CommentsXMLReporter(app, 3, loop=app.loop) in the original
// bootstrap.
const DefaultCapacity = 3

// requestChunkSize bounds how many rows are buffered before being flushed
// to the XML stream, matching the original's fetchmany(3).
const requestChunkSize = 3

// Builder is the report pipeline's background worker.
type Builder struct {
	store  store.Store
	engine *treeindex.Engine
	blobs  BlobStore
	reg    *pubsub.Registry

	mu         sync.Mutex
	inProgress map[int64]struct{}

	bc *pubsub.BackgroundConsumer

	buildDuration metric.Float64Histogram
	buildOutcome  metric.Int64Counter
}

// BlobStore is the subset of blobstore.Store the builder needs.
type BlobStore interface {
	Create(filename string) (io.WriteCloser, error)
}

// NewBuilder constructs a Builder subscribed to "xml-dl-request" with the
// given worker capacity (DefaultCapacity if capacity < 1). meter may be
// nil, which disables the build duration/outcome counters.
func NewBuilder(s store.Store, blobs BlobStore, reg *pubsub.Registry, capacity int, meter metric.Meter) *Builder {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	b := &Builder{
		store:      s,
		engine:     treeindex.NewEngine(s),
		blobs:      blobs,
		reg:        reg,
		inProgress: make(map[int64]struct{}),
	}
	if meter != nil {
		if h, err := meter.Float64Histogram("report.build.duration_seconds"); err == nil {
			b.buildDuration = h
		}
		if c, err := meter.Int64Counter("report.build.outcome.total"); err == nil {
			b.buildOutcome = c
		}
	}
	b.bc = pubsub.NewBackgroundConsumer(reg, capacity, b.handle)
	return b
}

// Run starts the consumer loop; it blocks until ctx is cancelled.
func (b *Builder) Run(ctx context.Context) {
	b.bc.Subscribe("xml-dl-request")
	b.bc.Run(ctx)
}

// Stop unsubscribes and waits for in-flight builds to finish.
func (b *Builder) Stop() { b.bc.Stop() }

func (b *Builder) handle(ctx context.Context, msg any) error {
	reqID, err := toInt64(msg)
	if err != nil {
		return fmt.Errorf("report: bad message: %w", err)
	}

	b.mu.Lock()
	if _, active := b.inProgress[reqID]; active {
		b.mu.Unlock()
		return nil // an earlier build is active; drop the duplicate wake-up
	}
	b.inProgress[reqID] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.inProgress, reqID)
		b.mu.Unlock()
	}()

	ok := b.build(ctx, reqID)
	signal := 0
	if ok {
		signal = 1
	}
	b.reg.Channel(fmt.Sprintf("xml-dl-request-%d", reqID)).Publish(signal)
	return nil
}

// build does the actual work and reports success/failure as a bool.
// Any failure — not just "request not found" — results in false, which
// the caller turns into a terminal 0 publish. This implements the
// REDESIGN FLAG from the design notes: the original only catches
// DlRequest.DoesNotExist and otherwise leaves waiters hanging.
func (b *Builder) build(ctx context.Context, reqID int64) (ok bool) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
		if b.buildDuration != nil {
			b.buildDuration.Record(ctx, time.Since(start).Seconds())
		}
		if b.buildOutcome != nil {
			outcome := "failure"
			if ok {
				outcome = "success"
			}
			b.buildOutcome.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}()

	req, err := b.store.GetDlRequest(ctx, reqID)
	if err != nil {
		return false
	}

	root, comments, err := b.resolveAndFilter(ctx, req)
	if err != nil {
		return false
	}

	w, err := b.blobs.Create(req.Filename)
	if err != nil {
		return false
	}
	defer w.Close()

	if err := writeXML(w, req, root, comments); err != nil {
		return false
	}

	req.State = types.DlStateValid
	req.Created = time.Now().UTC()
	if err := b.store.SaveDlRequest(ctx, req); err != nil {
		return false
	}
	return true
}

func (b *Builder) resolveAndFilter(ctx context.Context, req *types.DlRequest) (*types.Comment, []*types.Comment, error) {
	var root *types.Comment
	var comments []*types.Comment
	var err error

	if req.IID != nil {
		root, comments, err = b.engine.Subtree(ctx, req.ItypeID, *req.IID)
		if err != nil {
			return nil, nil, err
		}
	} else {
		comments, err = b.store.ListAllComments(ctx)
		if err != nil {
			return nil, nil, err
		}
	}

	filtered := comments[:0]
	for _, c := range comments {
		if req.AuthorID != nil && c.AuthorID != *req.AuthorID {
			continue
		}
		if req.Start != nil && c.Created.Before(*req.Start) {
			continue
		}
		if req.End != nil && c.Created.After(*req.End) {
			continue
		}
		filtered = append(filtered, c)
	}
	return root, filtered, nil
}

// writeXML streams req/root/comments to w in chunks of requestChunkSize,
// matching the streaming-xmlfile approach of the original builder.
func writeXML(w io.WriteCloser, req *types.DlRequest, root *types.Comment, comments []*types.Comment) error {
	if err := writeDeclaration(w); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)

	if err := enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: "user_request"}}); err != nil {
		return err
	}
	if err := requestElem(enc, req.ItypeID, req.IID, req.AuthorID, req.Start, req.End); err != nil {
		return err
	}
	if err := enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: "report"}}); err != nil {
		return err
	}
	if root != nil {
		if err := writeCommentElem(enc, "root", root); err != nil {
			return err
		}
	}

	for i := 0; i < len(comments); i += requestChunkSize {
		end := i + requestChunkSize
		if end > len(comments) {
			end = len(comments)
		}
		for _, c := range comments[i:end] {
			if err := writeCommentElem(enc, "comment", c); err != nil {
				return err
			}
		}
		if err := enc.Flush(); err != nil {
			return err
		}
	}

	if err := enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: "report"}}); err != nil {
		return err
	}
	if err := enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: "user_request"}}); err != nil {
		return err
	}
	return enc.Flush()
}

func toInt64(msg any) (int64, error) {
	switch v := msg.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported message type %T", msg)
	}
}
