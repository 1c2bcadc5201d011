package report

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/rtyy/commentsd/internal/pubsub"
	"github.com/rtyy/commentsd/internal/store"
	"github.com/rtyy/commentsd/internal/types"
)

// fakeStore implements only what the builder's resolveAndFilter path needs
// for an IID == nil (whole-corpus) report: ListAllComments, GetDlRequest,
// SaveDlRequest. Every other method comes from the embedded nil
// store.Store, so calling one that isn't overridden panics loudly instead
// of silently returning zero values.
type fakeStore struct {
	store.Store
	req      *types.DlRequest
	comments []*types.Comment
	saved    *types.DlRequest
}

func (f *fakeStore) GetDlRequest(ctx context.Context, id int64) (*types.DlRequest, error) {
	if f.req == nil || f.req.ID != id {
		return nil, store.ErrNotFound
	}
	cp := *f.req
	return &cp, nil
}

func (f *fakeStore) SaveDlRequest(ctx context.Context, req *types.DlRequest) error {
	cp := *req
	f.saved = &cp
	return nil
}

func (f *fakeStore) ListAllComments(ctx context.Context) ([]*types.Comment, error) {
	return f.comments, nil
}

// closeBuffer adapts a bytes.Buffer to io.WriteCloser.
type closeBuffer struct{ bytes.Buffer }

func (c *closeBuffer) Close() error { return nil }

type fakeBlobStore struct {
	buf *closeBuffer
}

func (f *fakeBlobStore) Create(filename string) (io.WriteCloser, error) {
	return f.buf, nil
}

func TestBuildWritesXMLAndMarksValid(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	fs := &fakeStore{
		req: &types.DlRequest{ID: 1, ItypeID: 0, Fmt: types.FormatXML, State: types.DlStateInvalid, Filename: "out.xml", Created: now},
		comments: []*types.Comment{
			{ID: 1, AuthorID: 10, Content: "hello", Created: now, Updated: now},
			{ID: 2, AuthorID: 11, Content: "world", Created: now, Updated: now},
		},
	}
	buf := &closeBuffer{}
	blobs := &fakeBlobStore{buf: buf}

	reg := pubsub.NewRegistry(nil)
	b := NewBuilder(fs, blobs, reg, 2, nil)

	ok := b.build(ctx, 1)
	if !ok {
		t.Fatal("build returned false, want true")
	}
	if fs.saved == nil || fs.saved.State != types.DlStateValid {
		t.Errorf("saved request state = %+v, want VALID", fs.saved)
	}
	if buf.Len() == 0 {
		t.Error("nothing was written to the blob")
	}
	if !bytes.Contains(buf.Bytes(), []byte("hello")) || !bytes.Contains(buf.Bytes(), []byte("world")) {
		t.Errorf("output missing comment content: %s", buf.String())
	}
}

func TestBuildReturnsFalseWhenRequestMissing(t *testing.T) {
	ctx := context.Background()
	fs := &fakeStore{} // no req set, GetDlRequest always ErrNotFound
	blobs := &fakeBlobStore{buf: &closeBuffer{}}
	reg := pubsub.NewRegistry(nil)
	b := NewBuilder(fs, blobs, reg, 1, nil)

	if ok := b.build(ctx, 404); ok {
		t.Error("build should return false for a missing request")
	}
}

func TestBuildFiltersByAuthor(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	author := int64(11)
	fs := &fakeStore{
		req: &types.DlRequest{ID: 2, Fmt: types.FormatXML, AuthorID: &author, State: types.DlStateInvalid, Filename: "out2.xml", Created: now},
		comments: []*types.Comment{
			{ID: 1, AuthorID: 10, Content: "excluded", Created: now, Updated: now},
			{ID: 2, AuthorID: 11, Content: "included", Created: now, Updated: now},
		},
	}
	buf := &closeBuffer{}
	blobs := &fakeBlobStore{buf: buf}
	reg := pubsub.NewRegistry(nil)
	b := NewBuilder(fs, blobs, reg, 1, nil)

	if ok := b.build(ctx, 2); !ok {
		t.Fatal("build returned false")
	}
	if bytes.Contains(buf.Bytes(), []byte("excluded")) {
		t.Error("author filter let through a comment from a different author")
	}
	if !bytes.Contains(buf.Bytes(), []byte("included")) {
		t.Error("author filter excluded the matching comment")
	}
}

func TestHandlePublishesSuccessSignalAndClearsInProgress(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	fs := &fakeStore{
		req:      &types.DlRequest{ID: 5, Fmt: types.FormatXML, State: types.DlStateInvalid, Filename: "e.xml", Created: now},
		comments: nil,
	}
	reg := pubsub.NewRegistry(nil)
	b := NewBuilder(fs, &fakeBlobStore{buf: &closeBuffer{}}, reg, 1, nil)

	received := make(chan any, 1)
	con := pubsub.NewConsumer(reg, func(ctx context.Context, msg any) error {
		received <- msg
		return nil
	})
	con.Subscribe("xml-dl-request-5")
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go con.Run(runCtx)
	defer con.Stop()

	if err := b.handle(ctx, int64(5)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	select {
	case msg := <-received:
		if msg != 1 {
			t.Errorf("signal = %v, want 1 (success)", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for completion signal")
	}

	b.mu.Lock()
	_, stillActive := b.inProgress[5]
	b.mu.Unlock()
	if stillActive {
		t.Error("inProgress entry not cleared after handle returned")
	}
}
