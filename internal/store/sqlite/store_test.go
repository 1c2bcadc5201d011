package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rtyy/commentsd/internal/store"
	"github.com/rtyy/commentsd/internal/treeindex"
	"github.com/rtyy/commentsd/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestGetOrCreateInstanceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first, err := s.GetOrCreateInstance(ctx, 1, 100)
	if err != nil {
		t.Fatalf("get-or-create: %v", err)
	}
	second, err := s.GetOrCreateInstance(ctx, 1, 100)
	if err != nil {
		t.Fatalf("get-or-create second: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("got two different instances for the same key: %d != %d", first.ID, second.ID)
	}
}

func TestGetInstanceNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetInstance(context.Background(), 9, 9)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveInstancePersistsCursor(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	inst, _ := s.GetOrCreateInstance(ctx, 1, 1)
	inst.LftInsNum, inst.LftInsDen = 3, 4
	inst.ChildrenCnt = 2
	if err := s.SaveInstance(ctx, inst); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetInstance(ctx, 1, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LftInsNum != 3 || got.LftInsDen != 4 || got.ChildrenCnt != 2 {
		t.Errorf("got %+v, want LftIns 3/4 ChildrenCnt 2", got)
	}
}

func insertTestComment(t *testing.T, s *Store, itypeID, iID, authorID int64, lftNum, lftDen, rhtNum, rhtDen int64, parentID *int64, treeID, scale int64) *types.Comment {
	t.Helper()
	now := time.Now().UTC()
	c := &types.Comment{
		ItypeID: itypeID, IID: iID, AuthorID: authorID, Content: "body",
		Created: now, Updated: now, TreeID: treeID, ParentID: parentID, Scale: scale,
		LftNum: lftNum, LftDen: lftDen, RhtNum: rhtNum, RhtDen: rhtDen,
		LftInsNum: lftNum, LftInsDen: lftDen,
	}
	if err := s.InsertComment(context.Background(), c); err != nil {
		t.Fatalf("insert comment: %v", err)
	}
	return c
}

func TestInsertAndGetComment(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	c := insertTestComment(t, s, 1, 1, 42, 0, 1, 1, 1, nil, 1, 0)

	got, err := s.GetComment(ctx, c.ID)
	if err != nil {
		t.Fatalf("get comment: %v", err)
	}
	if got.AuthorID != 42 || got.Content != "body" {
		t.Errorf("got %+v", got)
	}
}

func TestUpdateCommentContentNotFound(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateCommentContent(context.Background(), 999, "x", time.Now())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteCommentsInRange(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	root := insertTestComment(t, s, 1, 1, 1, 0, 1, 1, 1, nil, 1, 0)
	child1 := insertTestComment(t, s, 0, root.ID, 2, 0, 1, 1, 2, &root.ID, root.TreeID, 1)
	_ = insertTestComment(t, s, 0, child1.ID, 3, 0, 1, 1, 4, &child1.ID, root.TreeID, 2)
	sibling := insertTestComment(t, s, 0, root.ID, 4, 1, 2, 1, 1, &root.ID, root.TreeID, 1)

	removed, err := s.DeleteCommentsInRange(ctx, root.TreeID, child1.LftNum, child1.LftDen, child1.RhtNum, child1.RhtDen, child1.Scale)
	if err != nil {
		t.Fatalf("delete range: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2 (child1 + its grandchild)", removed)
	}

	if _, err := s.GetComment(ctx, child1.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("child1 should have been deleted")
	}
	if _, err := s.GetComment(ctx, sibling.ID); err != nil {
		t.Errorf("sibling should survive the delete, got %v", err)
	}
}

func TestListDirectChildrenOrderingAndPagination(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	root, _ := s.GetOrCreateInstance(ctx, 1, 1)

	var children []*types.Comment
	for i := int64(1); i <= 4; i++ {
		c := insertTestComment(t, s, 0, 0, i, i-1, i, i, i+1, nil, root.TreeID(), 0)
		children = append(children, c)
	}

	all, err := s.ListDirectChildrenOfInstance(ctx, root.TreeID(), nil, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("len = %d, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if !treeindex.LessEq(all[i-1].LftNum, all[i-1].LftDen, all[i].LftNum, all[i].LftDen) {
			t.Errorf("row %d not in ascending left-key order", i)
		}
	}

	limited, err := s.ListDirectChildrenOfInstance(ctx, root.TreeID(), &children[1].ID, 10)
	if err != nil {
		t.Fatalf("paginated list: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("paginated len = %d, want 2 (rows after children[1])", len(limited))
	}
}

func TestListCommentsByAuthor(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	insertTestComment(t, s, 1, 1, 7, 0, 1, 1, 2, nil, 1, 0)
	insertTestComment(t, s, 1, 1, 8, 1, 2, 1, 1, nil, 1, 0)

	got, err := s.ListCommentsByAuthor(ctx, 7)
	if err != nil {
		t.Fatalf("list by author: %v", err)
	}
	if len(got) != 1 || got[0].AuthorID != 7 {
		t.Errorf("got %+v, want one comment by author 7", got)
	}
}

func TestEventLogAppendAndHasEventSince(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	before := time.Now().UTC()
	time.Sleep(5 * time.Millisecond)

	treeID := int64(5)
	e := &types.EventLog{UserID: 1, TreeID: treeID, AuthorID: 2, CommentID: 3, CommentCDate: time.Now().UTC(), EType: types.EventCreated}
	if err := s.AppendEvent(ctx, e); err != nil {
		t.Fatalf("append event: %v", err)
	}

	has, err := s.HasEventSince(ctx, before, &treeID, nil, nil, nil)
	if err != nil {
		t.Fatalf("has event since: %v", err)
	}
	if !has {
		t.Error("expected an event since `before`")
	}

	after := time.Now().UTC()
	has, err = s.HasEventSince(ctx, after, &treeID, nil, nil, nil)
	if err != nil {
		t.Fatalf("has event since (after): %v", err)
	}
	if has {
		t.Error("expected no event since `after`")
	}

	otherTree := int64(999)
	has, err = s.HasEventSince(ctx, before, &otherTree, nil, nil, nil)
	if err != nil {
		t.Fatalf("has event since (other tree): %v", err)
	}
	if has {
		t.Error("event should be scoped to its own tree_id")
	}
}

func TestDlRequestCacheKeyDistinguishesNilFromZero(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	one := int64(1)
	withoutAuthor := &types.DlRequest{ItypeID: 1, IID: &one, AuthorID: nil, Fmt: types.FormatXML, State: types.DlStateInvalid, Filename: "a.xml", Created: time.Now().UTC()}
	if err := s.CreateDlRequest(ctx, withoutAuthor); err != nil {
		t.Fatalf("create (no author): %v", err)
	}

	zero := int64(0)
	withZeroAuthor := &types.DlRequest{ItypeID: 1, IID: &one, AuthorID: &zero, Fmt: types.FormatXML, State: types.DlStateInvalid, Filename: "b.xml", Created: time.Now().UTC()}
	if err := s.CreateDlRequest(ctx, withZeroAuthor); err != nil {
		t.Fatalf("create (author=0): %v", err)
	}

	if withoutAuthor.ID == withZeroAuthor.ID {
		t.Fatal("expected two distinct cache rows for author=nil vs author=0")
	}

	found, err := s.FindDlRequest(ctx, 1, &one, nil, nil, nil, types.FormatXML)
	if err != nil {
		t.Fatalf("find (nil author): %v", err)
	}
	if found.ID != withoutAuthor.ID {
		t.Errorf("find(nil) returned id %d, want %d", found.ID, withoutAuthor.ID)
	}

	found, err = s.FindDlRequest(ctx, 1, &one, &zero, nil, nil, types.FormatXML)
	if err != nil {
		t.Fatalf("find (author=0): %v", err)
	}
	if found.ID != withZeroAuthor.ID {
		t.Errorf("find(0) returned id %d, want %d", found.ID, withZeroAuthor.ID)
	}
}

func TestDlRequestCacheKeyDistinguishesNilIIDFromZero(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	noIID := &types.DlRequest{ItypeID: 5, IID: nil, AuthorID: nil, Fmt: types.FormatXML, State: types.DlStateInvalid, Filename: "e.xml", Created: time.Now().UTC()}
	if err := s.CreateDlRequest(ctx, noIID); err != nil {
		t.Fatalf("create (no i_id): %v", err)
	}

	zeroIID := int64(0)
	withZeroIID := &types.DlRequest{ItypeID: 5, IID: &zeroIID, AuthorID: nil, Fmt: types.FormatXML, State: types.DlStateInvalid, Filename: "f.xml", Created: time.Now().UTC()}
	if err := s.CreateDlRequest(ctx, withZeroIID); err != nil {
		t.Fatalf("create (i_id=0): %v", err)
	}

	if noIID.ID == withZeroIID.ID {
		t.Fatal("expected two distinct cache rows for i_id=nil (author-scoped) vs i_id=0 (instance-scoped)")
	}

	found, err := s.FindDlRequest(ctx, 5, nil, nil, nil, nil, types.FormatXML)
	if err != nil {
		t.Fatalf("find (nil i_id): %v", err)
	}
	if found.ID != noIID.ID {
		t.Errorf("find(nil i_id) returned id %d, want %d", found.ID, noIID.ID)
	}

	found, err = s.FindDlRequest(ctx, 5, &zeroIID, nil, nil, nil, types.FormatXML)
	if err != nil {
		t.Fatalf("find (i_id=0): %v", err)
	}
	if found.ID != withZeroIID.ID {
		t.Errorf("find(i_id=0) returned id %d, want %d", found.ID, withZeroIID.ID)
	}
}

func TestSaveDlRequestUpdatesState(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	two := int64(2)
	req := &types.DlRequest{ItypeID: 2, IID: &two, Fmt: types.FormatXML, State: types.DlStateInvalid, Filename: "c.xml", Created: time.Now().UTC()}
	if err := s.CreateDlRequest(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}
	req.State = types.DlStateValid
	if err := s.SaveDlRequest(ctx, req); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetDlRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != types.DlStateValid {
		t.Errorf("state = %q, want VALID", got.State)
	}
}

func TestUserDlRequestLinkAndList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	three := int64(3)
	req := &types.DlRequest{ItypeID: 3, IID: &three, Fmt: types.FormatXML, State: types.DlStateValid, Filename: "d.xml", Created: time.Now().UTC()}
	if err := s.CreateDlRequest(ctx, req); err != nil {
		t.Fatalf("create dl request: %v", err)
	}

	if err := s.GetOrCreateUserDlRequest(ctx, 77, req.ID); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := s.GetOrCreateUserDlRequest(ctx, 77, req.ID); err != nil {
		t.Fatalf("re-link should be a no-op, got: %v", err)
	}

	got, err := s.ListUserDlRequests(ctx, 77)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != req.ID {
		t.Errorf("got %+v, want exactly one link to %d", got, req.ID)
	}
}
