package httpapi

import (
	"time"

	"github.com/rtyy/commentsd/internal/types"
)

// isoMillis renders t in ISO 8601 with millisecond precision and a
// trailing Z for UTC, per the JSON field sets note.
func isoMillis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// commentDTO is the base list/get response shape:
// {id, i_id, itype_id, author_id, content, created, updated}.
type commentDTO struct {
	ID       int64  `json:"id"`
	IID      int64  `json:"i_id"`
	ItypeID  int64  `json:"itype_id"`
	AuthorID int64  `json:"author_id"`
	Content  string `json:"content"`
	Created  string `json:"created"`
	Updated  string `json:"updated"`

	ParentID *int64 `json:"parent_id,omitempty"`
}

func toCommentDTO(c *types.Comment, withParent bool) commentDTO {
	d := commentDTO{
		ID:       c.ID,
		IID:      c.IID,
		ItypeID:  c.ItypeID,
		AuthorID: c.AuthorID,
		Content:  c.Content,
		Created:  isoMillis(c.Created),
		Updated:  isoMillis(c.Updated),
	}
	if withParent {
		d.ParentID = c.ParentID
	}
	return d
}

// userStreamDTO omits author_id per the user-stream field-set note.
type userStreamDTO struct {
	ID      int64  `json:"id"`
	IID     int64  `json:"i_id"`
	ItypeID int64  `json:"itype_id"`
	Content string `json:"content"`
	Created string `json:"created"`
	Updated string `json:"updated"`
}

func toUserStreamDTO(c *types.Comment) userStreamDTO {
	return userStreamDTO{
		ID:      c.ID,
		IID:     c.IID,
		ItypeID: c.ItypeID,
		Content: c.Content,
		Created: isoMillis(c.Created),
		Updated: isoMillis(c.Updated),
	}
}

func toCommentDTOs(cs []*types.Comment, withParent bool) []commentDTO {
	out := make([]commentDTO, 0, len(cs))
	for _, c := range cs {
		out = append(out, toCommentDTO(c, withParent))
	}
	return out
}

// branchDTO is the {root, comments} response shape for the branch route.
type branchDTO struct {
	Root     *commentDTO  `json:"root,omitempty"`
	Comments []commentDTO `json:"comments"`
}

// dlRequestDTO is the list item for a user's prior download requests.
type dlRequestDTO struct {
	ID       int64   `json:"id"`
	ItypeID  int64   `json:"itype_id"`
	IID      *int64  `json:"i_id,omitempty"`
	AuthorID *int64  `json:"author_id,omitempty"`
	Start    *string `json:"start,omitempty"`
	End      *string `json:"end,omitempty"`
	Fmt      string  `json:"fmt"`
	State    string  `json:"state"`
	Created  string  `json:"created"`
}

func toDlRequestDTO(r *types.DlRequest) dlRequestDTO {
	d := dlRequestDTO{
		ID:       r.ID,
		ItypeID:  r.ItypeID,
		IID:      r.IID,
		AuthorID: r.AuthorID,
		Fmt:      string(r.Fmt),
		State:    string(r.State),
		Created:  isoMillis(r.Created),
	}
	if r.Start != nil {
		s := isoMillis(*r.Start)
		d.Start = &s
	}
	if r.End != nil {
		e := isoMillis(*r.End)
		d.End = &e
	}
	return d
}
