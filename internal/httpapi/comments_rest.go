package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rtyy/commentsd/internal/treeindex"
	"github.com/rtyy/commentsd/internal/types"
)

type createCommentBody struct {
	UserID  int64  `json:"user_id"`
	ItypeID int64  `json:"itype_id"`
	IID     int64  `json:"i_id"`
	Content string `json:"content"`
}

// handleCreateComment implements PUT /api/comment/.
func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var body createCommentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, validationError("invalid JSON body", nil))
		return
	}
	if body.Content == "" {
		writeError(w, validationError("content is required", map[string]string{"content": "required"}))
		return
	}

	c, err := s.Engine.Insert(r.Context(), treeindex.InsertInput{
		ItypeID:  body.ItypeID,
		IID:      body.IID,
		AuthorID: body.UserID,
		Content:  body.Content,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.Store.AppendEvent(r.Context(), &types.EventLog{
		UserID:       body.UserID,
		TreeID:       c.TreeID,
		AuthorID:     c.AuthorID,
		CommentID:    c.ID,
		CommentCDate: c.Created,
		EType:        types.EventCreated,
	}); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, toCommentDTO(c, false))
}

// handleGetComment implements GET /api/comment/{id}/.
func (s *Server) handleGetComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, validationError("invalid id", nil))
		return
	}
	c, err := s.Store.GetComment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, toCommentDTO(c, false))
}

type updateCommentBody struct {
	UserID  int64  `json:"user_id"`
	Content string `json:"content"`
}

// handleUpdateComment implements POST /api/comment/{id}/.
func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, validationError("invalid id", nil))
		return
	}
	var body updateCommentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, validationError("invalid JSON body", nil))
		return
	}

	c, err := s.Store.GetComment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if body.UserID != c.AuthorID {
		writeError(w, permissionError("author mismatch"))
		return
	}

	if body.Content != c.Content {
		if err := s.Engine.UpdateContent(r.Context(), id, body.Content); err != nil {
			writeError(w, err)
			return
		}
		if err := s.Store.AppendEvent(r.Context(), &types.EventLog{
			UserID:       body.UserID,
			TreeID:       c.TreeID,
			AuthorID:     c.AuthorID,
			CommentID:    c.ID,
			CommentCDate: c.Created,
			EType:        types.EventChanged,
		}); err != nil {
			writeError(w, err)
			return
		}
		c.Content = body.Content
		c.Updated = time.Now().UTC()
	}

	writeJSON(w, toCommentDTO(c, false))
}

type deleteCommentBody struct {
	UserID int64 `json:"user_id"`
}

// handleDeleteComment implements DELETE /api/comment/{id}/. Deletion is
// permitted only when children_cnt == 0; branches with children return
// 400 Conflict even though the tree engine itself can delete a whole
// branch (that capability exists for other authorized call paths).
func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeError(w, validationError("invalid id", nil))
		return
	}

	var body deleteCommentBody
	_ = json.NewDecoder(r.Body).Decode(&body)

	c, err := s.Store.GetComment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if body.UserID != c.AuthorID {
		writeError(w, permissionError("author mismatch"))
		return
	}
	if c.ChildrenCnt > 0 {
		writeError(w, conflictError("comment has children"))
		return
	}

	if _, err := s.Engine.Delete(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Store.AppendEvent(r.Context(), &types.EventLog{
		UserID:       body.UserID,
		TreeID:       c.TreeID,
		AuthorID:     c.AuthorID,
		CommentID:    c.ID,
		CommentCDate: c.Created,
		EType:        types.EventDeleted,
	}); err != nil {
		writeError(w, err)
		return
	}

	writeJSONStatus(w, http.StatusOK, map[string]bool{"ok": true})
}
