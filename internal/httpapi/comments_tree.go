package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleListChildren implements
// GET /api/comments/list/{i_id}/{itype_id}/[{limit}/[{last_id}/]].
// itype_id == 0 means "direct children of comment i_id" (the overloaded
// reply convention); itype_id != 0 means "top-level comments of instance
// (itype_id, i_id)".
func (s *Server) handleListChildren(w http.ResponseWriter, r *http.Request) {
	iID, err := pathInt64(r, "i_id")
	if err != nil {
		writeError(w, validationError("invalid i_id", nil))
		return
	}
	itypeID, err := pathInt64(r, "itype_id")
	if err != nil {
		writeError(w, validationError("invalid itype_id", nil))
		return
	}
	limit := pathOptionalInt(r, "limit")
	lastID := pathOptionalInt64(r, "last_id")

	var out []commentDTO
	if itypeID != 0 {
		cs, err := s.Engine.ListChildrenOfInstance(r.Context(), itypeID, iID, lastID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		out = toCommentDTOs(cs, false)
	} else {
		cs, err := s.Engine.ListChildrenOfComment(r.Context(), iID, lastID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		out = toCommentDTOs(cs, false)
	}
	writeJSON(w, out)
}

// handleTree implements GET /api/comments/tree/{i_id}/[{itype_id}/]: the
// full subtree as a flat pre-order JSON array.
func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	iID, err := pathInt64(r, "i_id")
	if err != nil {
		writeError(w, validationError("invalid i_id", nil))
		return
	}
	itypeID := pathOptionalInt64Default(r, "itype_id", 0)

	root, descendants, err := s.Engine.Subtree(r.Context(), itypeID, iID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]commentDTO, 0, len(descendants)+1)
	if root != nil {
		out = append(out, toCommentDTO(root, true))
	}
	out = append(out, toCommentDTOs(descendants, true)...)
	writeJSON(w, out)
}

// handleBranch implements GET /api/comments/branch/{i_id}/[{itype_id}/]:
// {root, comments}.
func (s *Server) handleBranch(w http.ResponseWriter, r *http.Request) {
	iID, err := pathInt64(r, "i_id")
	if err != nil {
		writeError(w, validationError("invalid i_id", nil))
		return
	}
	itypeID := pathOptionalInt64Default(r, "itype_id", 0)

	root, descendants, err := s.Engine.Subtree(r.Context(), itypeID, iID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := branchDTO{Comments: toCommentDTOs(descendants, true)}
	if root != nil {
		d := toCommentDTO(root, true)
		resp.Root = &d
	}
	writeJSON(w, resp)
}

// streamHeaders sets the framing this service shares across both
// streaming endpoints: text/html content type (matching the original,
// which is not actually HTML — it is \r\n-delimited JSON objects), no
// caching, and an open CORS policy.
func streamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

// handleStreamTree implements GET /api/comments/stream/tree/{i_id}/[{itype_id}/]:
// the subtree streamed as \r\n-separated JSON objects, flushed every 3 rows.
func (s *Server) handleStreamTree(w http.ResponseWriter, r *http.Request) {
	iID, err := pathInt64(r, "i_id")
	if err != nil {
		writeError(w, validationError("invalid i_id", nil))
		return
	}
	itypeID := pathOptionalInt64Default(r, "itype_id", 0)

	root, descendants, err := s.Engine.Subtree(r.Context(), itypeID, iID)
	if err != nil {
		writeError(w, err)
		return
	}

	streamHeaders(w)
	flusher, _ := w.(http.Flusher)

	all := make([]commentDTO, 0, len(descendants)+1)
	if root != nil {
		all = append(all, toCommentDTO(root, true))
	}
	all = append(all, toCommentDTOs(descendants, true)...)

	streamDTOs(w, flusher, len(all), func(i int) (any, error) { return all[i], nil })
}

// handleStreamUser implements GET /api/comments/stream/user/{user_id}/:
// all of the user's comments ordered by created, in the user-stream field
// set (no author_id), with the same chunked framing.
func (s *Server) handleStreamUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "user_id")
	if err != nil {
		writeError(w, validationError("invalid user_id", nil))
		return
	}

	comments, err := s.Store.ListCommentsByAuthor(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	streamHeaders(w)
	flusher, _ := w.(http.Flusher)
	streamDTOs(w, flusher, len(comments), func(i int) (any, error) { return toUserStreamDTO(comments[i]), nil })
}

const streamChunkSize = 3

// streamDTOs writes n items (produced lazily by get) as \r\n-delimited
// JSON objects, flushing every streamChunkSize rows — matching the
// fetchmany(3)-then-drain pacing of the original stream handlers.
func streamDTOs(w http.ResponseWriter, flusher http.Flusher, n int, get func(i int) (any, error)) {
	for i := 0; i < n; i++ {
		v, err := get(i)
		if err != nil {
			return
		}
		b, err := json.Marshal(v)
		if err != nil {
			return
		}
		if _, err := w.Write(b); err != nil {
			return
		}
		if _, err := fmt.Fprint(w, "\r\n"); err != nil {
			return
		}
		if (i+1)%streamChunkSize == 0 && flusher != nil {
			flusher.Flush()
		}
	}
	if flusher != nil {
		flusher.Flush()
	}
}
