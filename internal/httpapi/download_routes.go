package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rtyy/commentsd/internal/download"
	"github.com/rtyy/commentsd/internal/types"
)

// handleDownload implements
// GET /api/comments/download/[{format}/]?i_id=&itype_id=&author_id=&start=&end=&user_id=.
// start/end are unix milliseconds. A cache-hit response has Content-Length
// set; a live-build response is chunked without it — that distinction is
// the observable contract described in the external interfaces section.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	userID, err := strconv.ParseInt(q.Get("user_id"), 10, 64)
	if err != nil {
		writeError(w, validationError("user_id is required", nil))
		return
	}

	req := download.Request{UserID: userID, Fmt: types.FormatXML}
	if v := r.PathValue("format"); v != "" {
		req.Fmt = types.DlFormat(v)
	}
	if v := q.Get("itype_id"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.ItypeID = n
		}
	}
	if v := q.Get("i_id"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.IID = &n
		}
	}
	if v := q.Get("author_id"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.AuthorID = &n
		}
	}
	if v := q.Get("start"); v != "" {
		if t, ok := parseUnixMillis(v); ok {
			req.Start = &t
		}
	}
	if v := q.Get("end"); v != "" {
		if t, ok := parseUnixMillis(v); ok {
			req.End = &t
		}
	}

	result, err := s.Downloader.Download(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := result.Open()
	if err != nil {
		writeError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/"+string(req.Fmt))
	if result.ContentLength != nil {
		w.Header().Set("Content-Length", strconv.FormatInt(*result.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

// handleListUserDlRequests implements
// GET /api/comments/download/requests/{user_id}/.
func (s *Server) handleListUserDlRequests(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "user_id")
	if err != nil {
		writeError(w, validationError("invalid user_id", nil))
		return
	}
	reqs, err := s.Store.ListUserDlRequests(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]dlRequestDTO, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toDlRequestDTO(req))
	}
	writeJSON(w, out)
}

func parseUnixMillis(v string) (time.Time, bool) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}
