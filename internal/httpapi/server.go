// Package httpapi is the stdlib net/http.ServeMux-based HTTP surface over
// the tree engine, store, and download orchestrator — every route in the
// external interfaces table, each mapped straight onto the handlers in
// this package. Grounded on cmd/bd/ui.go's plain mux.HandleFunc server,
// not a third-party router: the teacher's own web UI uses the stdlib mux,
// so this API follows suit.
package httpapi

import (
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/rtyy/commentsd/internal/download"
	"github.com/rtyy/commentsd/internal/store"
	"github.com/rtyy/commentsd/internal/treeindex"
)

// Server holds the dependencies every handler needs.
type Server struct {
	Store      store.Store
	Engine     *treeindex.Engine
	Downloader *download.Orchestrator

	requestCounter metric.Int64Counter
	logger         *log.Logger
}

// NewServer wires a Server's dependencies. meter may be nil in tests; a
// nil meter disables the request counter rather than panicking.
func NewServer(s store.Store, engine *treeindex.Engine, downloader *download.Orchestrator, meter metric.Meter) *Server {
	srv := &Server{
		Store:      s,
		Engine:     engine,
		Downloader: downloader,
		logger:     log.New(log.Writer(), "httpapi: ", log.LstdFlags),
	}
	if meter != nil {
		counter, err := meter.Int64Counter("httpapi.requests.total")
		if err == nil {
			srv.requestCounter = counter
		}
	}
	return srv
}

// Mux builds the route table from the external interfaces section.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("PUT /api/comment/", s.instrument(s.handleCreateComment))
	mux.HandleFunc("GET /api/comment/{id}/", s.instrument(s.handleGetComment))
	mux.HandleFunc("POST /api/comment/{id}/", s.instrument(s.handleUpdateComment))
	mux.HandleFunc("DELETE /api/comment/{id}/", s.instrument(s.handleDeleteComment))

	mux.HandleFunc("GET /api/comments/list/{i_id}/{itype_id}/", s.instrument(s.handleListChildren))
	mux.HandleFunc("GET /api/comments/list/{i_id}/{itype_id}/{limit}/", s.instrument(s.handleListChildren))
	mux.HandleFunc("GET /api/comments/list/{i_id}/{itype_id}/{limit}/{last_id}/", s.instrument(s.handleListChildren))

	mux.HandleFunc("GET /api/comments/tree/{i_id}/", s.instrument(s.handleTree))
	mux.HandleFunc("GET /api/comments/tree/{i_id}/{itype_id}/", s.instrument(s.handleTree))

	mux.HandleFunc("GET /api/comments/branch/{i_id}/", s.instrument(s.handleBranch))
	mux.HandleFunc("GET /api/comments/branch/{i_id}/{itype_id}/", s.instrument(s.handleBranch))

	mux.HandleFunc("GET /api/comments/stream/tree/{i_id}/", s.instrument(s.handleStreamTree))
	mux.HandleFunc("GET /api/comments/stream/tree/{i_id}/{itype_id}/", s.instrument(s.handleStreamTree))
	mux.HandleFunc("GET /api/comments/stream/user/{user_id}/", s.instrument(s.handleStreamUser))

	mux.HandleFunc("GET /api/comments/download/", s.instrument(s.handleDownload))
	mux.HandleFunc("GET /api/comments/download/{format}/", s.instrument(s.handleDownload))
	mux.HandleFunc("GET /api/comments/download/requests/{user_id}/", s.instrument(s.handleListUserDlRequests))

	return mux
}

// instrument wraps h with the request counter and a recover-to-500
// guard, matching the propagation policy: any uncaught panic becomes an
// Unexpected (500), logged, rather than crashing the process.
func (s *Server) instrument(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.requestCounter != nil {
			s.requestCounter.Add(r.Context(), 1)
		}
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Printf("panic handling %s %s: %v", r.Method, r.URL.Path, rec)
				writeJSONStatus(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
			}
		}()
		h(w, r)
	}
}

// NewHTTPServer builds an *http.Server with the conservative timeouts the
// teacher's own embedded UI server uses.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // streaming/download responses can run long; no write deadline
		IdleTimeout:  60 * time.Second,
	}
}
