package store

import "errors"

// Sentinel errors returned by Store implementations. Handlers in
// internal/httpapi map these to HTTP status codes per the error handling
// design: ErrNotFound -> 404, ErrConflict -> 400, ErrInvalidID -> 400.
var (
	ErrNotFound  = errors.New("store: not found")
	ErrInvalidID = errors.New("store: invalid id")
	ErrConflict  = errors.New("store: conflict")
)
