package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
)

func pathInt64(r *http.Request, name string) (int64, error) {
	v := r.PathValue(name)
	if v == "" {
		return 0, fmt.Errorf("missing path value %q", name)
	}
	return strconv.ParseInt(v, 10, 64)
}

func pathOptionalInt64Default(r *http.Request, name string, def int64) int64 {
	v := r.PathValue(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func pathOptionalInt64(r *http.Request, name string) *int64 {
	v := r.PathValue(name)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func pathOptionalInt(r *http.Request, name string) int {
	v := r.PathValue(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
