package handler

import (
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

type PaginationParams struct {
	Limit  int
	Offset int
}

// ParsePagination reads ?limit and ?offset. A missing or non-positive limit
// falls back to DefaultLimit and an oversized one is capped at MaxLimit.
func ParsePagination(r *http.Request) PaginationParams {
	p := PaginationParams{
		Limit:  queryInt(r, "limit"),
		Offset: max(queryInt(r, "offset"), 0),
	}
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultLimit
	case p.Limit > MaxLimit:
		p.Limit = MaxLimit
	}
	return p
}

// queryInt returns 0 for a missing or malformed value.
func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}

// window returns the slice of items selected by p.
func window[T any](items []T, p PaginationParams) []T {
	if p.Offset >= len(items) {
		return []T{}
	}
	end := min(p.Offset+p.Limit, len(items))
	return items[p.Offset:end]
}
