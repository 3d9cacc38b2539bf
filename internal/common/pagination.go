package common

import "net/http"

// Pagination holds offset pagination metadata for list responses.
type Pagination struct {
	Skip  int   `json:"skip"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// ParseSkipLimit reads skip and limit query parameters, clamping limit to max.
func ParseSkipLimit(r *http.Request, defaultLimit, maxLimit int) (skip, limit int) {
	q := r.URL.Query()
	skip = AtoiDefault(q.Get("skip"), 0)
	if skip < 0 {
		skip = 0
	}
	limit = AtoiDefault(q.Get("limit"), defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return skip, limit
}
