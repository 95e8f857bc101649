package shared

import (
	"net/url"
	"strconv"
)

// PageRequest is the page/per_page pair read from a query string.
type PageRequest struct {
	Page    int
	PerPage int
}

// ParsePageRequest reads page and per_page, clamping per_page to 200.
func ParsePageRequest(q url.Values) PageRequest {
	req := PageRequest{Page: 1, PerPage: 50}
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		req.Page = v
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil && v > 0 {
		req.PerPage = min(v, 200)
	}
	return req
}

// Offset returns the row offset for the page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PerPage
}
