// Package paging normalizes page/limit query parameters and carries list metadata.
package paging

const MaxLimit = 100

// Request is a 1-based page request.
type Request struct {
	Page  int
	Limit int
}

// Normalize clamps page to >= 1 and limit to 1..MaxLimit, using def when limit is unset.
func (r Request) Normalize(def int) Request {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Limit <= 0 {
		r.Limit = def
	}
	if r.Limit > MaxLimit {
		r.Limit = MaxLimit
	}
	return r
}

// Offset is the number of rows to skip.
func (r Request) Offset() int {
	if r.Page < 1 {
		return 0
	}
	return (r.Page - 1) * r.Limit
}

// Info is the pagination block returned alongside list results.
type Info struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func NewInfo(r Request, total int) Info {
	pages := 0
	if r.Limit > 0 {
		pages = (total + r.Limit - 1) / r.Limit
	}
	return Info{Page: r.Page, Limit: r.Limit, Total: total, TotalPages: pages}
}

// Slice applies the request to an in-memory result set.
func Slice[T any](items []T, r Request) []T {
	off := r.Offset()
	if off >= len(items) {
		return []T{}
	}
	end := off + r.Limit
	if r.Limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[off:end]
}
