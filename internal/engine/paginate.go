package engine

import (
	"math"
	"strconv"
	"strings"
)

// Window is the result of Paginate: the rows to fetch plus the values to report back.
type Window struct {
	Skip       int
	Limit      int // 0 means no limit
	TotalPages int
	Page       int // 0 means "all"
	PageLimit  int // 0 means "all"
}

// Paginate computes the window for a listing of total records. Paging applies only when
// page and limit are both present and positive; otherwise the whole set is one page.
// A page whose offset does not fit in an int starts past the last record.
func Paginate(total int, page, limit *int) Window {
	if page == nil || limit == nil || *page <= 0 || *limit <= 0 {
		return Window{TotalPages: 1}
	}
	p, l := *page, *limit
	totalPages := total / l
	if total%l != 0 {
		totalPages++
	}
	skip := total
	if p-1 <= (math.MaxInt-total)/l {
		skip = (p - 1) * l
	}
	return Window{
		Skip:       skip,
		Limit:      l,
		TotalPages: totalPages,
		Page:       p,
		PageLimit:  l,
	}
}

// ParseQuery parses an optional page or limit query value. Absent, non-numeric and
// non-positive values all count as not supplied.
func ParseQuery(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}
