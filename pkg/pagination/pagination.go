package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit/offset, or the pageSize/pageNumber pair used by
// cBioPortal clients, from the query string.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	if size, err := strconv.Atoi(c.QueryParam("pageSize")); err == nil && size > 0 {
		limit = size
		if n, err := strconv.Atoi(c.QueryParam("pageNumber")); err == nil && n > 0 {
			offset = n * clampLimit(size)
		}
	}

	return Params{Limit: limit, Offset: offset}.Normalize()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Normalize applies the default and maximum limit and clamps the offset at 0.
func (p Params) Normalize() Params {
	p.Limit = clampLimit(p.Limit)
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// PageNumber is the zero-based page the offset falls in.
func (p Params) PageNumber() int {
	if p.Limit <= 0 {
		return 0
	}
	return p.Offset / p.Limit
}

// Response wraps a paginated API response.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
	Next    string      `json:"next,omitempty"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}

// WithNext sets Next to basePath with the following page's limit/offset,
// keeping any other query parameters in q. It is a no-op on the last page.
func (r *Response) WithNext(basePath string, q url.Values) *Response {
	if !r.HasMore {
		return r
	}
	next := url.Values{}
	for k, v := range q {
		next[k] = v
	}
	next.Del("pageSize")
	next.Del("pageNumber")
	next.Set("limit", strconv.Itoa(r.Limit))
	next.Set("offset", strconv.Itoa(r.Offset+r.Limit))
	r.Next = basePath + "?" + next.Encode()
	return r
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}
