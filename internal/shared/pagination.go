package shared

import (
	"math"
	"net/url"
	"strconv"
)

const (
	defaultPerPage = 20
	maxPerPage     = 200
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	req := PageRequest{Page: page, PerPage: perPage}.Normalize()
	totalPages := int(math.Ceil(float64(total) / float64(req.PerPage)))
	return Pagination{Page: req.Page, PerPage: req.PerPage, Total: total, TotalPages: totalPages}
}

// PageRequest is the caller side of a paginated query.
type PageRequest struct {
	Page    int
	PerPage int
}

// Normalize clamps the request to sane bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.PerPage <= 0 {
		p.PerPage = defaultPerPage
	}
	if p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	return p
}

// Offset returns the row offset of the page.
func (p PageRequest) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PerPage
}

// Limit returns the row limit of the page.
func (p PageRequest) Limit() int {
	return p.Normalize().PerPage
}

// PageRequestFromQuery reads page and per_page query parameters.
func PageRequestFromQuery(q url.Values) PageRequest {
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return PageRequest{Page: page, PerPage: perPage}.Normalize()
}
