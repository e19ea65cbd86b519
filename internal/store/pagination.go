package store

import "math"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PaginationParams contains parameters for paginated queries
type PaginationParams struct {
	Page     int    // 1-indexed
	PageSize int
	Search   string // matched against email and name
}

// PaginationResult contains pagination metadata
type PaginationResult struct {
	Total       int64 `json:"total"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"page"`
	PageSize    int   `json:"page_size"`
	HasNext     bool  `json:"has_next"`
}

// NewPaginationParams clamps page and pageSize into their valid ranges.
func NewPaginationParams(page, pageSize int, search string) PaginationParams {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return PaginationParams{Page: page, PageSize: pageSize, Search: search}
}

func (p PaginationParams) offset() int {
	return (p.Page - 1) * p.PageSize
}

// CalculatePagination calculates pagination metadata
func CalculatePagination(total int64, currentPage, pageSize int) PaginationResult {
	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))
	if currentPage < 1 {
		currentPage = 1
	}
	return PaginationResult{
		Total:       total,
		TotalPages:  totalPages,
		CurrentPage: currentPage,
		PageSize:    pageSize,
		HasNext:     currentPage < totalPages,
	}
}
