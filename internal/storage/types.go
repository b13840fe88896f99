package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateName indicates a uniqueness violation on (workspaceId, name).
	ErrDuplicateName = errors.New("duplicate name in workspace")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// PageResult is a paginated result set. Pages are zero-indexed: page 0 is the
// first page. The metadata is computed from the full filtered+sorted set so
// that identical inputs always yield identical slices and metadata.
type PageResult[T any] struct {
	Items           []T  `json:"items"`
	Page            int  `json:"page"`
	PageSize        int  `json:"pageSize"`
	TotalItems      int  `json:"totalItems"`
	TotalPages      int  `json:"totalPages"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// ListOptions provides pagination and filtering for list operations.
type ListOptions struct {
	// Page is the zero-indexed page number to retrieve (default: 0).
	Page int

	// PageSize is the number of items per page (default: 10, max: 100).
	PageSize int

	// SortBy specifies the sort column. Validated against a whitelist in
	// Normalize to keep ORDER BY construction injection-safe.
	SortBy string

	// SortOrder is "asc" or "desc" (default: "desc").
	SortOrder string

	// WorkspaceID scopes results to one workspace. Empty means no filter.
	WorkspaceID string

	// SessionID scopes results to one session. Empty means no filter.
	SessionID string

	// ActiveOnly restricts sessions to those still active.
	ActiveOnly bool

	// TraceType filters memory traces by type. Empty means no filter.
	TraceType string

	// CreatedAfter filters to records created strictly after this time.
	// Zero value means no lower bound.
	CreatedAfter time.Time
}

// Normalize applies defaults and validates the ListOptions.
func (o *ListOptions) Normalize() {
	allowedSortFields := map[string]bool{
		"created":       true,
		"start_time":    true,
		"last_accessed": true,
		"timestamp":     true,
		"name":          true,
		"id":            true,
	}

	if !allowedSortFields[o.SortBy] {
		o.SortBy = "created"
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}

	if o.Page < 0 {
		o.Page = 0
	}

	if o.PageSize < 1 {
		o.PageSize = 10
	}

	if o.PageSize > 100 {
		o.PageSize = 100
	}
}

// Per-entity sortable columns. Normalize whitelists the field names globally;
// these narrow a normalized SortBy to columns that exist on one table, so a
// field meant for another entity never reaches its ORDER BY. The generic
// "created" default maps onto each entity's natural recency column.
var (
	WorkspaceSortColumns = map[string]string{"created": "last_accessed", "last_accessed": "last_accessed", "name": "name", "id": "id"}
	SessionSortColumns   = map[string]string{"created": "start_time", "start_time": "start_time", "name": "name", "id": "id"}
	StateSortColumns     = map[string]string{"created": "created", "name": "name", "id": "id"}
	TraceSortColumns     = map[string]string{"created": "timestamp", "timestamp": "timestamp", "id": "id"}
)

// SortColumn resolves the normalized SortBy onto one of the entity's columns,
// falling back to def when the requested field does not exist on the entity.
func (o *ListOptions) SortColumn(columns map[string]string, def string) string {
	if col, ok := columns[o.SortBy]; ok {
		return col
	}
	return def
}

// Offset calculates the row offset for SQL queries from page and page size.
func (o *ListOptions) Offset() int {
	return o.Page * o.PageSize
}

// NewPageResult assembles pagination metadata for a page slice taken out of a
// set of total items.
func NewPageResult[T any](items []T, total int, opts ListOptions) *PageResult[T] {
	totalPages := 0
	if opts.PageSize > 0 {
		totalPages = (total + opts.PageSize - 1) / opts.PageSize
	}
	return &PageResult[T]{
		Items:           items,
		Page:            opts.Page,
		PageSize:        opts.PageSize,
		TotalItems:      total,
		TotalPages:      totalPages,
		HasNextPage:     opts.Page+1 < totalPages,
		HasPreviousPage: opts.Page > 0 && total > 0,
	}
}

// PaginateSlice applies the pagination contract in-memory over a fully
// filtered and sorted set. Backends without native paging for a query shape
// delegate here so the response contract is identical either way.
func PaginateSlice[T any](all []T, opts ListOptions) *PageResult[T] {
	opts.Normalize()

	start := opts.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + opts.PageSize
	if end > len(all) {
		end = len(all)
	}

	// Copy the window so callers cannot mutate the backing array.
	items := make([]T, end-start)
	copy(items, all[start:end])

	return NewPageResult(items, len(all), opts)
}
