package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListOptions_NormalizeDefaults(t *testing.T) {
	opts := ListOptions{}
	opts.Normalize()

	assert.Equal(t, "created", opts.SortBy)
	assert.Equal(t, "desc", opts.SortOrder)
	assert.Equal(t, 0, opts.Page)
	assert.Equal(t, 10, opts.PageSize)
}

func TestListOptions_NormalizeRejectsUnknownSortColumn(t *testing.T) {
	opts := ListOptions{SortBy: "name; DROP TABLE states"}
	opts.Normalize()
	assert.Equal(t, "created", opts.SortBy)
}

func TestListOptions_SortColumnClampsToEntityColumns(t *testing.T) {
	// A field that exists on sessions must not leak into the states query.
	opts := ListOptions{SortBy: "start_time"}
	opts.Normalize()
	assert.Equal(t, "created", opts.SortColumn(StateSortColumns, "created"))
	assert.Equal(t, "start_time", opts.SortColumn(SessionSortColumns, "start_time"))

	opts = ListOptions{SortBy: "timestamp"}
	opts.Normalize()
	assert.Equal(t, "timestamp", opts.SortColumn(TraceSortColumns, "timestamp"))
	assert.Equal(t, "last_accessed", opts.SortColumn(WorkspaceSortColumns, "last_accessed"))
}

func TestListOptions_SortColumnMapsGenericDefault(t *testing.T) {
	opts := ListOptions{}
	opts.Normalize()

	assert.Equal(t, "last_accessed", opts.SortColumn(WorkspaceSortColumns, "last_accessed"))
	assert.Equal(t, "start_time", opts.SortColumn(SessionSortColumns, "start_time"))
	assert.Equal(t, "created", opts.SortColumn(StateSortColumns, "created"))
	assert.Equal(t, "timestamp", opts.SortColumn(TraceSortColumns, "timestamp"))
}

func TestListOptions_NormalizeClampsPageSize(t *testing.T) {
	opts := ListOptions{PageSize: 5000}
	opts.Normalize()
	assert.Equal(t, 100, opts.PageSize)

	opts = ListOptions{PageSize: -3, Page: -1}
	opts.Normalize()
	assert.Equal(t, 10, opts.PageSize)
	assert.Equal(t, 0, opts.Page)
}

func TestListOptions_OffsetIsZeroIndexed(t *testing.T) {
	opts := ListOptions{Page: 0, PageSize: 10}
	assert.Equal(t, 0, opts.Offset())

	opts.Page = 3
	assert.Equal(t, 30, opts.Offset())
}

func TestPaginateSlice_PageSizeOneOverThreeItems(t *testing.T) {
	all := []string{"a", "b", "c"}

	page0 := PaginateSlice(all, ListOptions{Page: 0, PageSize: 1})
	require.Len(t, page0.Items, 1)
	assert.Equal(t, "a", page0.Items[0])
	assert.Equal(t, 3, page0.TotalItems)
	assert.Equal(t, 3, page0.TotalPages)
	assert.True(t, page0.HasNextPage)
	assert.False(t, page0.HasPreviousPage)

	page2 := PaginateSlice(all, ListOptions{Page: 2, PageSize: 1})
	require.Len(t, page2.Items, 1)
	assert.Equal(t, "c", page2.Items[0])
	assert.False(t, page2.HasNextPage)
	assert.True(t, page2.HasPreviousPage)
}

func TestPaginateSlice_PastTheEnd(t *testing.T) {
	all := []int{1, 2, 3}
	page := PaginateSlice(all, ListOptions{Page: 9, PageSize: 10})
	assert.Empty(t, page.Items)
	assert.Equal(t, 3, page.TotalItems)
	assert.Equal(t, 1, page.TotalPages)
	assert.False(t, page.HasNextPage)
	assert.True(t, page.HasPreviousPage)
}

func TestPaginateSlice_EmptySet(t *testing.T) {
	page := PaginateSlice([]int(nil), ListOptions{})
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.TotalItems)
	assert.Equal(t, 0, page.TotalPages)
	assert.False(t, page.HasNextPage)
	assert.False(t, page.HasPreviousPage)
}

func TestPaginateSlice_Idempotent(t *testing.T) {
	all := []string{"x", "y", "z", "w"}
	opts := ListOptions{Page: 0, PageSize: 10}

	first := PaginateSlice(all, opts)
	second := PaginateSlice(all, opts)
	assert.Equal(t, first, second)
}

func TestPaginateSlice_CopiesWindow(t *testing.T) {
	all := []string{"a", "b"}
	page := PaginateSlice(all, ListOptions{Page: 0, PageSize: 10})
	page.Items[0] = "mutated"
	assert.Equal(t, "a", all[0])
}
