package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/threadline-dev/threadline/internal/storage"
)

func TestStringSliceParam_Shapes(t *testing.T) {
	cases := []struct {
		name   string
		params map[string]interface{}
		want   []string
	}{
		{"json array", map[string]interface{}{"tags": []interface{}{"a", " b ", ""}}, []string{"a", "b"}},
		{"go slice", map[string]interface{}{"tags": []string{"a", "b"}}, []string{"a", "b"}},
		{"comma separated", map[string]interface{}{"tags": "a, b,,c "}, []string{"a", "b", "c"}},
		{"absent", map[string]interface{}{}, nil},
		{"wrong type", map[string]interface{}{"tags": 7}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, stringSliceParam(tc.params, "tags"))
		})
	}
}

func TestBoolParam_ToleratesStringForms(t *testing.T) {
	assert.True(t, boolParam(map[string]interface{}{"x": true}, "x"))
	assert.True(t, boolParam(map[string]interface{}{"x": "true"}, "x"))
	assert.True(t, boolParam(map[string]interface{}{"x": " TRUE "}, "x"))
	assert.False(t, boolParam(map[string]interface{}{"x": "yes"}, "x"))
	assert.False(t, boolParam(map[string]interface{}{}, "x"))
}

func TestIntParam_JSONNumbersAndFallback(t *testing.T) {
	assert.Equal(t, 3, intParam(map[string]interface{}{"page": float64(3)}, "page", 0))
	assert.Equal(t, 5, intParam(map[string]interface{}{"page": "5"}, "page", 0))
	assert.Equal(t, 9, intParam(map[string]interface{}{"page": "x"}, "page", 9))
	assert.Equal(t, 9, intParam(map[string]interface{}{}, "page", 9))
}

func TestListOptions_FromParams(t *testing.T) {
	opts := listOptions(map[string]interface{}{
		"page":        float64(2),
		"pageSize":    float64(25),
		"sortBy":      "name",
		"sortOrder":   "asc",
		"workspaceId": "ws_1",
		"sessionId":   "ses_1",
		"activeOnly":  true,
	})
	assert.Equal(t, 2, opts.Page)
	assert.Equal(t, 25, opts.PageSize)
	assert.Equal(t, "name", opts.SortBy)
	assert.Equal(t, "asc", opts.SortOrder)
	assert.Equal(t, "ws_1", opts.WorkspaceID)
	assert.Equal(t, "ses_1", opts.SessionID)
	assert.True(t, opts.ActiveOnly)
}

func TestPageEnvelope_ContractFields(t *testing.T) {
	page := storage.PaginateSlice([]string{"a", "b", "c"}, storage.ListOptions{Page: 0, PageSize: 2})

	env := pageEnvelope(page, "states")
	assert.Equal(t, true, env["success"])
	assert.Equal(t, []string{"a", "b"}, env["states"])
	assert.Equal(t, 0, env["page"])
	assert.Equal(t, 2, env["pageSize"])
	assert.Equal(t, 3, env["totalItems"])
	assert.Equal(t, 2, env["totalPages"])
	assert.Equal(t, true, env["hasNextPage"])
	assert.Equal(t, false, env["hasPreviousPage"])
}

func TestWorkspaceContextFromParams(t *testing.T) {
	wctx := workspaceContextFromParams(map[string]interface{}{
		"purpose":     "api work",
		"currentGoal": "ship v1",
		"keyFiles":    []interface{}{"main.go"},
		"preferences": map[string]interface{}{"editor": "vim", "tabs": 4},
	})
	assert.Equal(t, "api work", wctx.Purpose)
	assert.Equal(t, "ship v1", wctx.CurrentGoal)
	assert.Equal(t, []string{"main.go"}, wctx.KeyFiles)
	assert.Equal(t, map[string]string{"editor": "vim"}, wctx.Preferences, "non-string preference values are dropped")
}
