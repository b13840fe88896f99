// Package agents implements the built-in memoryManager agent: the registry
// operations for workspace, session, and state continuity, plus the batch
// mode. Each operation is a plain struct holding its dependencies as explicit
// fields.
package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/threadline-dev/threadline/internal/storage"
	"github.com/threadline-dev/threadline/pkg/types"
)

// stringParam reads a trimmed string parameter.
func stringParam(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return strings.TrimSpace(s)
}

// boolParam reads a boolean parameter, tolerating the string forms some
// clients send.
func boolParam(params map[string]interface{}, key string) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

// intParam reads an integer parameter. JSON numbers decode as float64.
func intParam(params map[string]interface{}, key string, fallback int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

// stringSliceParam reads a []string parameter, accepting both proper arrays
// and comma-separated strings.
func stringSliceParam(params map[string]interface{}, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return nil
	}
}

// mapParam reads a map parameter.
func mapParam(params map[string]interface{}, key string) map[string]interface{} {
	m, _ := params[key].(map[string]interface{})
	return m
}

// listOptions builds storage.ListOptions from the common list parameters.
func listOptions(params map[string]interface{}) storage.ListOptions {
	return storage.ListOptions{
		Page:        intParam(params, "page", 0),
		PageSize:    intParam(params, "pageSize", 0),
		SortBy:      stringParam(params, "sortBy"),
		SortOrder:   stringParam(params, "sortOrder"),
		WorkspaceID: stringParam(params, "workspaceId"),
		SessionID:   stringParam(params, "sessionId"),
		ActiveOnly:  boolParam(params, "activeOnly"),
	}
}

// decodeInto re-encodes a loosely-typed value into a concrete struct.
func decodeInto(v interface{}, target interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("re-encode parameter: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode parameter: %w", err)
	}
	return nil
}

// pageEnvelope renders a PageResult into the response contract fields.
func pageEnvelope[T any](page *storage.PageResult[T], itemsKey string) map[string]interface{} {
	return map[string]interface{}{
		"success":         true,
		itemsKey:          page.Items,
		"page":            page.Page,
		"pageSize":        page.PageSize,
		"totalItems":      page.TotalItems,
		"totalPages":      page.TotalPages,
		"hasNextPage":     page.HasNextPage,
		"hasPreviousPage": page.HasPreviousPage,
	}
}

// workspaceContextFromParams assembles a WorkspaceContext from the flat
// context fields the modes accept.
func workspaceContextFromParams(params map[string]interface{}) types.WorkspaceContext {
	wctx := types.WorkspaceContext{
		Purpose:        stringParam(params, "purpose"),
		CurrentGoal:    stringParam(params, "currentGoal"),
		Workflows:      stringSliceParam(params, "workflows"),
		KeyFiles:       stringSliceParam(params, "keyFiles"),
		DedicatedAgent: stringParam(params, "dedicatedAgent"),
	}
	if prefs := mapParam(params, "preferences"); len(prefs) > 0 {
		wctx.Preferences = make(map[string]string, len(prefs))
		for k, v := range prefs {
			if s, ok := v.(string); ok {
				wctx.Preferences[k] = s
			}
		}
	}
	return wctx
}
