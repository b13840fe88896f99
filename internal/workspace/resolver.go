// Package workspace resolves the effective workspace context for a request.
// Precedence is fixed: explicit per-request context beats an inherited parent
// context, which beats the process default; the order is never reversed. This
// is what lets a child operation invoked by a parent transparently inherit
// the parent's project scope.
package workspace

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/threadline-dev/threadline/pkg/types"
)

// Resolve picks the effective workspace context.
//
// explicit is the raw per-request context value: a JSON object, a
// string-encoded JSON object, or a bare workspace id string. When explicit is
// present but carries no workspace id of its own, fallbackID (the caller's
// default, or types.DefaultWorkspaceID) fills it in. parent is consulted only
// when explicit is absent, and only if it actually carries a workspace id.
//
// A nil result means "absent": the operation runs against its own default.
func Resolve(explicit interface{}, parent *types.WorkspaceContext, fallbackID string) (*types.WorkspaceContext, error) {
	if fallbackID == "" {
		fallbackID = types.DefaultWorkspaceID
	}

	if explicit != nil {
		wctx, err := parseExplicit(explicit)
		if err != nil {
			return nil, err
		}
		if wctx != nil {
			if wctx.WorkspaceID == "" {
				wctx.WorkspaceID = fallbackID
			}
			return wctx, nil
		}
	}

	if parent != nil && parent.WorkspaceID != "" {
		inherited := *parent
		return &inherited, nil
	}

	return nil, nil
}

// parseExplicit normalizes the accepted shapes of an explicit context value.
// Returns nil (no error) for empty values so the precedence chain continues.
func parseExplicit(v interface{}) (*types.WorkspaceContext, error) {
	switch raw := v.(type) {
	case types.WorkspaceContext:
		wctx := raw
		return &wctx, nil

	case *types.WorkspaceContext:
		if raw == nil {
			return nil, nil
		}
		wctx := *raw
		return &wctx, nil

	case string:
		s := strings.TrimSpace(raw)
		if s == "" {
			return nil, nil
		}
		// String-encoded JSON object, or a bare workspace id.
		if strings.HasPrefix(s, "{") {
			var wctx types.WorkspaceContext
			if err := json.Unmarshal([]byte(s), &wctx); err != nil {
				return nil, fmt.Errorf("workspace: failed to parse string-encoded context: %w", err)
			}
			return &wctx, nil
		}
		return &types.WorkspaceContext{WorkspaceID: s}, nil

	case map[string]interface{}:
		if len(raw) == 0 {
			return nil, nil
		}
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("workspace: failed to re-encode context object: %w", err)
		}
		var wctx types.WorkspaceContext
		if err := json.Unmarshal(data, &wctx); err != nil {
			return nil, fmt.Errorf("workspace: failed to parse context object: %w", err)
		}
		return &wctx, nil

	default:
		return nil, fmt.Errorf("workspace: unsupported context type %T", v)
	}
}
