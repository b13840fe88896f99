package agents

import (
	"context"

	"github.com/threadline-dev/threadline/internal/memory"
)

// createWorkspaceOp persists a new workspace with its living context.
type createWorkspaceOp struct {
	svc *memory.Service
}

func (op *createWorkspaceOp) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	ws, err := op.svc.CreateWorkspace(ctx, memory.CreateWorkspaceParams{
		Name:       stringParam(params, "name"),
		RootFolder: stringParam(params, "rootFolder"),
		Context:    workspaceContextFromParams(params),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success":          true,
		"workspace":        ws,
		"workspaceContext": ws.Context,
	}, nil
}

func (op *createWorkspaceOp) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name":        map[string]interface{}{"type": "string", "description": "Workspace name."},
			"rootFolder":  map[string]interface{}{"type": "string", "description": "Root folder the workspace covers."},
			"purpose":     map[string]interface{}{"type": "string", "description": "What this workspace is for."},
			"currentGoal": map[string]interface{}{"type": "string", "description": "The active goal."},
			"workflows": map[string]interface{}{
				"type": "array", "items": map[string]interface{}{"type": "string"},
				"description": "Named workflows used in this workspace.",
			},
			"keyFiles": map[string]interface{}{
				"type": "array", "items": map[string]interface{}{"type": "string"},
				"description": "Files that matter most in this workspace.",
			},
		},
		"required": []interface{}{"name"},
	}
}

// loadWorkspaceOp retrieves a workspace by id or name, touching lastAccessed.
type loadWorkspaceOp struct {
	svc *memory.Service
}

func (op *loadWorkspaceOp) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	idOrName := stringParam(params, "workspace")
	if idOrName == "" {
		idOrName = stringParam(params, "workspaceId")
	}
	ws, err := op.svc.LoadWorkspace(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success":          true,
		"workspace":        ws,
		"workspaceContext": ws.Context,
	}, nil
}

func (op *loadWorkspaceOp) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"workspace": map[string]interface{}{
				"type":        "string",
				"description": "Workspace id or name. Ids are tried first.",
			},
		},
		"required": []interface{}{"workspace"},
	}
}

// listWorkspacesOp lists workspaces ordered by recency of use.
type listWorkspacesOp struct {
	svc *memory.Service
}

func (op *listWorkspacesOp) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	opts := listOptions(params)
	opts.WorkspaceID = "" // not a workspace-scoped listing
	if opts.SortBy == "" {
		opts.SortBy = "last_accessed"
	}
	page, err := op.svc.ListWorkspaces(ctx, opts)
	if err != nil {
		return nil, err
	}
	return pageEnvelope(page, "workspaces"), nil
}

func (op *listWorkspacesOp) ParameterSchema() map[string]interface{} {
	return listSchema("Workspaces are sorted by lastAccessed unless sortBy is given.")
}

// editWorkspaceOp replaces the living context of a workspace.
type editWorkspaceOp struct {
	svc *memory.Service
}

func (op *editWorkspaceOp) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	id := stringParam(params, "workspaceId")
	wctx := workspaceContextFromParams(params)
	if err := op.svc.UpdateWorkspaceContext(ctx, id, wctx); err != nil {
		return nil, err
	}
	ws, err := op.svc.LoadWorkspace(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success":          true,
		"workspace":        ws,
		"workspaceContext": ws.Context,
	}, nil
}

func (op *editWorkspaceOp) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"workspaceId": map[string]interface{}{"type": "string", "description": "Workspace to edit."},
			"purpose":     map[string]interface{}{"type": "string"},
			"currentGoal": map[string]interface{}{"type": "string"},
			"workflows":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"keyFiles":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
		"required": []interface{}{"workspaceId"},
	}
}

// listSchema is the shared parameter schema of the list modes.
func listSchema(note string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"page":     map[string]interface{}{"type": "integer", "description": "Zero-indexed page number (default 0)."},
			"pageSize": map[string]interface{}{"type": "integer", "description": "Items per page (default 10, max 100)."},
			"sortBy":   map[string]interface{}{"type": "string", "description": "Sort column. " + note},
			"sortOrder": map[string]interface{}{
				"type": "string", "enum": []interface{}{"asc", "desc"},
				"description": "Sort direction (default desc).",
			},
		},
	}
}
