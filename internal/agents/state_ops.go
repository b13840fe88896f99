package agents

import (
	"context"

	"github.com/threadline-dev/threadline/internal/memory"
	"github.com/threadline-dev/threadline/pkg/types"
)

// createStateOp checkpoints the current working context. Runs the full
// create machine: validate, resolve workspace, uniqueness, persist, verify,
// rollback on a bad verify.
type createStateOp struct {
	svc *memory.Service
}

func (op *createStateOp) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	stateCtx := types.StateContext{
		ConversationContext: stringParam(params, "conversationContext"),
		ActiveTask:          stringParam(params, "activeTask"),
		ActiveFiles:         stringSliceParam(params, "activeFiles"),
		NextSteps:           stringSliceParam(params, "nextSteps"),
		Reasoning:           stringParam(params, "reasoning"),
	}
	if raw, ok := params["context"]; ok {
		// Nested context object form; flat fields above win when both appear.
		var nested types.StateContext
		if err := decodeInto(raw, &nested); err == nil {
			if stateCtx.ActiveTask == "" {
				stateCtx.ActiveTask = nested.ActiveTask
			}
			if stateCtx.ConversationContext == "" {
				stateCtx.ConversationContext = nested.ConversationContext
			}
			if len(stateCtx.ActiveFiles) == 0 {
				stateCtx.ActiveFiles = nested.ActiveFiles
			}
			if len(stateCtx.NextSteps) == 0 {
				stateCtx.NextSteps = nested.NextSteps
			}
			if stateCtx.Reasoning == "" {
				stateCtx.Reasoning = nested.Reasoning
			}
		}
	}

	st, err := op.svc.CreateState(ctx, memory.CreateStateParams{
		Name:        stringParam(params, "name"),
		WorkspaceID: stringParam(params, "workspaceId"),
		SessionID:   stringParam(params, "sessionId"),
		Context:     stateCtx,
		Tags:        stringSliceParam(params, "tags"),
		Metadata:    mapParam(params, "metadata"),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"state":   st,
		"phase":   string(types.PhaseCommitted),
	}, nil
}

func (op *createStateOp) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name":                map[string]interface{}{"type": "string", "description": "Checkpoint name, unique per workspace."},
			"workspaceId":         map[string]interface{}{"type": "string", "description": "Workspace to checkpoint in."},
			"activeTask":          map[string]interface{}{"type": "string", "description": "What is being worked on right now."},
			"conversationContext": map[string]interface{}{"type": "string", "description": "Summary of the conversation so far."},
			"activeFiles":         map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"nextSteps":           map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"reasoning":           map[string]interface{}{"type": "string", "description": "Why the work is headed this way."},
			"tags":                map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"metadata":            map[string]interface{}{"type": "object"},
		},
		"required": []interface{}{"name", "workspaceId", "activeTask"},
	}
}

// loadStateOp retrieves a checkpoint by id or name, optionally spinning up a
// restore session seeded from it.
type loadStateOp struct {
	svc *memory.Service
}

func (op *loadStateOp) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	idOrName := stringParam(params, "state")
	if idOrName == "" {
		idOrName = stringParam(params, "name")
	}
	res, err := op.svc.LoadState(ctx, memory.LoadStateParams{
		IDOrName:    idOrName,
		WorkspaceID: stringParam(params, "workspaceId"),
		Restore:     boolParam(params, "restore"),
	})
	if err != nil {
		return nil, err
	}

	out := map[string]interface{}{
		"success":          true,
		"state":            res.State,
		"workspace":        res.Workspace,
		"workspaceContext": res.Workspace.Context,
	}
	if res.Session != nil {
		out["session"] = res.Session
	}
	if res.RestoreSession != nil {
		out["restoreSession"] = res.RestoreSession
	}
	return out, nil
}

func (op *loadStateOp) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"state": map[string]interface{}{
				"type":        "string",
				"description": "State id or name. Name lookup requires workspaceId.",
			},
			"workspaceId": map[string]interface{}{"type": "string", "description": "Workspace for name lookup."},
			"restore": map[string]interface{}{
				"type":        "boolean",
				"description": "Start a restore session seeded from the checkpoint.",
			},
		},
		"required": []interface{}{"state"},
	}
}

// listStatesOp lists checkpoints scoped to a workspace or session.
type listStatesOp struct {
	svc *memory.Service
}

func (op *listStatesOp) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	opts := listOptions(params)
	// The router threads the resolved sessionId into every call; it only
	// becomes a filter here when the caller asks for it.
	if !boolParam(params, "currentSessionOnly") {
		opts.SessionID = ""
	}
	page, err := op.svc.ListStates(ctx, opts)
	if err != nil {
		return nil, err
	}
	return pageEnvelope(page, "states"), nil
}

func (op *listStatesOp) ParameterSchema() map[string]interface{} {
	s := listSchema("States are sorted by created unless sortBy is given.")
	props := s["properties"].(map[string]interface{})
	props["workspaceId"] = map[string]interface{}{"type": "string", "description": "Scope to one workspace."}
	props["currentSessionOnly"] = map[string]interface{}{"type": "boolean", "description": "Only checkpoints taken in the current session."}
	return s
}

// editStateOp replaces tags and metadata, the only edits a committed
// checkpoint permits.
type editStateOp struct {
	svc *memory.Service
}

func (op *editStateOp) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	id := stringParam(params, "stateId")
	if err := op.svc.EditStateTags(ctx, id, stringSliceParam(params, "tags"), mapParam(params, "metadata")); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"stateId": id,
		"updated": true,
	}, nil
}

func (op *editStateOp) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"stateId":  map[string]interface{}{"type": "string", "description": "State to edit."},
			"tags":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"metadata": map[string]interface{}{"type": "object"},
		},
		"required": []interface{}{"stateId"},
	}
}

// listTracesOp lists the append-only audit trail.
type listTracesOp struct {
	svc *memory.Service
}

func (op *listTracesOp) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	opts := listOptions(params)
	opts.TraceType = stringParam(params, "type")
	if !boolParam(params, "currentSessionOnly") {
		opts.SessionID = ""
	}
	if opts.SortBy == "" {
		opts.SortBy = "timestamp"
	}
	page, err := op.svc.ListTraces(ctx, opts)
	if err != nil {
		return nil, err
	}
	return pageEnvelope(page, "traces"), nil
}

func (op *listTracesOp) ParameterSchema() map[string]interface{} {
	s := listSchema("Traces are sorted by timestamp unless sortBy is given.")
	props := s["properties"].(map[string]interface{})
	props["workspaceId"] = map[string]interface{}{"type": "string", "description": "Scope to one workspace."}
	props["type"] = map[string]interface{}{"type": "string", "description": "Filter by trace type."}
	return s
}
