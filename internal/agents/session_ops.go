package agents

import (
	"context"

	"github.com/threadline-dev/threadline/internal/memory"
)

// createSessionOp starts a new session inside a workspace. The session id is
// the canonical id the router resolved for this call, so the caller's banner
// and the stored record always agree.
type createSessionOp struct {
	svc *memory.Service
}

func (op *createSessionOp) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	sess, instructions, err := op.svc.CreateSession(ctx, memory.CreateSessionParams{
		SessionID:            stringParam(params, "sessionId"),
		WorkspaceID:          stringParam(params, "workspaceId"),
		Name:                 stringParam(params, "name"),
		Description:          stringParam(params, "description"),
		Goal:                 stringParam(params, "goal"),
		PreviousSessionID:    stringParam(params, "previousSessionId"),
		EmitTrace:            true,
		GenerateInstructions: true,
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success":      true,
		"session":      sess,
		"instructions": instructions,
	}, nil
}

func (op *createSessionOp) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"workspaceId":       map[string]interface{}{"type": "string", "description": "Workspace the session belongs to."},
			"name":              map[string]interface{}{"type": "string", "description": "Session name. Defaults to a timestamped one."},
			"description":       map[string]interface{}{"type": "string"},
			"goal":              map[string]interface{}{"type": "string", "description": "What this session sets out to do."},
			"previousSessionId": map[string]interface{}{"type": "string", "description": "Session this one continues from."},
		},
		"required": []interface{}{"workspaceId"},
	}
}

// loadSessionOp retrieves a session by id or name, optionally continuing it.
type loadSessionOp struct {
	svc *memory.Service
}

func (op *loadSessionOp) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	idOrName := stringParam(params, "session")
	if idOrName == "" {
		idOrName = stringParam(params, "sessionId")
	}
	res, err := op.svc.LoadSession(ctx, memory.LoadSessionParams{
		IDOrName:    idOrName,
		WorkspaceID: stringParam(params, "workspaceId"),
		Continue:    boolParam(params, "continue"),
	})
	if err != nil {
		return nil, err
	}

	out := map[string]interface{}{
		"success":          true,
		"session":          res.Session,
		"workspace":        res.Workspace,
		"workspaceContext": res.Workspace.Context,
	}
	if res.Continuation != nil {
		out["continuation"] = res.Continuation
	}
	return out, nil
}

func (op *loadSessionOp) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session": map[string]interface{}{
				"type":        "string",
				"description": "Session id or name. Name lookup requires workspaceId.",
			},
			"workspaceId": map[string]interface{}{"type": "string", "description": "Workspace for name lookup."},
			"continue": map[string]interface{}{
				"type":        "boolean",
				"description": "Start a continuation session carrying previousSessionId.",
			},
		},
		"required": []interface{}{"session"},
	}
}

// listSessionsOp lists sessions, optionally scoped to a workspace or to
// active ones only.
type listSessionsOp struct {
	svc *memory.Service
}

func (op *listSessionsOp) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	opts := listOptions(params)
	opts.SessionID = ""
	if opts.SortBy == "" {
		opts.SortBy = "start_time"
	}
	page, err := op.svc.ListSessions(ctx, opts)
	if err != nil {
		return nil, err
	}
	return pageEnvelope(page, "sessions"), nil
}

func (op *listSessionsOp) ParameterSchema() map[string]interface{} {
	s := listSchema("Sessions are sorted by startTime unless sortBy is given.")
	props := s["properties"].(map[string]interface{})
	props["workspaceId"] = map[string]interface{}{"type": "string", "description": "Scope to one workspace."}
	props["activeOnly"] = map[string]interface{}{"type": "boolean", "description": "Only sessions still active."}
	return s
}

// sessionLineageOp walks the previousSessionId chain backwards from one
// session, newest first.
type sessionLineageOp struct {
	svc *memory.Service
}

func (op *sessionLineageOp) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	page, err := op.svc.SessionLineage(ctx, stringParam(params, "sessionId"), listOptions(params))
	if err != nil {
		return nil, err
	}
	return pageEnvelope(page, "sessions"), nil
}

func (op *sessionLineageOp) ParameterSchema() map[string]interface{} {
	s := listSchema("The chain is returned newest first, starting from the given session.")
	props := s["properties"].(map[string]interface{})
	props["sessionId"] = map[string]interface{}{
		"type":        "string",
		"description": "Session to walk back from. Defaults to the calling session.",
	}
	return s
}

// editSessionOp updates the mutable fields of a session.
type editSessionOp struct {
	svc *memory.Service
}

func (op *editSessionOp) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	var p memory.UpdateSessionParams
	if v, ok := params["name"].(string); ok {
		p.Name = &v
	}
	if v, ok := params["description"].(string); ok {
		p.Description = &v
	}
	if v, ok := params["goal"].(string); ok {
		p.Goal = &v
	}

	sess, err := op.svc.UpdateSession(ctx, stringParam(params, "sessionId"), p)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"session": sess,
	}, nil
}

func (op *editSessionOp) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"sessionId":   map[string]interface{}{"type": "string", "description": "Session to edit."},
			"name":        map[string]interface{}{"type": "string"},
			"description": map[string]interface{}{"type": "string"},
			"goal":        map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"sessionId"},
	}
}
