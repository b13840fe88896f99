package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/threadline-dev/threadline/internal/memory"
	"github.com/threadline-dev/threadline/internal/registry"
	"github.com/threadline-dev/threadline/internal/schema"
	"github.com/threadline-dev/threadline/internal/storage"
	"github.com/threadline-dev/threadline/internal/workspace"
	"github.com/threadline-dev/threadline/pkg/types"
)

// ---------------------------------------------------------------------------
// initialize / notifications / ping / help
// ---------------------------------------------------------------------------

func (s *Server) handleInitialize(_ context.Context, req *JSONRPCRequest) (interface{}, *JSONRPCError) {
	var params MCPInitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &JSONRPCError{Code: ErrCodeInvalidParams, Message: fmt.Sprintf("invalid initialize params: %v", err)}
		}
	}
	if params.ClientInfo.Name != "" {
		s.logger.Printf("client connected: %s %s (protocol %s)",
			params.ClientInfo.Name, params.ClientInfo.Version, params.ProtocolVersion)
	}

	return MCPInitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: MCPServerCapabilities{
			Tools:     &MCPToolsCapability{},
			Resources: &MCPResourcesCapability{},
			Prompts:   &MCPPromptsCapability{},
		},
		ServerInfo: s.info,
	}, nil
}

func (s *Server) handleNotification(_ context.Context, req *JSONRPCRequest) (interface{}, *JSONRPCError) {
	s.logger.Printf("notification: %s", req.Method)
	return nil, nil
}

func (s *Server) handlePing(_ context.Context, _ *JSONRPCRequest) (interface{}, *JSONRPCError) {
	return map[string]interface{}{}, nil
}

func (s *Server) handleHelp(_ context.Context, _ *JSONRPCRequest) (interface{}, *JSONRPCError) {
	agents := make([]HelpAgent, 0)
	for _, name := range s.registry.AgentNames() {
		agents = append(agents, HelpAgent{Agent: name, Modes: s.registry.ModeNames(name)})
	}
	return HelpResult{
		Server: s.info,
		Usage: "Call tools/call with name \"<agent>_tool\" and an arguments object carrying a required " +
			"\"mode\" field plus the mode's parameters. Thread continuity by passing " +
			"{context: {sessionId, workspaceId}} on every call.",
		Agents: agents,
	}, nil
}

// ---------------------------------------------------------------------------
// tools/list
// ---------------------------------------------------------------------------

func (s *Server) handleToolsList(_ context.Context, _ *JSONRPCRequest) (interface{}, *JSONRPCError) {
	tools := make([]MCPTool, 0)
	for _, agent := range s.registry.AgentNames() {
		modes := s.registry.ModeNames(agent)
		enum := make([]interface{}, len(modes))
		for i, m := range modes {
			enum[i] = m
		}

		inputSchema := schema.MergeWithContext(map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"mode": map[string]interface{}{
					"type":        "string",
					"enum":        enum,
					"description": "The operation to run. Each mode declares its own additional parameters.",
				},
			},
			"required": []interface{}{"mode"},
		})

		tools = append(tools, MCPTool{
			Name:        agent + "_tool",
			Description: fmt.Sprintf("Threadline %s agent. Modes: %s.", agent, strings.Join(modes, ", ")),
			InputSchema: inputSchema,
		})
	}
	return MCPToolsListResult{Tools: tools}, nil
}

// ---------------------------------------------------------------------------
// tools/call
// ---------------------------------------------------------------------------

// handleToolsCall is the tool-execution strategy. Envelope defects (missing
// arguments, missing mode, unknown agent or mode) fault; everything after
// dispatch is a business outcome rendered as a normal result.
func (s *Server) handleToolsCall(ctx context.Context, req *JSONRPCRequest) (interface{}, *JSONRPCError) {
	var p MCPToolCallParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return nil, &JSONRPCError{Code: ErrCodeInvalidParams, Message: fmt.Sprintf("invalid tools/call params: %v", err)}
	}

	// Step 1: a call with no arguments at all cannot be dispatched.
	if len(p.Arguments) == 0 {
		return nil, &JSONRPCError{
			Code: ErrCodeInvalidParams,
			Message: fmt.Sprintf("missing arguments: %q requires an arguments object with at least a \"mode\" field; "+
				"call the help method for the mode catalog", p.Name),
		}
	}

	// Step 2: agent from the tool name, mode from the arguments.
	agent, _, ok := registry.SplitToolName(p.Name)
	if !ok {
		return nil, &JSONRPCError{
			Code:    ErrCodeInvalidParams,
			Message: fmt.Sprintf("invalid tool name %q: expected \"<agent>_<suffix>\"", p.Name),
		}
	}
	if !s.registry.HasAgent(agent) {
		if suggestion, found := s.registry.SuggestAgent(agent); found {
			return nil, &JSONRPCError{
				Code:    ErrCodeMethodNotFound,
				Message: fmt.Sprintf("unknown agent %q: did you mean %q?", agent, suggestion),
			}
		}
		return nil, &JSONRPCError{
			Code:    ErrCodeMethodNotFound,
			Message: fmt.Sprintf("unknown agent %q: registered agents are %s", agent, strings.Join(s.registry.AgentNames(), ", ")),
		}
	}

	mode, _ := p.Arguments["mode"].(string)
	if strings.TrimSpace(mode) == "" {
		return nil, &JSONRPCError{
			Code: ErrCodeInvalidParams,
			Message: fmt.Sprintf("agent %q requires a \"mode\" argument; available modes: %s",
				agent, strings.Join(s.registry.ModeNames(agent), ", ")),
		}
	}

	desc, err := s.registry.GetMode(agent, mode)
	if err != nil {
		return nil, &JSONRPCError{
			Code: ErrCodeMethodNotFound,
			Message: fmt.Sprintf("unknown mode %q for agent %q; available modes: %s",
				mode, agent, strings.Join(s.registry.ModeNames(agent), ", ")),
		}
	}

	// Step 3: session resolution, with fallback so the request always ends up
	// with a usable id.
	callCtx, _ := p.Arguments["context"].(map[string]interface{})
	candidate := stringField(callCtx, "sessionId")
	if candidate == "" {
		candidate = stringField(p.Arguments, "sessionId")
	}
	info, err := s.resolver.Resolve(ctx, candidate)
	if err != nil {
		s.logger.Printf("session resolver failed (%v); using stateless fallback", err)
		info, _ = s.fallback.Resolve(ctx, candidate)
	}

	// Step 4: merged schema for validation and diagnostics.
	merged := schema.MergeWithContext(desc.Op.ParameterSchema())

	opParams := make(map[string]interface{}, len(p.Arguments)+3)
	for k, v := range p.Arguments {
		if k == "mode" || k == "context" {
			continue
		}
		opParams[k] = v
	}
	opParams["sessionId"] = info.SessionID
	if goal := stringField(callCtx, "goal"); goal != "" {
		if _, set := opParams["goal"]; !set {
			opParams["goal"] = goal
		}
	}

	rc := &types.RequestContext{
		AgentName:    agent,
		Mode:         mode,
		Params:       opParams,
		SessionID:    info.SessionID,
		SessionInfo:  info,
		FullToolName: p.Name,
	}

	normalized, err := schema.Validate(opParams, merged)
	if err != nil {
		return s.formatter.Failure(rc, err, merged), nil
	}
	rc.Params = normalized

	// Step 5: workspace resolution, mirrored into a flat workspaceContext
	// field for older-shaped parameters.
	explicit := explicitWorkspaceValue(p.Arguments, callCtx)
	parent := s.parentWorkspace(ctx, info)
	wctx, err := workspace.Resolve(explicit, parent, "")
	if err != nil {
		return s.formatter.Failure(rc, err, merged), nil
	}
	if wctx != nil {
		rc.Workspace = wctx
		if _, set := rc.Params["workspaceId"]; !set {
			rc.Params["workspaceId"] = wctx.WorkspaceID
		}
		rc.Params["workspaceContext"] = wctx
	}

	// Step 6: invoke. An open breaker or an operation error is a business
	// outcome, not a protocol fault.
	res, execErr := s.exec.Execute(ctx, rc, desc.Op)
	if execErr != nil {
		return s.formatter.Failure(rc, execErr, merged), nil
	}
	if res.Err != nil {
		return s.formatter.Failure(rc, res.Err, merged), nil
	}

	s.persistReturnedWorkspaceContext(ctx, rc, res.Output)

	return s.formatter.Success(rc, res.Output), nil
}

// parentWorkspace fetches the inherited workspace context of an existing
// session, best-effort. A freshly minted session has nothing to inherit.
func (s *Server) parentWorkspace(ctx context.Context, info types.SessionInfo) *types.WorkspaceContext {
	if info.IsNewSession {
		return nil
	}
	sess, err := s.mem.Store().Sessions().Get(ctx, info.SessionID)
	if err != nil {
		return nil
	}
	ws, err := s.mem.Store().Workspaces().Get(ctx, sess.WorkspaceID)
	if err != nil {
		return nil
	}
	return &ws.Context
}

// explicitWorkspaceValue picks the explicit per-request workspace value: a
// flat workspaceContext argument wins over the call context's workspaceId.
func explicitWorkspaceValue(args, callCtx map[string]interface{}) interface{} {
	if v, ok := args["workspaceContext"]; ok && v != nil {
		return v
	}
	if id := stringField(callCtx, "workspaceId"); id != "" {
		return id
	}
	if id := stringField(args, "workspaceId"); id != "" {
		return id
	}
	return nil
}

// persistReturnedWorkspaceContext folds a workspaceContext returned by the
// operation back into the stored workspace. Best-effort: a persistence
// hiccup here never fails the call that already succeeded.
func (s *Server) persistReturnedWorkspaceContext(ctx context.Context, rc *types.RequestContext, output map[string]interface{}) {
	raw, ok := output["workspaceContext"]
	if !ok || raw == nil {
		return
	}
	wctx, err := workspace.Resolve(raw, nil, "")
	if err != nil || wctx == nil || wctx.WorkspaceID == "" || wctx.WorkspaceID == types.DefaultWorkspaceID {
		return
	}
	if err := s.mem.UpdateWorkspaceContext(ctx, wctx.WorkspaceID, *wctx); err != nil {
		s.logger.Printf("workspace context writeback for %s failed: %v", wctx.WorkspaceID, err)
	}
}

// ---------------------------------------------------------------------------
// resources
// ---------------------------------------------------------------------------

const (
	workspaceURIPrefix = "workspace://"
	sessionURIPrefix   = "session://"
)

func (s *Server) handleResourcesList(ctx context.Context, _ *JSONRPCRequest) (interface{}, *JSONRPCError) {
	resources := make([]MCPResource, 0)

	wsPage, err := s.mem.ListWorkspaces(ctx, storage.ListOptions{PageSize: 100, SortBy: "last_accessed"})
	if err != nil {
		return nil, &JSONRPCError{Code: ErrCodeServerError, Message: fmt.Sprintf("list workspaces: %v", err)}
	}
	for _, ws := range wsPage.Items {
		resources = append(resources, MCPResource{
			URI:         workspaceURIPrefix + ws.ID,
			Name:        ws.Name,
			Description: ws.Context.Purpose,
			MimeType:    "application/json",
		})
	}

	sessPage, err := s.mem.ListSessions(ctx, storage.ListOptions{PageSize: 100, ActiveOnly: true, SortBy: "start_time"})
	if err != nil {
		return nil, &JSONRPCError{Code: ErrCodeServerError, Message: fmt.Sprintf("list sessions: %v", err)}
	}
	for _, sess := range sessPage.Items {
		resources = append(resources, MCPResource{
			URI:         sessionURIPrefix + sess.ID,
			Name:        sess.Name,
			Description: sess.Goal,
			MimeType:    "application/json",
		})
	}

	return MCPResourcesListResult{Resources: resources}, nil
}

func (s *Server) handleResourcesRead(ctx context.Context, req *JSONRPCRequest) (interface{}, *JSONRPCError) {
	var p MCPResourceReadParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return nil, &JSONRPCError{Code: ErrCodeInvalidParams, Message: fmt.Sprintf("invalid resources/read params: %v", err)}
	}

	var payload interface{}
	switch {
	case strings.HasPrefix(p.URI, workspaceURIPrefix):
		ws, err := s.mem.LoadWorkspace(ctx, strings.TrimPrefix(p.URI, workspaceURIPrefix))
		if err != nil {
			return nil, &JSONRPCError{Code: ErrCodeServerError, Message: fmt.Sprintf("read %s: %v", p.URI, err)}
		}
		payload = ws
	case strings.HasPrefix(p.URI, sessionURIPrefix):
		sess, err := s.mem.Store().Sessions().Get(ctx, strings.TrimPrefix(p.URI, sessionURIPrefix))
		if err != nil {
			return nil, &JSONRPCError{Code: ErrCodeServerError, Message: fmt.Sprintf("read %s: %v", p.URI, err)}
		}
		payload = sess
	default:
		return nil, &JSONRPCError{
			Code:    ErrCodeInvalidParams,
			Message: fmt.Sprintf("unsupported resource uri %q: expected workspace:// or session://", p.URI),
		}
	}

	text, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, &JSONRPCError{Code: ErrCodeInternalError, Message: fmt.Sprintf("render %s: %v", p.URI, err)}
	}
	return MCPResourceReadResult{
		Contents: []MCPResourceContents{{URI: p.URI, MimeType: "application/json", Text: string(text)}},
	}, nil
}

// ---------------------------------------------------------------------------
// prompts
// ---------------------------------------------------------------------------

const (
	promptContinueSession = "continue_session"
	promptRestoreState    = "restore_state"
)

func (s *Server) handlePromptsList(_ context.Context, _ *JSONRPCRequest) (interface{}, *JSONRPCError) {
	return MCPPromptsListResult{
		Prompts: []MCPPrompt{
			{
				Name:        promptContinueSession,
				Description: "Resume a previous session with its goal and description carried forward.",
				Arguments: []MCPPromptArgument{
					{Name: "sessionId", Description: "The session to continue.", Required: true},
				},
			},
			{
				Name:        promptRestoreState,
				Description: "Pick up work from a saved checkpoint: active task, files, and next steps.",
				Arguments: []MCPPromptArgument{
					{Name: "name", Description: "Checkpoint name or id.", Required: true},
					{Name: "workspaceId", Description: "Workspace to look the name up in.", Required: false},
				},
			},
		},
	}, nil
}

func (s *Server) handlePromptsGet(ctx context.Context, req *JSONRPCRequest) (interface{}, *JSONRPCError) {
	var p MCPPromptGetParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return nil, &JSONRPCError{Code: ErrCodeInvalidParams, Message: fmt.Sprintf("invalid prompts/get params: %v", err)}
	}

	switch p.Name {
	case promptContinueSession:
		id := p.Arguments["sessionId"]
		if id == "" {
			return nil, &JSONRPCError{Code: ErrCodeInvalidParams, Message: "continue_session requires a sessionId argument"}
		}
		res, err := s.mem.LoadSession(ctx, memory.LoadSessionParams{IDOrName: id})
		if err != nil {
			return nil, &JSONRPCError{Code: ErrCodeServerError, Message: fmt.Sprintf("load session %q: %v", id, err)}
		}
		text := fmt.Sprintf("Resume session %q (workspace %q).", res.Session.Name, res.Workspace.Name)
		if res.Session.Goal != "" {
			text += fmt.Sprintf(" The goal was: %s.", res.Session.Goal)
		}
		if res.Session.Description != "" {
			text += " Context: " + res.Session.Description
		}
		return MCPPromptGetResult{
			Description: "Continue a previous session",
			Messages: []MCPPromptMessage{
				{Role: "user", Content: MCPToolCallContent{Type: "text", Text: text}},
			},
		}, nil

	case promptRestoreState:
		name := p.Arguments["name"]
		if name == "" {
			return nil, &JSONRPCError{Code: ErrCodeInvalidParams, Message: "restore_state requires a name argument"}
		}
		res, err := s.mem.LoadState(ctx, memory.LoadStateParams{
			IDOrName:    name,
			WorkspaceID: p.Arguments["workspaceId"],
		})
		if err != nil {
			return nil, &JSONRPCError{Code: ErrCodeServerError, Message: fmt.Sprintf("load state %q: %v", name, err)}
		}
		st := res.State
		text := fmt.Sprintf("Pick up from checkpoint %q. Active task: %s.", st.Name, st.Context.ActiveTask)
		if len(st.Context.ActiveFiles) > 0 {
			text += fmt.Sprintf(" Files in play: %s.", strings.Join(st.Context.ActiveFiles, ", "))
		}
		if len(st.Context.NextSteps) > 0 {
			text += fmt.Sprintf(" Next steps: %s.", strings.Join(st.Context.NextSteps, "; "))
		}
		if st.Context.Reasoning != "" {
			text += " Reasoning so far: " + st.Context.Reasoning
		}
		return MCPPromptGetResult{
			Description: "Restore a saved checkpoint",
			Messages: []MCPPromptMessage{
				{Role: "user", Content: MCPToolCallContent{Type: "text", Text: text}},
			},
		}, nil

	default:
		return nil, &JSONRPCError{Code: ErrCodeInvalidParams, Message: fmt.Sprintf("unknown prompt %q", p.Name)}
	}
}

// stringField reads a trimmed string out of a loosely-typed map.
func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
