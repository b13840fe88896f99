package types

// RequestContext is built per tool call and discarded after the response. It
// threads everything a strategy resolved (agent, mode, normalized params,
// the canonical session id, and the effective workspace) so that nothing
// downstream reaches for ambient state.
type RequestContext struct {
	AgentName    string
	Mode         string
	Params       map[string]interface{}
	SessionID    string
	SessionInfo  SessionInfo
	Workspace    *WorkspaceContext
	FullToolName string
}
