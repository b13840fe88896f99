// Package types defines the durable entities shared across Threadline:
// Workspace, Session, State, and MemoryTrace, plus the transient request
// context types that flow through a single tool call.
package types

import "time"

// DefaultWorkspaceID is the sentinel used when a request carries no workspace
// reference at all. It is an explicit constant rather than ambient state so
// that every resolution path can be traced through the RequestContext.
const DefaultWorkspaceID = "ws_default"

// Workspace is the top-level durable project container. Its Context is the
// mutable living part; everything else is set at creation and only
// LastAccessed is touched afterwards (on every load).
type Workspace struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Context      WorkspaceContext `json:"context"`
	RootFolder   string           `json:"rootFolder"`
	Created      time.Time        `json:"created"`
	LastAccessed time.Time        `json:"lastAccessed"`
}

// WorkspaceContext carries the living description of a workspace. It is also
// the unit that child operations inherit from their parent, which is why it
// repeats the workspace id.
type WorkspaceContext struct {
	WorkspaceID    string            `json:"workspaceId"`
	Purpose        string            `json:"purpose,omitempty"`
	CurrentGoal    string            `json:"currentGoal,omitempty"`
	Workflows      []string          `json:"workflows,omitempty"`
	KeyFiles       []string          `json:"keyFiles,omitempty"`
	Preferences    map[string]string `json:"preferences,omitempty"`
	DedicatedAgent string            `json:"dedicatedAgent,omitempty"`
}
