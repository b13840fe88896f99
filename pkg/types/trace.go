package types

import "time"

// Trace type constants. A MemoryTrace records a notable session/state event
// as a side effect of the operation that caused it.
const (
	TraceSessionCreated = "session-created"
	TraceSessionResumed = "session-resumed"
	TraceStateCreated   = "state-created"
	TraceStateRestored  = "state-restored"
)

// MemoryTrace is an append-only audit entry. Traces are emitted best-effort:
// a failed emission is logged and swallowed, never propagated.
type MemoryTrace struct {
	ID          string                 `json:"id"`
	SessionID   string                 `json:"sessionId"`
	WorkspaceID string                 `json:"workspaceId"`
	Content     string                 `json:"content"`
	Type        string                 `json:"type"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}
