package types

import "time"

// Session is a bounded unit of continuous interaction within a workspace.
// Sessions are created explicitly or implicitly on first workspace reference.
// They are never physically deleted; a continuation creates a new Session
// carrying PreviousSessionID.
type Session struct {
	ID                string     `json:"id"`
	WorkspaceID       string     `json:"workspaceId"`
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	Goal              string     `json:"goal,omitempty"`
	StartTime         time.Time  `json:"startTime"`
	EndTime           *time.Time `json:"endTime,omitempty"`
	IsActive          bool       `json:"isActive"`
	PreviousSessionID string     `json:"previousSessionId,omitempty"`
}

// SessionInfo records how a session identifier was resolved for one request.
// It travels in the RequestContext so the Response Formatter can surface
// identifier changes prominently, even on error paths.
type SessionInfo struct {
	SessionID         string `json:"sessionId"`
	IsNewSession      bool   `json:"isNewSession"`
	IsNonStandardID   bool   `json:"isNonStandardId"`
	OriginalSessionID string `json:"originalSessionId,omitempty"`
}
