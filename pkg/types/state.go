package types

import "time"

// State is an immutable, named checkpoint of in-progress work. Its name is
// unique per workspace. After a successful create the only permitted edits
// are tags and metadata; the record is deleted only by the failed-create
// rollback path.
type State struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	WorkspaceID string                 `json:"workspaceId"`
	SessionID   string                 `json:"sessionId"`
	Created     time.Time              `json:"created"`
	Context     StateContext           `json:"context"`
	Tags        []string               `json:"tags,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// StateContext is the checkpointed working context: what was being done,
// which files were in play, and what comes next.
type StateContext struct {
	ConversationContext string           `json:"conversationContext,omitempty"`
	ActiveTask          string           `json:"activeTask"`
	ActiveFiles         []string         `json:"activeFiles,omitempty"`
	NextSteps           []string         `json:"nextSteps,omitempty"`
	Reasoning           string           `json:"reasoning,omitempty"`
	WorkspaceContext    WorkspaceContext `json:"workspaceContext,omitempty"`
}

// CreatePhase labels the steps of the state-creation machine. The phase at
// which a create failed is reported back to the caller so an unattended
// agent can retry correctly.
type CreatePhase string

const (
	PhaseValidating         CreatePhase = "validating"
	PhaseResolvingWorkspace CreatePhase = "resolving-workspace"
	PhasePersisting         CreatePhase = "persisting"
	PhaseVerifying          CreatePhase = "verifying"
	PhaseCommitted          CreatePhase = "committed"
	PhaseRolledBack         CreatePhase = "rolled-back"
)
