// Package storage provides composable storage interfaces for Threadline's
// durable entities: Workspace, Session, State, and MemoryTrace.
//
// The storage layer is built from small, focused interfaces that can be
// implemented independently and composed as needed, so alternate backends
// only implement what they actually serve.
package storage

import (
	"context"

	"github.com/threadline-dev/threadline/pkg/types"
)

// WorkspaceStore persists workspaces.
type WorkspaceStore interface {
	// Create inserts a new workspace. The caller assigns ID and timestamps.
	Create(ctx context.Context, ws *types.Workspace) error

	// Get retrieves a workspace by ID and touches its lastAccessed timestamp.
	// Returns ErrNotFound if the workspace doesn't exist.
	Get(ctx context.Context, id string) (*types.Workspace, error)

	// GetByName retrieves a workspace by name without touching lastAccessed.
	// Returns ErrNotFound if no workspace carries that name.
	GetByName(ctx context.Context, name string) (*types.Workspace, error)

	// UpdateContext replaces the mutable context of an existing workspace.
	// Returns ErrNotFound if the workspace doesn't exist.
	UpdateContext(ctx context.Context, id string, wctx types.WorkspaceContext) error

	// List retrieves workspaces with pagination, sorted per opts.
	List(ctx context.Context, opts ListOptions) (*PageResult[types.Workspace], error)
}

// SessionStore persists sessions. Sessions are never physically deleted.
type SessionStore interface {
	// Create inserts a new session.
	Create(ctx context.Context, s *types.Session) error

	// Get retrieves a session by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*types.Session, error)

	// GetByName retrieves the most recently started session with the given
	// name inside a workspace. Returns ErrNotFound if absent.
	GetByName(ctx context.Context, workspaceID, name string) (*types.Session, error)

	// Update replaces a session's mutable fields (name, description, goal,
	// endTime, isActive). Returns ErrNotFound if absent.
	Update(ctx context.Context, s *types.Session) error

	// List retrieves sessions with pagination and filtering.
	List(ctx context.Context, opts ListOptions) (*PageResult[types.Session], error)
}

// StateStore persists immutable state checkpoints.
type StateStore interface {
	// Create inserts a new state. Backends with a native uniqueness guard on
	// (workspaceId, name) return ErrDuplicateName on violation; backends
	// without one rely on the service-level check (documented accepted race).
	Create(ctx context.Context, st *types.State) error

	// Get retrieves a state by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*types.State, error)

	// GetByName retrieves a state by its per-workspace unique name.
	// Returns ErrNotFound if absent.
	GetByName(ctx context.Context, workspaceID, name string) (*types.State, error)

	// UpdateTags replaces the tags and metadata of an existing state. These
	// are the only fields editable after a successful create.
	UpdateTags(ctx context.Context, id string, tags []string, metadata map[string]interface{}) error

	// Delete removes a state by ID. Only the failed-create rollback path is
	// permitted to call this. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error

	// List retrieves states with pagination and filtering.
	List(ctx context.Context, opts ListOptions) (*PageResult[types.State], error)
}

// TraceStore persists append-only memory traces. Traces are never mutated.
type TraceStore interface {
	// Append inserts a new trace entry.
	Append(ctx context.Context, tr *types.MemoryTrace) error

	// List retrieves traces with pagination and filtering.
	List(ctx context.Context, opts ListOptions) (*PageResult[types.MemoryTrace], error)
}

// Store is the full durable backend: all four entity stores behind one
// connection, plus lifecycle management.
type Store interface {
	Workspaces() WorkspaceStore
	Sessions() SessionStore
	States() StateStore
	Traces() TraceStore

	// Close releases any resources held by the store.
	Close() error
}
