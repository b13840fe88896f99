// Package memory implements the durable continuity service: CRUD and
// pagination for Workspace, Session, State, and MemoryTrace, including the
// verify/rollback machine that guarantees a corrupt State write never
// silently succeeds.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/threadline-dev/threadline/internal/schema"
	"github.com/threadline-dev/threadline/internal/session"
	"github.com/threadline-dev/threadline/internal/storage"
	"github.com/threadline-dev/threadline/pkg/types"
)

// DuplicateNameError reports a (workspaceId, name) uniqueness violation on
// state create, with a suggested alternate name the caller can retry with.
type DuplicateNameError struct {
	Name      string
	Suggested string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("a state named %q already exists in this workspace (try %q)", e.Name, e.Suggested)
}

// CreateStateError wraps a failed state create with the phase it failed in.
type CreateStateError struct {
	Phase types.CreatePhase
	Err   error
}

func (e *CreateStateError) Error() string {
	return fmt.Sprintf("state create failed during %s: %v", e.Phase, e.Err)
}

func (e *CreateStateError) Unwrap() error { return e.Err }

// Service is the Memory/State service. All methods are safe for concurrent
// use; correctness for rollback and uniqueness is read-after-write within one
// logical request, not multi-writer serializability.
type Service struct {
	store  storage.Store
	logger *log.Logger
}

// NewService creates a Service over the given durable store. When logger is
// nil the standard logger is used (which every binary points at stderr).
func NewService(store storage.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{store: store, logger: logger}
}

// Store exposes the underlying durable store for collaborators that need
// direct list access (e.g. resource enumeration).
func (s *Service) Store() storage.Store { return s.store }

// ---------------------------------------------------------------------------
// Workspaces
// ---------------------------------------------------------------------------

// CreateWorkspaceParams carries the caller-supplied fields of a new workspace.
type CreateWorkspaceParams struct {
	Name       string
	RootFolder string
	Context    types.WorkspaceContext
}

// CreateWorkspace persists a new workspace and returns it.
func (s *Service) CreateWorkspace(ctx context.Context, p CreateWorkspaceParams) (*types.Workspace, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: workspace name is required", storage.ErrInvalidInput)
	}

	now := time.Now()
	ws := &types.Workspace{
		ID:           "ws_" + uuid.New().String(),
		Name:         p.Name,
		RootFolder:   p.RootFolder,
		Context:      p.Context,
		Created:      now,
		LastAccessed: now,
	}
	ws.Context.WorkspaceID = ws.ID

	if err := s.store.Workspaces().Create(ctx, ws); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return ws, nil
}

// LoadWorkspace retrieves a workspace by id, falling back to lookup by name.
// Every successful load touches lastAccessed (handled by the store).
func (s *Service) LoadWorkspace(ctx context.Context, idOrName string) (*types.Workspace, error) {
	ws, err := s.store.Workspaces().Get(ctx, idOrName)
	if err == nil {
		return ws, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load workspace: %w", err)
	}

	ws, err = s.store.Workspaces().GetByName(ctx, idOrName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("workspace %q: %w", idOrName, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("load workspace by name: %w", err)
	}

	// Name-fallback found it; re-load by id so lastAccessed is touched.
	return s.store.Workspaces().Get(ctx, ws.ID)
}

// UpdateWorkspaceContext replaces the living context of a workspace.
func (s *Service) UpdateWorkspaceContext(ctx context.Context, id string, wctx types.WorkspaceContext) error {
	wctx.WorkspaceID = id
	if err := s.store.Workspaces().UpdateContext(ctx, id, wctx); err != nil {
		return fmt.Errorf("update workspace context: %w", err)
	}
	return nil
}

// ListWorkspaces returns workspaces ordered by recency of use.
func (s *Service) ListWorkspaces(ctx context.Context, opts storage.ListOptions) (*storage.PageResult[types.Workspace], error) {
	return s.store.Workspaces().List(ctx, opts)
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// CreateSessionParams carries the caller-supplied fields of a new session.
// SessionID, when set, must be a canonical id from the Session Resolver; an
// empty value mints a fresh one.
type CreateSessionParams struct {
	SessionID         string
	WorkspaceID       string
	Name              string
	Description       string
	Goal              string
	PreviousSessionID string

	// EmitTrace controls whether a session-created MemoryTrace is appended
	// (best-effort; failures are logged and swallowed).
	EmitTrace bool

	// GenerateInstructions controls whether caller-facing continuity
	// instruction text is derived for the response.
	GenerateInstructions bool
}

// CreateSession resolves and validates the workspace, persists the session,
// optionally emits a trace, and optionally derives instruction text.
func (s *Service) CreateSession(ctx context.Context, p CreateSessionParams) (*types.Session, string, error) {
	if p.WorkspaceID == "" {
		return nil, "", fmt.Errorf("%w: workspaceId is required", storage.ErrInvalidInput)
	}

	ws, err := s.LoadWorkspace(ctx, p.WorkspaceID)
	if err != nil {
		return nil, "", err
	}

	id := p.SessionID
	if id == "" {
		id = session.NewID()
	}
	name := p.Name
	if name == "" {
		name = "Session " + time.Now().Format("2006-01-02 15:04")
	}

	sess := &types.Session{
		ID:                id,
		WorkspaceID:       ws.ID,
		Name:              name,
		Description:       p.Description,
		Goal:              p.Goal,
		StartTime:         time.Now(),
		IsActive:          true,
		PreviousSessionID: p.PreviousSessionID,
	}

	if err := s.store.Sessions().Create(ctx, sess); err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}

	if p.EmitTrace {
		s.emitTrace(ctx, &types.MemoryTrace{
			SessionID:   sess.ID,
			WorkspaceID: ws.ID,
			Content:     fmt.Sprintf("Session %q started in workspace %q", sess.Name, ws.Name),
			Type:        types.TraceSessionCreated,
			Metadata:    map[string]interface{}{"previousSessionId": p.PreviousSessionID},
		})
	}

	var instructions string
	if p.GenerateInstructions {
		instructions = sessionInstructions(sess, ws)
	}
	return sess, instructions, nil
}

// UpdateSessionParams carries the mutable session fields. Nil pointers leave
// a field unchanged.
type UpdateSessionParams struct {
	Name        *string
	Description *string
	Goal        *string
}

// UpdateSession applies the given mutations to an existing session.
func (s *Service) UpdateSession(ctx context.Context, id string, p UpdateSessionParams) (*types.Session, error) {
	sess, err := s.store.Sessions().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	if p.Name != nil {
		sess.Name = *p.Name
	}
	if p.Description != nil {
		sess.Description = *p.Description
	}
	if p.Goal != nil {
		sess.Goal = *p.Goal
	}

	if err := s.store.Sessions().Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return sess, nil
}

// LoadSessionParams controls session loading.
type LoadSessionParams struct {
	// IDOrName is tried as an id first, then as a name within WorkspaceID.
	IDOrName string

	// WorkspaceID is required only for the name-fallback path.
	WorkspaceID string

	// Continue spins up a continuation session carrying previousSessionId
	// and emits a restoration trace.
	Continue bool
}

// LoadSessionResult is the outcome of LoadSession.
type LoadSessionResult struct {
	Session      *types.Session
	Workspace    *types.Workspace
	Continuation *types.Session
}

// LoadSession retrieves a session by id with fallback to lookup by name, and
// optionally creates a continuation session referencing the original. The
// reads are sequential: the workspace id comes out of the session record.
func (s *Service) LoadSession(ctx context.Context, p LoadSessionParams) (*LoadSessionResult, error) {
	sess, err := s.store.Sessions().Get(ctx, p.IDOrName)
	if errors.Is(err, storage.ErrNotFound) && p.WorkspaceID != "" {
		sess, err = s.store.Sessions().GetByName(ctx, p.WorkspaceID, p.IDOrName)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("session %q: %w", p.IDOrName, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	ws, err := s.store.Workspaces().Get(ctx, sess.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("load session workspace: %w", err)
	}

	result := &LoadSessionResult{Session: sess, Workspace: ws}
	if !p.Continue {
		return result, nil
	}

	cont := &types.Session{
		ID:                session.NewID(),
		WorkspaceID:       sess.WorkspaceID,
		Name:              sess.Name + " (continued)",
		Description:       sess.Description,
		Goal:              sess.Goal,
		StartTime:         time.Now(),
		IsActive:          true,
		PreviousSessionID: sess.ID,
	}
	if err := s.store.Sessions().Create(ctx, cont); err != nil {
		return nil, fmt.Errorf("create continuation session: %w", err)
	}

	s.emitTrace(ctx, &types.MemoryTrace{
		SessionID:   cont.ID,
		WorkspaceID: sess.WorkspaceID,
		Content:     fmt.Sprintf("Session %q resumed as %s (goal: %s)", sess.Name, cont.ID, sess.Goal),
		Type:        types.TraceSessionResumed,
		Metadata:    map[string]interface{}{"previousSessionId": sess.ID},
	})

	result.Continuation = cont
	return result, nil
}

// ListSessions returns sessions filtered and paginated per opts.
func (s *Service) ListSessions(ctx context.Context, opts storage.ListOptions) (*storage.PageResult[types.Session], error) {
	return s.store.Sessions().List(ctx, opts)
}

// SessionLineage walks the previousSessionId chain backwards from the given
// session and returns the lineage newest-first, paginated. Chain walking has
// no native paging in any backend, so the pagination contract is applied
// in-memory over the fully assembled chain.
func (s *Service) SessionLineage(ctx context.Context, sessionID string, opts storage.ListOptions) (*storage.PageResult[types.Session], error) {
	const maxDepth = 50 // guards against previousSessionId cycles

	var chain []types.Session
	seen := make(map[string]bool)
	id := sessionID

	for id != "" && !seen[id] && len(chain) < maxDepth {
		seen[id] = true
		sess, err := s.store.Sessions().Get(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("session lineage: %w", err)
		}
		chain = append(chain, *sess)
		id = sess.PreviousSessionID
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("session %q: %w", sessionID, storage.ErrNotFound)
	}
	return storage.PaginateSlice(chain, opts), nil
}

// ---------------------------------------------------------------------------
// States
// ---------------------------------------------------------------------------

// CreateStateParams carries the caller-supplied fields of a new checkpoint.
type CreateStateParams struct {
	Name        string
	WorkspaceID string
	SessionID   string
	Context     types.StateContext
	Tags        []string
	Metadata    map[string]interface{}
}

// CreateState runs the checkpoint creation machine:
//
//	Validating → Resolving-Workspace → Persisting → Verifying → Committed
//
// Any failure after Persisting rolls the write back (deletes the record) and
// fails the create as a whole; a corrupt write never partially succeeds.
// The uniqueness check and the persist are not transactional: concurrent
// writers can race between them. The postgres backend closes that window
// with its unique index; on sqlite it is an accepted property.
func (s *Service) CreateState(ctx context.Context, p CreateStateParams) (*types.State, error) {
	// Validating: collect every missing field, not just the first.
	var fields []schema.FieldError
	if p.Name == "" {
		fields = append(fields, schema.FieldError{Field: "name", Requirement: "required and must be non-empty"})
	}
	if p.WorkspaceID == "" {
		fields = append(fields, schema.FieldError{Field: "workspaceId", Requirement: "required and must be non-empty"})
	}
	if p.Context.ActiveTask == "" {
		fields = append(fields, schema.FieldError{Field: "activeTask", Requirement: "required and must be non-empty"})
	}
	if len(fields) > 0 {
		return nil, &CreateStateError{Phase: types.PhaseValidating, Err: &schema.ValidationError{Fields: fields}}
	}

	// Resolving-Workspace: an absent workspace is fatal.
	ws, err := s.LoadWorkspace(ctx, p.WorkspaceID)
	if err != nil {
		return nil, &CreateStateError{Phase: types.PhaseResolvingWorkspace, Err: err}
	}

	// Uniqueness check. Racy with the persist below under concurrent
	// writers; see the method comment.
	if _, err := s.store.States().GetByName(ctx, ws.ID, p.Name); err == nil {
		return nil, &CreateStateError{
			Phase: types.PhaseValidating,
			Err:   &DuplicateNameError{Name: p.Name, Suggested: s.suggestStateName(ctx, ws.ID, p.Name)},
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, &CreateStateError{Phase: types.PhaseValidating, Err: fmt.Errorf("uniqueness check: %w", err)}
	}

	// Persisting.
	st := &types.State{
		ID:          "st_" + uuid.New().String(),
		Name:        p.Name,
		WorkspaceID: ws.ID,
		SessionID:   p.SessionID,
		Created:     time.Now(),
		Context:     p.Context,
		Tags:        p.Tags,
		Metadata:    p.Metadata,
	}
	st.Context.WorkspaceContext = ws.Context

	if err := s.store.States().Create(ctx, st); err != nil {
		if errors.Is(err, storage.ErrDuplicateName) {
			return nil, &CreateStateError{
				Phase: types.PhasePersisting,
				Err:   &DuplicateNameError{Name: p.Name, Suggested: s.suggestStateName(ctx, ws.ID, p.Name)},
			}
		}
		return nil, &CreateStateError{Phase: types.PhasePersisting, Err: err}
	}

	// Verifying: immediately re-read and check integrity.
	if err := s.verifyState(ctx, st); err != nil {
		s.rollbackState(ctx, st.ID)
		return nil, &CreateStateError{Phase: types.PhaseRolledBack, Err: err}
	}

	s.emitTrace(ctx, &types.MemoryTrace{
		SessionID:   st.SessionID,
		WorkspaceID: ws.ID,
		Content:     fmt.Sprintf("State %q checkpointed (task: %s)", st.Name, st.Context.ActiveTask),
		Type:        types.TraceStateCreated,
		Metadata:    map[string]interface{}{"stateId": st.ID},
	})

	return st, nil
}

// verifyState re-reads a just-written state and checks that the committed
// record is complete and matches what was written.
func (s *Service) verifyState(ctx context.Context, written *types.State) error {
	got, err := s.store.States().Get(ctx, written.ID)
	if err != nil {
		return fmt.Errorf("verification re-read failed: %w", err)
	}
	if got.Context.ActiveTask == "" {
		return fmt.Errorf("verification failed: committed state has empty activeTask")
	}
	if got.WorkspaceID != written.WorkspaceID || got.Name != written.Name {
		return fmt.Errorf("verification failed: committed state does not match write (workspace %q/%q, name %q/%q)",
			got.WorkspaceID, written.WorkspaceID, got.Name, written.Name)
	}
	return nil
}

// rollbackState deletes a failed write. It is the only caller of the state
// delete operation and is independently testable.
func (s *Service) rollbackState(ctx context.Context, id string) {
	if err := s.store.States().Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Printf("memory: rollback of state %s failed: %v", id, err)
	}
}

// suggestStateName proposes an unused alternate for a taken state name.
func (s *Service) suggestStateName(ctx context.Context, workspaceID, name string) string {
	for i := 2; i <= 5; i++ {
		candidate := fmt.Sprintf("%s-%d", name, i)
		if _, err := s.store.States().GetByName(ctx, workspaceID, candidate); errors.Is(err, storage.ErrNotFound) {
			return candidate
		}
	}
	return fmt.Sprintf("%s-%d", name, time.Now().Unix())
}

// LoadStateParams controls state loading.
type LoadStateParams struct {
	// IDOrName is tried as an id first, then as a name within WorkspaceID.
	IDOrName string

	// WorkspaceID is required for the name-fallback path.
	WorkspaceID string

	// Restore spins up a continuation session seeded from the checkpoint and
	// emits a restoration trace carrying forward the original context.
	Restore bool
}

// LoadStateResult is the outcome of LoadState.
type LoadStateResult struct {
	State          *types.State
	Workspace      *types.Workspace
	Session        *types.Session // original session, when still present
	RestoreSession *types.Session // continuation session, when Restore was set
}

// LoadState retrieves a state by id with fallback to lookup by name. The
// follow-up workspace and session reads are independent, so they are issued
// concurrently and joined before proceeding.
func (s *Service) LoadState(ctx context.Context, p LoadStateParams) (*LoadStateResult, error) {
	st, err := s.store.States().Get(ctx, p.IDOrName)
	if errors.Is(err, storage.ErrNotFound) && p.WorkspaceID != "" {
		st, err = s.store.States().GetByName(ctx, p.WorkspaceID, p.IDOrName)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("state %q: %w", p.IDOrName, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("load state: %w", err)
	}

	result := &LoadStateResult{State: st}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ws, err := s.store.Workspaces().Get(gctx, st.WorkspaceID)
		if err != nil {
			return fmt.Errorf("load state workspace: %w", err)
		}
		result.Workspace = ws
		return nil
	})
	g.Go(func() error {
		if st.SessionID == "" {
			return nil
		}
		sess, err := s.store.Sessions().Get(gctx, st.SessionID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil // original session gone; the checkpoint still loads
			}
			return fmt.Errorf("load state session: %w", err)
		}
		result.Session = sess
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if !p.Restore {
		return result, nil
	}

	restore := &types.Session{
		ID:                session.NewID(),
		WorkspaceID:       st.WorkspaceID,
		Name:              "Restored: " + st.Name,
		Description:       st.Context.ConversationContext,
		Goal:              st.Context.ActiveTask,
		StartTime:         time.Now(),
		IsActive:          true,
		PreviousSessionID: st.SessionID,
	}
	if err := s.store.Sessions().Create(ctx, restore); err != nil {
		return nil, fmt.Errorf("create restore session: %w", err)
	}

	s.emitTrace(ctx, &types.MemoryTrace{
		SessionID:   restore.ID,
		WorkspaceID: st.WorkspaceID,
		Content:     fmt.Sprintf("State %q restored: %s. Next steps: %v", st.Name, st.Context.ActiveTask, st.Context.NextSteps),
		Type:        types.TraceStateRestored,
		Metadata: map[string]interface{}{
			"stateId":           st.ID,
			"previousSessionId": st.SessionID,
		},
	})

	result.RestoreSession = restore
	return result, nil
}

// EditStateTags replaces the tags and metadata of a state, the only edits
// permitted after a checkpoint commits.
func (s *Service) EditStateTags(ctx context.Context, id string, tags []string, metadata map[string]interface{}) error {
	if err := s.store.States().UpdateTags(ctx, id, tags, metadata); err != nil {
		return fmt.Errorf("edit state tags: %w", err)
	}
	return nil
}

// ListStates returns states filtered and paginated per opts.
func (s *Service) ListStates(ctx context.Context, opts storage.ListOptions) (*storage.PageResult[types.State], error) {
	return s.store.States().List(ctx, opts)
}

// ListTraces returns memory traces filtered and paginated per opts.
func (s *Service) ListTraces(ctx context.Context, opts storage.ListOptions) (*storage.PageResult[types.MemoryTrace], error) {
	return s.store.Traces().List(ctx, opts)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// emitTrace appends a trace best-effort. Failures are logged and swallowed;
// an audit hiccup never fails the operation that caused it.
func (s *Service) emitTrace(ctx context.Context, tr *types.MemoryTrace) {
	tr.ID = "tr_" + uuid.New().String()
	tr.Timestamp = time.Now()
	if err := s.store.Traces().Append(ctx, tr); err != nil {
		s.logger.Printf("memory: trace emission failed (type %s): %v", tr.Type, err)
	}
}

func sessionInstructions(sess *types.Session, ws *types.Workspace) string {
	text := fmt.Sprintf("Session %s is active in workspace %q.", sess.ID, ws.Name)
	if ws.Context.CurrentGoal != "" {
		text += fmt.Sprintf(" Current goal: %s.", ws.Context.CurrentGoal)
	}
	text += fmt.Sprintf(" Pass sessionId %q in the context of every subsequent tool call.", sess.ID)
	return text
}
