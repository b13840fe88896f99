// Package storagetest provides an in-memory storage.Store for tests. It
// honors the same filtering and pagination contract as the real backends and
// exposes hooks for injecting read corruption and failures, which the
// verify/rollback tests need.
package storagetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/threadline-dev/threadline/internal/storage"
	"github.com/threadline-dev/threadline/pkg/types"
)

// Store is an in-memory storage.Store.
type Store struct {
	mu         sync.Mutex
	workspaces map[string]*types.Workspace
	sessions   map[string]*types.Session
	states     map[string]*types.State
	traces     []*types.MemoryTrace

	// OnStateReread, when set, replaces the record returned by a state Get.
	// Lets tests corrupt the verification re-read.
	OnStateReread func(st types.State) types.State

	// SessionGetErr, when set, is returned by every session Get.
	SessionGetErr error

	// DeletedStateIDs records rollback deletions in order.
	DeletedStateIDs []string

	// UpdatedContextIDs records workspace-context replacements in order.
	UpdatedContextIDs []string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		workspaces: make(map[string]*types.Workspace),
		sessions:   make(map[string]*types.Session),
		states:     make(map[string]*types.State),
	}
}

func (s *Store) Workspaces() storage.WorkspaceStore { return (*workspaceStore)(s) }
func (s *Store) Sessions() storage.SessionStore     { return (*sessionStore)(s) }
func (s *Store) States() storage.StateStore         { return (*stateStore)(s) }
func (s *Store) Traces() storage.TraceStore         { return (*traceStore)(s) }
func (s *Store) Close() error                       { return nil }

// TraceCount returns the number of appended traces.
func (s *Store) TraceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.traces)
}

// TraceTypes returns the types of appended traces, in order.
func (s *Store) TraceTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.traces))
	for i, tr := range s.traces {
		out[i] = tr.Type
	}
	return out
}

// ---------------------------------------------------------------------------
// workspaces
// ---------------------------------------------------------------------------

type workspaceStore Store

func (s *workspaceStore) Create(_ context.Context, ws *types.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ws
	s.workspaces[ws.ID] = &cp
	return nil
}

func (s *workspaceStore) Get(_ context.Context, id string) (*types.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	ws.LastAccessed = time.Now()
	cp := *ws
	return &cp, nil
}

func (s *workspaceStore) GetByName(_ context.Context, name string) (*types.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.workspaces {
		if strings.EqualFold(ws.Name, name) {
			cp := *ws
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *workspaceStore) UpdateContext(_ context.Context, id string, wctx types.WorkspaceContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return storage.ErrNotFound
	}
	ws.Context = wctx
	s.UpdatedContextIDs = append(s.UpdatedContextIDs, id)
	return nil
}

func (s *workspaceStore) List(_ context.Context, opts storage.ListOptions) (*storage.PageResult[types.Workspace], error) {
	s.mu.Lock()
	all := make([]types.Workspace, 0, len(s.workspaces))
	for _, ws := range s.workspaces {
		all = append(all, *ws)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].LastAccessed.After(all[j].LastAccessed) })
	return storage.PaginateSlice(all, opts), nil
}

// ---------------------------------------------------------------------------
// sessions
// ---------------------------------------------------------------------------

type sessionStore Store

func (s *sessionStore) Create(_ context.Context, sess *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *sessionStore) Get(_ context.Context, id string) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SessionGetErr != nil {
		return nil, s.SessionGetErr
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *sessionStore) GetByName(_ context.Context, workspaceID, name string) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.WorkspaceID == workspaceID && strings.EqualFold(sess.Name, name) {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *sessionStore) Update(_ context.Context, sess *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *sessionStore) List(_ context.Context, opts storage.ListOptions) (*storage.PageResult[types.Session], error) {
	s.mu.Lock()
	all := make([]types.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if opts.WorkspaceID != "" && sess.WorkspaceID != opts.WorkspaceID {
			continue
		}
		if opts.ActiveOnly && !sess.IsActive {
			continue
		}
		all = append(all, *sess)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].StartTime.Equal(all[j].StartTime) {
			return all[i].ID < all[j].ID
		}
		return all[i].StartTime.After(all[j].StartTime)
	})
	return storage.PaginateSlice(all, opts), nil
}

// ---------------------------------------------------------------------------
// states
// ---------------------------------------------------------------------------

type stateStore Store

func (s *stateStore) Create(_ context.Context, st *types.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.states {
		if existing.WorkspaceID == st.WorkspaceID && existing.Name == st.Name {
			return storage.ErrDuplicateName
		}
	}
	cp := *st
	s.states[st.ID] = &cp
	return nil
}

func (s *stateStore) Get(_ context.Context, id string) (*types.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *st
	if s.OnStateReread != nil {
		cp = s.OnStateReread(cp)
	}
	return &cp, nil
}

func (s *stateStore) GetByName(_ context.Context, workspaceID, name string) (*types.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		if st.WorkspaceID == workspaceID && st.Name == name {
			cp := *st
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *stateStore) UpdateTags(_ context.Context, id string, tags []string, metadata map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return storage.ErrNotFound
	}
	st.Tags = tags
	st.Metadata = metadata
	return nil
}

func (s *stateStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.states, id)
	s.DeletedStateIDs = append(s.DeletedStateIDs, id)
	return nil
}

func (s *stateStore) List(_ context.Context, opts storage.ListOptions) (*storage.PageResult[types.State], error) {
	s.mu.Lock()
	all := make([]types.State, 0, len(s.states))
	for _, st := range s.states {
		if opts.WorkspaceID != "" && st.WorkspaceID != opts.WorkspaceID {
			continue
		}
		if opts.SessionID != "" && st.SessionID != opts.SessionID {
			continue
		}
		all = append(all, *st)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Created.Equal(all[j].Created) {
			return all[i].ID < all[j].ID
		}
		return all[i].Created.After(all[j].Created)
	})
	return storage.PaginateSlice(all, opts), nil
}

// ---------------------------------------------------------------------------
// traces
// ---------------------------------------------------------------------------

type traceStore Store

func (s *traceStore) Append(_ context.Context, tr *types.MemoryTrace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tr
	s.traces = append(s.traces, &cp)
	return nil
}

func (s *traceStore) List(_ context.Context, opts storage.ListOptions) (*storage.PageResult[types.MemoryTrace], error) {
	s.mu.Lock()
	all := make([]types.MemoryTrace, 0, len(s.traces))
	for _, tr := range s.traces {
		if opts.WorkspaceID != "" && tr.WorkspaceID != opts.WorkspaceID {
			continue
		}
		if opts.SessionID != "" && tr.SessionID != opts.SessionID {
			continue
		}
		if opts.TraceType != "" && tr.Type != opts.TraceType {
			continue
		}
		all = append(all, *tr)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })
	return storage.PaginateSlice(all, opts), nil
}
