package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline-dev/threadline/internal/memory"
	"github.com/threadline-dev/threadline/internal/schema"
	"github.com/threadline-dev/threadline/internal/storage"
	"github.com/threadline-dev/threadline/internal/storage/storagetest"
	"github.com/threadline-dev/threadline/pkg/types"
)

func newFixture(t *testing.T) (*memory.Service, *storagetest.Store, *types.Workspace) {
	t.Helper()
	store := storagetest.New()
	svc := memory.NewService(store, nil)

	ws, err := svc.CreateWorkspace(context.Background(), memory.CreateWorkspaceParams{
		Name:       "Demo",
		RootFolder: "/demo",
	})
	require.NoError(t, err)
	return svc, store, ws
}

// ---------------------------------------------------------------------------
// state create machine
// ---------------------------------------------------------------------------

func TestCreateState_HappyPathRoundTrip(t *testing.T) {
	svc, _, ws := newFixture(t)
	ctx := context.Background()

	sess, _, err := svc.CreateSession(ctx, memory.CreateSessionParams{WorkspaceID: ws.ID})
	require.NoError(t, err)

	st, err := svc.CreateState(ctx, memory.CreateStateParams{
		Name:        "cp1",
		WorkspaceID: ws.ID,
		SessionID:   sess.ID,
		Context: types.StateContext{
			ActiveTask:  "draft outline",
			ActiveFiles: []string{"a.md"},
			NextSteps:   []string{"continue"},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, st.ID)

	loaded, err := svc.LoadState(ctx, memory.LoadStateParams{IDOrName: "cp1", WorkspaceID: ws.ID})
	require.NoError(t, err)
	assert.Equal(t, "draft outline", loaded.State.Context.ActiveTask)
	assert.Equal(t, []string{"a.md"}, loaded.State.Context.ActiveFiles)
	assert.Equal(t, ws.ID, loaded.State.WorkspaceID)
}

func TestCreateState_ValidationCollectsAllFields(t *testing.T) {
	svc, _, _ := newFixture(t)

	_, err := svc.CreateState(context.Background(), memory.CreateStateParams{})
	require.Error(t, err)

	var ce *memory.CreateStateError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, types.PhaseValidating, ce.Phase)

	var ve *schema.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Fields, 3, "name, workspaceId, and activeTask must all be reported together")
}

func TestCreateState_AbsentWorkspaceIsFatal(t *testing.T) {
	svc, _, _ := newFixture(t)

	_, err := svc.CreateState(context.Background(), memory.CreateStateParams{
		Name:        "cp1",
		WorkspaceID: "ws_missing",
		Context:     types.StateContext{ActiveTask: "x"},
	})
	require.Error(t, err)

	var ce *memory.CreateStateError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, types.PhaseResolvingWorkspace, ce.Phase)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateState_DuplicateNameSuggestsAlternate(t *testing.T) {
	svc, store, ws := newFixture(t)
	ctx := context.Background()

	_, err := svc.CreateState(ctx, memory.CreateStateParams{
		Name:        "cp1",
		WorkspaceID: ws.ID,
		Context:     types.StateContext{ActiveTask: "first"},
	})
	require.NoError(t, err)

	_, err = svc.CreateState(ctx, memory.CreateStateParams{
		Name:        "cp1",
		WorkspaceID: ws.ID,
		Context:     types.StateContext{ActiveTask: "second"},
	})
	require.Error(t, err)

	var de *memory.DuplicateNameError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "cp1", de.Name)
	assert.Equal(t, "cp1-2", de.Suggested)

	// Exactly one record exists for the pair.
	page, err := store.States().List(ctx, storage.ListOptions{WorkspaceID: ws.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalItems)
}

func TestCreateState_RollbackOnCorruptVerify(t *testing.T) {
	svc, store, ws := newFixture(t)

	// Corrupt the verification re-read: the committed record comes back with
	// an empty activeTask.
	store.OnStateReread = func(st types.State) types.State {
		st.Context.ActiveTask = ""
		return st
	}

	_, err := svc.CreateState(context.Background(), memory.CreateStateParams{
		Name:        "cp-bad",
		WorkspaceID: ws.ID,
		Context:     types.StateContext{ActiveTask: "doomed"},
	})
	require.Error(t, err)

	var ce *memory.CreateStateError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, types.PhaseRolledBack, ce.Phase)
	require.Len(t, store.DeletedStateIDs, 1, "the failed write must be rolled back")

	// No partial success: the record is gone.
	store.OnStateReread = nil
	_, err = store.States().GetByName(context.Background(), ws.ID, "cp-bad")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateState_EmitsTrace(t *testing.T) {
	svc, store, ws := newFixture(t)

	_, err := svc.CreateState(context.Background(), memory.CreateStateParams{
		Name:        "cp1",
		WorkspaceID: ws.ID,
		Context:     types.StateContext{ActiveTask: "x"},
	})
	require.NoError(t, err)
	assert.Contains(t, store.TraceTypes(), types.TraceStateCreated)
}

// ---------------------------------------------------------------------------
// sessions
// ---------------------------------------------------------------------------

func TestCreateSession_RoundTrip(t *testing.T) {
	svc, _, ws := newFixture(t)
	ctx := context.Background()

	sess, instructions, err := svc.CreateSession(ctx, memory.CreateSessionParams{
		WorkspaceID:          ws.ID,
		Name:                 "refactor",
		Description:          "storage cleanup",
		Goal:                 "extract interfaces",
		EmitTrace:            true,
		GenerateInstructions: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, instructions)
	assert.Contains(t, instructions, sess.ID)

	loaded, err := svc.LoadSession(ctx, memory.LoadSessionParams{IDOrName: sess.ID})
	require.NoError(t, err)
	assert.Equal(t, "refactor", loaded.Session.Name)
	assert.Equal(t, "storage cleanup", loaded.Session.Description)
	assert.Equal(t, "extract interfaces", loaded.Session.Goal)
	assert.True(t, loaded.Session.IsActive)
}

func TestCreateSession_UnknownWorkspaceFails(t *testing.T) {
	svc, _, _ := newFixture(t)

	_, _, err := svc.CreateSession(context.Background(), memory.CreateSessionParams{WorkspaceID: "ws_nope"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLoadSession_ByNameFallback(t *testing.T) {
	svc, _, ws := newFixture(t)
	ctx := context.Background()

	created, _, err := svc.CreateSession(ctx, memory.CreateSessionParams{WorkspaceID: ws.ID, Name: "sprint-1"})
	require.NoError(t, err)

	loaded, err := svc.LoadSession(ctx, memory.LoadSessionParams{IDOrName: "sprint-1", WorkspaceID: ws.ID})
	require.NoError(t, err)
	assert.Equal(t, created.ID, loaded.Session.ID)
}

func TestLoadSession_ContinuationCarriesPreviousID(t *testing.T) {
	svc, store, ws := newFixture(t)
	ctx := context.Background()

	orig, _, err := svc.CreateSession(ctx, memory.CreateSessionParams{WorkspaceID: ws.ID, Goal: "finish it"})
	require.NoError(t, err)

	res, err := svc.LoadSession(ctx, memory.LoadSessionParams{IDOrName: orig.ID, Continue: true})
	require.NoError(t, err)
	require.NotNil(t, res.Continuation)
	assert.Equal(t, orig.ID, res.Continuation.PreviousSessionID)
	assert.Equal(t, "finish it", res.Continuation.Goal)
	assert.Contains(t, store.TraceTypes(), types.TraceSessionResumed)
}

func TestSessionLineage_PaginatedNewestFirst(t *testing.T) {
	svc, _, ws := newFixture(t)
	ctx := context.Background()

	first, _, err := svc.CreateSession(ctx, memory.CreateSessionParams{WorkspaceID: ws.ID, Name: "gen-1"})
	require.NoError(t, err)
	second, _, err := svc.CreateSession(ctx, memory.CreateSessionParams{WorkspaceID: ws.ID, Name: "gen-2", PreviousSessionID: first.ID})
	require.NoError(t, err)
	third, _, err := svc.CreateSession(ctx, memory.CreateSessionParams{WorkspaceID: ws.ID, Name: "gen-3", PreviousSessionID: second.ID})
	require.NoError(t, err)

	page, err := svc.SessionLineage(ctx, third.ID, storage.ListOptions{Page: 0, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, third.ID, page.Items[0].ID)
	assert.Equal(t, second.ID, page.Items[1].ID)
	assert.True(t, page.HasNextPage)
}

// ---------------------------------------------------------------------------
// state load / restore
// ---------------------------------------------------------------------------

func TestLoadState_RestoreSpinsUpSession(t *testing.T) {
	svc, store, ws := newFixture(t)
	ctx := context.Background()

	sess, _, err := svc.CreateSession(ctx, memory.CreateSessionParams{WorkspaceID: ws.ID})
	require.NoError(t, err)

	_, err = svc.CreateState(ctx, memory.CreateStateParams{
		Name:        "cp1",
		WorkspaceID: ws.ID,
		SessionID:   sess.ID,
		Context:     types.StateContext{ActiveTask: "resume me", NextSteps: []string{"step"}},
	})
	require.NoError(t, err)

	res, err := svc.LoadState(ctx, memory.LoadStateParams{IDOrName: "cp1", WorkspaceID: ws.ID, Restore: true})
	require.NoError(t, err)
	require.NotNil(t, res.RestoreSession)
	assert.Equal(t, sess.ID, res.RestoreSession.PreviousSessionID)
	assert.Equal(t, "resume me", res.RestoreSession.Goal)
	assert.Contains(t, store.TraceTypes(), types.TraceStateRestored)
}

func TestLoadState_SurvivesMissingOriginalSession(t *testing.T) {
	svc, _, ws := newFixture(t)
	ctx := context.Background()

	_, err := svc.CreateState(ctx, memory.CreateStateParams{
		Name:        "orphan",
		WorkspaceID: ws.ID,
		SessionID:   "ses_gone",
		Context:     types.StateContext{ActiveTask: "x"},
	})
	require.NoError(t, err)

	res, err := svc.LoadState(ctx, memory.LoadStateParams{IDOrName: "orphan", WorkspaceID: ws.ID})
	require.NoError(t, err)
	assert.Nil(t, res.Session, "the checkpoint still loads when its session is gone")
}

// ---------------------------------------------------------------------------
// workspaces and listing
// ---------------------------------------------------------------------------

func TestLoadWorkspace_ByNameFallback(t *testing.T) {
	svc, _, ws := newFixture(t)

	got, err := svc.LoadWorkspace(context.Background(), "Demo")
	require.NoError(t, err)
	assert.Equal(t, ws.ID, got.ID)
}

func TestListSessions_Idempotent(t *testing.T) {
	svc, _, ws := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := svc.CreateSession(ctx, memory.CreateSessionParams{WorkspaceID: ws.ID})
		require.NoError(t, err)
	}

	opts := storage.ListOptions{WorkspaceID: ws.ID, Page: 0, PageSize: 10}
	first, err := svc.ListSessions(ctx, opts)
	require.NoError(t, err)
	second, err := svc.ListSessions(ctx, opts)
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical calls with no intervening writes return identical pages")
	assert.Equal(t, 3, first.TotalItems)
}

func TestEditStateTags(t *testing.T) {
	svc, _, ws := newFixture(t)
	ctx := context.Background()

	st, err := svc.CreateState(ctx, memory.CreateStateParams{
		Name:        "cp1",
		WorkspaceID: ws.ID,
		Context:     types.StateContext{ActiveTask: "x"},
	})
	require.NoError(t, err)

	require.NoError(t, svc.EditStateTags(ctx, st.ID, []string{"milestone"}, map[string]interface{}{"k": "v"}))

	loaded, err := svc.LoadState(ctx, memory.LoadStateParams{IDOrName: st.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"milestone"}, loaded.State.Tags)
}
