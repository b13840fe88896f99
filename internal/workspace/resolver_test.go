package workspace_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline-dev/threadline/internal/workspace"
	"github.com/threadline-dev/threadline/pkg/types"
)

func TestResolve_ExplicitBeatsParent(t *testing.T) {
	parent := &types.WorkspaceContext{WorkspaceID: "W2", Purpose: "parent scope"}

	got, err := workspace.Resolve("W1", parent, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "W1", got.WorkspaceID, "explicit workspace must win over the inherited parent")
}

func TestResolve_ParentInheritedWhenNoExplicit(t *testing.T) {
	parent := &types.WorkspaceContext{WorkspaceID: "W2", CurrentGoal: "ship it"}

	got, err := workspace.Resolve(nil, parent, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "W2", got.WorkspaceID)
	assert.Equal(t, "ship it", got.CurrentGoal)

	// The inherited copy must not alias the parent.
	got.CurrentGoal = "changed"
	assert.Equal(t, "ship it", parent.CurrentGoal)
}

func TestResolve_ParentWithoutWorkspaceIDIsSkipped(t *testing.T) {
	parent := &types.WorkspaceContext{Purpose: "no id here"}

	got, err := workspace.Resolve(nil, parent, "")
	require.NoError(t, err)
	assert.Nil(t, got, "a parent without a workspace id carries nothing to inherit")
}

func TestResolve_AbsentEverything(t *testing.T) {
	got, err := workspace.Resolve(nil, nil, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolve_StringEncodedContext(t *testing.T) {
	got, err := workspace.Resolve(`{"workspaceId":"ws_abc","purpose":"api work"}`, nil, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ws_abc", got.WorkspaceID)
	assert.Equal(t, "api work", got.Purpose)
}

func TestResolve_BareWorkspaceIDString(t *testing.T) {
	got, err := workspace.Resolve("ws_xyz", nil, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ws_xyz", got.WorkspaceID)
}

func TestResolve_ObjectContext(t *testing.T) {
	raw := map[string]interface{}{
		"workspaceId": "ws_map",
		"currentGoal": "write tests",
	}
	got, err := workspace.Resolve(raw, nil, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ws_map", got.WorkspaceID)
	assert.Equal(t, "write tests", got.CurrentGoal)
}

func TestResolve_ExplicitWithoutIDGetsFallback(t *testing.T) {
	raw := map[string]interface{}{"purpose": "scratch work"}

	got, err := workspace.Resolve(raw, nil, "ws_fallback")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ws_fallback", got.WorkspaceID)
}

func TestResolve_ExplicitWithoutIDGetsDefaultSentinel(t *testing.T) {
	got, err := workspace.Resolve(map[string]interface{}{"purpose": "x"}, nil, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.DefaultWorkspaceID, got.WorkspaceID)
}

func TestResolve_MalformedStringContext(t *testing.T) {
	_, err := workspace.Resolve(`{"workspaceId": not-json}`, nil, "")
	require.Error(t, err)
}

func TestResolve_EmptyExplicitFallsThroughToParent(t *testing.T) {
	parent := &types.WorkspaceContext{WorkspaceID: "W2"}

	got, err := workspace.Resolve("", parent, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "W2", got.WorkspaceID)
}
