package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopOp struct{}

func (nopOp) Execute(context.Context, map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{"ok": true}, nil
}
func (nopOp) ParameterSchema() map[string]interface{} { return nil }

func TestRegister_DuplicateIsError(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("memoryManager", "createState", "", nopOp{}))
	err := r.Register("memoryManager", "createState", "", nopOp{})
	require.Error(t, err, "the catalog is fixed at startup")
}

func TestGetMode_Sentinels(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("memoryManager", "createState", "", nopOp{}))

	_, err := r.GetMode("nobody", "createState")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	_, err = r.GetMode("memoryManager", "nothing")
	assert.ErrorIs(t, err, ErrModeNotFound)

	d, err := r.GetMode("memoryManager", "createState")
	require.NoError(t, err)
	assert.Equal(t, "memoryManager_createState", d.FullName())
}

func TestSuggestAgent_CaseInsensitive(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("memoryManager", "createState", "", nopOp{}))

	got, ok := r.SuggestAgent("MemoryManager")
	require.True(t, ok)
	assert.Equal(t, "memoryManager", got)

	got, ok = r.SuggestAgent("MEMORYMANAGER")
	require.True(t, ok)
	assert.Equal(t, "memoryManager", got)

	_, ok = r.SuggestAgent("storageManager")
	assert.False(t, ok)
}

func TestDescriptors_StableOrder(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("zeta", "b", "", nopOp{}))
	require.NoError(t, r.Register("zeta", "a", "", nopOp{}))
	require.NoError(t, r.Register("alpha", "x", "", nopOp{}))

	var names []string
	for _, d := range r.Descriptors() {
		names = append(names, d.FullName())
	}
	// Agents in registration order, modes sorted within each agent.
	assert.Equal(t, []string{"zeta_a", "zeta_b", "alpha_x"}, names)
}

func TestSplitToolName_LastSeparator(t *testing.T) {
	cases := []struct {
		full      string
		agent     string
		remainder string
		ok        bool
	}{
		{"memoryManager_tool", "memoryManager", "tool", true},
		{"memoryManager_createState", "memoryManager", "createState", true},
		{"my_agent_mode", "my_agent", "mode", true},
		{"nounderscore", "", "", false},
		{"_leading", "", "", false},
		{"trailing_", "", "", false},
	}
	for _, tc := range cases {
		agent, remainder, ok := SplitToolName(tc.full)
		assert.Equal(t, tc.ok, ok, tc.full)
		assert.Equal(t, tc.agent, agent, tc.full)
		assert.Equal(t, tc.remainder, remainder, tc.full)
	}
}
