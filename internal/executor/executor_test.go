package executor_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline-dev/threadline/internal/executor"
	"github.com/threadline-dev/threadline/internal/registry"
	"github.com/threadline-dev/threadline/internal/storage"
	"github.com/threadline-dev/threadline/pkg/types"
)

// scriptedOp returns the configured output or error on every call.
type scriptedOp struct {
	out   map[string]interface{}
	err   error
	calls int32
}

func (op *scriptedOp) Execute(context.Context, map[string]interface{}) (map[string]interface{}, error) {
	atomic.AddInt32(&op.calls, 1)
	if op.err != nil {
		return nil, op.err
	}
	return op.out, nil
}

func (op *scriptedOp) ParameterSchema() map[string]interface{} { return nil }

func newRC(tool string) *types.RequestContext {
	return &types.RequestContext{FullToolName: tool, SessionID: "ses_test"}
}

func TestExecute_CapturesOutputAndTiming(t *testing.T) {
	e := executor.New(registry.New(), nil)
	op := &scriptedOp{out: map[string]interface{}{"success": true}}

	res, err := e.Execute(context.Background(), newRC("memoryManager_tool"), op)
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, map[string]interface{}{"success": true}, res.Output)
	assert.False(t, res.StartedAt.IsZero())
}

func TestExecute_BusinessErrorIsResultNotRefusal(t *testing.T) {
	e := executor.New(registry.New(), nil)
	op := &scriptedOp{err: fmt.Errorf("state %q: %w", "cp1", storage.ErrNotFound)}

	res, err := e.Execute(context.Background(), newRC("memoryManager_tool"), op)
	require.NoError(t, err, "business failures come back in the result, not as invocation errors")
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, storage.ErrNotFound)
}

func TestExecute_BusinessErrorsNeverOpenBreaker(t *testing.T) {
	e := executor.New(registry.New(), nil)
	op := &scriptedOp{err: fmt.Errorf("%w: bad params", storage.ErrInvalidInput)}

	for i := 0; i < 20; i++ {
		_, err := e.Execute(context.Background(), newRC("memoryManager_tool"), op)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 20, op.calls, "the breaker must stay closed through business failures")
}

func TestExecute_InfrastructureFailuresOpenBreaker(t *testing.T) {
	e := executor.New(registry.New(), nil)
	op := &scriptedOp{err: errors.New("connection reset")}

	var refused bool
	for i := 0; i < 10; i++ {
		_, err := e.Execute(context.Background(), newRC("memoryManager_tool"), op)
		if err != nil {
			assert.ErrorIs(t, err, executor.ErrUnavailable)
			refused = true
			break
		}
	}
	assert.True(t, refused, "repeated infrastructure failures must open the breaker")
	assert.Less(t, op.calls, int32(10), "an open breaker refuses before invoking the operation")
}

func TestExecuteBatch_PartialFailureTolerance(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("memoryManager", "good", "", &scriptedOp{out: map[string]interface{}{"success": true}}))
	require.NoError(t, reg.Register("memoryManager", "bad", "", &scriptedOp{err: fmt.Errorf("%w: nope", storage.ErrInvalidInput)}))

	e := executor.New(reg, nil, executor.WithBatchLimit(2))

	items := []executor.BatchItem{
		{Tool: "memoryManager_good"},
		{Tool: "memoryManager_bad"},
		{Tool: "memoryManager_good"},
	}
	results, err := e.ExecuteBatch(context.Background(), newRC("memoryManager_tool"), items)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Succeeded())
	assert.False(t, results[1].Succeeded())
	assert.True(t, results[2].Succeeded(), "one failing item never aborts the rest")
}

func TestExecuteBatch_ResolutionFailuresAreItemResults(t *testing.T) {
	e := executor.New(registry.New(), nil)

	results, err := e.ExecuteBatch(context.Background(), newRC("memoryManager_tool"), []executor.BatchItem{
		{Tool: "noseparator"},
		{Tool: "ghost_mode"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, registry.ErrAgentNotFound)
}

func TestExecuteBatch_EmptyIsInvalid(t *testing.T) {
	e := executor.New(registry.New(), nil)
	_, err := e.ExecuteBatch(context.Background(), newRC("memoryManager_tool"), nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

// paramCaptureOp records the params it was invoked with.
type paramCaptureOp struct {
	got map[string]interface{}
}

func (op *paramCaptureOp) Execute(_ context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	op.got = params
	return map[string]interface{}{"success": true}, nil
}

func (op *paramCaptureOp) ParameterSchema() map[string]interface{} { return nil }

func TestExecuteBatch_ItemsInheritParentContinuity(t *testing.T) {
	reg := registry.New()
	capture := &paramCaptureOp{}
	require.NoError(t, reg.Register("memoryManager", "probe", "", capture))

	e := executor.New(reg, nil)
	rc := newRC("memoryManager_tool")
	rc.Workspace = &types.WorkspaceContext{WorkspaceID: "ws_parent"}

	_, err := e.ExecuteBatch(context.Background(), rc, []executor.BatchItem{{Tool: "memoryManager_probe"}})
	require.NoError(t, err)
	require.NotNil(t, capture.got)
	assert.Equal(t, "ses_test", capture.got["sessionId"])
	assert.Equal(t, "ws_parent", capture.got["workspaceId"])
}
