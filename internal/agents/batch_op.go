package agents

import (
	"context"
	"fmt"

	"github.com/threadline-dev/threadline/internal/executor"
	"github.com/threadline-dev/threadline/internal/storage"
	"github.com/threadline-dev/threadline/pkg/types"
)

// batchOp runs N independent sub-operations in capped-concurrency waves with
// staggered admission. Items fail independently; the batch reports every
// outcome rather than aborting on the first failure.
type batchOp struct {
	exec *executor.Executor
}

func (op *batchOp) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	raw, ok := params["operations"]
	if !ok {
		return nil, fmt.Errorf("%w: batch requires an operations array", storage.ErrInvalidInput)
	}
	var items []executor.BatchItem
	if err := decodeInto(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: operations must be an array of {tool, params}: %v", storage.ErrInvalidInput, err)
	}

	// Rebuild the continuity the router resolved so sub-operations inherit it.
	rc := &types.RequestContext{
		SessionID: stringParam(params, "sessionId"),
	}
	if wsID := stringParam(params, "workspaceId"); wsID != "" {
		rc.Workspace = &types.WorkspaceContext{WorkspaceID: wsID}
	}

	results, err := op.exec.ExecuteBatch(ctx, rc, items)
	if err != nil {
		return nil, err
	}

	rendered := make([]map[string]interface{}, len(results))
	succeeded := 0
	for i, res := range results {
		item := map[string]interface{}{
			"tool":       res.ToolName,
			"success":    res.Succeeded(),
			"durationMs": res.Duration.Milliseconds(),
		}
		if res.Succeeded() {
			item["output"] = res.Output
			succeeded++
		} else {
			item["error"] = res.Err.Error()
		}
		rendered[i] = item
	}

	return map[string]interface{}{
		"success":   true,
		"total":     len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
		"results":   rendered,
	}, nil
}

func (op *batchOp) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"operations": map[string]interface{}{
				"type":        "array",
				"description": "Sub-operations to run, each {tool: \"<agent>_<mode>\", params: {...}}.",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"tool":   map[string]interface{}{"type": "string"},
						"params": map[string]interface{}{"type": "object"},
					},
				},
			},
		},
		"required": []interface{}{"operations"},
	}
}
