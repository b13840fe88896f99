package agents

import (
	"fmt"

	"github.com/threadline-dev/threadline/internal/executor"
	"github.com/threadline-dev/threadline/internal/memory"
	"github.com/threadline-dev/threadline/internal/registry"
)

// MemoryManagerAgent is the agent name the continuity modes register under.
const MemoryManagerAgent = "memoryManager"

// RegisterMemoryManager wires the memoryManager modes into the registry.
// External agents register through the same Registry interface.
func RegisterMemoryManager(reg *registry.Registry, svc *memory.Service, exec *executor.Executor) error {
	modes := []struct {
		name        string
		description string
		op          registry.Operation
	}{
		{"createWorkspace", "Create a new workspace with its living context.", &createWorkspaceOp{svc: svc}},
		{"loadWorkspace", "Load a workspace by id or name; touches lastAccessed.", &loadWorkspaceOp{svc: svc}},
		{"listWorkspaces", "List workspaces, most recently used first.", &listWorkspacesOp{svc: svc}},
		{"editWorkspace", "Replace a workspace's living context.", &editWorkspaceOp{svc: svc}},
		{"createSession", "Start a session in a workspace.", &createSessionOp{svc: svc}},
		{"loadSession", "Load a session by id or name, optionally continuing it.", &loadSessionOp{svc: svc}},
		{"listSessions", "List sessions with pagination.", &listSessionsOp{svc: svc}},
		{"sessionLineage", "Walk a session's continuation chain, newest first.", &sessionLineageOp{svc: svc}},
		{"editSession", "Update a session's name, description, or goal.", &editSessionOp{svc: svc}},
		{"createState", "Checkpoint the current working context (verified write).", &createStateOp{svc: svc}},
		{"loadState", "Load a checkpoint by id or name, optionally restoring it.", &loadStateOp{svc: svc}},
		{"listStates", "List checkpoints with pagination.", &listStatesOp{svc: svc}},
		{"editState", "Edit a checkpoint's tags and metadata.", &editStateOp{svc: svc}},
		{"listTraces", "List the append-only audit trail.", &listTracesOp{svc: svc}},
		{"batch", "Run several modes as one capped-concurrency batch.", &batchOp{exec: exec}},
	}

	for _, m := range modes {
		if err := reg.Register(MemoryManagerAgent, m.name, m.description, m.op); err != nil {
			return fmt.Errorf("register %s_%s: %w", MemoryManagerAgent, m.name, err)
		}
	}
	return nil
}
