package handlers

import (
	"context"

	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
)

// Parallel returns the PARALLEL node handler (spec §4.F). If the node
// carries an operation it runs as a generic tool; otherwise it emits a
// marker result — the actual fan-out parallelism comes from the scheduler
// running sibling nodes concurrently, not from this handler.
func Parallel(registry *Registry) func(ctx context.Context, node, resolved pipeline.NodeDefinition, execCtx *pipeline.ExecutionContext) (any, error) {
	return func(ctx context.Context, node, resolved pipeline.NodeDefinition, execCtx *pipeline.ExecutionContext) (any, error) {
		if _, ok := resolved.Config["operation"]; ok {
			return registry.Dispatch(ctx, resolved.Config)
		}
		return map[string]any{
			"status":          "completed",
			"nodeId":          string(node.ID),
			"parallelBranches": node.Dependencies,
		}, nil
	}
}
