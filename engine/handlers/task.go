// Package handlers implements the pluggable node executors of spec §4.F:
// TASK, CONDITION, PARALLEL, MERGE, and LOOP.
package handlers

import (
	"context"
	"fmt"

	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
)

// Tool is the external dispatch surface TASK (and PARALLEL/LOOP, when they
// carry an operation) delegate to (spec §6 "tool interface").
type Tool func(ctx context.Context, config map[string]any) (any, error)

// Registry resolves a node's configured operation to a Tool.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register binds operation to tool.
func (r *Registry) Register(operation string, tool Tool) {
	r.tools[operation] = tool
}

// Dispatch runs the tool registered for config["operation"]. An unknown or
// absent operation yields the test-mode-tolerant synthesized result rather
// than an error (spec §4.F: "the orchestrator is test-mode tolerant").
func (r *Registry) Dispatch(ctx context.Context, config map[string]any) (any, error) {
	op, _ := config["operation"].(string)
	if op == "" {
		return map[string]any{"status": "completed", "output": "Simulated execution of <unset>"}, nil
	}
	tool, ok := r.tools[op]
	if !ok {
		return map[string]any{"status": "completed", "output": fmt.Sprintf("Simulated execution of %s", op)}, nil
	}
	return tool(ctx, config)
}

// Task returns the TASK node handler bound to registry.
func Task(registry *Registry) func(ctx context.Context, node, resolved pipeline.NodeDefinition, execCtx *pipeline.ExecutionContext) (any, error) {
	return func(ctx context.Context, node, resolved pipeline.NodeDefinition, execCtx *pipeline.ExecutionContext) (any, error) {
		return registry.Dispatch(ctx, resolved.Config)
	}
}
