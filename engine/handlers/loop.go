package handlers

import (
	"context"
	"fmt"

	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
	"github.com/R3E-Network/pipeline-orchestrator/engine/expression"
	"github.com/R3E-Network/pipeline-orchestrator/orcherrors"
	"github.com/R3E-Network/pipeline-orchestrator/pkg/logging"
)

// DefaultMaxIterations bounds a LOOP node lacking an explicit
// config["maxIterations"] (spec §4.F: "both modes enforce maxIterations
// (default finite)").
const DefaultMaxIterations = 1000

// loopIterationKey builds the reserved namespaced output key for one
// iteration (spec §4.F): these can never collide with user node ids
// because ':' is not a legal NodeID character in any config the Pipeline
// Factory produces.
func loopIterationKey(nodeID pipeline.NodeID, index int) pipeline.NodeID {
	return pipeline.NodeID(fmt.Sprintf("__loop:%s:iteration:%d", nodeID, index))
}

func maxIterationsOf(config map[string]any) int {
	if v, ok := config["maxIterations"]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return DefaultMaxIterations
}

// Loop returns the LOOP node handler (spec §4.F): items mode iterates a
// resolved array; condition mode re-evaluates its condition before each
// iteration. Both modes dispatch each iteration's body through the generic
// tool registry and scrub their namespaced output keys before returning.
func Loop(registry *Registry, log *logging.Logger) func(ctx context.Context, node, resolved pipeline.NodeDefinition, execCtx *pipeline.ExecutionContext) (any, error) {
	return func(ctx context.Context, node, resolved pipeline.NodeDefinition, execCtx *pipeline.ExecutionContext) (any, error) {
		if _, ok := node.Config["items"]; ok {
			return runItemsLoop(ctx, node, resolved, execCtx, registry)
		}
		if _, ok := node.Config["condition"]; ok {
			return runConditionLoop(ctx, node, execCtx, registry, log)
		}
		return nil, orcherrors.Validation("LOOP node " + string(node.ID) + " requires config.items or config.condition")
	}
}

func runItemsLoop(ctx context.Context, node, resolved pipeline.NodeDefinition, execCtx *pipeline.ExecutionContext, registry *Registry) (any, error) {
	items, ok := resolved.Config["items"].([]any)
	if !ok {
		return nil, orcherrors.Validation("LOOP node " + string(node.ID) + ": config.items did not resolve to an array")
	}

	maxIter := maxIterationsOf(node.Config)
	n := len(items)
	if n > maxIter {
		n = maxIter
	}

	results := make([]any, 0, n)
	for i := 0; i < n; i++ {
		iterConfig := withIterationFields(resolved.Config, items[i], i)
		out, err := registry.Dispatch(ctx, iterConfig)
		if err != nil {
			scrubIterationKeys(execCtx, node.ID, n)
			return nil, err
		}
		execCtx.SetOutput(loopIterationKey(node.ID, i), out)
		results = append(results, out)
	}

	scrubIterationKeys(execCtx, node.ID, n)
	return map[string]any{"status": "completed", "iterations": len(results), "results": results}, nil
}

func runConditionLoop(ctx context.Context, node pipeline.NodeDefinition, execCtx *pipeline.ExecutionContext, registry *Registry, log *logging.Logger) (any, error) {
	conditionTemplate, _ := node.Config["condition"].(string)
	maxIter := maxIterationsOf(node.Config)

	results := make([]any, 0)
	i := 0
	for i < maxIter {
		evaluated := expression.SubstituteVariables(conditionTemplate, execCtx)
		_, passed := evaluateConditionValue(evaluated, log)
		if !passed {
			break
		}

		iterConfig := expression.ResolveNodeConfig(node.Config, execCtx)
		iterConfig["_index"] = i
		out, err := registry.Dispatch(ctx, iterConfig)
		if err != nil {
			scrubIterationKeys(execCtx, node.ID, i)
			return nil, err
		}
		execCtx.SetOutput(loopIterationKey(node.ID, i), out)
		results = append(results, out)
		i++
	}

	scrubIterationKeys(execCtx, node.ID, i)
	return map[string]any{"status": "completed", "iterations": i, "results": results}, nil
}

func withIterationFields(config map[string]any, item any, index int) map[string]any {
	out := make(map[string]any, len(config)+2)
	for k, v := range config {
		out[k] = v
	}
	out["_item"] = item
	out["_index"] = index
	return out
}

// scrubIterationKeys deletes every __loop:<nodeId>:iteration:<i> key for i
// in [0,count) from execCtx.outputs, as spec §4.F requires before the LOOP
// handler returns.
func scrubIterationKeys(execCtx *pipeline.ExecutionContext, nodeID pipeline.NodeID, count int) {
	for i := 0; i < count; i++ {
		execCtx.DeleteOutput(loopIterationKey(nodeID, i))
	}
}
