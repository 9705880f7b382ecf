package handlers

import (
	"context"
	"fmt"

	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
	"github.com/R3E-Network/pipeline-orchestrator/engine/expression"
	"github.com/R3E-Network/pipeline-orchestrator/orcherrors"
	"github.com/R3E-Network/pipeline-orchestrator/pkg/logging"
)

// Condition returns the CONDITION node handler (spec §4.F). It evaluates
// node.Config["condition"] after substitution: a single-token substitution
// that resolved to a native bool/number is used directly (truthy in the
// standard sense); otherwise the substituted string runs through
// EvaluateCondition. A falsy result fails the attempt with
// *orcherrors.ConditionFailedError.
func Condition(log *logging.Logger) func(ctx context.Context, node, resolved pipeline.NodeDefinition, execCtx *pipeline.ExecutionContext) (any, error) {
	return func(ctx context.Context, node, resolved pipeline.NodeDefinition, execCtx *pipeline.ExecutionContext) (any, error) {
		evaluated := resolved.Config["condition"]
		evaluatedStr, passed := evaluateConditionValue(evaluated, log)

		if !passed {
			return nil, &orcherrors.ConditionFailedError{Condition: evaluatedStr, Result: false}
		}
		return map[string]any{
			"status":            "passed",
			"condition":         node.Config["condition"],
			"evaluatedCondition": evaluatedStr,
			"result":            true,
			"passed":            true,
		}, nil
	}
}

// evaluateConditionValue implements spec §4.F's condition result rules and
// returns both the string form logged as evaluatedCondition and whether it
// passed.
func evaluateConditionValue(v any, log *logging.Logger) (string, bool) {
	switch val := v.(type) {
	case bool:
		return fmt.Sprintf("%v", val), val
	case float64:
		return fmt.Sprintf("%v", val), val != 0
	case int:
		return fmt.Sprintf("%v", val), val != 0
	case int64:
		return fmt.Sprintf("%v", val), val != 0
	case nil:
		return "null", false
	case string:
		return val, expression.EvaluateCondition(val, log)
	default:
		return fmt.Sprintf("%v", val), false
	}
}
