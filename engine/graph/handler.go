package graph

import (
	"context"

	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
)

// Handler executes one node of a given type (spec §6 "graph handler
// interface"). node carries the original, unsubstituted definition;
// resolved carries the same definition with its config run through
// resolveNodeConfig (§4.A). Handlers evaluate resolved.Config and read
// node.Config where the raw template matters: LOOP re-substitutes its
// "condition" template before every iteration, and CONDITION echoes its
// unsubstituted "condition" in its output. A non-nil error fails the attempt;
// *orcherrors.ConditionFailedError is the CONDITION handler's designated
// "branch not taken" signal.
type Handler func(ctx context.Context, node, resolved pipeline.NodeDefinition, execCtx *pipeline.ExecutionContext) (any, error)

// HandlerRegistry maps node types to their executor.
type HandlerRegistry map[pipeline.NodeType]Handler
