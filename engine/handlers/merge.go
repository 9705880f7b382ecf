package handlers

import (
	"context"

	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
)

// Merge returns the MERGE node handler (spec §4.F): collects every
// dependency's output into mergedResults, concatenating any "findings"
// arrays it finds among them.
func Merge(ctx context.Context, node, resolved pipeline.NodeDefinition, execCtx *pipeline.ExecutionContext) (any, error) {
	mergedResults := make(map[string]any, len(node.Dependencies))
	var findings []any

	for _, dep := range node.Dependencies {
		out, ok := execCtx.Output(dep)
		if !ok {
			continue
		}
		mergedResults[string(dep)] = out

		if depMap, ok := out.(map[string]any); ok {
			if depFindings, ok := depMap["findings"].([]any); ok {
				findings = append(findings, depFindings...)
			}
		}
	}

	return map[string]any{
		"status":        "completed",
		"mergedResults": mergedResults,
		"findings":      findings,
		"mergedCount":   len(mergedResults),
	}, nil
}
