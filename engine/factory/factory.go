// Package factory implements the Pipeline Factory (spec §4.E): translating
// a declarative PipelineConfig into a validated GraphDefinition. Each
// supported PipelineConfig.Type is backed by a registered template
// builder; callers may register additional types at runtime (design note
// §9: no implicit global registry, an explicit Factory value instead).
package factory

import (
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
	"github.com/R3E-Network/pipeline-orchestrator/engine/graph"
	"github.com/R3E-Network/pipeline-orchestrator/orcherrors"
)

// Builder constructs a GraphDefinition from a validated PipelineConfig.
type Builder func(id string, cfg pipeline.PipelineConfig) (*pipeline.GraphDefinition, error)

// Factory resolves a PipelineConfig.Type to its Builder.
type Factory struct {
	mu       sync.RWMutex
	builders map[pipeline.Type]Builder
}

// New returns a Factory pre-registered with the six pipeline types spec §3
// enumerates.
func New() *Factory {
	f := &Factory{builders: make(map[pipeline.Type]Builder)}
	f.RegisterTemplate(pipeline.TypeDevelopment, buildDevelopment)
	f.RegisterTemplate(pipeline.TypeQuickFix, buildQuickFix)
	f.RegisterTemplate(pipeline.TypeRefactoring, buildRefactoring)
	f.RegisterTemplate(pipeline.TypeCodeReview, buildCodeReview)
	f.RegisterTemplate(pipeline.TypeTesting, buildTesting)
	f.RegisterTemplate(pipeline.TypeDeployment, buildDeployment)
	return f
}

// RegisterTemplate binds builder to type t, overriding any existing
// registration (tests and deployments that need a custom shape for one of
// the six built-in types do this routinely).
func (f *Factory) RegisterTemplate(t pipeline.Type, builder Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[t] = builder
}

// Build validates cfg and constructs its GraphDefinition. An unregistered
// Type is a ValidationError (spec §4.E: "unknown type → error").
func (f *Factory) Build(id string, cfg pipeline.PipelineConfig) (*pipeline.GraphDefinition, error) {
	if err := validateParameters(cfg.Parameters); err != nil {
		return nil, err
	}

	f.mu.RLock()
	builder, ok := f.builders[cfg.Type]
	f.mu.RUnlock()
	if !ok {
		return nil, orcherrors.Validation("unknown pipeline type: " + string(cfg.Type))
	}

	return builder(id, cfg)
}

// validateParameters enforces spec §3's PipelineConfig.Parameters shape:
// string keys, primitive/array/object/null values.
func validateParameters(params map[string]any) error {
	for k, v := range params {
		if k == "" {
			return orcherrors.Validation("pipeline parameter key must not be empty")
		}
		if !isValidParameterValue(v) {
			return orcherrors.Validation(fmt.Sprintf("pipeline parameter %q has an unsupported value type", k))
		}
	}
	return nil
}

func isValidParameterValue(v any) bool {
	switch val := v.(type) {
	case nil, string, bool, int, int64, float64:
		return true
	case []any:
		for _, e := range val {
			if !isValidParameterValue(e) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, e := range val {
			if !isValidParameterValue(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// graphVariables captures the per-run hints a template wants preserved on
// the resulting GraphDefinition.Variables (concurrency/timeout/retry are
// consumed by the caller wiring the Executor, not by the graph itself).
func graphVariables(cfg pipeline.PipelineConfig) map[string]any {
	vars := map[string]any{"pipelineType": string(cfg.Type)}
	if cfg.Concurrency > 0 {
		vars["concurrency"] = cfg.Concurrency
	}
	if cfg.Timeout > 0 {
		vars["timeout"] = cfg.Timeout
	}
	for k, v := range cfg.Parameters {
		vars[k] = v
	}
	return vars
}

func taskNode(id pipeline.NodeID, operation string, deps []pipeline.NodeID, config map[string]any) pipeline.NodeDefinition {
	merged := map[string]any{"operation": operation}
	for k, v := range config {
		merged[k] = v
	}
	return pipeline.NodeDefinition{ID: id, Type: pipeline.NodeTask, Name: operation, Dependencies: deps, Config: merged}
}

func conditionNode(id pipeline.NodeID, condition string, deps []pipeline.NodeID, continueOnError bool) pipeline.NodeDefinition {
	return pipeline.NodeDefinition{
		ID:              id,
		Type:            pipeline.NodeCondition,
		Name:            "gate",
		Dependencies:    deps,
		Config:          map[string]any{"condition": condition},
		ContinueOnError: continueOnError,
	}
}

func mergeNode(id pipeline.NodeID, deps []pipeline.NodeID) pipeline.NodeDefinition {
	return pipeline.NodeDefinition{ID: id, Type: pipeline.NodeMerge, Name: "merge", Dependencies: deps}
}

func withTimeout(retries int, backoff time.Duration, exponential bool) *pipeline.RetryPolicy {
	if retries <= 0 {
		return nil
	}
	return &pipeline.RetryPolicy{MaxRetries: retries, BackoffMs: backoff.Milliseconds(), Exponential: exponential}
}

// buildDevelopment: analyze -> implement -> test -> review.
func buildDevelopment(id string, cfg pipeline.PipelineConfig) (*pipeline.GraphDefinition, error) {
	nodes := []pipeline.NodeDefinition{
		taskNode("analyze", "analyze_requirements", nil, cfg.Parameters),
		taskNode("implement", "implement_changes", []pipeline.NodeID{"analyze"}, cfg.Parameters),
		taskNode("test", "run_test_suite", []pipeline.NodeID{"implement"}, cfg.Parameters),
		taskNode("review", "request_code_review", []pipeline.NodeID{"test"}, cfg.Parameters),
	}
	return graph.NewDefinition(id, cfg.Name, cfg.Description, nodes, []pipeline.NodeID{"analyze"}, graphVariables(cfg))
}

// buildQuickFix: diagnose -> patch -> verify.
func buildQuickFix(id string, cfg pipeline.PipelineConfig) (*pipeline.GraphDefinition, error) {
	nodes := []pipeline.NodeDefinition{
		taskNode("diagnose", "diagnose_issue", nil, cfg.Parameters),
		taskNode("patch", "apply_patch", []pipeline.NodeID{"diagnose"}, cfg.Parameters),
		taskNode("verify", "verify_fix", []pipeline.NodeID{"patch"}, cfg.Parameters),
	}
	return graph.NewDefinition(id, cfg.Name, cfg.Description, nodes, []pipeline.NodeID{"diagnose"}, graphVariables(cfg))
}

// buildRefactoring: analyze -> refactor -> test -> gate(tests passed) -> commit.
func buildRefactoring(id string, cfg pipeline.PipelineConfig) (*pipeline.GraphDefinition, error) {
	nodes := []pipeline.NodeDefinition{
		taskNode("analyze", "analyze_code_smells", nil, cfg.Parameters),
		taskNode("refactor", "apply_refactor", []pipeline.NodeID{"analyze"}, cfg.Parameters),
		taskNode("test", "run_test_suite", []pipeline.NodeID{"refactor"}, cfg.Parameters),
		conditionNode("gate", "${test.passed} === ${test.total}", []pipeline.NodeID{"test"}, false),
		taskNode("commit", "commit_changes", []pipeline.NodeID{"gate"}, cfg.Parameters),
	}
	return graph.NewDefinition(id, cfg.Name, cfg.Description, nodes, []pipeline.NodeID{"analyze"}, graphVariables(cfg))
}

// buildCodeReview: fetch_diff -> {lint, security_scan} -> merge_findings.
func buildCodeReview(id string, cfg pipeline.PipelineConfig) (*pipeline.GraphDefinition, error) {
	nodes := []pipeline.NodeDefinition{
		taskNode("fetch_diff", "fetch_diff", nil, cfg.Parameters),
		taskNode("lint", "run_linter", []pipeline.NodeID{"fetch_diff"}, cfg.Parameters),
		taskNode("security_scan", "run_security_scan", []pipeline.NodeID{"fetch_diff"}, cfg.Parameters),
		mergeNode("merge_findings", []pipeline.NodeID{"lint", "security_scan"}),
	}
	return graph.NewDefinition(id, cfg.Name, cfg.Description, nodes, []pipeline.NodeID{"fetch_diff"}, graphVariables(cfg))
}

// buildTesting: setup -> run_tests -> gate(all passed) -> report.
func buildTesting(id string, cfg pipeline.PipelineConfig) (*pipeline.GraphDefinition, error) {
	nodes := []pipeline.NodeDefinition{
		taskNode("setup", "setup_test_environment", nil, cfg.Parameters),
		taskNode("run_tests", "run_test_suite", []pipeline.NodeID{"setup"}, cfg.Parameters),
		conditionNode("gate", "${run_tests.passed} === ${run_tests.total}", []pipeline.NodeID{"run_tests"}, true),
		taskNode("report", "publish_test_report", []pipeline.NodeID{"gate"}, cfg.Parameters),
	}
	return graph.NewDefinition(id, cfg.Name, cfg.Description, nodes, []pipeline.NodeID{"setup"}, graphVariables(cfg))
}

// buildDeployment: build -> test -> gate(tests passed) -> deploy -> verify.
func buildDeployment(id string, cfg pipeline.PipelineConfig) (*pipeline.GraphDefinition, error) {
	deployRetry := withTimeout(2, 2*time.Second, true)
	nodes := []pipeline.NodeDefinition{
		taskNode("build", "build_artifact", nil, cfg.Parameters),
		taskNode("test", "run_test_suite", []pipeline.NodeID{"build"}, cfg.Parameters),
		conditionNode("gate", "${test.passed} === ${test.total}", []pipeline.NodeID{"test"}, false),
		{
			ID:           "deploy",
			Type:         pipeline.NodeTask,
			Name:         "deploy_artifact",
			Dependencies: []pipeline.NodeID{"gate"},
			Config:       mergeConfig(cfg.Parameters, map[string]any{"operation": "deploy_artifact"}),
			RetryPolicy:  deployRetry,
		},
		taskNode("verify", "verify_deployment", []pipeline.NodeID{"deploy"}, cfg.Parameters),
	}
	return graph.NewDefinition(id, cfg.Name, cfg.Description, nodes, []pipeline.NodeID{"build"}, graphVariables(cfg))
}

func mergeConfig(base map[string]any, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
