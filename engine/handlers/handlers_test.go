package handlers

import (
	"context"
	"testing"

	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
)

func newCtx() *pipeline.ExecutionContext {
	return pipeline.NewExecutionContext("g1", "e1", nil)
}

func TestTaskSynthesizesSimulatedExecutionForUnknownOp(t *testing.T) {
	registry := NewRegistry()
	handler := Task(registry)
	node := pipeline.NodeDefinition{ID: "n1", Config: map[string]any{"operation": "deploy_service"}}

	out, err := handler(context.Background(), node, node, newCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := out.(map[string]any)
	if result["output"] != "Simulated execution of deploy_service" {
		t.Fatalf("got %v", result)
	}
}

func TestTaskDispatchesRegisteredTool(t *testing.T) {
	registry := NewRegistry()
	registry.Register("greet", func(ctx context.Context, config map[string]any) (any, error) {
		return "hello " + config["name"].(string), nil
	})
	handler := Task(registry)
	node := pipeline.NodeDefinition{ID: "n1", Config: map[string]any{"operation": "greet", "name": "world"}}

	out, err := handler(context.Background(), node, node, newCtx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello world" {
		t.Fatalf("got %v", out)
	}
}

func TestConditionPassesOnTrueComparison(t *testing.T) {
	ctx := newCtx()
	ctx.SetOutput("A", map[string]any{"passed": float64(5), "total": float64(5)})

	node := pipeline.NodeDefinition{ID: "cond", Config: map[string]any{"condition": "${A.passed} === ${A.total}"}}
	resolved := pipeline.NodeDefinition{ID: "cond", Config: map[string]any{"condition": "5 === 5"}}

	handler := Condition(nil)
	out, err := handler(context.Background(), node, resolved, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := out.(map[string]any)
	if result["passed"] != true {
		t.Fatalf("expected passed=true, got %+v", result)
	}
}

func TestConditionFailsOnFalse(t *testing.T) {
	ctx := newCtx()
	node := pipeline.NodeDefinition{ID: "cond", Config: map[string]any{"condition": "${A.passed} === ${A.total}"}}
	resolved := pipeline.NodeDefinition{ID: "cond", Config: map[string]any{"condition": "4 === 5"}}

	handler := Condition(nil)
	_, err := handler(context.Background(), node, resolved, ctx)
	if err == nil {
		t.Fatalf("expected ConditionFailedError")
	}
}

func TestConditionUsesNativeBoolWhenSingleToken(t *testing.T) {
	ctx := newCtx()
	ctx.SetOutput("A", map[string]any{"ok": false})

	node := pipeline.NodeDefinition{ID: "cond", Config: map[string]any{"condition": "${A.ok}"}}
	resolved := pipeline.NodeDefinition{ID: "cond", Config: map[string]any{"condition": false}}

	handler := Condition(nil)
	_, err := handler(context.Background(), node, resolved, ctx)
	if err == nil {
		t.Fatalf("expected failure since native bool was false")
	}
}

func TestMergeConcatenatesFindings(t *testing.T) {
	ctx := newCtx()
	ctx.SetOutput("B", map[string]any{"value": "x", "findings": []any{map[string]any{"i": 1}}})
	ctx.SetOutput("C", map[string]any{"value": "y"})

	node := pipeline.NodeDefinition{ID: "D", Dependencies: []pipeline.NodeID{"B", "C"}}
	out, err := Merge(context.Background(), node, node, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := out.(map[string]any)
	if result["mergedCount"] != 2 {
		t.Fatalf("expected mergedCount=2, got %v", result["mergedCount"])
	}
	findings := result["findings"].([]any)
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
}

func TestLoopItemsModeIteratesAndScrubsNamespacedKeys(t *testing.T) {
	ctx := newCtx()
	ctx.SetOutput("source", map[string]any{"data": []any{"a", "b", "c"}})
	ctx.SetOutput("__loop:existing:iteration:0", "untouched")

	registry := NewRegistry()
	var seenItems []any
	registry.Register("noop", func(ctx context.Context, config map[string]any) (any, error) {
		seenItems = append(seenItems, config["_item"])
		return config["_item"], nil
	})

	node := pipeline.NodeDefinition{ID: "loop1", Config: map[string]any{"items": "${source.data}", "operation": "noop"}}
	resolved := pipeline.NodeDefinition{ID: "loop1", Config: map[string]any{"items": []any{"a", "b", "c"}, "operation": "noop"}}

	handler := Loop(registry, nil)
	out, err := handler(context.Background(), node, resolved, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := out.(map[string]any)
	if result["iterations"] != 3 {
		t.Fatalf("expected 3 iterations, got %v", result["iterations"])
	}
	if len(seenItems) != 3 || seenItems[0] != "a" || seenItems[2] != "c" {
		t.Fatalf("got items %v", seenItems)
	}

	for i := 0; i < 3; i++ {
		if _, ok := ctx.Output(loopIterationKey("loop1", i)); ok {
			t.Fatalf("expected namespaced key %d to be scrubbed", i)
		}
	}
	if v, ok := ctx.Output("__loop:existing:iteration:0"); !ok || v != "untouched" {
		t.Fatalf("expected unrelated namespaced-looking key to survive untouched")
	}
}

func TestLoopConditionModeStopsAtMaxIterations(t *testing.T) {
	ctx := newCtx()
	ctx.SetOutput("counter", map[string]any{"remaining": float64(2)})

	registry := NewRegistry()
	calls := 0
	registry.Register("tick", func(ctx context.Context, config map[string]any) (any, error) {
		calls++
		return calls, nil
	})

	node := pipeline.NodeDefinition{ID: "loop2", Config: map[string]any{"condition": "${counter.remaining} > 0", "operation": "tick", "maxIterations": 5}}

	handler := Loop(registry, nil)
	out, err := handler(context.Background(), node, node, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := out.(map[string]any)
	if result["iterations"] != 5 {
		t.Fatalf("expected to run until maxIterations since remaining never changes, got %v", result["iterations"])
	}
}
