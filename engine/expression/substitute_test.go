package expression

import (
	"reflect"
	"testing"

	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
)

func newCtx() *pipeline.ExecutionContext {
	return pipeline.NewExecutionContext("g1", "e1", nil)
}

func TestSubstituteVariablesTypePreservation(t *testing.T) {
	ctx := newCtx()
	ctx.SetOutput("source", map[string]any{"data": []any{"a", "b", "c"}})

	got := SubstituteVariables("${source.data}", ctx)
	want := []any{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}

	ctx.SetOutput("A", map[string]any{"passed": true})
	if got := SubstituteVariables("${A.passed}", ctx); got != true {
		t.Fatalf("expected native bool true, got %#v", got)
	}
}

func TestSubstituteVariablesConcatenation(t *testing.T) {
	ctx := newCtx()
	ctx.SetOutput("A", map[string]any{"passed": 5, "total": 5})

	got := SubstituteVariables("${A.passed} === ${A.total}", ctx)
	if got != "5 === 5" {
		t.Fatalf("got %q", got)
	}
}

func TestSubstituteVariablesUnresolvedLeavesTokenIntact(t *testing.T) {
	ctx := newCtx()
	got := SubstituteVariables("${missing.field}", ctx)
	if got != "${missing.field}" {
		t.Fatalf("got %#v", got)
	}

	ctx.SetOutput("node", map[string]any{"a": 1})
	got = SubstituteVariables("value: ${node.b}", ctx)
	if got != "value: ${node.b}" {
		t.Fatalf("got %#v", got)
	}
}

func TestSubstituteVariablesPrototypePollutionSafety(t *testing.T) {
	ctx := newCtx()
	ctx.SetOutput("node", map[string]any{"__proto__": map[string]any{"polluted": true}})

	got := SubstituteVariables("${node.__proto__.polluted}", ctx)
	if got != "${node.__proto__.polluted}" {
		t.Fatalf("expected token left intact, got %#v", got)
	}

	ctx.SetOutput("node2", map[string]any{"constructor": "x"})
	got = SubstituteVariables("${node2.constructor}", ctx)
	if got != "${node2.constructor}" {
		t.Fatalf("expected token left intact, got %#v", got)
	}
}

func TestResolveNodeConfigPreservesStructure(t *testing.T) {
	ctx := newCtx()
	ctx.SetOutput("A", map[string]any{"items": []any{"x", "y"}})

	cfg := map[string]any{
		"nested": map[string]any{
			"list": []any{"${A.items}", "literal ${A.items}"},
			"num":  42,
		},
	}
	resolved := ResolveNodeConfig(cfg, ctx)
	nested := resolved["nested"].(map[string]any)
	list := nested["list"].([]any)

	if !reflect.DeepEqual(list[0], []any{"x", "y"}) {
		t.Fatalf("expected native array preserved, got %#v", list[0])
	}
	if list[1] != `literal ["x","y"]` {
		t.Fatalf("expected JSON-serialized splice, got %#v", list[1])
	}
	if nested["num"] != 42 {
		t.Fatalf("expected untouched number, got %#v", nested["num"])
	}
}
