package graph

import (
	"testing"

	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
	"github.com/R3E-Network/pipeline-orchestrator/orcherrors"
)

func TestNewDefinitionRejectsCycle(t *testing.T) {
	nodes := []pipeline.NodeDefinition{
		{ID: "a", Type: pipeline.NodeTask, Dependencies: []pipeline.NodeID{"c"}},
		{ID: "b", Type: pipeline.NodeTask, Dependencies: []pipeline.NodeID{"a"}},
		{ID: "c", Type: pipeline.NodeTask, Dependencies: []pipeline.NodeID{"b"}},
	}
	_, err := NewDefinition("g1", "g", "", nodes, []pipeline.NodeID{"a"}, nil)
	if err == nil {
		t.Fatalf("expected cycle error")
	}
	if !orcherrors.Is(err, orcherrors.KindCycleDetected) {
		t.Fatalf("expected CycleDetected, got %v", err)
	}
}

func TestNewDefinitionRejectsDanglingDependency(t *testing.T) {
	nodes := []pipeline.NodeDefinition{
		{ID: "a", Type: pipeline.NodeTask, Dependencies: []pipeline.NodeID{"ghost"}},
	}
	_, err := NewDefinition("g1", "g", "", nodes, []pipeline.NodeID{"a"}, nil)
	if err == nil {
		t.Fatalf("expected validation error for dangling dependency")
	}
}

func TestNewDefinitionRejectsEmptyEntryNodes(t *testing.T) {
	nodes := []pipeline.NodeDefinition{{ID: "a", Type: pipeline.NodeTask}}
	_, err := NewDefinition("g1", "g", "", nodes, nil, nil)
	if err == nil {
		t.Fatalf("expected validation error for empty entry nodes")
	}
}

func TestNewDefinitionRejectsEntryNodeWithDependencies(t *testing.T) {
	nodes := []pipeline.NodeDefinition{
		{ID: "a", Type: pipeline.NodeTask},
		{ID: "b", Type: pipeline.NodeTask, Dependencies: []pipeline.NodeID{"a"}},
	}
	_, err := NewDefinition("g1", "g", "", nodes, []pipeline.NodeID{"b"}, nil)
	if err == nil {
		t.Fatalf("expected validation error: entry node cannot have dependencies")
	}
}

func diamond(t *testing.T) *pipeline.GraphDefinition {
	t.Helper()
	nodes := []pipeline.NodeDefinition{
		{ID: "A", Type: pipeline.NodeTask},
		{ID: "B", Type: pipeline.NodeTask, Dependencies: []pipeline.NodeID{"A"}},
		{ID: "C", Type: pipeline.NodeTask, Dependencies: []pipeline.NodeID{"A"}},
		{ID: "D", Type: pipeline.NodeTask, Dependencies: []pipeline.NodeID{"B", "C"}},
	}
	def, err := NewDefinition("diamond", "diamond", "", nodes, []pipeline.NodeID{"A"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return def
}

func TestNewDefinitionAcceptsDiamond(t *testing.T) {
	diamond(t)
}
