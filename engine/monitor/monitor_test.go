package monitor

import (
	"testing"
	"time"

	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
)

func diamondDef() *pipeline.GraphDefinition {
	return &pipeline.GraphDefinition{
		ID: "g1",
		Nodes: []pipeline.NodeDefinition{
			{ID: "A"},
			{ID: "B", Dependencies: []pipeline.NodeID{"A"}},
			{ID: "C", Dependencies: []pipeline.NodeID{"A"}},
			{ID: "D", Dependencies: []pipeline.NodeID{"B", "C"}},
		},
		EntryNodes: []pipeline.NodeID{"A"},
	}
}

func TestCriticalPathFollowsLongestChain(t *testing.T) {
	def := diamondDef()
	result := &pipeline.ExecutionResult{
		ExecutionID: "e1",
		Success:     true,
		Duration:    500 * time.Millisecond,
		NodeExecutions: []pipeline.NodeExecution{
			{NodeID: "A", Duration: 10 * time.Millisecond},
			{NodeID: "B", Duration: 200 * time.Millisecond},
			{NodeID: "C", Duration: 20 * time.Millisecond},
			{NodeID: "D", Duration: 30 * time.Millisecond},
		},
	}

	m := New(nil, nil)
	report := m.Analyze(def, "development", result)

	expected := []pipeline.NodeID{"A", "B", "D"}
	if len(report.CriticalPath) != len(expected) {
		t.Fatalf("expected path %v, got %v", expected, report.CriticalPath)
	}
	for i, id := range expected {
		if report.CriticalPath[i] != id {
			t.Fatalf("expected path %v, got %v", expected, report.CriticalPath)
		}
	}
	if report.CriticalPathDuration != 240*time.Millisecond {
		t.Fatalf("expected critical path duration 240ms, got %v", report.CriticalPathDuration)
	}
}

func TestAnalyzeFlagsRetriedNodeAsBottleneck(t *testing.T) {
	def := diamondDef()
	result := &pipeline.ExecutionResult{
		ExecutionID: "e1",
		Success:     true,
		NodeExecutions: []pipeline.NodeExecution{
			{NodeID: "A", Duration: 10 * time.Millisecond, Attempts: 1},
			{NodeID: "B", Duration: 10 * time.Millisecond, Attempts: 3},
			{NodeID: "C", Duration: 10 * time.Millisecond, Attempts: 1},
			{NodeID: "D", Duration: 10 * time.Millisecond, Attempts: 1},
		},
	}

	m := New(nil, nil)
	report := m.Analyze(def, "development", result)

	found := false
	for _, b := range report.Bottlenecks {
		if b.NodeID == "B" && b.Reason == "required retries" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected node B to be flagged for retries, got %+v", report.Bottlenecks)
	}
}

func TestAnalyzeRecordsPerTypeAggregate(t *testing.T) {
	def := diamondDef()
	m := New(nil, nil)

	m.Analyze(def, "development", &pipeline.ExecutionResult{ExecutionID: "e1", Success: true, Duration: 100 * time.Millisecond})
	m.Analyze(def, "development", &pipeline.ExecutionResult{ExecutionID: "e2", Success: false, Duration: 300 * time.Millisecond})

	stat, ok := m.Stat("development")
	if !ok {
		t.Fatalf("expected a recorded stat for development")
	}
	if stat.Runs != 2 || stat.Successes != 1 || stat.Failures != 1 {
		t.Fatalf("got %+v", stat)
	}
	if stat.MeanDuration() != 200*time.Millisecond {
		t.Fatalf("expected mean duration 200ms, got %v", stat.MeanDuration())
	}
}
