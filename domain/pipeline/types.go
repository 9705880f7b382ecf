// Package pipeline defines the declarative pipeline/graph data model
// (spec §3): PipelineConfig, GraphDefinition, NodeDefinition, and the
// per-execution runtime records. Types here are plain structs — the
// "tagged-union decoders" design note (§9) is realized by validating at
// construction time (see engine/factory and engine/graph) rather than by
// encoding closed sums in the type system itself.
package pipeline

import (
	"sync"
	"time"
)

// Type enumerates the supported pipeline config types.
type Type string

const (
	TypeDevelopment Type = "development"
	TypeQuickFix    Type = "quick_fix"
	TypeRefactoring Type = "refactoring"
	TypeCodeReview  Type = "code_review"
	TypeTesting     Type = "testing"
	TypeDeployment  Type = "deployment"
)

// ValidTypes lists every supported PipelineConfig.Type value.
func ValidTypes() []Type {
	return []Type{TypeDevelopment, TypeQuickFix, TypeRefactoring, TypeCodeReview, TypeTesting, TypeDeployment}
}

// RetryPolicy governs node-level retry behavior.
type RetryPolicy struct {
	MaxRetries  int
	BackoffMs   int64
	Exponential bool
}

// PipelineConfig is the declarative input accepted by the Pipeline Factory.
type PipelineConfig struct {
	Type        Type
	Name        string
	Description string
	Parameters  map[string]any
	Timeout     time.Duration
	RetryPolicy *RetryPolicy
	Concurrency int
}

// NodeType enumerates the node kinds the Execution Graph understands.
type NodeType string

const (
	NodeTask      NodeType = "TASK"
	NodeParallel  NodeType = "PARALLEL"
	NodeCondition NodeType = "CONDITION"
	NodeMerge     NodeType = "MERGE"
	NodeLoop      NodeType = "LOOP"
)

// NodeID identifies a node within a GraphDefinition.
type NodeID string

// NodeDefinition describes one DAG node.
type NodeDefinition struct {
	ID               NodeID
	Type             NodeType
	Name             string
	Description      string
	Dependencies     []NodeID
	Config           map[string]any
	Timeout          time.Duration
	RetryPolicy      *RetryPolicy
	ContinueOnError  bool
}

// GraphDefinition is an immutable-after-construction DAG description.
// Construct it via graph.NewDefinition (engine/graph) so acyclicity and
// reference invariants are enforced; this struct alone carries no
// guarantees.
type GraphDefinition struct {
	ID          string
	Name        string
	Description string
	Nodes       []NodeDefinition
	EntryNodes  []NodeID
	Variables   map[string]any
}

// NodeByID returns the node with the given id, or false if absent.
func (g *GraphDefinition) NodeByID(id NodeID) (NodeDefinition, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeDefinition{}, false
}

// NodeStatus is the lifecycle state of a node within one execution.
type NodeStatus string

const (
	StatusPending NodeStatus = "PENDING"
	StatusReady   NodeStatus = "READY"
	StatusRunning NodeStatus = "RUNNING"
	StatusDone    NodeStatus = "COMPLETED"
	StatusFailed  NodeStatus = "FAILED"
	StatusSkipped NodeStatus = "SKIPPED"
	StatusBlocked NodeStatus = "BLOCKED"
)

// NodeExecution records one node's runtime history within an execution.
type NodeExecution struct {
	NodeID    NodeID
	Status    NodeStatus
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Attempts  int
	Output    any
	Error     error
}

// ExecutionContext is the mutable, per-run state shared by every node's
// handler. It is owned exclusively by the executing graph; handlers read
// freely but MUST only write their own NodeID's slot in Outputs.
type ExecutionContext struct {
	GraphID     string
	ExecutionID string
	Variables   map[string]any
	Metadata    map[string]any

	mu      sync.RWMutex
	outputs map[NodeID]any
}

// NewExecutionContext builds an empty ExecutionContext.
func NewExecutionContext(graphID, executionID string, variables map[string]any) *ExecutionContext {
	if variables == nil {
		variables = map[string]any{}
	}
	return &ExecutionContext{
		GraphID:     graphID,
		ExecutionID: executionID,
		Variables:   variables,
		Metadata:    map[string]any{},
		outputs:     map[NodeID]any{},
	}
}

// SetOutput writes nodeID's output. Callers must only ever pass their own
// node id; the graph scheduler enforces this by construction (only the
// executor goroutine for a node calls SetOutput for it).
func (c *ExecutionContext) SetOutput(nodeID NodeID, output any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs[nodeID] = output
}

// Output returns nodeID's recorded output, if any.
func (c *ExecutionContext) Output(nodeID NodeID) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.outputs[nodeID]
	return v, ok
}

// Outputs returns a shallow copy of the full outputs map, safe for readers
// that need to range over every recorded output (e.g. MERGE handler).
func (c *ExecutionContext) Outputs() map[NodeID]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[NodeID]any, len(c.outputs))
	for k, v := range c.outputs {
		out[k] = v
	}
	return out
}

// DeleteOutput removes a key from Outputs; used by the LOOP handler to
// scrub its namespaced per-iteration keys before returning (spec §4.F).
func (c *ExecutionContext) DeleteOutput(nodeID NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.outputs, nodeID)
}

// ExecutionResult is the terminal summary of one graph run.
type ExecutionResult struct {
	GraphID        string
	ExecutionID    string
	Success        bool
	Duration       time.Duration
	Error          error
	NodeExecutions []NodeExecution
	Outputs        map[NodeID]any
}
