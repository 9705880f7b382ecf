// Package graph implements the Execution Graph (spec §4.D): DAG
// construction and validation, the per-node state machine, and a
// bounded-concurrency scheduler with retries, timeouts, and cancellation.
package graph

import (
	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
	"github.com/R3E-Network/pipeline-orchestrator/orcherrors"
)

// NewDefinition validates and returns a GraphDefinition built from the
// supplied fields. Construction fails if any dependency or entry-node
// reference is dangling, entryNodes is empty, an entry node declares a
// dependency, or the induced dependency graph contains a cycle.
func NewDefinition(id, name, description string, nodes []pipeline.NodeDefinition, entryNodes []pipeline.NodeID, variables map[string]any) (*pipeline.GraphDefinition, error) {
	if len(entryNodes) == 0 {
		return nil, orcherrors.Validation("graph must declare at least one entry node")
	}

	byID := make(map[pipeline.NodeID]pipeline.NodeDefinition, len(nodes))
	for _, n := range nodes {
		if _, dup := byID[n.ID]; dup {
			return nil, orcherrors.Validation("duplicate node id: " + string(n.ID))
		}
		byID[n.ID] = n
	}

	entrySet := make(map[pipeline.NodeID]bool, len(entryNodes))
	for _, id := range entryNodes {
		node, ok := byID[id]
		if !ok {
			return nil, orcherrors.Validation("entry node references unknown node: " + string(id))
		}
		if len(node.Dependencies) != 0 {
			return nil, orcherrors.Validation("entry node must have no dependencies: " + string(id))
		}
		entrySet[id] = true
	}

	for _, n := range nodes {
		for _, dep := range n.Dependencies {
			if _, ok := byID[dep]; !ok {
				return nil, orcherrors.Validation("node " + string(n.ID) + " depends on unknown node: " + string(dep))
			}
		}
	}

	if cycle := detectCycle(nodes, byID); cycle != nil {
		return nil, orcherrors.CycleDetected(idsToStrings(cycle))
	}

	g := &pipeline.GraphDefinition{
		ID:          id,
		Name:        name,
		Description: description,
		Nodes:       nodes,
		EntryNodes:  entryNodes,
		Variables:   variables,
	}
	return g, nil
}

// color marks a node's DFS visitation state for cycle detection.
type color int

const (
	white color = iota
	grey
	black
)

// detectCycle runs a grey/black-marked DFS over the dependency graph
// (spec §4.D). It returns the offending cycle (as node ids, from the
// re-encountered grey node to itself) or nil if the graph is acyclic.
func detectCycle(nodes []pipeline.NodeDefinition, byID map[pipeline.NodeID]pipeline.NodeDefinition) []pipeline.NodeID {
	colors := make(map[pipeline.NodeID]color, len(nodes))
	var stack []pipeline.NodeID

	var visit func(id pipeline.NodeID) []pipeline.NodeID
	visit = func(id pipeline.NodeID) []pipeline.NodeID {
		colors[id] = grey
		stack = append(stack, id)

		for _, dep := range byID[id].Dependencies {
			switch colors[dep] {
			case grey:
				cycle := []pipeline.NodeID{dep}
				for i := len(stack) - 1; i >= 0; i-- {
					cycle = append(cycle, stack[i])
					if stack[i] == dep {
						break
					}
				}
				return cycle
			case white:
				if found := visit(dep); found != nil {
					return found
				}
			}
		}

		colors[id] = black
		stack = stack[:len(stack)-1]
		return nil
	}

	for _, n := range nodes {
		if colors[n.ID] == white {
			if cycle := visit(n.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func idsToStrings(ids []pipeline.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
