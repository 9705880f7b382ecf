package graph

import "github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"

// recompute advances every still-PENDING node to READY or BLOCKED based on
// its dependencies' current status, iterating to a fixpoint so a BLOCKED
// cascade propagates transitively within a single call (spec §4.D).
func recompute(def *pipeline.GraphDefinition, states map[pipeline.NodeID]*pipeline.NodeExecution) []pipeline.NodeID {
	var newlyBlocked []pipeline.NodeID
	changed := true
	for changed {
		changed = false
		for _, n := range def.Nodes {
			st := states[n.ID]
			if st.Status != pipeline.StatusPending {
				continue
			}
			ready, blocked := evalDeps(def, n, states)
			switch {
			case blocked:
				st.Status = pipeline.StatusBlocked
				newlyBlocked = append(newlyBlocked, n.ID)
				changed = true
			case ready:
				st.Status = pipeline.StatusReady
				changed = true
			}
		}
	}
	return newlyBlocked
}

// evalDeps reports whether n's dependencies are all satisfied (ready) or
// whether at least one terminally blocks n (blocked). A dependency
// satisfies n if COMPLETED or SKIPPED; a FAILED dependency satisfies n only
// when that dependency's own ContinueOnError is set, otherwise n is
// BLOCKED; a BLOCKED dependency always blocks n.
func evalDeps(def *pipeline.GraphDefinition, n pipeline.NodeDefinition, states map[pipeline.NodeID]*pipeline.NodeExecution) (ready, blocked bool) {
	ready = true
	for _, depID := range n.Dependencies {
		depState := states[depID]
		switch depState.Status {
		case pipeline.StatusDone, pipeline.StatusSkipped:
			// satisfied
		case pipeline.StatusFailed:
			depNode, _ := def.NodeByID(depID)
			if !depNode.ContinueOnError {
				return false, true
			}
		case pipeline.StatusBlocked:
			return false, true
		default:
			ready = false
		}
	}
	return ready, false
}

// collectReady returns up to limit nodes currently READY, in definition
// order, for deterministic dispatch ordering.
func collectReady(def *pipeline.GraphDefinition, states map[pipeline.NodeID]*pipeline.NodeExecution, limit int) []pipeline.NodeDefinition {
	if limit <= 0 {
		return nil
	}
	out := make([]pipeline.NodeDefinition, 0, limit)
	for _, n := range def.Nodes {
		if len(out) >= limit {
			break
		}
		if states[n.ID].Status == pipeline.StatusReady {
			out = append(out, n)
		}
	}
	return out
}

// hasReady reports whether any node is currently READY.
func hasReady(def *pipeline.GraphDefinition, states map[pipeline.NodeID]*pipeline.NodeExecution) bool {
	for _, n := range def.Nodes {
		if states[n.ID].Status == pipeline.StatusReady {
			return true
		}
	}
	return false
}

// anyFailedBlocking reports whether the execution should be reported as an
// overall failure: a FAILED node without ContinueOnError, or any BLOCKED
// node, makes the run unsuccessful.
func anyFailedBlocking(def *pipeline.GraphDefinition, states map[pipeline.NodeID]*pipeline.NodeExecution) bool {
	for _, n := range def.Nodes {
		st := states[n.ID]
		if st.Status == pipeline.StatusBlocked {
			return true
		}
		if st.Status == pipeline.StatusFailed && !n.ContinueOnError {
			return true
		}
	}
	return false
}
