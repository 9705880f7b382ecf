// Package monitor implements the Pipeline Monitor (spec §4.H): per-run
// critical-path computation, bottleneck detection, and per-pipeline-type
// aggregate metrics, fed by completed ExecutionResults.
package monitor

import (
	"math"
	"sync"
	"time"

	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
	"github.com/R3E-Network/pipeline-orchestrator/engine/events"
	"github.com/R3E-Network/pipeline-orchestrator/obsmetrics"
	"github.com/R3E-Network/pipeline-orchestrator/pkg/logging"
)

// Bottleneck names a node flagged as disproportionately slow, retried, or
// on the critical path of a run.
type Bottleneck struct {
	NodeID   pipeline.NodeID
	Reason   string
	Duration time.Duration
	Attempts int
}

// Report is the per-execution analysis result.
type Report struct {
	ExecutionID          string
	CriticalPath         []pipeline.NodeID
	CriticalPathDuration time.Duration
	Bottlenecks          []Bottleneck
}

// TypeStat aggregates outcomes across every run of one pipeline type.
type TypeStat struct {
	Type          string
	Runs          int
	Successes     int
	Failures      int
	TotalDuration time.Duration
}

// MeanDuration returns the arithmetic mean duration across recorded runs.
func (s TypeStat) MeanDuration() time.Duration {
	if s.Runs == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Runs)
}

// Monitor tracks aggregate pipeline health and analyzes individual runs.
// It holds no reference to the Executor: callers feed it completed results
// explicitly (design note §9: no ambient global instance).
type Monitor struct {
	mu     sync.Mutex
	byType map[string]*TypeStat
	log    *logging.Logger
	evt    *events.Bus
}

// New constructs an empty Monitor.
func New(log *logging.Logger, evt *events.Bus) *Monitor {
	return &Monitor{byType: make(map[string]*TypeStat), log: log, evt: evt}
}

// Analyze computes the critical path and bottlenecks for one completed run
// against its GraphDefinition, records it into the pipelineType's running
// aggregate, and emits a BottleneckDetected event per flagged node.
func (m *Monitor) Analyze(def *pipeline.GraphDefinition, pipelineType string, result *pipeline.ExecutionResult) *Report {
	durations := make(map[pipeline.NodeID]time.Duration, len(result.NodeExecutions))
	attempts := make(map[pipeline.NodeID]int, len(result.NodeExecutions))
	for _, ne := range result.NodeExecutions {
		durations[ne.NodeID] = ne.Duration
		attempts[ne.NodeID] = ne.Attempts
	}

	path, pathDuration := criticalPath(def, durations)
	onPath := make(map[pipeline.NodeID]struct{}, len(path))
	for _, id := range path {
		onPath[id] = struct{}{}
	}

	mean, stddev := meanStddev(durations)
	threshold := mean + 2*stddev

	var bottlenecks []Bottleneck
	for _, n := range def.Nodes {
		d := durations[n.ID]
		a := attempts[n.ID]
		switch {
		case d > threshold && stddev > 0:
			bottlenecks = append(bottlenecks, Bottleneck{NodeID: n.ID, Reason: "duration exceeds mean+2σ", Duration: d, Attempts: a})
		case a > 1:
			bottlenecks = append(bottlenecks, Bottleneck{NodeID: n.ID, Reason: "required retries", Duration: d, Attempts: a})
		default:
			if _, ok := onPath[n.ID]; ok && len(path) > 1 {
				bottlenecks = append(bottlenecks, Bottleneck{NodeID: n.ID, Reason: "on critical path", Duration: d, Attempts: a})
			}
		}
	}

	for _, b := range bottlenecks {
		obsmetrics.IncBottleneck(b.Reason)
		if m.evt != nil {
			m.evt.Publish(events.BottleneckDetected, map[string]any{
				"executionId": result.ExecutionID,
				"nodeId":      string(b.NodeID),
				"reason":      b.Reason,
				"durationMs":  b.Duration.Milliseconds(),
			})
		}
	}

	m.record(pipelineType, result)
	obsmetrics.ObservePipelineDuration(pipelineType, result.Duration)

	return &Report{
		ExecutionID:          result.ExecutionID,
		CriticalPath:         path,
		CriticalPathDuration: pathDuration,
		Bottlenecks:          bottlenecks,
	}
}

func (m *Monitor) record(pipelineType string, result *pipeline.ExecutionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stat, ok := m.byType[pipelineType]
	if !ok {
		stat = &TypeStat{Type: pipelineType}
		m.byType[pipelineType] = stat
	}
	stat.Runs++
	stat.TotalDuration += result.Duration
	if result.Success {
		stat.Successes++
	} else {
		stat.Failures++
	}
}

// Stat returns a snapshot of pipelineType's running aggregate.
func (m *Monitor) Stat(pipelineType string) (TypeStat, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byType[pipelineType]
	if !ok {
		return TypeStat{}, false
	}
	return *s, true
}

// AllStats returns a snapshot of every tracked pipeline type's aggregate.
func (m *Monitor) AllStats() []TypeStat {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TypeStat, 0, len(m.byType))
	for _, s := range m.byType {
		out = append(out, *s)
	}
	return out
}

// criticalPath finds the longest duration-weighted chain through def's DAG
// using the per-node durations observed in one run. Nodes absent from
// durations (never scheduled, e.g. SKIPPED) contribute zero weight.
func criticalPath(def *pipeline.GraphDefinition, durations map[pipeline.NodeID]time.Duration) ([]pipeline.NodeID, time.Duration) {
	longest := make(map[pipeline.NodeID]time.Duration, len(def.Nodes))
	prev := make(map[pipeline.NodeID]pipeline.NodeID, len(def.Nodes))
	visited := make(map[pipeline.NodeID]bool, len(def.Nodes))

	var visit func(id pipeline.NodeID) time.Duration
	visit = func(id pipeline.NodeID) time.Duration {
		if visited[id] {
			return longest[id]
		}
		visited[id] = true
		n, ok := def.NodeByID(id)
		if !ok {
			return 0
		}
		var best time.Duration
		var bestDep pipeline.NodeID
		for _, dep := range n.Dependencies {
			d := visit(dep)
			if d > best {
				best = d
				bestDep = dep
			}
		}
		total := best + durations[id]
		longest[id] = total
		if best > 0 {
			prev[id] = bestDep
		}
		return total
	}

	var bestID pipeline.NodeID
	var bestTotal time.Duration
	for _, n := range def.Nodes {
		total := visit(n.ID)
		if total >= bestTotal {
			bestTotal = total
			bestID = n.ID
		}
	}

	if bestID == "" {
		return nil, 0
	}

	var path []pipeline.NodeID
	for id := bestID; ; {
		path = append([]pipeline.NodeID{id}, path...)
		p, ok := prev[id]
		if !ok {
			break
		}
		id = p
	}
	return path, bestTotal
}

func meanStddev(durations map[pipeline.NodeID]time.Duration) (time.Duration, time.Duration) {
	if len(durations) == 0 {
		return 0, 0
	}
	var sum float64
	for _, d := range durations {
		sum += float64(d)
	}
	mean := sum / float64(len(durations))

	var variance float64
	for _, d := range durations {
		diff := float64(d) - mean
		variance += diff * diff
	}
	variance /= float64(len(durations))

	return time.Duration(mean), time.Duration(math.Sqrt(variance))
}
