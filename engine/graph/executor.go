package graph

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
	"github.com/R3E-Network/pipeline-orchestrator/engine/events"
	"github.com/R3E-Network/pipeline-orchestrator/engine/expression"
	"github.com/R3E-Network/pipeline-orchestrator/obsmetrics"
	"github.com/R3E-Network/pipeline-orchestrator/orcherrors"
	"github.com/R3E-Network/pipeline-orchestrator/pkg/logging"
)

// Config controls scheduler-wide defaults (spec §4.D/§5).
type Config struct {
	DefaultConcurrency int
	DefaultTimeout     time.Duration
	DefaultMaxRetries  int
	DefaultBackoff     time.Duration
	HistorySize        int
}

// DefaultConfig returns the spec's stated defaults (concurrency=10).
func DefaultConfig() Config {
	return Config{DefaultConcurrency: 10, HistorySize: 100}
}

// Executor runs one GraphDefinition's executions, applying the bounded
// concurrency scheduler, retries, timeouts, and event emission of spec §4.D.
type Executor struct {
	def      *pipeline.GraphDefinition
	handlers HandlerRegistry
	cfg      Config
	log      *logging.Logger
	evt      *events.Bus

	mu      sync.Mutex
	history *History
}

// NewExecutor builds an Executor bound to def, dispatching to handlers by
// node type. Unregistered node types fail every node of that type.
func NewExecutor(def *pipeline.GraphDefinition, handlers HandlerRegistry, cfg Config, log *logging.Logger, evt *events.Bus) *Executor {
	if cfg.DefaultConcurrency <= 0 {
		cfg.DefaultConcurrency = 10
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if log == nil {
		log = logging.NewDefault("graph")
	}
	return &Executor{def: def, handlers: handlers, cfg: cfg, log: log, evt: evt, history: NewHistory(cfg.HistorySize)}
}

func (e *Executor) publish(variant events.Variant, data map[string]any) {
	if e.evt != nil {
		e.evt.Publish(variant, data)
	}
}

// History returns the bounded ring buffer of past ExecutionResults.
func (e *Executor) History() *History { return e.history }

// Run executes the graph once, producing an ExecutionContext seeded with
// variables and an ExecutionResult. executionID identifies this run for
// events and the result record. concurrency <= 0 uses the executor default;
// timeout <= 0 uses the executor's DefaultTimeout, and no outer deadline
// applies when that is also zero.
func (e *Executor) Run(ctx context.Context, executionID string, variables map[string]any, concurrency int, timeout time.Duration) (*pipeline.ExecutionResult, *pipeline.ExecutionContext) {
	if concurrency <= 0 {
		concurrency = e.cfg.DefaultConcurrency
	}
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	execCtx := pipeline.NewExecutionContext(e.def.ID, executionID, variables)
	states := make(map[pipeline.NodeID]*pipeline.NodeExecution, len(e.def.Nodes))
	for _, n := range e.def.Nodes {
		states[n.ID] = &pipeline.NodeExecution{NodeID: n.ID, Status: pipeline.StatusPending}
	}

	started := time.Now()
	e.publish(events.ExecutionStarted, map[string]any{"graphId": e.def.ID, "executionId": executionID})

	type completion struct{ nodeID pipeline.NodeID }
	completions := make(chan completion, len(e.def.Nodes))
	nodeCancels := make(map[pipeline.NodeID]context.CancelFunc)

	running := 0
	timedOut := false

	for _, blockedID := range recompute(e.def, states) {
		e.publish(events.NodeBlocked, map[string]any{"graphId": e.def.ID, "executionId": executionID, "nodeId": string(blockedID)})
	}

dispatchLoop:
	for {
		ready := collectReady(e.def, states, concurrency-running)
		for _, n := range ready {
			st := states[n.ID]
			st.Status = pipeline.StatusRunning
			st.StartTime = time.Now()
			running++
			obsmetrics.SetRunningNodes(running)
			e.publish(events.NodeStarted, map[string]any{"graphId": e.def.ID, "executionId": executionID, "nodeId": string(n.ID)})

			nodeCtx, nodeCancel := context.WithCancel(runCtx)
			nodeCancels[n.ID] = nodeCancel
			go func(node pipeline.NodeDefinition) {
				e.executeNode(nodeCtx, node, execCtx, states[node.ID])
				completions <- completion{nodeID: node.ID}
			}(n)
		}

		if running == 0 && !hasReady(e.def, states) {
			break dispatchLoop
		}

		select {
		case c := <-completions:
			running--
			obsmetrics.SetRunningNodes(running)
			delete(nodeCancels, c.nodeID)
			if runCtx.Err() == nil {
				for _, blockedID := range recompute(e.def, states) {
					e.publish(events.NodeBlocked, map[string]any{"graphId": e.def.ID, "executionId": executionID, "nodeId": string(blockedID)})
				}
				continue dispatchLoop
			}
			// The outer deadline expired while this node was finishing; handle
			// it as a timeout below so pending nodes are skipped, not blocked.
		case <-runCtx.Done():
		}
		timedOut = true
		for _, cancel := range nodeCancels {
			cancel()
		}
		for running > 0 {
			<-completions
			running--
		}
		skipRemaining(e.def, states)
		break dispatchLoop
	}

	duration := time.Since(started)
	outputs := execCtx.Outputs()
	executions := make([]pipeline.NodeExecution, 0, len(e.def.Nodes))
	for _, n := range e.def.Nodes {
		executions = append(executions, *states[n.ID])
	}

	success := !timedOut && !anyFailedBlocking(e.def, states)
	var resultErr error
	if timedOut {
		resultErr = orcherrors.Timeout("execution exceeded its timeout")
	} else if !success {
		resultErr = orcherrors.New(orcherrors.KindHandlerFailure, "one or more nodes failed without continueOnError")
	}

	result := &pipeline.ExecutionResult{
		GraphID:        e.def.ID,
		ExecutionID:    executionID,
		Success:        success,
		Duration:       duration,
		Error:          resultErr,
		NodeExecutions: executions,
		Outputs:        outputs,
	}

	obsmetrics.ObserveExecutionDuration(success, duration.Seconds())
	if success {
		e.publish(events.ExecutionDone, map[string]any{"graphId": e.def.ID, "executionId": executionID, "duration": duration.Seconds()})
	} else {
		e.publish(events.ExecutionFailed, map[string]any{"graphId": e.def.ID, "executionId": executionID, "duration": duration.Seconds()})
	}

	e.mu.Lock()
	e.history.Add(result)
	e.mu.Unlock()

	return result, execCtx
}

func skipRemaining(def *pipeline.GraphDefinition, states map[pipeline.NodeID]*pipeline.NodeExecution) {
	for _, n := range def.Nodes {
		st := states[n.ID]
		if st.Status == pipeline.StatusPending || st.Status == pipeline.StatusReady {
			st.Status = pipeline.StatusSkipped
		}
	}
}

// executeNode runs node to completion (including retries), bounded by its
// per-attempt timeout, updating st in place.
func (e *Executor) executeNode(ctx context.Context, node pipeline.NodeDefinition, execCtx *pipeline.ExecutionContext, st *pipeline.NodeExecution) {
	maxRetries := 0
	var backoff time.Duration
	exponential := false
	if node.RetryPolicy != nil {
		maxRetries = node.RetryPolicy.MaxRetries
		backoff = time.Duration(node.RetryPolicy.BackoffMs) * time.Millisecond
		exponential = node.RetryPolicy.Exponential
	}

	resolved := node
	resolved.Config = expression.ResolveNodeConfig(node.Config, execCtx)

	attempt := 0
	for {
		st.Attempts = attempt + 1
		attemptCtx := ctx
		var cancel context.CancelFunc
		if node.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, node.Timeout)
		}

		handler, ok := e.handlers[node.Type]
		var output any
		var err error
		if !ok {
			err = orcherrors.NotFound("no handler registered for node type " + string(node.Type))
		} else {
			output, err = handler(attemptCtx, node, resolved, execCtx)
			if attemptCtx.Err() != nil && err == nil {
				err = orcherrors.Timeout("node attempt exceeded its timeout")
			}
		}
		if cancel != nil {
			cancel()
		}

		nodeTypeLabel := string(node.Type)
		if err == nil {
			st.Status = pipeline.StatusDone
			st.EndTime = time.Now()
			st.Duration = st.EndTime.Sub(st.StartTime)
			st.Output = output
			execCtx.SetOutput(node.ID, output)
			obsmetrics.ObserveNodeDuration(nodeTypeLabel, "completed", st.Duration.Seconds())
			e.publish(events.NodeCompleted, map[string]any{"graphId": e.def.ID, "executionId": execCtx.ExecutionID, "nodeId": string(node.ID)})
			return
		}

		if attempt >= maxRetries || ctx.Err() != nil {
			st.Status = pipeline.StatusFailed
			st.EndTime = time.Now()
			st.Duration = st.EndTime.Sub(st.StartTime)
			st.Error = err
			obsmetrics.ObserveNodeDuration(nodeTypeLabel, "failed", st.Duration.Seconds())
			e.publish(events.NodeFailed, map[string]any{"graphId": e.def.ID, "executionId": execCtx.ExecutionID, "nodeId": string(node.ID), "error": err.Error()})
			return
		}

		e.publish(events.NodeRetry, map[string]any{"graphId": e.def.ID, "executionId": execCtx.ExecutionID, "nodeId": string(node.ID), "attempt": attempt + 1})
		wait := backoff
		if exponential {
			wait = backoff * time.Duration(1<<uint(attempt))
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
		attempt++
	}
}
