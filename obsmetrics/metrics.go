// Package obsmetrics exposes Prometheus collectors for the orchestration
// core, in the style of the teacher's pkg/metrics: a package-level registry
// plus typed recorder methods, so subsystems never touch prometheus types
// directly.
package obsmetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the orchestrator's Prometheus collectors.
var Registry = prometheus.NewRegistry()

var (
	nodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orchestrator",
			Subsystem: "graph",
			Name:      "node_duration_seconds",
			Help:      "Duration of individual node executions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"node_type", "status"},
	)

	executionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orchestrator",
			Subsystem: "graph",
			Name:      "execution_duration_seconds",
			Help:      "Duration of whole-graph executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"success"},
	)

	runningNodes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "graph",
		Name:      "running_nodes",
		Help:      "Current number of RUNNING nodes across all executions.",
	})

	busQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "bus",
		Name:      "queue_depth",
		Help:      "Current queue depth per recipient agent.",
	}, []string{"agent_id"})

	busMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "bus",
		Name:      "messages_total",
		Help:      "Total messages processed by outcome.",
	}, []string{"outcome"})

	busDeliveryLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Subsystem: "bus",
		Name:      "delivery_latency_seconds",
		Help:      "Latency between send and successful delivery.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
	})

	contextEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "context",
		Name:      "entries",
		Help:      "Current number of shared-context entries.",
	})

	sloErrorBudgetRemaining = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Subsystem: "slo",
		Name:      "error_budget_remaining",
		Help:      "Remaining error budget fraction per SLO.",
	}, []string{"slo"})

	sloViolationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "slo",
		Name:      "violations_total",
		Help:      "Total SLO violations by severity.",
	}, []string{"slo", "severity"})

	pipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orchestrator",
			Subsystem: "monitor",
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of completed pipeline runs by pipeline type.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"pipeline_type"},
	)

	bottlenecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Subsystem: "monitor",
		Name:      "bottlenecks_total",
		Help:      "Total bottlenecks flagged by reason.",
	}, []string{"reason"})
)

func init() {
	Registry.MustRegister(
		nodeDuration,
		executionDuration,
		runningNodes,
		busQueueDepth,
		busMessagesTotal,
		busDeliveryLatency,
		contextEntries,
		sloErrorBudgetRemaining,
		sloViolationsTotal,
		pipelineDuration,
		bottlenecksTotal,
	)
}

// Handler returns an http.Handler exposing the registry in Prometheus
// exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func ObserveNodeDuration(nodeType, status string, seconds float64) {
	nodeDuration.WithLabelValues(nodeType, status).Observe(seconds)
}

func ObserveExecutionDuration(success bool, seconds float64) {
	executionDuration.WithLabelValues(boolLabel(success)).Observe(seconds)
}

func SetRunningNodes(n int) { runningNodes.Set(float64(n)) }

func SetBusQueueDepth(agentID string, depth int) {
	busQueueDepth.WithLabelValues(agentID).Set(float64(depth))
}

func IncBusMessages(outcome string) { busMessagesTotal.WithLabelValues(outcome).Inc() }

func ObserveBusDeliveryLatency(seconds float64) { busDeliveryLatency.Observe(seconds) }

func SetContextEntries(n int) { contextEntries.Set(float64(n)) }

func SetSLOErrorBudgetRemaining(slo string, remaining float64) {
	sloErrorBudgetRemaining.WithLabelValues(slo).Set(remaining)
}

func IncSLOViolation(slo, severity string) { sloViolationsTotal.WithLabelValues(slo, severity).Inc() }

func ObservePipelineDuration(pipelineType string, d time.Duration) {
	pipelineDuration.WithLabelValues(pipelineType).Observe(d.Seconds())
}

func IncBottleneck(reason string) { bottlenecksTotal.WithLabelValues(reason).Inc() }

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
