// Package slo implements the SLO Monitor (spec §4.G): periodic percentile
// and error-budget evaluation against sampled metrics, plus baseline-window
// regression detection. It is driven independently of the Execution Graph —
// it observes process-wide metrics a caller supplies, not graph internals.
package slo

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	domainslo "github.com/R3E-Network/pipeline-orchestrator/domain/slo"
	"github.com/R3E-Network/pipeline-orchestrator/engine/events"
	"github.com/R3E-Network/pipeline-orchestrator/obsmetrics"
	"github.com/R3E-Network/pipeline-orchestrator/pkg/config"
	"github.com/R3E-Network/pipeline-orchestrator/pkg/logging"
	"github.com/robfig/cron/v3"
)

// SampleSource supplies the raw samples for one metric over a trailing
// window; the metrics backend itself (spec §6) is external and
// implementation-specific.
type SampleSource func(metricName string, window time.Duration) []float64

// Monitor evaluates registered SLOs on a cron-driven cadence and tracks
// per-metric regression baselines.
type Monitor struct {
	mu        sync.Mutex
	slos      map[string]domainslo.SLO
	baselines map[string][]float64
	history   []domainslo.Status

	cfg    config.SLOConfig
	source SampleSource
	log    *logging.Logger
	evt    *events.Bus

	cron    *cron.Cron
	entryID cron.EntryID
}

// New constructs a Monitor with no SLOs registered; call Register or
// RegisterDefaults before Start.
func New(cfg config.SLOConfig, source SampleSource, log *logging.Logger, evt *events.Bus) *Monitor {
	return &Monitor{
		slos:      make(map[string]domainslo.SLO),
		baselines: make(map[string][]float64),
		cfg:       cfg,
		source:    source,
		log:       log,
		evt:       evt,
	}
}

// Register adds or replaces an SLO definition.
func (m *Monitor) Register(s domainslo.SLO) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slos[s.Name] = s
}

// RegisterDefaults installs the default SLO set (spec §4.G): latency
// percentiles for TTFT/RPC/search, a cache hit-rate SLO, an error-rate
// SLO, and availability.
func (m *Monitor) RegisterDefaults() {
	for _, s := range DefaultSLOs() {
		m.Register(s)
	}
}

// DefaultSLOs returns the standard SLO set without registering it.
func DefaultSLOs() []domainslo.SLO {
	return []domainslo.SLO{
		{Name: "ttft_p95", MetricName: "ttft_ms", Target: 2000, Window: 5 * time.Minute, Percentile: 95, ErrorBudget: 0.05, Direction: domainslo.DirectionLower},
		{Name: "rpc_p99", MetricName: "rpc_latency_ms", Target: 500, Window: 5 * time.Minute, Percentile: 99, ErrorBudget: 0.01, Direction: domainslo.DirectionLower},
		{Name: "search_p95", MetricName: "search_latency_ms", Target: 300, Window: 5 * time.Minute, Percentile: 95, ErrorBudget: 0.02, Direction: domainslo.DirectionLower},
		{Name: "cache_hit_rate", MetricName: "cache_hit_ratio", Target: 0.85, Window: 5 * time.Minute, ErrorBudget: 0.05, Direction: domainslo.DirectionHigher},
		{Name: "error_rate", MetricName: "error_ratio", Target: 0.01, Window: 5 * time.Minute, ErrorBudget: 0.5, Direction: domainslo.DirectionLower},
		{Name: "availability", MetricName: "availability_ratio", Target: 0.999, Window: time.Hour, ErrorBudget: 0.1, Direction: domainslo.DirectionHigher},
	}
}

// Start schedules a check of every registered SLO every cfg.CheckInterval
// (default 30s), using robfig/cron's "@every" shorthand.
func (m *Monitor) Start(ctx context.Context) error {
	interval := m.cfg.CheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	m.cron = cron.New()
	id, err := m.cron.AddFunc(fmt.Sprintf("@every %s", interval), m.checkAll)
	if err != nil {
		return err
	}
	m.entryID = id
	m.cron.Start()

	go func() {
		<-ctx.Done()
		m.Stop()
	}()
	return nil
}

// Stop halts the scheduled checks. Safe to call multiple times.
func (m *Monitor) Stop() {
	if m.cron != nil {
		m.cron.Stop()
	}
}

func (m *Monitor) checkAll() {
	m.mu.Lock()
	slos := make([]domainslo.SLO, 0, len(m.slos))
	for _, s := range m.slos {
		slos = append(slos, s)
	}
	m.mu.Unlock()

	for _, s := range slos {
		m.Check(s)
	}
}

// Check evaluates one SLO against freshly sampled data, records it into
// history, and emits a violation event if it is not passing.
func (m *Monitor) Check(s domainslo.SLO) domainslo.Status {
	var samples []float64
	if m.source != nil {
		samples = m.source(s.MetricName, s.Window)
	}

	var actual float64
	if s.Percentile > 0 {
		actual = Percentile(samples, s.Percentile)
	} else {
		actual = Mean(samples)
	}

	status := Evaluate(s, actual)
	status.LastChecked = time.Now()

	m.mu.Lock()
	m.history = append(m.history, status)
	cap := m.cfg.HistorySize
	if cap <= 0 {
		cap = 1000
	}
	if len(m.history) > cap {
		m.history = m.history[len(m.history)-cap:]
	}
	m.mu.Unlock()

	obsmetrics.SetSLOErrorBudgetRemaining(s.Name, status.ErrorBudgetRemaining)
	if !status.Passing {
		obsmetrics.IncSLOViolation(s.Name, string(status.Severity))
		if m.evt != nil {
			m.evt.Publish(events.SLOViolation, map[string]any{
				"slo":      s.Name,
				"target":   s.Target,
				"actual":   status.Actual,
				"severity": string(status.Severity),
			})
		}
	}
	return status
}

// Evaluate computes an SLO's Status from a single already-aggregated
// actual value, applying the error-budget math spec §4.G/§8.12 defines.
func Evaluate(s domainslo.SLO, actual float64) domainslo.Status {
	var used float64
	switch s.Direction {
	case domainslo.DirectionHigher:
		if actual < s.Target && s.Target != 0 {
			used = (s.Target - actual) / s.Target
		}
	default: // DirectionLower
		if actual > s.Target && s.Target != 0 {
			used = (actual - s.Target) / s.Target
		}
	}

	remaining := s.ErrorBudget - used
	if remaining < 0 {
		remaining = 0
	}
	passing := used == 0 || remaining > 0

	var usage float64
	if s.ErrorBudget > 0 {
		usage = 1 - remaining/s.ErrorBudget
	} else if used > 0 {
		usage = 1
	}

	severity := domainslo.SeverityOK
	switch {
	case usage >= 1.0:
		severity = domainslo.SeverityCritical
	case usage >= 0.8:
		severity = domainslo.SeverityWarning
	}

	return domainslo.Status{
		Name:                 s.Name,
		Target:               s.Target,
		Actual:               actual,
		Passing:              passing,
		ErrorBudget:          s.ErrorBudget,
		ErrorBudgetRemaining: remaining,
		Severity:             severity,
	}
}

// Percentile returns the nearest-rank percentile p (0-100] of samples.
// index = ceil(p/100 * N) - 1 on an ascending sort (spec §4.G).
func Percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Mean returns the arithmetic mean of samples, or 0 for an empty input.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}

// History returns a snapshot of the bounded status history, oldest first.
func (m *Monitor) History() []domainslo.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domainslo.Status, len(m.history))
	copy(out, m.history)
	return out
}

const (
	regressionWindow = 10
	baselineCap      = 100
)

// DetectRegression records current into metricID's baseline and checks it
// for a regression against the historical mean (spec §4.G/§8.13).
func (m *Monitor) DetectRegression(metricID string, current float64, threshold float64) (*domainslo.RegressionAlert, bool) {
	if threshold <= 0 {
		threshold = m.cfg.RegressionThreshold
	}
	if threshold <= 0 {
		threshold = 0.2
	}
	lookback := m.cfg.RegressionLookback
	if lookback <= 0 {
		lookback = 50
	}

	m.mu.Lock()
	samples := append(m.baselines[metricID], current)
	if len(samples) > baselineCap {
		samples = samples[len(samples)-baselineCap:]
	}
	m.baselines[metricID] = samples
	snapshot := append([]float64(nil), samples...)
	m.mu.Unlock()

	if len(snapshot) < lookback || len(snapshot) <= regressionWindow {
		return nil, false
	}

	recent := snapshot[len(snapshot)-regressionWindow:]
	historical := snapshot[:len(snapshot)-regressionWindow]

	histMean := Mean(historical)
	recentMean := Mean(recent)

	var change float64
	if histMean != 0 {
		change = (recentMean - histMean) / histMean
	}

	if math.Abs(change) <= threshold {
		return nil, false
	}

	severity := domainslo.SeverityWarning
	if math.Abs(change) > 2*threshold {
		severity = domainslo.SeverityCritical
	}

	alert := &domainslo.RegressionAlert{
		MetricID:       metricID,
		HistoricalMean: histMean,
		RecentMean:     recentMean,
		Change:         change,
		Threshold:      threshold,
		Severity:       severity,
		DetectedAt:     time.Now(),
	}

	if m.evt != nil {
		m.evt.Publish(events.SLORegression, map[string]any{
			"metricId": metricID,
			"change":   change,
			"severity": string(severity),
		})
	}

	return alert, true
}
