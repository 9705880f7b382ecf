package main

import (
	"sync"
	"time"
)

// metricsRecorder is the demonstration binary's stand-in for the external
// "metrics backend" spec §4.G/§6 describes as caller-supplied: a bounded
// in-memory per-metric sample buffer the SLO monitor samples from. A real
// deployment plugs in a Prometheus range-query client here instead.
type metricsRecorder struct {
	mu      sync.Mutex
	samples map[string][]float64
}

const maxSamplesPerMetric = 500

func newMetricsRecorder() *metricsRecorder {
	return &metricsRecorder{samples: make(map[string][]float64)}
}

// Record appends value to metric's sample buffer, capping it at
// maxSamplesPerMetric.
func (m *metricsRecorder) Record(metric string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := append(m.samples[metric], value)
	if len(s) > maxSamplesPerMetric {
		s = s[len(s)-maxSamplesPerMetric:]
	}
	m.samples[metric] = s
}

// Sample implements engine/slo.SampleSource: it ignores the window
// parameter and returns every buffered sample, since this recorder already
// bounds its own history rather than indexing by time.
func (m *metricsRecorder) Sample(metric string, _ time.Duration) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.samples[metric]))
	copy(out, m.samples[metric])
	return out
}

// seedDefaults primes the demo SLOs with plausible steady-state samples so
// /slo/status returns meaningful numbers before any pipeline has run.
func (m *metricsRecorder) seedDefaults() {
	for i := 0; i < 20; i++ {
		m.Record("ttft_ms", 400+float64(i%5)*50)
		m.Record("rpc_latency_ms", 120+float64(i%3)*20)
		m.Record("search_latency_ms", 90+float64(i%4)*15)
		m.Record("cache_hit_ratio", 0.9)
		m.Record("error_ratio", 0.002)
		m.Record("availability_ratio", 0.9995)
	}
}
