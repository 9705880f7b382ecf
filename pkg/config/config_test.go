package config

import "testing"

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Graph.DefaultConcurrency != 10 {
		t.Fatalf("expected default concurrency 10, got %d", cfg.Graph.DefaultConcurrency)
	}
	if cfg.Bus.MaxQueueSize != 10000 {
		t.Fatalf("expected default max queue size 10000, got %d", cfg.Bus.MaxQueueSize)
	}
	if cfg.SLO.RegressionLookback != 50 {
		t.Fatalf("expected regression lookback 50, got %d", cfg.SLO.RegressionLookback)
	}
	if cfg.SLO.RegressionThreshold != 0.2 {
		t.Fatalf("expected regression threshold 0.2, got %v", cfg.SLO.RegressionThreshold)
	}
}

func TestLoadWithMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Graph.DefaultConcurrency != 10 {
		t.Fatalf("expected defaults preserved, got %+v", cfg)
	}
}
