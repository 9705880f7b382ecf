// Package slo defines the SLO Monitor's data model (spec §3/§4.G):
// SLO definitions, computed status, and regression baselines.
package slo

import "time"

// Direction says whether "good" means the metric trending higher or lower.
type Direction string

const (
	DirectionLower  Direction = "lower"
	DirectionHigher Direction = "higher"
)

// Severity classifies how badly an SLO is missing its target.
type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SLO is a single service-level objective definition.
type SLO struct {
	Name         string
	MetricName   string
	Target       float64
	Window       time.Duration
	Percentile   float64 // 0 means "use mean"
	ErrorBudget  float64 // fraction in [0,1]
	Direction    Direction
	Query        string
}

// Status is the computed outcome of evaluating an SLO against samples.
type Status struct {
	Name                   string
	Target                 float64
	Actual                 float64
	Passing                bool
	ErrorBudget            float64
	ErrorBudgetRemaining   float64
	Severity               Severity
	LastChecked            time.Time
}

// RegressionAlert reports a detected shift in a metric's recent behavior
// relative to its historical baseline.
type RegressionAlert struct {
	MetricID        string
	HistoricalMean  float64
	RecentMean      float64
	Change          float64
	Threshold       float64
	Severity        Severity
	DetectedAt      time.Time
}
