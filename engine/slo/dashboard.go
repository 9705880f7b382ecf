package slo

import (
	"encoding/json"

	domainslo "github.com/R3E-Network/pipeline-orchestrator/domain/slo"
)

type dashboardDoc struct {
	Dashboard dashboardBody `json:"dashboard"`
}

type dashboardBody struct {
	Title  string   `json:"title"`
	Panels []panel  `json:"panels"`
	Tags   []string `json:"tags"`
}

type panel struct {
	ID      int      `json:"id"`
	Title   string   `json:"title"`
	Type    string   `json:"type"`
	GridPos gridPos  `json:"gridPos"`
	Targets []target `json:"targets"`
}

type gridPos struct {
	H int `json:"h"`
	W int `json:"w"`
	X int `json:"x"`
	Y int `json:"y"`
}

type target struct {
	Expr string `json:"expr"`
}

// GenerateDashboard renders a Grafana-compatible dashboard JSON document
// with one timeseries panel per SLO, plotting the actual value against its
// target (spec §6/§8.6: "bit-exact JSON schemas").
func GenerateDashboard(slos []domainslo.SLO) ([]byte, error) {
	doc := dashboardDoc{Dashboard: dashboardBody{
		Title: "Pipeline Orchestrator SLOs",
		Tags:  []string{"orchestrator", "slo"},
	}}

	for i, s := range slos {
		doc.Dashboard.Panels = append(doc.Dashboard.Panels, panel{
			ID:      i + 1,
			Title:   s.Name,
			Type:    "timeseries",
			GridPos: gridPos{H: 8, W: 12, X: (i % 2) * 12, Y: (i / 2) * 8},
			Targets: []target{
				{Expr: "orchestrator_slo_actual{slo=\"" + s.Name + "\"}"},
				{Expr: "orchestrator_slo_error_budget_remaining{slo=\"" + s.Name + "\"}"},
			},
		})
	}

	return json.Marshal(doc)
}
