package slo

import (
	"encoding/json"
	"fmt"

	domainslo "github.com/R3E-Network/pipeline-orchestrator/domain/slo"
)

type ruleGroupDoc struct {
	Groups []ruleGroup `json:"groups"`
}

type ruleGroup struct {
	Name  string `json:"name"`
	Rules []rule `json:"rules"`
}

type rule struct {
	Alert       string            `json:"alert"`
	Expr        string            `json:"expr"`
	For         string            `json:"for"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
}

// GenerateAlertRules renders a Prometheus alerting-rule group JSON document,
// one rule per SLO, deriving expr from its metricName/target/direction
// (spec §6/§8.6).
func GenerateAlertRules(slos []domainslo.SLO) ([]byte, error) {
	group := ruleGroup{Name: "orchestrator_slo_alerts"}

	for _, s := range slos {
		op := ">"
		if s.Direction == domainslo.DirectionHigher {
			op = "<"
		}
		expr := fmt.Sprintf("orchestrator_slo_actual{slo=%q} %s %g", s.Name, op, s.Target)

		group.Rules = append(group.Rules, rule{
			Alert: fmt.Sprintf("SLOViolation_%s", s.Name),
			Expr:  expr,
			For:   "5m",
			Labels: map[string]string{
				"slo":      s.Name,
				"severity": "warning",
			},
			Annotations: map[string]string{
				"summary":     fmt.Sprintf("SLO %s is missing its target", s.Name),
				"description": fmt.Sprintf("%s: actual crossed target %g in the %s direction", s.Name, s.Target, s.Direction),
			},
		})
	}

	doc := ruleGroupDoc{Groups: []ruleGroup{group}}
	return json.Marshal(doc)
}
