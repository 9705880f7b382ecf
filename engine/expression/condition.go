package expression

import "github.com/R3E-Network/pipeline-orchestrator/pkg/logging"

// EvaluateCondition evaluates a whitelisted boolean expression string
// (spec §4.A). Any rejection — whitelist violation, lex/parse error, or a
// type mismatch during evaluation — returns false, never an error: the
// spec treats a malformed condition as "does not pass", not as a crash.
func EvaluateCondition(expr string, log *logging.Logger) bool {
	if !whitelisted(expr) {
		warn(log, expr, "expression contains disallowed characters")
		return false
	}
	node, err := parse(expr)
	if err != nil {
		warn(log, expr, err.Error())
		return false
	}
	v, err := node.eval()
	if err != nil {
		warn(log, expr, err.Error())
		return false
	}
	return v.Truthy()
}

func warn(log *logging.Logger, expr, reason string) {
	if log == nil {
		return
	}
	log.WithField("condition", expr).Warn("expression rejected: " + reason)
}
