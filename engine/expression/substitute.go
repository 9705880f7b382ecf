// Package expression implements the Pipeline Expression Engine (spec §4.A):
// a sandboxed condition evaluator and a ${node.path} variable substitution
// engine with prototype-pollution defenses and type-preserving semantics.
package expression

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
)

// deniedSegments blocks prototype-pollution-shaped path segments. These
// names have no meaning for a plain Go map, but the spec mandates the
// denylist regardless so behavior stays identical across implementations
// whose map types do permit inherited keys (spec §9).
var deniedSegments = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// lookupResult carries whether a token resolved, and if so, to what.
type lookupResult struct {
	found bool
	value any
}

// resolveToken looks up "head.a.b.c" against ctx.Outputs per the spec §4.A
// procedure: missing head, missing segment, or a denylisted segment all
// leave the token unresolved (the caller keeps the literal text).
func resolveToken(path string, ctx *pipeline.ExecutionContext) lookupResult {
	segments := strings.Split(path, ".")
	if len(segments) == 0 || segments[0] == "" {
		return lookupResult{}
	}

	head := pipeline.NodeID(segments[0])
	current, ok := ctx.Output(head)
	if !ok {
		return lookupResult{}
	}

	for _, seg := range segments[1:] {
		if deniedSegments[seg] {
			return lookupResult{}
		}
		next, ok := stepInto(current, seg)
		if !ok {
			return lookupResult{}
		}
		current = next
	}
	return lookupResult{found: true, value: current}
}

// stepInto advances one path segment into current, supporting map access
// and, as a practical extension, numeric indexing into slices.
func stepInto(current any, segment string) (any, bool) {
	switch v := current.(type) {
	case map[string]any:
		val, ok := v[segment]
		return val, ok
	case []any:
		idx, err := strconv.Atoi(segment)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil, false
		}
		return v[idx], true
	default:
		return nil, false
	}
}

// findToken locates the next "${...}" token starting at or after from.
// Returns the token's [start,end) byte range (end exclusive of the closing
// brace) and the inner path text, or found=false if no token remains.
func findToken(s string, from int) (start, end int, path string, found bool) {
	idx := strings.Index(s[from:], "${")
	if idx < 0 {
		return 0, 0, "", false
	}
	start = from + idx
	closeIdx := strings.Index(s[start:], "}")
	if closeIdx < 0 {
		return 0, 0, "", false
	}
	end = start + closeIdx + 1
	path = s[start+2 : end-1]
	return start, end, path, true
}

// canonicalString renders v the way substituteVariables splices a resolved
// value into a non-exact-token template (spec §4.A).
func canonicalString(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

// SubstituteVariables replaces every "${node.path}" token in template using
// ctx's recorded node outputs. When template is exactly one token with no
// surrounding text, the resolved value is returned with its native type
// (spec §4.A type-preservation rule); otherwise every token is serialized
// to its canonical string form and spliced into the template.
func SubstituteVariables(template string, ctx *pipeline.ExecutionContext) any {
	start, end, path, found := findToken(template, 0)
	if found && start == 0 && end == len(template) {
		result := resolveToken(path, ctx)
		if !result.found {
			return template
		}
		return result.value
	}

	var b strings.Builder
	pos := 0
	for {
		start, end, path, found := findToken(template, pos)
		if !found {
			b.WriteString(template[pos:])
			break
		}
		b.WriteString(template[pos:start])
		result := resolveToken(path, ctx)
		if !result.found {
			b.WriteString(template[start:end])
		} else {
			b.WriteString(canonicalString(result.value))
		}
		pos = end
	}
	return b.String()
}

// ResolveNodeConfig recursively substitutes variables into every string
// leaf of a node's config map, preserving map/list structure and element
// types along the way (spec §4.A).
func ResolveNodeConfig(config map[string]any, ctx *pipeline.ExecutionContext) map[string]any {
	if config == nil {
		return nil
	}
	resolved := make(map[string]any, len(config))
	for k, v := range config {
		resolved[k] = resolveValue(v, ctx)
	}
	return resolved
}

func resolveValue(v any, ctx *pipeline.ExecutionContext) any {
	switch val := v.(type) {
	case string:
		return SubstituteVariables(val, ctx)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = resolveValue(inner, ctx)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = resolveValue(inner, ctx)
		}
		return out
	default:
		return val
	}
}
