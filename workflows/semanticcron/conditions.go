package semanticcron

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/websets-labs/orchestrator/workflowerr"
)

// dayMillis is the millisecond width of one day, used by withinDays.
const dayMillis = 86_400_000

// evalCondition evaluates one shape condition against an item's resolved,
// description-indexed enrichment values. A missing or empty
// result fails any operator except exists, which returns false in that
// case too.
func evalCondition(cond Condition, values map[string][]string) bool {
	results := values[cond.Field]
	var first string
	if len(results) > 0 {
		first = results[0]
	}

	switch cond.Operator {
	case OpExists:
		return strings.TrimSpace(first) != ""
	case OpGTE, OpGT, OpLTE, OpLT, OpEQ:
		return evalNumeric(cond, first)
	case OpContains:
		want, _ := cond.Value.(string)
		return first != "" && strings.Contains(strings.ToLower(first), strings.ToLower(want))
	case OpMatches:
		pattern, _ := cond.Value.(string)
		if first == "" || pattern == "" {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(first)
	case OpOneOf:
		if first == "" {
			return false
		}
		lower := strings.ToLower(first)
		for _, v := range cond.Values {
			if strings.ToLower(v) == lower {
				return true
			}
		}
		return false
	case OpWithinDays:
		return evalWithinDays(cond, first)
	default:
		return false
	}
}

func evalNumeric(cond Condition, first string) bool {
	if strings.TrimSpace(first) == "" {
		return false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(first), 64)
	if err != nil {
		return false
	}
	want, ok := numericValue(cond.Value)
	if !ok {
		return false
	}
	switch cond.Operator {
	case OpGTE:
		return v >= want
	case OpGT:
		return v > want
	case OpLTE:
		return v <= want
	case OpLT:
		return v < want
	case OpEQ:
		return v == want
	default:
		return false
	}
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func evalWithinDays(cond Condition, first string) bool {
	if strings.TrimSpace(first) == "" {
		return false
	}
	days, ok := numericValue(cond.Value)
	if !ok {
		return false
	}
	t, err := parseTimestamp(first)
	if err != nil {
		return false
	}
	diffMs := time.Since(t).Milliseconds()
	if diffMs < 0 {
		diffMs = -diffMs
	}
	return float64(diffMs) <= days*dayMillis
}

// parseTimestamp accepts RFC3339 and bare-date forms, matching the kind of
// strings an upstream date-format enrichment returns.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// combinatorCache memoizes compiled CEL programs for a shape's all/any
// combinator over its pre-evaluated per-condition booleans, keyed by
// (combinator, conditionCount) since the generated expression depends only
// on those two things.
var combinatorCache sync.Map // map[string]cel.Program

func combinatorProgram(combinator string, n int) (cel.Program, error) {
	key := fmt.Sprintf("%s:%d", combinator, n)
	if v, ok := combinatorCache.Load(key); ok {
		return v.(cel.Program), nil
	}

	vars := make([]cel.EnvOption, n)
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = fmt.Sprintf("c%d", i)
		vars[i] = cel.Variable(names[i], cel.BoolType)
	}
	env, err := cel.NewEnv(vars...)
	if err != nil {
		return nil, workflowerr.Wrap(workflowerr.KindInternal, "shape.evaluate", err)
	}

	joiner := " && "
	if combinator == "any" {
		joiner = " || "
	}
	expr := strings.Join(names, joiner)
	if expr == "" {
		expr = "true"
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, workflowerr.Wrap(workflowerr.KindInternal, "shape.evaluate", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, workflowerr.Wrap(workflowerr.KindInternal, "shape.evaluate", err)
	}
	combinatorCache.Store(key, prg)
	return prg, nil
}

// evalShape evaluates every condition of shape against values, then
// combines them via the shape's all/any combinator compiled once as a
// cached CEL expression.
func evalShape(shape Shape, values map[string][]string) (bool, error) {
	combinator := shape.Combinator
	if combinator == "" {
		combinator = "all"
	}
	if len(shape.Conditions) == 0 {
		return true, nil
	}

	prg, err := combinatorProgram(combinator, len(shape.Conditions))
	if err != nil {
		return false, err
	}

	vars := make(map[string]any, len(shape.Conditions))
	for i, c := range shape.Conditions {
		vars[fmt.Sprintf("c%d", i)] = evalCondition(c, values)
	}

	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, workflowerr.Wrap(workflowerr.KindInternal, "shape.evaluate", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, workflowerr.New(workflowerr.KindInternal, "shape.evaluate", "combinator did not evaluate to a boolean")
	}
	return result, nil
}
