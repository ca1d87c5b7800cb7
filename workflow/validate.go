package workflow

import (
	"time"

	"github.com/websets-labs/orchestrator/workflowerr"
)

// RequireString reads a required, non-empty string argument. Failure is a
// validation error attributed to the "validate" step.
func RequireString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", workflowerr.Errorf(workflowerr.KindValidation, "validate", "%q is required", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", workflowerr.Errorf(workflowerr.KindValidation, "validate", "%q must be a non-empty string", key)
	}
	return s, nil
}

// RequireMap reads a required object-valued argument.
func RequireMap(args map[string]any, key string) (map[string]any, error) {
	v, ok := args[key]
	if !ok {
		return nil, workflowerr.Errorf(workflowerr.KindValidation, "validate", "%q is required", key)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, workflowerr.Errorf(workflowerr.KindValidation, "validate", "%q must be an object", key)
	}
	return m, nil
}

// RequireStringSlice reads a required array-of-string argument with between
// min and max entries inclusive.
func RequireStringSlice(args map[string]any, key string, min, max int) ([]string, error) {
	v, ok := args[key]
	if !ok {
		return nil, workflowerr.Errorf(workflowerr.KindValidation, "validate", "%q is required", key)
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, workflowerr.Errorf(workflowerr.KindValidation, "validate", "%q must be an array", key)
	}
	if len(raw) < min || len(raw) > max {
		return nil, workflowerr.Errorf(workflowerr.KindValidation, "validate", "%q must have between %d and %d entries, got %d", key, min, max, len(raw))
	}
	out := make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok || s == "" {
			return nil, workflowerr.Errorf(workflowerr.KindValidation, "validate", "%q[%d] must be a non-empty string", key, i)
		}
		out = append(out, s)
	}
	return out, nil
}

// OptionalString reads an optional string argument, returning def if absent
// or not a string.
func OptionalString(args map[string]any, key, def string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// OptionalInt reads an optional numeric argument, returning def if absent
// or not a number. JSON-decoded arguments surface numbers as float64, which
// this accepts alongside int/int64 for callers that build args in Go.
func OptionalInt(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// OptionalTimeout reads the "timeout" argument (milliseconds) and returns it
// as a Duration, defaulting to DefaultStepTimeout.
func OptionalTimeout(args map[string]any) time.Duration {
	ms := OptionalInt(args, "timeout", int(DefaultStepTimeout/time.Millisecond))
	if ms <= 0 {
		return DefaultStepTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

// OptionalCount reads the "count" argument, defaulting to def.
func OptionalCount(args map[string]any, def int) int {
	return OptionalInt(args, "count", def)
}

// OptionalBool reads an optional boolean argument, returning def if absent
// or not a bool.
func OptionalBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}
