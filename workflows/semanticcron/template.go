package semanticcron

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/websets-labs/orchestrator/workflowerr"
)

// residualTemplatePattern matches any remaining {{name}} token after
// substitution, where name is letters, digits, underscores and dots,
// optionally space-padded; other {{...}} text is not matched.
var residualTemplatePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*}}`)

// ExpandTemplate substitutes {{var}} tokens throughout the raw config JSON
// from vars, then scans for any remaining {{name}} token and fails
// validation listing the unresolved names. The configuration
// is treated as a structurally opaque text form so templates nested inside
// strings (queries, prompts, enrichment descriptions) are replaced without
// the caller annotating which fields contain templates.
func ExpandTemplate(rawConfig map[string]any, vars map[string]string) (map[string]any, error) {
	raw, err := json.Marshal(rawConfig)
	if err != nil {
		return nil, workflowerr.Wrap(workflowerr.KindValidation, "validate", err)
	}

	text := string(raw)
	for k, v := range vars {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, workflowerr.Wrap(workflowerr.KindValidation, "validate", err)
		}
		// encoded includes surrounding quotes; strip them since the
		// substitution happens inside an existing JSON string literal.
		replacement := strings.Trim(string(encoded), `"`)
		text = strings.ReplaceAll(text, "{{"+k+"}}", replacement)
	}

	if matches := residualTemplatePattern.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		seen := make(map[string]bool)
		var names []string
		for _, m := range matches {
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
		sort.Strings(names)
		return nil, workflowerr.Errorf(workflowerr.KindValidation, "validate",
			"unresolved template variables: %s", strings.Join(wrapBraces(names), ", "))
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, workflowerr.Wrap(workflowerr.KindValidation, "validate", err)
	}
	return out, nil
}

func wrapBraces(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "{{" + n + "}}"
	}
	return out
}
