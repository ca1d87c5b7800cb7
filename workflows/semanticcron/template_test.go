package semanticcron_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/websets-labs/orchestrator/workflows/semanticcron"
)

// Template expansion round-trips cleanly when every variable resolves,
// and fails naming every unresolved token otherwise.
func TestExpandTemplateSubstitutesAllOccurrences(t *testing.T) {
	raw := map[string]any{
		"lenses": []any{
			map[string]any{"id": "A", "source": map[string]any{"query": "{{topic}} companies", "criteria": []any{"{{topic}} vendors"}, "entity": map[string]any{"type": "company"}}},
		},
	}
	out, err := semanticcron.ExpandTemplate(raw, map[string]string{"topic": "AI infra"})
	require.NoError(t, err)

	lenses := out["lenses"].([]any)
	lens := lenses[0].(map[string]any)
	source := lens["source"].(map[string]any)
	require.Equal(t, "AI infra companies", source["query"])
	require.Equal(t, []any{"AI infra vendors"}, source["criteria"])
}

func TestExpandTemplateFailsNamingEveryResidual(t *testing.T) {
	raw := map[string]any{
		"lenses": []any{
			map[string]any{"id": "A", "source": map[string]any{"query": "{{missing1}} and {{missing2}}"}},
		},
	}
	_, err := semanticcron.ExpandTemplate(raw, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing1")
	require.Contains(t, err.Error(), "missing2")
}

func TestValidateSchemaRejectsMissingLenses(t *testing.T) {
	raw := map[string]any{
		"shapes": []any{},
		"join":   map[string]any{"by": "any"},
		"signal": map[string]any{"type": "any"},
	}
	require.Error(t, semanticcron.ValidateSchema(raw))
}

func TestValidateSchemaAcceptsMinimalConfig(t *testing.T) {
	raw := map[string]any{
		"lenses": []any{map[string]any{"id": "A"}},
		"shapes": []any{map[string]any{"lensId": "A", "conditions": []any{}}},
		"join":   map[string]any{"by": "cooccurrence"},
		"signal": map[string]any{"type": "any"},
	}
	require.NoError(t, semanticcron.ValidateSchema(raw))

	cfg, err := semanticcron.DecodeConfig(raw)
	require.NoError(t, err)
	require.Len(t, cfg.Lenses, 1)
	require.Equal(t, semanticcron.JoinByCooccurrence, cfg.Join.By)
}
