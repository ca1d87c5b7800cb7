package semanticcron

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/websets-labs/orchestrator/workflowerr"
)

// configSchema is the structural JSON Schema for a semantic-cron
// configuration: it rejects configs with no lenses, no shapes, or a
// missing join/signal. Cross-field reference checks (every
// shape's lensId must reference a declared lens; every lens id inside a
// signal's combination.sufficient must exist) are schema-inexpressible and
// are enforced separately in validateReferences.
const configSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["lenses", "shapes", "join", "signal"],
	"properties": {
		"lenses": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["id"],
				"properties": {"id": {"type": "string", "minLength": 1}}
			}
		},
		"shapes": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["lensId", "conditions"],
				"properties": {
					"lensId": {"type": "string", "minLength": 1},
					"combinator": {"enum": ["all", "any"]},
					"conditions": {"type": "array"}
				}
			}
		},
		"join": {
			"type": "object",
			"required": ["by"],
			"properties": {
				"by": {"enum": ["entity", "entity+temporal", "temporal", "cooccurrence"]}
			}
		},
		"signal": {
			"type": "object",
			"required": ["type"],
			"properties": {
				"type": {"enum": ["all", "any", "threshold", "combination"]}
			}
		}
	}
}`

var compiledConfigSchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(configSchema)))
	if err != nil {
		panic(fmt.Sprintf("semanticcron: invalid embedded schema: %v", err))
	}
	const resourceURL = "mem://semantic-cron-config.json"
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		panic(fmt.Sprintf("semanticcron: add schema resource: %v", err))
	}
	compiledConfigSchema, err = compiler.Compile(resourceURL)
	if err != nil {
		panic(fmt.Sprintf("semanticcron: compile schema: %v", err))
	}
}

// ValidateSchema checks cfg (as a generic map, pre-struct-decode) against
// the structural schema.
func ValidateSchema(raw map[string]any) error {
	if err := compiledConfigSchema.Validate(raw); err != nil {
		return workflowerr.Errorf(workflowerr.KindValidation, "validate", "schema validation failed: %s", err.Error())
	}
	return nil
}

// DecodeConfig converts a validated raw map into a structured Config.
func DecodeConfig(raw map[string]any) (Config, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return Config{}, workflowerr.Wrap(workflowerr.KindValidation, "validate", err)
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, workflowerr.Wrap(workflowerr.KindValidation, "validate", err)
	}
	return cfg, nil
}

// validateReferences enforces the cross-field reference rules: every
// shape's lensId must reference a declared lens; every
// lens id inside a signal's combination.sufficient must exist.
func validateReferences(cfg Config) error {
	lensIDs := make(map[string]bool, len(cfg.Lenses))
	for _, l := range cfg.Lenses {
		if lensIDs[l.ID] {
			return workflowerr.Errorf(workflowerr.KindValidation, "validate", "duplicate lens id %q", l.ID)
		}
		lensIDs[l.ID] = true
	}

	for _, s := range cfg.Shapes {
		if !lensIDs[s.LensID] {
			return workflowerr.Errorf(workflowerr.KindValidation, "validate", "shape references unknown lens %q", s.LensID)
		}
	}

	if cfg.Signal.Type == SignalCombination {
		if cfg.Signal.Combination == nil || len(cfg.Signal.Combination.Sufficient) == 0 {
			return workflowerr.New(workflowerr.KindValidation, "validate", "combination signal requires sufficient sets")
		}
		for _, set := range cfg.Signal.Combination.Sufficient {
			for _, id := range set {
				if !lensIDs[id] {
					return workflowerr.Errorf(workflowerr.KindValidation, "validate", "signal combination references unknown lens %q", id)
				}
			}
		}
	}

	return nil
}
