package journal

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// templateSchema guards the serialized template shape before it is
// deserialized and structurally validated. It rejects unknown value kinds
// and operators early with positional error messages.
const templateSchema = `{
	"type": "object",
	"required": ["lines"],
	"properties": {
		"posting_status": {"type": "string", "enum": ["draft", "posted"]},
		"branch_id": {"type": "string"},
		"default_context": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		},
		"conditions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["context_key", "operator"],
				"properties": {
					"context_key": {"type": "string", "minLength": 1},
					"operator": {
						"type": "string",
						"enum": [
							"equals", "not_equals",
							"greater_than", "greater_than_or_equal",
							"less_than", "less_than_or_equal",
							"contains", "not_contains",
							"exists", "not_exists"
						]
					},
					"value": {"type": "string"}
				}
			}
		},
		"lines": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["account_id"],
				"properties": {
					"account_id": {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"cost_center_id": {"type": "string"},
					"debit": {"$ref": "#/definitions/value"},
					"credit": {"$ref": "#/definitions/value"}
				}
			}
		}
	},
	"definitions": {
		"value": {
			"type": "object",
			"properties": {
				"kind": {"type": "string", "enum": ["fixed", "context", "expression"]},
				"amount": {"type": ["string", "number"]},
				"context_key": {"type": "string"},
				"expression": {"type": "string"}
			}
		}
	}
}`

// ValidateTemplatePayload checks a serialized template against the JSON
// schema before deserialization. Structural and expression checks still
// run afterwards via ValidateTemplate.
func ValidateTemplatePayload(raw []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(templateSchema)
	dataLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate template payload: %w", err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(descriptions, "; "))
	}

	return nil
}
