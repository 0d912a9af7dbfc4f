package rules

import (
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	bundleSchemaOnce sync.Once
	bundleSchema     *jsonschema.Schema
	bundleSchemaErr  error
)

func compiledBundleSchema() (*jsonschema.Schema, error) {
	bundleSchemaOnce.Do(func() {
		bundleSchema, bundleSchemaErr = jsonschema.CompileString("rule_bundle", ruleBundleSchema)
	})
	return bundleSchema, bundleSchemaErr
}

const ruleBundleSchema = `{
  "type": "object",
  "required": ["schema_version", "bundle_id", "clinic_id", "rules"],
  "properties": {
    "schema_version": { "type": "string", "minLength": 1 },
    "bundle_id": { "type": "string", "minLength": 1 },
    "clinic_id": { "type": "string", "minLength": 1 },
    "metadata": { "type": "object" },
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["rule_id", "precedence", "conditions", "effect"],
        "properties": {
          "rule_id": { "type": "string", "minLength": 1 },
          "precedence": { "type": "integer" },
          "salience": { "type": "integer" },
          "effect": {
            "type": "string",
            "enum": ["deny", "escalate", "require_field", "limit_occurrence", "adjust_score", "warn"]
          },
          "field": { "type": "string" },
          "delta": { "type": "number" },
          "max_n": { "type": "integer", "minimum": 1 },
          "window_seconds": { "type": "integer", "minimum": 1 },
          "message": { "type": "string" },
          "explain_template": { "type": "string" },
          "dependencies": {
            "type": "array",
            "items": { "type": "string" }
          },
          "conditions": { "$ref": "#/$defs/condition" }
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "condition": {
      "type": "object",
      "oneOf": [
        {
          "required": ["combinator", "children"],
          "properties": {
            "combinator": { "type": "string", "enum": ["all", "any", "none", "not"] },
            "children": {
              "type": "array",
              "minItems": 1,
              "items": { "$ref": "#/$defs/condition" }
            }
          }
        },
        {
          "required": ["field", "operator"],
          "properties": {
            "field": { "type": "string", "minLength": 1 },
            "operator": {
              "type": "string",
              "enum": ["equals", "not_equals", "greater_than", "greater_or_equal", "less_than",
                       "less_or_equal", "contains", "not_contains", "starts_with", "ends_with",
                       "in", "not_in", "between", "is_null", "is_not_null", "regex"]
            },
            "value": {},
            "case_sensitive": { "type": "boolean" }
          }
        }
      ]
    }
  }
}`
