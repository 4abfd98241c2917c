package toolkit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

type atomicCounter struct{ v atomic.Uint64 }

func (c *atomicCounter) next() uint64 { return c.v.Add(1) }

// Validator validates tool parameters before execution.
type Validator interface {
	Validate(params map[string]interface{}, schema *JSONSchema) error
}

// SchemaValidator validates against the full JSON-Schema-Draft-7 subset
// supported by jsonschema/v6, a strict upgrade over a hand-rolled
// required-fields-and-primitive-types check: it understands nested
// properties, enums, numeric bounds and pattern constraints in a tool's
// parameter schema instead of only its top level.
type SchemaValidator struct {
	seq atomicCounter
}

// NewSchemaValidator builds a validator.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{}
}

// Validate compiles schema on the fly and checks params against it. Each
// call gets its own compiler instance and resource URL: jsonschema/v6
// compilers are not designed for repeated AddResource calls on the same
// URL, and tool schemas are small enough that recompiling per call is cheap
// relative to the LLM round trip that produced the params being validated.
func (v *SchemaValidator) Validate(params map[string]interface{}, schema *JSONSchema) error {
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	raw, err := toRawSchema(schema)
	if err != nil {
		return fmt.Errorf("toolkit: encode schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	resourceURL := fmt.Sprintf("mem://tool-schema-%d.json", v.seq.next())
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("toolkit: parse schema: %w", err)
	}
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return fmt.Errorf("toolkit: add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("toolkit: compile schema: %w", err)
	}

	if err := compiled.Validate(toAnyMap(params)); err != nil {
		return fmt.Errorf("toolkit: validation failed: %w", err)
	}
	return nil
}

func toRawSchema(schema *JSONSchema) ([]byte, error) {
	doc := map[string]interface{}{}
	if schema.Type != "" {
		doc["type"] = schema.Type
	}
	if len(schema.Properties) > 0 {
		doc["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		doc["required"] = schema.Required
	}
	return json.Marshal(doc)
}

func toAnyMap(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

// DefaultValidator is a minimal fallback validator (required-field checks
// only) kept for tests and for callers that want to avoid the jsonschema/v6
// compile-per-call cost.
type DefaultValidator struct{}

// Validate ensures that params contain every field listed in the schema's
// Required. Property types and all other constraints are not checked.
func (DefaultValidator) Validate(params map[string]interface{}, schema *JSONSchema) error {
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	for _, field := range schema.Required {
		if _, exists := params[field]; !exists {
			return fmt.Errorf("missing required field: %s", field)
		}
	}
	return nil
}
