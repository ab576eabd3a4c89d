// Package schema compiles and validates the review output schema.
// The schema is a caller-supplied JSON-Schema document that structured
// review output must satisfy.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is a compiled output schema.
type Schema struct {
	compiled *jsonschema.Schema
	doc      map[string]any
}

// CheckShape enforces the structural invariants on an output schema
// document: the root type must be "object" and at least one property must
// be required.
func CheckShape(doc map[string]any) error {
	if doc == nil {
		return errors.New("output schema is empty")
	}

	typ, _ := doc["type"].(string)
	if typ != "object" {
		return fmt.Errorf("output schema root type must be \"object\", got %v", doc["type"])
	}

	switch req := doc["required"].(type) {
	case []any:
		if len(req) == 0 {
			return errors.New("output schema must declare at least one required property")
		}
	case []string:
		if len(req) == 0 {
			return errors.New("output schema must declare at least one required property")
		}
	default:
		return errors.New("output schema must declare at least one required property")
	}

	return nil
}

// Compile checks the document's shape and compiles it for validation.
func Compile(doc map[string]any) (*Schema, error) {
	if err := CheckShape(doc); err != nil {
		return nil, err
	}

	// Round-trip through JSON so nested Go values ([]string, int, ...)
	// become the decoded forms the compiler expects.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding output schema: %w", err)
	}
	normalized, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding output schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("output_schema.json", normalized); err != nil {
		return nil, fmt.Errorf("registering output schema: %w", err)
	}
	compiled, err := compiler.Compile("output_schema.json")
	if err != nil {
		return nil, fmt.Errorf("compiling output schema: %w", err)
	}

	return &Schema{compiled: compiled, doc: doc}, nil
}

// Doc returns the original schema document.
func (s *Schema) Doc() map[string]any { return s.doc }

// Validate checks raw JSON against the schema and returns the decoded
// payload when it conforms.
func (s *Schema) Validate(raw []byte) (map[string]any, error) {
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("structured output is not valid JSON: %w", err)
	}
	if err := s.compiled.Validate(value); err != nil {
		return nil, err
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return nil, errors.New("structured output is not a JSON object")
	}
	return obj, nil
}
