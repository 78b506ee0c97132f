package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks extracted objects against a compiled JSON Schema.
type Validator struct {
	name   string
	schema *jsonschema.Schema
}

// NewValidator compiles schema (a JSON Schema document expressed as Go
// values) under the given resource name.
func NewValidator(name string, schema map[string]any) (*Validator, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize schema %s: %w", name, err)
	}

	url := name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	return &Validator{name: name, schema: compiled}, nil
}

// Name returns the schema resource name.
func (v *Validator) Name() string {
	return v.name
}

// Validate reports the first schema violation in obj, if any.
func (v *Validator) Validate(obj map[string]any) error {
	if err := v.schema.Validate(obj); err != nil {
		return fmt.Errorf("object does not match %s schema: %w", v.name, err)
	}
	return nil
}
