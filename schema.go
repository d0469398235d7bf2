package claudeagent

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// validateJSONSchema compiles raw as a JSON Schema document and, if value is
// non-nil, validates it against the compiled schema. Options.Validate uses it
// to catch a malformed Options.JSONSchema (the json_schema option, spec §3)
// before it is serialized into --json-schema. In-process tool-servers carry
// no parameter schema, so nothing else is validated with it.
func validateJSONSchema(raw []byte, value any) error {
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return fmt.Errorf("invalid json schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("unresolvable json schema: %w", err)
	}
	if value == nil {
		return nil
	}
	if err := resolved.Validate(value); err != nil {
		return fmt.Errorf("value does not match schema: %w", err)
	}
	return nil
}

// Validate checks internal consistency of Options that can be verified
// without spawning a process — currently just that a WithJSONSchema value
// compiles as a JSON Schema document, so a malformed --json-schema argument
// is caught before the process ever sees it.
func (o *Options) Validate() error {
	if len(o.JSONSchema) == 0 {
		return nil
	}
	if err := validateJSONSchema(o.JSONSchema, nil); err != nil {
		return wrapErr(ErrProtocol, "json_schema option", err)
	}
	return nil
}
