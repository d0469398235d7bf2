package claudeagent

import "testing"

func TestValidateJSONSchemaAcceptsMatchingValue(t *testing.T) {
	schema := []byte(`{
		"type": "object",
		"properties": {"answer": {"type": "string"}},
		"required": ["answer"]
	}`)
	value := map[string]any{"answer": "42"}
	if err := validateJSONSchema(schema, value); err != nil {
		t.Fatalf("validateJSONSchema rejected a matching value: %v", err)
	}
}

func TestValidateJSONSchemaRejectsMismatchedValue(t *testing.T) {
	schema := []byte(`{
		"type": "object",
		"properties": {"answer": {"type": "string"}},
		"required": ["answer"]
	}`)
	value := map[string]any{"wrong_field": 1}
	if err := validateJSONSchema(schema, value); err == nil {
		t.Fatalf("validateJSONSchema accepted a value missing a required property")
	}
}

func TestValidateJSONSchemaRejectsMalformedSchema(t *testing.T) {
	if err := validateJSONSchema([]byte(`not json`), nil); err == nil {
		t.Fatalf("validateJSONSchema accepted malformed schema bytes")
	}
}

func TestValidateJSONSchemaNilValueOnlyCompiles(t *testing.T) {
	schema := []byte(`{"type": "object"}`)
	if err := validateJSONSchema(schema, nil); err != nil {
		t.Fatalf("validateJSONSchema with nil value should only compile the schema: %v", err)
	}
}
