package claudeagent

import "testing"

func TestNewOptionsMapsMaxTokensThroughExtraArgs(t *testing.T) {
	o := NewOptions(WithMaxTokens(4096))
	v, ok := o.ExtraArgs["max-tokens"]
	if !ok || v == nil {
		t.Fatalf("ExtraArgs[max-tokens] missing, want it populated from MaxTokens")
	}
	if *v != "4096" {
		t.Fatalf("ExtraArgs[max-tokens] = %q, want %q", *v, "4096")
	}
}

func TestNewOptionsExplicitExtraArgWins(t *testing.T) {
	explicit := "8192"
	o := NewOptions(WithMaxTokens(4096), WithExtraArg("max-tokens", &explicit))
	if *o.ExtraArgs["max-tokens"] != "8192" {
		t.Fatalf("explicit extra_args entry was overwritten by MaxTokens")
	}
}

func TestDefaultOptionsHasAmbientDefaults(t *testing.T) {
	o := DefaultOptions()
	if o.Logger == nil {
		t.Fatalf("DefaultOptions().Logger is nil")
	}
	if o.OperationTimeout <= 0 {
		t.Fatalf("DefaultOptions().OperationTimeout = %v, want > 0", o.OperationTimeout)
	}
	if o.PermissionMode != PermissionModeDefault {
		t.Fatalf("DefaultOptions().PermissionMode = %v, want default", o.PermissionMode)
	}
}

func TestOptionsValidateRejectsMalformedJSONSchema(t *testing.T) {
	o := NewOptions(WithJSONSchema([]byte(`not json`)))
	if err := o.Validate(); err == nil {
		t.Fatalf("Validate accepted a malformed json_schema option")
	}
}

func TestOptionsValidateAcceptsWellFormedJSONSchema(t *testing.T) {
	o := NewOptions(WithJSONSchema([]byte(`{"type":"object"}`)))
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate rejected a well-formed json_schema option: %v", err)
	}
}

func TestWithSDKMCPServerRegistersByName(t *testing.T) {
	server := &MCPServer{Name: "calc", Handler: func(message []byte) ([]byte, error) { return message, nil }}
	o := NewOptions(WithSDKMCPServer(server))
	if o.SDKMCPServers["calc"] != server {
		t.Fatalf("SDKMCPServers[calc] not registered")
	}
}
