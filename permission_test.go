package claudeagent

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestPermissionDecisionPointNilAlwaysAllows(t *testing.T) {
	var pdp *PermissionDecisionPoint
	result := pdp.Decide("Bash", nil, PermissionContext{})
	if result.Behavior != PermissionAllow {
		t.Fatalf("Behavior = %v, want allow from a nil decision point", result.Behavior)
	}
}

func TestPermissionDecisionPointCallbackError(t *testing.T) {
	pdp := NewPermissionDecisionPoint(func(toolName string, input json.RawMessage, ctx PermissionContext) (*PermissionResult, error) {
		return nil, errors.New("denied by policy engine")
	})
	result := pdp.Decide("Bash", nil, PermissionContext{})
	if result.Behavior != PermissionDeny {
		t.Fatalf("Behavior = %v, want deny when the callback errors", result.Behavior)
	}
}

func TestPermissionDecisionPointPanicBecomesDeny(t *testing.T) {
	pdp := NewPermissionDecisionPoint(func(toolName string, input json.RawMessage, ctx PermissionContext) (*PermissionResult, error) {
		panic("boom")
	})
	result := pdp.Decide("Bash", nil, PermissionContext{})
	if result.Behavior != PermissionDeny {
		t.Fatalf("Behavior = %v, want deny when the callback panics", result.Behavior)
	}
}

func TestPermissionDecisionPointAllowWithInput(t *testing.T) {
	rewrite := json.RawMessage(`{"command":"echo safe"}`)
	pdp := NewPermissionDecisionPoint(func(toolName string, input json.RawMessage, ctx PermissionContext) (*PermissionResult, error) {
		return AllowWithInput(rewrite), nil
	})
	result := pdp.Decide("Bash", json.RawMessage(`{"command":"echo unsafe"}`), PermissionContext{})
	if result.Behavior != PermissionAllow {
		t.Fatalf("Behavior = %v, want allow", result.Behavior)
	}
	if string(result.UpdatedInput) != string(rewrite) {
		t.Fatalf("UpdatedInput = %s, want %s", result.UpdatedInput, rewrite)
	}
}
