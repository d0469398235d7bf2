package claudeagent

import (
	"encoding/json"
	"errors"
	"regexp"
	"testing"
)

func TestHookRegistryExecuteMergeRule(t *testing.T) {
	r := NewHookRegistry()
	r.Register(HookPreToolUse, nil, func(in HookInput) (*HookOutput, error) {
		return &HookOutput{Continue: true, Reason: "first"}, nil
	})
	r.Register(HookPreToolUse, nil, func(in HookInput) (*HookOutput, error) {
		return &HookOutput{Continue: false, Reason: "second blocks"}, nil
	})

	out, err := r.Execute(HookPreToolUse, HookInput{ToolName: "Bash"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Continue {
		t.Fatalf("Continue = true, want false: any continue:false must short-circuit to block")
	}
	if out.Reason != "second blocks" {
		t.Fatalf("Reason = %q, want the last non-empty reason", out.Reason)
	}
}

func TestHookRegistryExecutePatternFilter(t *testing.T) {
	r := NewHookRegistry()
	r.Register(HookPreToolUse, regexp.MustCompile("^Bash$"), func(in HookInput) (*HookOutput, error) {
		return &HookOutput{Continue: false, Reason: "blocked bash"}, nil
	})

	out, err := r.Execute(HookPreToolUse, HookInput{ToolName: "Read"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != nil {
		t.Fatalf("Execute matched a non-matching tool name: %+v", out)
	}

	out, err = r.Execute(HookPreToolUse, HookInput{ToolName: "Bash"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out == nil || out.Continue {
		t.Fatalf("Execute did not block the matching tool name")
	}
}

func TestHookRegistryUnregister(t *testing.T) {
	r := NewHookRegistry()
	id := r.Register(HookSessionStart, nil, func(in HookInput) (*HookOutput, error) {
		return nil, nil
	})

	if !r.Unregister(id) {
		t.Fatalf("Unregister reported false for a registered id")
	}
	if r.Unregister(id) {
		t.Fatalf("Unregister reported true for an already-removed id")
	}

	if cfg := r.BuildConfiguration(); cfg != nil {
		t.Fatalf("BuildConfiguration = %+v, want nil once every registration is removed", cfg)
	}
}

func TestHookRegistryBuildConfiguration(t *testing.T) {
	r := NewHookRegistry()
	id := r.Register(HookPostToolUse, regexp.MustCompile("Write.*"), func(in HookInput) (*HookOutput, error) {
		return nil, nil
	})

	cfg := r.BuildConfiguration()
	entries, ok := cfg[HookPostToolUse]
	if !ok || len(entries) != 1 {
		t.Fatalf("BuildConfiguration missing the registered entry: %+v", cfg)
	}
	if entries[0].CallbackID != id {
		t.Fatalf("CallbackID = %q, want %q", entries[0].CallbackID, id)
	}
	if entries[0].Pattern != "Write.*" {
		t.Fatalf("Pattern = %q, want %q", entries[0].Pattern, "Write.*")
	}
}

func TestHookRegistryExecuteByCallbackID(t *testing.T) {
	r := NewHookRegistry()
	id := r.Register(HookPreToolUse, nil, func(in HookInput) (*HookOutput, error) {
		return &HookOutput{Continue: true, UpdatedInput: json.RawMessage(`{"safe":true}`)}, nil
	})

	out, err := r.ExecuteByCallbackID(id, HookInput{ToolName: "Bash"})
	if err != nil {
		t.Fatalf("ExecuteByCallbackID: %v", err)
	}
	if string(out.UpdatedInput) != `{"safe":true}` {
		t.Fatalf("UpdatedInput = %s, want the callback's rewrite", out.UpdatedInput)
	}

	if _, err := r.ExecuteByCallbackID("does-not-exist", HookInput{}); err == nil {
		t.Fatalf("ExecuteByCallbackID succeeded for an unknown id")
	}
}

func TestHookRegistryExecuteByCallbackIDHonorsPattern(t *testing.T) {
	invoked := false
	r := NewHookRegistry()
	id := r.Register(HookPreToolUse, regexp.MustCompile("^Bash$"), func(in HookInput) (*HookOutput, error) {
		invoked = true
		return &HookOutput{Continue: false, Reason: "blocked bash"}, nil
	})

	out, err := r.ExecuteByCallbackID(id, HookInput{ToolName: "Read"})
	if err != nil {
		t.Fatalf("ExecuteByCallbackID: %v", err)
	}
	if invoked {
		t.Fatalf("ExecuteByCallbackID invoked a callback whose pattern does not match tool_name")
	}
	if out == nil || !out.Continue {
		t.Fatalf("ExecuteByCallbackID = %+v, want a no-op continue for a non-matching tool_name", out)
	}

	out, err = r.ExecuteByCallbackID(id, HookInput{ToolName: "Bash"})
	if err != nil {
		t.Fatalf("ExecuteByCallbackID: %v", err)
	}
	if !invoked {
		t.Fatalf("ExecuteByCallbackID did not invoke the callback for a matching tool_name")
	}
	if out == nil || out.Continue {
		t.Fatalf("ExecuteByCallbackID = %+v, want the callback's own output once matched", out)
	}
}

func TestHookRegistryCallbackErrorIsWrapped(t *testing.T) {
	r := NewHookRegistry()
	r.Register(HookErrorOccurred, nil, func(in HookInput) (*HookOutput, error) {
		return nil, errors.New("callback exploded")
	})

	_, err := r.Execute(HookErrorOccurred, HookInput{})
	if err == nil {
		t.Fatalf("Execute swallowed the callback's error")
	}
	var kindErr *Error
	if !errors.As(err, &kindErr) || kindErr.Kind != ErrCallback {
		t.Fatalf("Execute error = %v, want ErrCallback", err)
	}
}
