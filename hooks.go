package claudeagent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
)

// HookKind enumerates the event kinds a hook can be registered against.
type HookKind string

const (
	HookPreToolUse          HookKind = "pre-tool-use"
	HookPostToolUse          HookKind = "post-tool-use"
	HookUserPromptSubmitted HookKind = "user-prompt-submitted"
	HookSessionStart        HookKind = "session-start"
	HookSessionEnd          HookKind = "session-end"
	HookErrorOccurred       HookKind = "error-occurred"
)

// HookInput is the parsed payload of a hook-callback control request.
// ToolName/ToolUseID are populated for pre/post-tool-use; other kinds
// populate only Extra.
type HookInput struct {
	Kind        HookKind
	ToolName    string
	ToolUseID   string
	ToolInput   json.RawMessage
	ToolResult  json.RawMessage
	Extra       json.RawMessage // the full inner payload, for kinds not otherwise modeled
}

// HookOutput is a hook callback's result, translated into the process's
// wire form by hookOutputToPayload in session.go.
type HookOutput struct {
	Continue bool // default true
	Decision string
	Reason   string

	// Permission-hook-specific fields (nested "hookSpecificOutput" on the
	// wire).
	PermissionDecision       string
	PermissionDecisionReason string
	UpdatedInput             json.RawMessage
}

// HookCallback is a caller-supplied hook function.
type HookCallback func(input HookInput) (*HookOutput, error)

type hookRegistration struct {
	id       string
	event    HookKind
	pattern  *regexp.Regexp // nil matches any tool name
	callback HookCallback
}

// HookRegistry holds caller-registered callbacks keyed by event kind and
// tool-name pattern, copy-on-write at registration time.
type HookRegistry struct {
	mu      sync.Mutex
	entries []*hookRegistration
	counter uint64
}

// NewHookRegistry returns an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{}
}

// Register adds a callback for event, optionally restricted to tool names
// matching pattern (nil matches any), and returns a stable identifier.
func (r *HookRegistry) Register(event HookKind, pattern *regexp.Regexp, cb HookCallback) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := fmt.Sprintf("hook-%d", atomic.AddUint64(&r.counter, 1))
	next := make([]*hookRegistration, len(r.entries), len(r.entries)+1)
	copy(next, r.entries)
	next = append(next, &hookRegistration{id: id, event: event, pattern: pattern, callback: cb})
	r.entries = next
	return id
}

// Unregister removes the registration with the given identifier, reporting
// whether it was present.
func (r *HookRegistry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.id == id {
			next := make([]*hookRegistration, 0, len(r.entries)-1)
			next = append(next, r.entries[:i]...)
			next = append(next, r.entries[i+1:]...)
			r.entries = next
			return true
		}
	}
	return false
}

// snapshot copies the current registration list once, for use by a single
// dispatch.
func (r *HookRegistry) snapshot() []*hookRegistration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*hookRegistration, len(r.entries))
	copy(out, r.entries)
	return out
}

// HookConfigEntry is one entry of the configuration advertised to the
// process at connect time.
type HookConfigEntry struct {
	Pattern        string `json:"matcher,omitempty"`
	CallbackID     string `json:"callback_id"`
}

// BuildConfiguration returns a mapping from event kind to its registered
// {pattern, callback_identifier} entries, or nil if the registry holds no
// registrations (in which case no "initialize" control request is sent).
func (r *HookRegistry) BuildConfiguration() map[HookKind][]HookConfigEntry {
	entries := r.snapshot()
	if len(entries) == 0 {
		return nil
	}
	cfg := make(map[HookKind][]HookConfigEntry)
	for _, e := range entries {
		pattern := ""
		if e.pattern != nil {
			pattern = e.pattern.String()
		}
		cfg[e.event] = append(cfg[e.event], HookConfigEntry{Pattern: pattern, CallbackID: e.id})
	}
	return cfg
}

// Execute invokes every registration matching (event inferred from the
// callback ids passed in input.Kind is not needed here — callers select
// registrations by matching tool name within the given event) whose pattern
// matches input.ToolName, merging outputs per the rule: any continue:false
// short-circuits to block; any non-nil updated_input wins (last one);
// last non-nil reason wins.
func (r *HookRegistry) Execute(event HookKind, input HookInput) (*HookOutput, error) {
	entries := r.snapshot()
	merged := &HookOutput{Continue: true}
	matched := false

	for _, e := range entries {
		if e.event != event {
			continue
		}
		if e.pattern != nil && !e.pattern.MatchString(input.ToolName) {
			continue
		}
		matched = true

		out, err := e.callback(input)
		if err != nil {
			return nil, wrapErr(ErrCallback, "hook callback failed", err)
		}
		if out == nil {
			continue
		}
		if !out.Continue {
			merged.Continue = false
		}
		if out.UpdatedInput != nil {
			merged.UpdatedInput = out.UpdatedInput
		}
		if out.Reason != "" {
			merged.Reason = out.Reason
		}
		if out.Decision != "" {
			merged.Decision = out.Decision
		}
		if out.PermissionDecision != "" {
			merged.PermissionDecision = out.PermissionDecision
		}
		if out.PermissionDecisionReason != "" {
			merged.PermissionDecisionReason = out.PermissionDecisionReason
		}
	}

	if !matched {
		return nil, nil
	}
	return merged, nil
}

// ExecuteByCallbackID is used by the control-request dispatcher, which only
// knows the callback_id the process sent back, not the event kind. It looks
// up the single matching registration directly rather than going through
// the merge rule (the merge rule applies when the process itself fans a
// single tool invocation out to every matching registration; here the
// process already names one callback) — but it still honors that
// registration's own tool_pattern, exactly as Execute does for the
// multi-registration path: a registration whose pattern does not match
// input.ToolName is not invoked, and a no-op continue is returned instead.
func (r *HookRegistry) ExecuteByCallbackID(callbackID string, input HookInput) (*HookOutput, error) {
	entries := r.snapshot()
	for _, e := range entries {
		if e.id != callbackID {
			continue
		}
		if e.pattern != nil && !e.pattern.MatchString(input.ToolName) {
			return &HookOutput{Continue: true}, nil
		}
		out, err := e.callback(input)
		if err != nil {
			return nil, wrapErr(ErrCallback, "hook callback failed", err)
		}
		if out == nil {
			out = &HookOutput{Continue: true}
		}
		return out, nil
	}
	return nil, newErr(ErrProtocol, fmt.Sprintf("unknown hook callback id %q", callbackID))
}
