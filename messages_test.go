package claudeagent

import (
	"encoding/json"
	"testing"
)

func TestParseMessageSystem(t *testing.T) {
	line := []byte(`{"type":"system","subtype":"init","session_id":"sess-1","model":"fake"}`)
	msg, err := ParseMessage(line)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	sys, ok := msg.(*SystemMessage)
	if !ok {
		t.Fatalf("got %T, want *SystemMessage", msg)
	}
	if sys.SessionID != "sess-1" || sys.Model != "fake" {
		t.Fatalf("SystemMessage = %+v, fields not populated from wire json", sys)
	}
	if string(sys.Raw()) != string(line) {
		t.Fatalf("Raw() did not preserve the original bytes")
	}
}

func TestParseMessageAssistantTopLevelContent(t *testing.T) {
	line := []byte(`{"type":"assistant","session_id":"sess-1","content":[{"type":"text","text":"hi"}]}`)
	msg, err := ParseMessage(line)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	am := msg.(*AssistantMessage)
	if am.Text() != "hi" {
		t.Fatalf("Text() = %q, want %q", am.Text(), "hi")
	}
}

func TestParseMessageAssistantNestedMessage(t *testing.T) {
	line := []byte(`{"type":"assistant","message":{"content":[{"type":"text","text":"nested"}]}}`)
	msg, err := ParseMessage(line)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	am := msg.(*AssistantMessage)
	if am.Text() != "nested" {
		t.Fatalf("Text() = %q, want %q (message.content fallback)", am.Text(), "nested")
	}
}

func TestParseMessageResult(t *testing.T) {
	line := []byte(`{"type":"result","subtype":"success","is_error":false,"num_turns":3,"session_id":"sess-1"}`)
	msg, err := ParseMessage(line)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	rm := msg.(*ResultMessage)
	if rm.NumTurns != 3 || rm.IsError {
		t.Fatalf("ResultMessage = %+v", rm)
	}
}

func TestParseMessageUnknownType(t *testing.T) {
	_, err := ParseMessage([]byte(`{"type":"something_new"}`))
	if err == nil {
		t.Fatalf("ParseMessage accepted an unknown type")
	}
}

func TestParseMessageMalformedJSON(t *testing.T) {
	_, err := ParseMessage([]byte(`not json`))
	if err == nil {
		t.Fatalf("ParseMessage accepted non-JSON input")
	}
}

func TestControlResponsePayloadFlattensPayload(t *testing.T) {
	payload := ControlResponsePayload{
		RequestID: "req-1",
		Subtype:   "success",
		Payload:   map[string]any{"behavior": "allow"},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["behavior"] != "allow" {
		t.Fatalf("decoded = %v, want payload keys flattened to the top level", decoded)
	}
	if decoded["request_id"] != "req-1" {
		t.Fatalf("decoded = %v, missing request_id", decoded)
	}
}

func TestNewUserTurn(t *testing.T) {
	env := NewUserTurn("hello", "sess-1")
	if env.Type != "user" || env.Message.Content != "hello" || env.SessionID != "sess-1" {
		t.Fatalf("NewUserTurn = %+v", env)
	}
	if env.ParentToolUseID != nil {
		t.Fatalf("ParentToolUseID = %v, want nil for a top-level turn", env.ParentToolUseID)
	}
}
