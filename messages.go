package claudeagent

import (
	"encoding/json"
	"fmt"
)

// Message is the tagged union of everything the classifier can produce from
// one inbound line: a data-plane message, a control-plane request from the
// process, or a control-plane response to a request this library made.
type Message interface {
	// MessageType returns the wire "type" discriminator.
	MessageType() string
	// Raw returns the exact bytes the message was parsed from, so that
	// fields unknown to this version of the library are never silently
	// dropped (spec forward-compatibility requirement).
	Raw() json.RawMessage
}

// ContentBlock is one entry of an AssistantMessage's content list. Only the
// fields relevant to Block.Type are populated; the rest are zero.
type ContentBlock struct {
	Type string `json:"type"` // "text" | "tool_use" | "thinking" | "stream_event" | "tool_result"

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// stream_event (partial/delta)
	Delta   json.RawMessage `json:"delta,omitempty"`
	Index   *int            `json:"index,omitempty"`
	Partial bool            `json:"partial,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ToolResultBlock is the shape of a "tool_result" entry of a UserMessage's
// content list. UserMessage decodes its entries as ContentBlock, whose
// tool_result fields carry the same data.
type ToolResultBlock struct {
	Type      string          `json:"type"` // "tool_result"
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// SystemMessage carries process metadata and, for the first message of a
// session, the session identifier.
type SystemMessage struct {
	Subtype        string   `json:"subtype,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	CWD            string   `json:"cwd,omitempty"`
	Tools          []string `json:"tools,omitempty"`
	Model          string   `json:"model,omitempty"`
	PermissionMode string   `json:"permission_mode,omitempty"`
	APIKeySource   string   `json:"apiKeySource,omitempty"`

	raw json.RawMessage
}

func (m *SystemMessage) MessageType() string   { return "system" }
func (m *SystemMessage) Raw() json.RawMessage  { return m.raw }

// AssistantMessage is an ordered list of content blocks produced by the
// model.
type AssistantMessage struct {
	SessionID string         `json:"session_id,omitempty"`
	Content   []ContentBlock `json:"content"`

	raw json.RawMessage
}

func (m *AssistantMessage) MessageType() string  { return "assistant" }
func (m *AssistantMessage) Raw() json.RawMessage { return m.raw }

// Text concatenates every "text" content block, in order.
func (m *AssistantMessage) Text() string {
	var out string
	for _, b := range m.Content {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// UserMessage typically carries tool_result blocks keyed by their tool-use
// identifier.
type UserMessage struct {
	SessionID string         `json:"session_id,omitempty"`
	Content   []ContentBlock `json:"content,omitempty"`

	raw json.RawMessage
}

func (m *UserMessage) MessageType() string  { return "user" }
func (m *UserMessage) Raw() json.RawMessage { return m.raw }

// ResultMessage is the end-of-turn marker. Field-parity requirement: every
// field the wire schema defines is captured here, including the free-form
// Usage map and StructuredOutput value.
type ResultMessage struct {
	Subtype          string          `json:"subtype"`
	IsError          bool            `json:"is_error"`
	DurationMs       int64           `json:"duration_ms"`
	DurationAPIMs    int64           `json:"duration_api_ms"`
	NumTurns         int             `json:"num_turns"`
	SessionID        string          `json:"session_id"`
	TotalCostUSD     float64         `json:"total_cost_usd,omitempty"`
	Usage            map[string]any  `json:"usage,omitempty"`
	Result           *string         `json:"result,omitempty"`
	StructuredOutput json.RawMessage `json:"structured_output,omitempty"`

	raw json.RawMessage
}

func (m *ResultMessage) MessageType() string  { return "result" }
func (m *ResultMessage) Raw() json.RawMessage { return m.raw }

// ControlRequestBody is the inner "request" object of a control_request
// envelope, classified further by Subtype.
type ControlRequestBody struct {
	Subtype string `json:"subtype"`

	// hook_callback
	CallbackID string          `json:"callback_id,omitempty"`
	HookInput  json.RawMessage `json:"hook_input,omitempty"`

	// can_use_tool
	ToolName    string          `json:"tool_name,omitempty"`
	Input       json.RawMessage `json:"input,omitempty"`
	ToolUseID   string          `json:"tool_use_id,omitempty"`
	Suggestions json.RawMessage `json:"permission_suggestions,omitempty"`

	// initialize
	Hooks json.RawMessage `json:"hooks,omitempty"`

	// mcp_message
	ServerName string          `json:"server_name,omitempty"`
	Message    json.RawMessage `json:"message,omitempty"`
}

// ControlRequest is a control-plane request the process sent to the caller.
type ControlRequest struct {
	RequestID string              `json:"request_id"`
	Request   ControlRequestBody  `json:"request"`

	raw json.RawMessage
}

func (m *ControlRequest) MessageType() string  { return "control_request" }
func (m *ControlRequest) Raw() json.RawMessage { return m.raw }

// ControlResponseBody is the inner "response" object of a control_response
// envelope.
type ControlResponseBody struct {
	RequestID string          `json:"request_id"`
	Subtype   string          `json:"subtype"` // "success" | "error"
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ControlResponse is the process's reply to a caller-initiated control
// request, correlated by request identifier.
type ControlResponse struct {
	Response ControlResponseBody `json:"response"`

	raw json.RawMessage
}

func (m *ControlResponse) MessageType() string  { return "control_response" }
func (m *ControlResponse) Raw() json.RawMessage { return m.raw }

// envelopeHead is used only to sniff the top-level "type" before committing
// to a concrete type.
type envelopeHead struct {
	Type string `json:"type"`
}

// ParseMessage classifies one inbound JSON object per the classification
// rule: control_request and control_response are recognized first by their
// top-level type, then the data-plane types are recognized directly by
// their "type" field.
func ParseMessage(data []byte) (Message, error) {
	var head envelopeHead
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, wrapErr(ErrProtocol, "malformed json", err)
	}

	switch head.Type {
	case "control_request":
		var cr ControlRequest
		if err := json.Unmarshal(data, &cr); err != nil {
			return nil, wrapErr(ErrProtocol, "malformed control_request", err)
		}
		cr.raw = append(json.RawMessage(nil), data...)
		return &cr, nil

	case "control_response":
		var cresp ControlResponse
		if err := json.Unmarshal(data, &cresp); err != nil {
			return nil, wrapErr(ErrProtocol, "malformed control_response", err)
		}
		cresp.raw = append(json.RawMessage(nil), data...)
		return &cresp, nil

	case "system":
		var m SystemMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, wrapErr(ErrProtocol, "malformed system message", err)
		}
		m.raw = append(json.RawMessage(nil), data...)
		return &m, nil

	case "assistant":
		var env struct {
			SessionID string `json:"session_id,omitempty"`
			Message   struct {
				Content []ContentBlock `json:"content"`
			} `json:"message"`
			Content []ContentBlock `json:"content"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, wrapErr(ErrProtocol, "malformed assistant message", err)
		}
		content := env.Content
		if content == nil {
			content = env.Message.Content
		}
		m := &AssistantMessage{SessionID: env.SessionID, Content: content, raw: append(json.RawMessage(nil), data...)}
		return m, nil

	case "user":
		var env struct {
			SessionID string `json:"session_id,omitempty"`
			Message   struct {
				Content []ContentBlock `json:"content"`
			} `json:"message"`
			Content []ContentBlock `json:"content"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, wrapErr(ErrProtocol, "malformed user message", err)
		}
		content := env.Content
		if content == nil {
			content = env.Message.Content
		}
		m := &UserMessage{SessionID: env.SessionID, Content: content, raw: append(json.RawMessage(nil), data...)}
		return m, nil

	case "result":
		var m ResultMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, wrapErr(ErrProtocol, "malformed result message", err)
		}
		m.raw = append(json.RawMessage(nil), data...)
		return &m, nil

	default:
		return nil, wrapErr(ErrProtocol, fmt.Sprintf("unknown message type %q", head.Type), nil)
	}
}

// UserTurnEnvelope is the outbound wire shape for a single prompt.
type UserTurnEnvelope struct {
	Type            string      `json:"type"`
	Message         userPayload `json:"message"`
	ParentToolUseID *string     `json:"parent_tool_use_id"`
	SessionID       string      `json:"session_id,omitempty"`
}

type userPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserTurn builds the outbound user-message envelope for prompt, bound to
// sessionID (empty for the first turn of a session).
func NewUserTurn(prompt, sessionID string) UserTurnEnvelope {
	return UserTurnEnvelope{
		Type:            "user",
		Message:         userPayload{Role: "user", Content: prompt},
		ParentToolUseID: nil,
		SessionID:       sessionID,
	}
}

// ControlRequestEnvelope is the outbound wire shape for a caller-initiated
// control request.
type ControlRequestEnvelope struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id"`
	Request   map[string]any `json:"request"`
}

// ControlResponseEnvelope is the outbound wire shape replying to a
// process-initiated control request.
type ControlResponseEnvelope struct {
	Type     string                 `json:"type"`
	Response ControlResponsePayload `json:"response"`
}

// ControlResponsePayload is the "response" object of an outbound
// control_response.
type ControlResponsePayload struct {
	RequestID string         `json:"request_id"`
	Subtype   string         `json:"subtype"` // "success" | "error"
	Payload   map[string]any `json:"-"`
	Error     string         `json:"error,omitempty"`
}

// MarshalJSON flattens Payload's keys alongside request_id/subtype/error.
func (p ControlResponsePayload) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"request_id": p.RequestID,
		"subtype":    p.Subtype,
	}
	if p.Error != "" {
		m["error"] = p.Error
	}
	for k, v := range p.Payload {
		m[k] = v
	}
	return json.Marshal(m)
}
