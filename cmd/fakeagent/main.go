// Command fakeagent is a scripted stand-in for the external agent CLI. It
// speaks the same newline-delimited JSON protocol the real binary speaks,
// just enough of it to drive the client/session/reactive test suite through
// a real process boundary instead of an in-memory fake.
//
// Behavior is controlled by short directives embedded in the prompt text
// of a user turn:
//
//	TRIGGER_PERMISSION:<tool>         issue a can_use_tool control_request
//	                                  before answering the turn
//	TRIGGER_HOOK:<callback_id>:<tool> issue a hook_callback control_request
//	                                  before answering the turn
//	TRIGGER_EMPTY                     answer with a result and no assistant
//	                                  content at all
//	anything else                     answer immediately, echoing the text
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
)

type inbound struct {
	Type      string          `json:"type"`
	Message   json.RawMessage `json:"message,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Request   json.RawMessage `json:"request,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
}

type userPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestBody struct {
	Subtype string `json:"subtype"`
}

type responseBody struct {
	RequestID string `json:"request_id"`
	Subtype   string `json:"subtype"`
}

// pendingTurn remembers the user text of a turn that is waiting on a
// process-initiated control request before it can be answered.
type pendingTurn struct {
	requestID string
	text      string
}

var reqCounter uint64

func nextRequestID() string {
	return fmt.Sprintf("fake-req-%d", atomic.AddUint64(&reqCounter, 1))
}

func main() {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	cwd, _ := os.Getwd()
	sessionID := "fake-session-1"
	writeLine(w, map[string]any{
		"type":            "system",
		"subtype":         "init",
		"session_id":      sessionID,
		"cwd":             cwd,
		"tools":           []string{"Bash", "Read"},
		"model":           "fake-model",
		"permission_mode": "default",
	})

	turn := 0
	var pending *pendingTurn

	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var in inbound
		if err := json.Unmarshal(line, &in); err != nil {
			continue
		}

		switch in.Type {
		case "user":
			turn++
			pending = handleUserTurn(w, sessionID, in, turn)

		case "control_request":
			var body requestBody
			json.Unmarshal(in.Request, &body)
			handleControlRequest(w, in.RequestID, body.Subtype, in.Request)

		case "control_response":
			var body responseBody
			json.Unmarshal(in.Response, &body)
			if pending != nil && body.RequestID == pending.requestID {
				finishTurn(w, sessionID, pending.text, turn, in.Response)
				pending = nil
			}
		}
	}
}

// handleUserTurn either answers the turn immediately or, for a directive
// requiring a round trip through the process-initiated control path, sends
// that control_request and returns the pending state to resume from once
// its control_response arrives.
func handleUserTurn(w *bufio.Writer, sessionID string, in inbound, turn int) *pendingTurn {
	var msg userPayload
	json.Unmarshal(in.Message, &msg)
	text := msg.Content

	switch {
	case text == "TRIGGER_EMPTY":
		finishTurn(w, sessionID, text, turn, nil)
		return nil

	case strings.HasPrefix(text, "TRIGGER_PERMISSION:"):
		tool := strings.TrimPrefix(text, "TRIGGER_PERMISSION:")
		reqID := nextRequestID()
		writeLine(w, map[string]any{
			"type":       "control_request",
			"request_id": reqID,
			"request": map[string]any{
				"subtype":   "can_use_tool",
				"tool_name": tool,
				"input":     map[string]any{},
				"tool_use_id": "fake-tool-use-1",
			},
		})
		return &pendingTurn{requestID: reqID, text: text}

	case strings.HasPrefix(text, "TRIGGER_HOOK:"):
		rest := strings.TrimPrefix(text, "TRIGGER_HOOK:")
		parts := strings.SplitN(rest, ":", 2)
		callbackID, tool := parts[0], ""
		if len(parts) == 2 {
			tool = parts[1]
		}
		reqID := nextRequestID()
		writeLine(w, map[string]any{
			"type":       "control_request",
			"request_id": reqID,
			"request": map[string]any{
				"subtype":     "hook_callback",
				"callback_id": callbackID,
				"tool_name":   tool,
				"hook_input":  map[string]any{},
			},
		})
		return &pendingTurn{requestID: reqID, text: text}

	default:
		finishTurn(w, sessionID, text, turn, nil)
		return nil
	}
}

// finishTurn emits the assistant message and terminal result message for one
// turn. controlResult, if non-nil, is the control_response payload the
// directive's round trip produced, echoed back in the assistant text so a
// test can assert on it.
func finishTurn(w *bufio.Writer, sessionID, text string, turn int, controlResult json.RawMessage) {
	if text != "TRIGGER_EMPTY" {
		reply := "echo: " + text
		if controlResult != nil {
			reply = fmt.Sprintf("echo: %s control_result: %s", text, string(controlResult))
		}
		writeLine(w, map[string]any{
			"type":       "assistant",
			"session_id": sessionID,
			"content": []map[string]any{
				{"type": "text", "text": reply},
			},
		})
	}

	writeLine(w, map[string]any{
		"type":            "result",
		"subtype":         "success",
		"is_error":        false,
		"duration_ms":     1,
		"duration_api_ms": 1,
		"num_turns":       turn,
		"session_id":      sessionID,
		"total_cost_usd":  0.0,
		"usage": map[string]any{
			"input_tokens":  7,
			"output_tokens": 11,
		},
	})
}

// handleControlRequest answers a caller-initiated control request (one the
// Session sent to fakeagent), mirroring the subtypes Session.call issues.
func handleControlRequest(w *bufio.Writer, requestID, subtype string, raw json.RawMessage) {
	body := map[string]any{
		"request_id": requestID,
		"subtype":    "success",
	}
	var payload map[string]any

	switch subtype {
	case "initialize", "interrupt", "set_permission_mode", "set_model":
		// status-only acknowledgement is sufficient.
	case "ping":
		var in struct {
			Message string `json:"message"`
		}
		json.Unmarshal(raw, &in)
		payload = map[string]any{
			"message":         in.Message,
			"timestamp":       0,
			"protocolVersion": 1,
		}
	case "get_status":
		payload = map[string]any{
			"version":         "fake-1.0",
			"protocolVersion": 1,
		}
	case "list_models":
		payload = map[string]any{
			"models": []string{"fake-model", "fake-model-fast"},
		}
	default:
		body["subtype"] = "error"
		body["error"] = fmt.Sprintf("fakeagent: unsupported control request subtype %q", subtype)
	}

	if payload != nil {
		body["response"] = payload
	}

	writeLine(w, map[string]any{
		"type":     "control_response",
		"response": body,
	})
}

func writeLine(w *bufio.Writer, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	w.Write(data)
	w.WriteByte('\n')
	w.Flush()
}
