package claudeagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anthropics/claude-agent-sdk-go/internal/control"
	"github.com/anthropics/claude-agent-sdk-go/internal/demux"
	"github.com/anthropics/claude-agent-sdk-go/internal/transport"
)

const (
	defaultBinaryName     = "claude"
	envBinaryPathOverride = "CLAUDE_AGENT_CLI_PATH"
	closeGracePeriod      = 5 * time.Second
)

type sessionState int32

const (
	stateNew sessionState = iota
	stateConnecting
	stateConnected
	stateClosed
)

// Session drives one spawned process through one logical conversation.
// Lifecycle: NEW -> CONNECTING -> CONNECTED -> CLOSED.
type Session struct {
	opts *Options

	localID string // assigned at construction, for Client bookkeeping before the real session id is known

	hooks      *HookRegistry
	permission *PermissionDecisionPoint

	proc  *transport.Process
	corr  *control.Correlator
	demux *demux.Demux
	all   *demux.Subscriber // cross-turn sink of every data-plane message

	dispatchCh        chan *ControlRequest
	workersWG         sync.WaitGroup
	dispatchCloseOnce sync.Once

	turnMu sync.Mutex
	turnIt *MessageIterator // the subscriber Query installed for the turn in flight

	mu             sync.Mutex
	state          sessionState
	sessionID      string
	model          string
	effectiveModel string // the model the process itself reported on its "system"/"init" message
	permissionMode PermissionMode
}

// NewSession constructs a Session that has not yet spawned a process. A nil
// opts/hooks is replaced with an empty default; a nil permission decision
// point always allows.
func NewSession(opts *Options, hooks *HookRegistry, permission *PermissionDecisionPoint) *Session {
	if opts == nil {
		opts = NewOptions()
	}
	if hooks == nil {
		hooks = NewHookRegistry()
	}
	return &Session{
		opts:           opts,
		localID:        uuid.NewString(),
		hooks:          hooks,
		permission:     permission,
		corr:           control.New(uuid.NewString()),
		demux:          demux.New(),
		all:            demux.NewSink(),
		dispatchCh:     make(chan *ControlRequest, 32),
		state:          stateNew,
		model:          opts.Model,
		permissionMode: opts.PermissionMode,
	}
}

// ID returns the process-assigned session identifier once known, or the
// locally-generated identifier before it.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID != "" {
		return s.sessionID
	}
	return s.localID
}

func (s *Session) getState() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the session is currently CONNECTED.
func (s *Session) IsConnected() bool { return s.getState() == stateConnected }

// EffectiveModel returns the model the process itself reported on its
// "system"/"init" message, or "" before that message has arrived. This can
// differ from the model requested via Options/SetModel if the process
// resolves an alias or falls back.
func (s *Session) EffectiveModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectiveModel
}

func resolveBinary(opts *Options) (string, error) {
	if opts.BinaryPath != "" {
		return opts.BinaryPath, nil
	}
	if v := os.Getenv(envBinaryPathOverride); v != "" {
		return v, nil
	}
	return exec.LookPath(defaultBinaryName)
}

func buildEnv(opts *Options) []string {
	env := os.Environ()
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// Connect spawns the external process and, if initialPrompt is non-empty,
// sends it as the session's first turn (the caller still drains it via
// ReceiveResponse/ReceiveMessages).
func (s *Session) Connect(ctx context.Context, initialPrompt string) error {
	s.mu.Lock()
	if s.state != stateNew {
		st := s.state
		s.mu.Unlock()
		if st == stateClosed {
			return newErr(ErrClosed, "session already closed")
		}
		return newErr(ErrAlreadyConnected, "session already connecting or connected")
	}
	s.state = stateConnecting
	s.mu.Unlock()

	if err := s.opts.Validate(); err != nil {
		s.mu.Lock()
		s.state = stateNew
		s.mu.Unlock()
		return err
	}

	binPath, err := resolveBinary(s.opts)
	if err != nil {
		return wrapErr(ErrTransportUnavailable, "agent binary not found", err)
	}

	proc, err := transport.Start(transport.StartConfig{
		Path:              binPath,
		Args:              BuildArgv(s.opts),
		Env:               buildEnv(s.opts),
		Dir:               s.opts.WorkingDir,
		Stderr:            s.opts.Stderr,
		StdoutCompression: s.opts.StdoutCompression,
	})
	if err != nil {
		return wrapErr(ErrTransportUnavailable, "failed to launch agent process", err)
	}
	s.proc = proc

	workers := runtime.GOMAXPROCS(0)
	if workers < 2 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		s.workersWG.Add(1)
		go s.dispatchWorker()
	}

	go s.readLoop()
	go s.watchExit()

	if cfg := s.hooks.BuildConfiguration(); cfg != nil {
		if err := s.sendInitialize(ctx, cfg); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.state = stateConnected
	s.mu.Unlock()

	if initialPrompt != "" {
		return s.Query(ctx, initialPrompt)
	}
	return nil
}

func (s *Session) sendInitialize(ctx context.Context, cfg map[HookKind][]HookConfigEntry) error {
	hooksPayload := make(map[string]any, len(cfg))
	for kind, entries := range cfg {
		hooksPayload[string(kind)] = entries
	}
	_, err := s.call(ctx, "initialize", map[string]any{"hooks": hooksPayload})
	return err
}

// readLoop is the session's single inbound reader: it must never block on
// caller code. It classifies each line and either resolves a pending control
// request, enqueues a process-initiated control request for the dispatch
// pool, or hands a data-plane message to the demultiplexer.
func (s *Session) readLoop() {
	for {
		line, err := s.proc.Reader.ReadLine()
		if err != nil {
			return
		}
		if !transport.IsJSONObject(line) {
			s.logf("malformed stdout line (not json), skipping")
			continue
		}

		msg, err := ParseMessage(line)
		if err != nil {
			s.logf("protocol error parsing line: %v", err)
			continue
		}

		s.demux.Dispatch(msg)
		if demux.IsDataPlane(msg) {
			s.all.Push(msg)
		}

		switch m := msg.(type) {
		case *ControlResponse:
			if m.Response.Subtype == "error" {
				s.corr.Reject(m.Response.RequestID, m.Response.Error)
			} else {
				s.corr.Resolve(m.Response.RequestID, m.Response.Response)
			}
		case *ControlRequest:
			select {
			case s.dispatchCh <- m:
			default:
				// Pool saturated: the reader must never block on handler
				// dispatch, so fall back to a one-off goroutine.
				go s.handleControlRequest(m)
			}
		case *SystemMessage:
			s.mu.Lock()
			if m.SessionID != "" && s.sessionID == "" {
				s.sessionID = m.SessionID
			}
			if m.Model != "" {
				s.effectiveModel = m.Model
			}
			s.mu.Unlock()
		}
	}
}

func (s *Session) dispatchWorker() {
	defer s.workersWG.Done()
	for req := range s.dispatchCh {
		s.handleControlRequest(req)
	}
}

// handleControlRequest answers a process-initiated control request,
// dispatching on its subtype and writing a control_response envelope back.
func (s *Session) handleControlRequest(req *ControlRequest) {
	var resp ControlResponsePayload
	resp.RequestID = req.RequestID

	switch req.Request.Subtype {
	case "initialize":
		resp.Subtype = "success"
		resp.Payload = map[string]any{"status": "ok"}

	case "hook_callback":
		out, err := s.hooks.ExecuteByCallbackID(req.Request.CallbackID, HookInput{
			ToolName:  req.Request.ToolName,
			ToolUseID: req.Request.ToolUseID,
			ToolInput: req.Request.Input,
			Extra:     req.Request.HookInput,
		})
		if err != nil {
			resp.Subtype = "error"
			resp.Error = err.Error()
			break
		}
		resp.Subtype = "success"
		resp.Payload = hookOutputToPayload(out)

	case "can_use_tool":
		result := s.permission.Decide(req.Request.ToolName, req.Request.Input, PermissionContext{
			RequestID:   req.RequestID,
			Suggestions: req.Request.Suggestions,
		})
		resp.Subtype = "success"
		resp.Payload = permissionResultToPayload(result)

	case "mcp_message":
		server, ok := s.opts.SDKMCPServers[req.Request.ServerName]
		if !ok || server.Handler == nil {
			resp.Subtype = "error"
			resp.Error = fmt.Sprintf("unknown mcp server %q", req.Request.ServerName)
			break
		}
		reply, err := server.Handler(req.Request.Message)
		if err != nil {
			resp.Subtype = "error"
			resp.Error = err.Error()
			break
		}
		resp.Subtype = "success"
		resp.Payload = map[string]any{"mcp_response": json.RawMessage(reply)}

	default:
		resp.Subtype = "error"
		resp.Error = fmt.Sprintf("unsupported control request subtype %q", req.Request.Subtype)
	}

	if err := s.proc.Writer.WriteLine(ControlResponseEnvelope{Type: "control_response", Response: resp}); err != nil {
		s.logf("failed writing control_response for %s: %v", req.RequestID, err)
	}
}

func hookOutputToPayload(out *HookOutput) map[string]any {
	if out == nil {
		return map[string]any{"continue": true}
	}
	payload := map[string]any{"continue": out.Continue}
	if out.Decision != "" {
		payload["decision"] = out.Decision
	}
	if out.Reason != "" {
		payload["reason"] = out.Reason
	}
	if out.PermissionDecision != "" || out.PermissionDecisionReason != "" || out.UpdatedInput != nil {
		specific := map[string]any{}
		if out.PermissionDecision != "" {
			specific["permissionDecision"] = out.PermissionDecision
		}
		if out.PermissionDecisionReason != "" {
			specific["permissionDecisionReason"] = out.PermissionDecisionReason
		}
		if out.UpdatedInput != nil {
			specific["updatedInput"] = out.UpdatedInput
		}
		payload["hookSpecificOutput"] = specific
	}
	return payload
}

func permissionResultToPayload(r *PermissionResult) map[string]any {
	payload := map[string]any{"behavior": string(r.Behavior)}
	if r.UpdatedInput != nil {
		payload["updatedInput"] = r.UpdatedInput
	}
	if r.Message != "" {
		payload["message"] = r.Message
	}
	return payload
}

// closeDispatch closes dispatchCh exactly once (Close and watchExit can both
// race to tear the session down) and waits for every dispatchWorker goroutine
// to drain and return, so Close/watchExit never return with the pool still
// running.
func (s *Session) closeDispatch() {
	s.dispatchCloseOnce.Do(func() {
		close(s.dispatchCh)
	})
	s.workersWG.Wait()
}

// watchExit waits for the process to exit and tears down every pending
// entity. It races with Close for which of them actually performs the
// teardown; every step here is idempotent (demux.Fail/Subscriber.complete,
// Correlator.CloseAll, closeDispatch), so running it unconditionally even
// when Close already ran is safe — it just waits for the dispatch pool
// alongside Close instead of returning early and leaking it.
func (s *Session) watchExit() {
	<-s.proc.Done()
	cause := wrapErr(ErrTransportTerminated, "process exited unexpectedly", s.proc.ExitErr())

	s.mu.Lock()
	s.state = stateClosed
	s.mu.Unlock()

	s.demux.Fail(cause)
	s.all.Complete(cause)
	s.corr.CloseAll()
	s.closeDispatch()
}

// Close tears the session down: every pending control request and every
// subscriber is failed before the underlying process teardown ordering
// (signal, close stdin, grace wait, kill, reap) runs in
// transport.Process.Close.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil
	}
	spawned := s.state != stateNew
	s.state = stateClosed
	s.mu.Unlock()

	if !spawned {
		return nil
	}

	cause := newErr(ErrClosedWhilePending, "session closed")
	s.demux.Fail(cause)
	s.all.Complete(cause)
	s.corr.CloseAll()

	var err error
	if s.proc != nil {
		err = s.proc.Close(closeGracePeriod)
	}
	s.closeDispatch()
	return err
}

func (s *Session) logf(format string, args ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Warn(fmt.Sprintf(format, args...))
	}
}

// Query serializes a user message bound to the current session identifier,
// installing a fresh turn subscriber before sending so that a response
// racing in immediately after the write cannot be missed. It retains that
// subscriber for the next ReceiveResponse call instead of letting it go:
// subscribing again there would swap it out and abandon whatever already
// arrived in the window between the write and the caller getting around to
// receiving (demux.Demux.Subscribe completes whatever subscriber is
// currently installed when a new one replaces it).
func (s *Session) Query(ctx context.Context, prompt string) error {
	it, err := s.query(ctx, prompt)
	if err != nil {
		return err
	}
	s.turnMu.Lock()
	s.turnIt = it
	s.turnMu.Unlock()
	return nil
}

// query is Query's implementation, additionally returning the turn's
// iterator — used directly by ReactiveSession, whose TurnSpec defers the
// subscribe-then-send pair until the caller actually subscribes.
func (s *Session) query(ctx context.Context, prompt string) (*MessageIterator, error) {
	switch s.getState() {
	case stateNew, stateConnecting:
		return nil, newErr(ErrNotConnected, "session not connected")
	case stateClosed:
		return nil, newErr(ErrClosed, "session is closed")
	}

	sub := s.demux.Subscribe()

	s.mu.Lock()
	sid := s.sessionID
	s.mu.Unlock()

	if err := s.proc.Writer.WriteLine(NewUserTurn(prompt, sid)); err != nil {
		return nil, err
	}
	return &MessageIterator{sub: sub}, nil
}

// MessageIterator pulls messages from a subscriber one at a time.
type MessageIterator struct {
	sub *demux.Subscriber
}

// Next blocks for the next message. It returns (nil, nil) when the
// underlying subscriber has completed normally, and a non-nil error when it
// completed abnormally (session closed, transport terminated) or ctx was
// cancelled.
func (it *MessageIterator) Next(ctx context.Context) (Message, error) {
	m, err := it.sub.Recv(ctx)
	if err != nil || m == nil {
		return nil, err
	}
	cm, ok := m.(Message)
	if !ok {
		return nil, newErr(ErrProtocol, "internal: non-Message value in subscriber")
	}
	return cm, nil
}

// ReceiveResponse returns a bounded iterator over the current turn: it
// completes once that turn's result message has been delivered. It reuses
// the subscriber Query already installed rather than subscribing afresh, so
// messages delivered in the window between Query's write and this call are
// not lost to an abandoned subscriber. Calling it without a prior Query
// falls back to subscribing now, which only observes messages from this
// point on.
func (s *Session) ReceiveResponse() *MessageIterator {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	if s.turnIt != nil {
		return s.turnIt
	}
	return &MessageIterator{sub: s.demux.Subscribe()}
}

// ReceiveMessages returns an unbounded iterator spanning every turn of the
// session's lifetime, completing only when the session closes or the
// transport terminates.
func (s *Session) ReceiveMessages() *MessageIterator {
	return &MessageIterator{sub: s.all}
}

// call performs one caller-initiated control request and translates the
// correlator's error taxonomy into this package's error kinds.
func (s *Session) call(ctx context.Context, subtype string, extra map[string]any) (json.RawMessage, error) {
	switch s.getState() {
	case stateNew:
		return nil, newErr(ErrNotConnected, "session not connected")
	case stateClosed:
		return nil, newErr(ErrClosed, "session is closed")
	}

	id := s.corr.NextID()
	body := map[string]any{"subtype": subtype}
	for k, v := range extra {
		body[k] = v
	}
	env := ControlRequestEnvelope{Type: "control_request", RequestID: id, Request: body}

	timeout := s.opts.OperationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := s.corr.Call(cctx, id, func() error {
		return s.proc.Writer.WriteLine(env)
	})
	if err == nil {
		return payload, nil
	}

	var remote *control.RemoteError
	switch {
	case errors.Is(err, control.ErrTimeout):
		return nil, wrapErr(ErrControlTimeout, subtype, err)
	case errors.Is(err, control.ErrClosed):
		return nil, wrapErr(ErrClosedWhilePending, subtype, err)
	case errors.As(err, &remote):
		return nil, wrapErr(ErrControlError, remote.Message, err)
	default:
		return nil, err
	}
}

// Interrupt asks the process to stop generating the current turn.
func (s *Session) Interrupt(ctx context.Context) error {
	_, err := s.call(ctx, "interrupt", nil)
	return err
}

// SetPermissionMode changes the session's permission mode for subsequent
// tool invocations.
func (s *Session) SetPermissionMode(ctx context.Context, mode PermissionMode) error {
	_, err := s.call(ctx, "set_permission_mode", map[string]any{"mode": string(mode)})
	if err == nil {
		s.mu.Lock()
		s.permissionMode = mode
		s.mu.Unlock()
	}
	return err
}

// SetModel changes the model used for subsequent turns.
func (s *Session) SetModel(ctx context.Context, model string) error {
	_, err := s.call(ctx, "set_model", map[string]any{"model": model})
	if err == nil {
		s.mu.Lock()
		s.model = model
		s.mu.Unlock()
	}
	return err
}

// PingResult is the response to the supplemental ping control operation.
type PingResult struct {
	Message         string `json:"message"`
	Timestamp       int64  `json:"timestamp"`
	ProtocolVersion int    `json:"protocolVersion,omitempty"`
}

// Ping is a supplemental caller-initiated control operation (see
// SPEC_FULL.md) layered over the same correlator path as the four spec
// control requests.
func (s *Session) Ping(ctx context.Context, message string) (*PingResult, error) {
	payload, err := s.call(ctx, "ping", map[string]any{"message": message})
	if err != nil {
		return nil, err
	}
	var out PingResult
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, wrapErr(ErrProtocol, "malformed ping response", err)
	}
	return &out, nil
}

// StatusResult is the response to the supplemental get_status control
// operation.
type StatusResult struct {
	Version         string `json:"version"`
	ProtocolVersion int    `json:"protocolVersion"`
}

// GetStatus is a supplemental caller-initiated control operation.
func (s *Session) GetStatus(ctx context.Context) (*StatusResult, error) {
	payload, err := s.call(ctx, "get_status", nil)
	if err != nil {
		return nil, err
	}
	var out StatusResult
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, wrapErr(ErrProtocol, "malformed status response", err)
	}
	return &out, nil
}

// ListModels is a supplemental caller-initiated control operation.
func (s *Session) ListModels(ctx context.Context) ([]string, error) {
	payload, err := s.call(ctx, "list_models", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Models []string `json:"models"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, wrapErr(ErrProtocol, "malformed models response", err)
	}
	return out.Models, nil
}
