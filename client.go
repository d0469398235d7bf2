package claudeagent

import (
	"context"
	"fmt"
	"sync"
)

// Client is a small registry of independently-created Sessions: it gives a
// caller a single place to create, look up, and track a "foreground" session
// by identifier. It does not multiplex more than one logical conversation
// onto a shared process — each Session created through it still spawns and
// owns exactly one process.
type Client struct {
	defaultOpts *Options

	mu         sync.Mutex
	sessions   map[string]*Session
	foreground string
}

// NewClient returns a registry whose sessions are built from defaultOpts
// unless overridden per-session. A nil defaultOpts uses NewOptions().
func NewClient(defaultOpts *Options) *Client {
	if defaultOpts == nil {
		defaultOpts = NewOptions()
	}
	return &Client{
		defaultOpts: defaultOpts,
		sessions:    make(map[string]*Session),
	}
}

// NewSession constructs and registers a new Session. opts, if provided,
// overrides the client's default options entirely (it does not merge field
// by field); pass nil to use the client's defaults unchanged. The session is
// not yet connected — call Connect on it.
func (c *Client) NewSession(hooks *HookRegistry, permission *PermissionDecisionPoint, opts *Options) *Session {
	if opts == nil {
		opts = c.defaultOpts
	}
	s := NewSession(opts, hooks, permission)

	c.mu.Lock()
	c.sessions[s.ID()] = s
	if c.foreground == "" {
		c.foreground = s.ID()
	}
	c.mu.Unlock()

	return s
}

// Sessions returns a snapshot of every session currently registered.
func (c *Client) Sessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out
}

// Session looks up a registered session by identifier.
func (c *Client) Session(id string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	return s, ok
}

// Forget removes a session from the registry (it does not Close it — the
// caller remains responsible for that).
func (c *Client) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
	if c.foreground == id {
		c.foreground = ""
	}
}

// Foreground returns the identifier of the caller-designated foreground
// session, or "" if none has been set.
func (c *Client) Foreground() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.foreground
}

// SetForeground designates id as the foreground session. It does not
// validate that id is registered — a caller may set foreground before a
// session's real identifier is known.
func (c *Client) SetForeground(id string) {
	c.mu.Lock()
	c.foreground = id
	c.mu.Unlock()
}

// QueryStatus summarizes how a one-shot Query concluded.
type QueryStatus string

const (
	QuerySuccess QueryStatus = "success"
	QueryError   QueryStatus = "error"
	QueryPartial QueryStatus = "partial"
)

// QueryResult collects every message of a one-shot Query, classifying the
// overall outcome.
type QueryResult struct {
	Status   QueryStatus
	Text     string
	Messages []Message
	Result   *ResultMessage

	model string // from Session.EffectiveModel, since ResultMessage carries no model field
}

// Metadata extracts the commonly-needed summary fields from the turn's
// system and result messages.
type QueryMetadata struct {
	Model        string
	SessionID    string
	NumTurns     int
	CostUSD      float64
	DurationMs   int64
	InputTokens  int64
	OutputTokens int64
}

// Metadata returns the query's summary fields, the zero value if no result
// message was ever received (e.g. the process died mid-turn). Model is
// sourced from the process's own "system"/"init" message (ResultMessage
// carries no model field); token counts are pulled from ResultMessage's
// free-form Usage map by its well-known key names, left zero if the
// process's wire format doesn't populate them.
func (r *QueryResult) Metadata() QueryMetadata {
	md := QueryMetadata{Model: r.model}
	if r.Result == nil {
		return md
	}
	md.SessionID = r.Result.SessionID
	md.NumTurns = r.Result.NumTurns
	md.CostUSD = r.Result.TotalCostUSD
	md.DurationMs = r.Result.DurationMs
	md.InputTokens = usageTokenCount(r.Result.Usage, "input_tokens")
	md.OutputTokens = usageTokenCount(r.Result.Usage, "output_tokens")
	return md
}

// usageTokenCount reads key from a ResultMessage's free-form Usage map,
// tolerating the float64 JSON numbers encoding/json produces when
// unmarshaling into map[string]any.
func usageTokenCount(usage map[string]any, key string) int64 {
	v, ok := usage[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

// Query is the one-shot entry point: it spawns a throwaway Session, sends a
// single prompt, collects every message of the resulting turn, and tears the
// session down before returning.
func Query(ctx context.Context, prompt string, opts ...Option) (*QueryResult, error) {
	o := NewOptions(opts...)
	session := NewSession(o, NewHookRegistry(), nil)
	defer session.Close()

	if err := session.Connect(ctx, ""); err != nil {
		return nil, err
	}
	if err := session.Query(ctx, prompt); err != nil {
		return nil, err
	}

	it := session.ReceiveResponse()
	result := &QueryResult{Status: QueryPartial}
	var text string
	var sawAssistantContent bool

	for {
		msg, err := it.Next(ctx)
		if err != nil {
			return result, err
		}
		if msg == nil {
			break
		}
		result.Messages = append(result.Messages, msg)

		switch m := msg.(type) {
		case *AssistantMessage:
			if t := m.Text(); t != "" {
				sawAssistantContent = true
				text += t
			}
		case *ResultMessage:
			result.Result = m
			switch {
			case m.IsError:
				result.Status = QueryError
			case sawAssistantContent:
				result.Status = QuerySuccess
			default:
				result.Status = QueryPartial
			}
		}
	}

	result.Text = text
	result.model = session.EffectiveModel()
	if result.Result == nil {
		return result, fmt.Errorf("claudeagent: query ended without a result message")
	}
	return result, nil
}
