package claudeagent

import (
	"io"
	"log/slog"
	"strconv"
	"time"
)

// PermissionMode selects how the external process handles tool-permission
// decisions.
type PermissionMode string

const (
	PermissionModeDefault            PermissionMode = "default"
	PermissionModeAcceptEdits        PermissionMode = "acceptEdits"
	PermissionModePlan               PermissionMode = "plan"
	PermissionModeBypassPermissions  PermissionMode = "bypassPermissions"
	PermissionModeDangerouslySkip    PermissionMode = "dangerouslySkipPermissions"
)

// MCPServerConfig describes an external (stdio or network) tool-server entry
// serialized into the process's --mcp-config argument.
type MCPServerConfig struct {
	Type    string            `json:"type"` // "stdio" | "http" | "sse"
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// MCPServer is an in-process tool-server: a caller-supplied handler that
// answers mcp_message control requests on behalf of a named tool-server.
type MCPServer struct {
	Name    string
	Handler func(message []byte) ([]byte, error)
}

// Options is the immutable configuration composed before connect. Fields
// map to the external process's argument vector per the table in §6; see
// argv.go for the encoder.
type Options struct {
	Model              string
	FallbackModel      string
	SystemPrompt       string
	AppendSystemPrompt string

	Tools           []string // base tool set; non-nil empty slice disables all tools
	AllowedTools    []string
	DisallowedTools []string

	PermissionMode           PermissionMode
	PermissionPromptToolName string

	MaxTurns          int
	MaxBudgetUSD      float64
	MaxTokens         int
	MaxThinkingTokens int

	Resume             string
	ContinueConv       bool
	ForkSession        bool

	JSONSchema []byte // pre-encoded JSON schema for structured output
	Agents     string // pre-encoded JSON string of named sub-agent templates

	MCPServers    map[string]MCPServerConfig
	SDKMCPServers map[string]*MCPServer

	AddDirs []string
	Plugins []string

	Settings       string
	SettingSources []string

	IncludePartialMessages bool

	ExtraArgs map[string]*string // nil value = bare flag

	// Process launch.
	BinaryPath string
	WorkingDir string
	Env        map[string]string

	// Ambient stack.
	Logger            *slog.Logger
	OperationTimeout  time.Duration
	Stderr            io.Writer

	// Supplemental DOMAIN STACK knob: see SPEC_FULL.md DOMAIN STACK. Off by
	// default.
	StdoutCompression string // "" | "flate" | "zstd"
}

// Option mutates an Options record during construction.
type Option func(*Options)

// DefaultOptions returns the zero-value baseline with ambient defaults
// filled in (logger, operation timeout).
func DefaultOptions() *Options {
	return &Options{
		PermissionMode:   PermissionModeDefault,
		Logger:           slog.Default(),
		OperationTimeout: 30 * time.Second,
	}
}

// NewOptions applies opts over DefaultOptions and resolves the max_tokens
// Open Question: when MaxTokens > 0 and no explicit extra_args entry exists
// for it, it is mapped through extra_args rather than silently dropped.
func NewOptions(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.MaxTokens > 0 {
		if o.ExtraArgs == nil {
			o.ExtraArgs = map[string]*string{}
		}
		if _, ok := o.ExtraArgs["max-tokens"]; !ok {
			v := strconv.Itoa(o.MaxTokens)
			o.ExtraArgs["max-tokens"] = &v
		}
	}
	return o
}

func WithModel(model string) Option              { return func(o *Options) { o.Model = model } }
func WithFallbackModel(model string) Option      { return func(o *Options) { o.FallbackModel = model } }
func WithSystemPrompt(prompt string) Option       { return func(o *Options) { o.SystemPrompt = prompt } }
func WithAppendSystemPrompt(prompt string) Option { return func(o *Options) { o.AppendSystemPrompt = prompt } }
func WithTools(tools []string) Option             { return func(o *Options) { o.Tools = tools } }
func WithAllowedTools(tools []string) Option      { return func(o *Options) { o.AllowedTools = tools } }
func WithDisallowedTools(tools []string) Option   { return func(o *Options) { o.DisallowedTools = tools } }
func WithPermissionMode(mode PermissionMode) Option {
	return func(o *Options) { o.PermissionMode = mode }
}
func WithPermissionPromptToolName(name string) Option {
	return func(o *Options) { o.PermissionPromptToolName = name }
}
func WithMaxTurns(n int) Option             { return func(o *Options) { o.MaxTurns = n } }
func WithMaxBudgetUSD(v float64) Option     { return func(o *Options) { o.MaxBudgetUSD = v } }
func WithMaxTokens(n int) Option            { return func(o *Options) { o.MaxTokens = n } }
func WithMaxThinkingTokens(n int) Option    { return func(o *Options) { o.MaxThinkingTokens = n } }
func WithResume(sessionID string) Option    { return func(o *Options) { o.Resume = sessionID } }
func WithContinueConversation() Option      { return func(o *Options) { o.ContinueConv = true } }
func WithForkSession() Option               { return func(o *Options) { o.ForkSession = true } }
func WithJSONSchema(schema []byte) Option   { return func(o *Options) { o.JSONSchema = schema } }
func WithAgents(agentsJSON string) Option   { return func(o *Options) { o.Agents = agentsJSON } }
func WithMCPServers(servers map[string]MCPServerConfig) Option {
	return func(o *Options) { o.MCPServers = servers }
}
func WithSDKMCPServer(server *MCPServer) Option {
	return func(o *Options) {
		if o.SDKMCPServers == nil {
			o.SDKMCPServers = map[string]*MCPServer{}
		}
		o.SDKMCPServers[server.Name] = server
	}
}
func WithAddDirs(dirs []string) Option { return func(o *Options) { o.AddDirs = dirs } }
func WithPlugins(plugins []string) Option { return func(o *Options) { o.Plugins = plugins } }
func WithSettings(path string) Option     { return func(o *Options) { o.Settings = path } }
func WithSettingSources(sources []string) Option {
	return func(o *Options) { o.SettingSources = sources }
}
func WithIncludePartialMessages() Option { return func(o *Options) { o.IncludePartialMessages = true } }
func WithExtraArg(flag string, value *string) Option {
	return func(o *Options) {
		if o.ExtraArgs == nil {
			o.ExtraArgs = map[string]*string{}
		}
		o.ExtraArgs[flag] = value
	}
}
func WithBinaryPath(path string) Option  { return func(o *Options) { o.BinaryPath = path } }
func WithWorkingDir(dir string) Option   { return func(o *Options) { o.WorkingDir = dir } }
func WithEnv(env map[string]string) Option { return func(o *Options) { o.Env = env } }
func WithLogger(l *slog.Logger) Option   { return func(o *Options) { o.Logger = l } }
func WithOperationTimeout(d time.Duration) Option {
	return func(o *Options) { o.OperationTimeout = d }
}
func WithStderr(w io.Writer) Option { return func(o *Options) { o.Stderr = w } }
func WithStdoutCompression(kind string) Option {
	return func(o *Options) { o.StdoutCompression = kind }
}
