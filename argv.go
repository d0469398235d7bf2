package claudeagent

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// BuildArgv translates opts into the argument vector for the external
// process, per the mapping table in spec §6. The three framing arguments
// (streaming output, streaming input, verbose) are always present.
func BuildArgv(opts *Options) []string {
	args := []string{
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
	}

	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.FallbackModel != "" {
		args = append(args, "--fallback-model", opts.FallbackModel)
	}
	if opts.SystemPrompt != "" {
		args = append(args, "--system-prompt", opts.SystemPrompt)
	}
	if opts.AppendSystemPrompt != "" {
		args = append(args, "--append-system-prompt", opts.AppendSystemPrompt)
	}
	if opts.Tools != nil {
		args = append(args, "--tools", strings.Join(opts.Tools, ","))
	}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}
	if len(opts.DisallowedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(opts.DisallowedTools, ","))
	}

	switch opts.PermissionMode {
	case "":
		// unset: omit
	case PermissionModeDangerouslySkip:
		args = append(args, "--dangerously-skip-permissions")
	default:
		args = append(args, "--permission-mode", string(opts.PermissionMode))
	}
	if opts.PermissionPromptToolName != "" {
		args = append(args, "--permission-prompt-tool", opts.PermissionPromptToolName)
	}

	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	if opts.MaxBudgetUSD > 0 {
		args = append(args, "--max-budget-usd", strconv.FormatFloat(opts.MaxBudgetUSD, 'f', -1, 64))
	}
	if opts.MaxThinkingTokens > 0 {
		args = append(args, "--max-thinking-tokens", strconv.Itoa(opts.MaxThinkingTokens))
	}

	if len(opts.JSONSchema) > 0 {
		compact := compactJSON(opts.JSONSchema)
		args = append(args, "--json-schema", compact)
	}
	if opts.Agents != "" {
		args = append(args, "--agents", opts.Agents)
	}
	if len(opts.MCPServers) > 0 {
		cfg, err := json.Marshal(opts.MCPServers)
		if err == nil {
			args = append(args, "--mcp-config", string(cfg))
		}
	}
	for _, dir := range opts.AddDirs {
		args = append(args, "--add-dir", dir)
	}
	for _, plugin := range opts.Plugins {
		args = append(args, "--plugin-dir", plugin)
	}
	if opts.Settings != "" {
		args = append(args, "--settings", opts.Settings)
	}
	if len(opts.SettingSources) > 0 {
		args = append(args, "--setting-sources", strings.Join(opts.SettingSources, ","))
	}

	if opts.ContinueConv {
		args = append(args, "--continue")
	}
	if opts.Resume != "" {
		args = append(args, "--resume", opts.Resume)
	}
	if opts.ForkSession {
		args = append(args, "--fork-session")
	}
	if opts.IncludePartialMessages {
		args = append(args, "--include-partial-messages")
	}

	// extra_args: map from flag name to optional value (nil -> bare flag).
	// Iterate in a stable order so the argument vector is deterministic.
	keys := make([]string, 0, len(opts.ExtraArgs))
	for k := range opts.ExtraArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := opts.ExtraArgs[k]
		if v == nil {
			args = append(args, "--"+k)
		} else {
			args = append(args, "--"+k, *v)
		}
	}

	return args
}

func compactJSON(raw []byte) string {
	var buf strings.Builder
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
