// Package protocol implements the text-embedded tool-call protocol.
//
// Models that lack native tool calling (or that we deliberately drive
// through plain text) emit calls inline in their output, delimited by
// a fixed marker grammar:
//
//	<tool_call>
//	<tool_name>vault_search</tool_name>
//	<tool_args>{"query": "meeting notes"}</tool_args>
//	</tool_call>
//
// This package owns that grammar end to end: it renders the instruction
// section of the system prompt that teaches the grammar to the model,
// decodes call occurrences back out of arbitrary model text, and strips
// them for human display. Decode and Strip share one compiled pattern so
// they can never disagree about what counts as a call.
package protocol

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// ToolCall is one decoded call occurrence. Name is never empty;
// occurrences without a usable name are dropped during decoding.
type ToolCall struct {
	Name string
	Args map[string]any
}

// ArgInfo describes a single tool argument for prompt rendering.
type ArgInfo struct {
	Name        string
	Description string
	Required    bool
}

// ToolInfo is the codec's view of a registered tool: everything needed
// to render the instruction section, nothing about execution.
type ToolInfo struct {
	Name        string
	Description string
	Args        []ArgInfo
	// ExampleArgs, when non-empty, renders a worked example for this
	// tool. Set it on tools whose argument contract models tend to get
	// wrong.
	ExampleArgs string
}

var (
	// callPattern matches one complete call occurrence. Decode and
	// Strip both use this pattern; keep it as the single definition
	// of the grammar.
	callPattern = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)

	namePattern = regexp.MustCompile(`(?s)<tool_name>(.*?)</tool_name>`)
	argsPattern = regexp.MustCompile(`(?s)<tool_args>(.*?)</tool_args>`)

	// emptyFencePattern matches stray empty fenced code blocks that
	// models sometimes emit around or instead of calls, including the
	// reserved "tool_code" fence.
	emptyFencePattern = regexp.MustCompile("(?m)^```[a-zA-Z_]*[ \t]*\n\\s*```[ \t]*\n?")

	// blankRunPattern collapses runs of 3+ newlines (2+ blank lines,
	// possibly carrying stray spaces) down to a single blank line.
	blankRunPattern = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
)

// displayNames maps tool names to short human-readable labels used by
// Strip when indicators are preserved. Unknown tools fall back to the
// raw name.
var displayNames = map[string]string{
	"vault_search": "vault search",
	"web_search":   "web search",
	"web_fetch":    "web fetch",
	"file_tree":    "file tree",
	"start_timer":  "timer",
}

// Codec encodes and decodes the tool-call grammar.
type Codec struct {
	logger *slog.Logger
}

// New creates a codec. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Codec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Codec{logger: logger.With("component", "protocol")}
}

// Instruction renders the system prompt section that defines the call
// grammar for the given tools. Output is deterministic for a given tool
// slice: tools are rendered in the order provided and argument lists in
// declaration order.
func (c *Codec) Instruction(tools []ToolInfo) string {
	var b strings.Builder

	b.WriteString("## Tool Calls\n\n")
	b.WriteString("To use a tool, emit a call block in your response, exactly in this form:\n\n")
	b.WriteString("<tool_call>\n<tool_name>TOOL</tool_name>\n<tool_args>{\"arg\": \"value\"}</tool_args>\n</tool_call>\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- The arguments must be a single JSON object.\n")
	b.WriteString("- Never wrap a call block in a code fence, and never split it across fences.\n")
	b.WriteString("- You may emit several call blocks in one response; they run in order.\n")
	b.WriteString("- After the tool results arrive, continue reasoning or answer.\n\n")
	b.WriteString("Available tools:\n\n")

	for _, t := range tools {
		fmt.Fprintf(&b, "### %s\n%s\n", t.Name, t.Description)
		if len(t.Args) > 0 {
			b.WriteString("Arguments:\n")
			for _, a := range t.Args {
				req := "optional"
				if a.Required {
					req = "required"
				}
				fmt.Fprintf(&b, "- %s (%s): %s\n", a.Name, req, a.Description)
			}
		}
		if t.ExampleArgs != "" {
			b.WriteString("Example:\n")
			fmt.Fprintf(&b, "<tool_call>\n<tool_name>%s</tool_name>\n<tool_args>%s</tool_args>\n</tool_call>\n", t.Name, t.ExampleArgs)
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// Decode scans text for all non-overlapping call occurrences,
// leftmost-first, in document order. Occurrences without a name are
// dropped with a warning. Arguments that are not valid JSON degrade to
// {"raw": <trimmed text>} rather than dropping the call.
//
// Decode never fails: any internal error yields an empty slice for the
// whole text, since a best-effort empty parse is safer than an error
// propagating into the agent loop.
func (c *Codec) Decode(text string) (calls []ToolCall) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("tool call decode panicked, returning no calls", "panic", r)
			calls = nil
		}
	}()

	for _, m := range callPattern.FindAllStringSubmatch(text, -1) {
		body := m[1]

		nameMatch := namePattern.FindStringSubmatch(body)
		if nameMatch == nil {
			c.logger.Warn("tool call without a name field, dropping occurrence")
			continue
		}
		name := strings.TrimSpace(nameMatch[1])
		if name == "" {
			c.logger.Warn("tool call with empty name, dropping occurrence")
			continue
		}

		call := ToolCall{Name: name}
		if argsMatch := argsPattern.FindStringSubmatch(body); argsMatch != nil {
			raw := strings.TrimSpace(argsMatch[1])
			if raw != "" {
				var args map[string]any
				if err := json.Unmarshal([]byte(raw), &args); err != nil {
					c.logger.Warn("tool call arguments are not valid JSON, keeping raw text",
						"tool", name, "error", err)
					args = map[string]any{"raw": raw}
				}
				call.Args = args
			}
		}
		calls = append(calls, call)
	}

	return calls
}

// StripOptions control call removal behavior.
type StripOptions struct {
	// PreserveIndicators replaces each removed call with a short
	// human-readable marker naming the tool instead of deleting it
	// without a trace.
	PreserveIndicators bool
}

// Strip removes every call occurrence from text. With
// PreserveIndicators each occurrence is replaced, in order, by a
// "Tool call: <name>" marker using the display-name table. Afterwards
// whitespace is normalized: stray empty code fences are removed, runs
// of blank lines collapse to one, and the result is trimmed.
//
// Strip is idempotent: stripping already-stripped text is a no-op
// beyond whitespace normalization.
func (c *Codec) Strip(text string, opts StripOptions) string {
	out := callPattern.ReplaceAllStringFunc(text, func(occurrence string) string {
		if !opts.PreserveIndicators {
			return ""
		}
		name := "tool"
		if m := namePattern.FindStringSubmatch(occurrence); m != nil {
			if n := strings.TrimSpace(m[1]); n != "" {
				name = n
			}
		}
		return fmt.Sprintf("*Tool call: %s*", DisplayName(name))
	})

	out = emptyFencePattern.ReplaceAllString(out, "")
	out = blankRunPattern.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// DisplayName returns the human-readable label for a tool name,
// falling back to the raw name for unknown tools.
func DisplayName(tool string) string {
	if d, ok := displayNames[tool]; ok {
		return d
	}
	return tool
}
