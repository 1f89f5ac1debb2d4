package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quillhq/quill-agent/internal/protocol"
)

// DefaultTimeout is the per-call wall-clock deadline for tool handlers.
const DefaultTimeout = 30 * time.Second

// NoResultPlaceholder is reported when a tool succeeds without output.
// Absence of data is not failure; the model needs to be told explicitly
// so it does not retry the call.
const NoResultPlaceholder = "(tool completed with no output)"

// ExecutionResult is the uniform outcome record for one tool call.
// Result is always a display-safe string regardless of what the handler
// returned or how it failed.
type ExecutionResult struct {
	ToolName string `json:"tool_name"`
	Result   string `json:"result"`
	Success  bool   `json:"success"`
}

// Guard resolves and invokes tool calls with a deadline, normalizing
// every outcome into an ExecutionResult. Execute never returns an
// error: failures of any kind (missing name, unknown tool, handler
// error, timeout) are folded into the result record so the agent loop
// can feed them back to the model as context.
type Guard struct {
	logger  *slog.Logger
	timeout time.Duration
}

// NewGuard creates a guard. A zero timeout means DefaultTimeout; a nil
// logger falls back to slog.Default.
func NewGuard(logger *slog.Logger, timeout time.Duration) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guard{
		logger:  logger.With("component", "toolguard"),
		timeout: timeout,
	}
}

// handlerOutcome carries a handler's return values across the
// completion channel.
type handlerOutcome struct {
	value any
	err   error
}

// Execute runs one decoded tool call against the registry.
//
// The handler races a wall-clock timer: if the deadline elapses first
// the call is abandoned and a timeout result returned. The losing
// handler goroutine is not killed — its eventual result is discarded —
// so handlers must be safe to abandon.
func (g *Guard) Execute(ctx context.Context, call protocol.ToolCall, reg *Registry) ExecutionResult {
	name := strings.TrimSpace(call.Name)
	if name == "" {
		g.logger.Warn("tool call with empty name")
		return ExecutionResult{
			ToolName: name,
			Result:   "tool call is missing a tool name",
			Success:  false,
		}
	}

	tool := reg.Get(name)
	if tool == nil {
		g.logger.Warn("unknown tool requested", "tool", name)
		return ExecutionResult{
			ToolName: name,
			Result: fmt.Sprintf("unknown tool %q; available tools: %s",
				name, strings.Join(reg.Names(), ", ")),
			Success: false,
		}
	}

	start := time.Now()
	done := make(chan handlerOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- handlerOutcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		value, err := tool.Handler(ctx, call.Args)
		done <- handlerOutcome{value: value, err: err}
	}()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		elapsed := time.Since(start)
		if out.err != nil {
			g.logger.Warn("tool failed", "tool", name, "elapsed", elapsed, "error", out.err)
			return ExecutionResult{
				ToolName: name,
				Result:   fmt.Sprintf("tool %q failed: %v", name, out.err),
				Success:  false,
			}
		}
		g.logger.Debug("tool succeeded", "tool", name, "elapsed", elapsed)
		return ExecutionResult{
			ToolName: name,
			Result:   normalizeResult(out.value),
			Success:  true,
		}

	case <-timer.C:
		g.logger.Warn("tool timed out, abandoning call", "tool", name, "timeout", g.timeout)
		return ExecutionResult{
			ToolName: name,
			Result:   fmt.Sprintf("tool %q timed out after %s", name, g.timeout),
			Success:  false,
		}

	case <-ctx.Done():
		g.logger.Debug("tool execution cancelled", "tool", name)
		return ExecutionResult{
			ToolName: name,
			Result:   fmt.Sprintf("tool %q cancelled: %v", name, context.Cause(ctx)),
			Success:  false,
		}
	}
}

// normalizeResult converts an arbitrary handler return value into a
// display-safe string so downstream prompt assembly never has to
// special-case types.
func normalizeResult(v any) string {
	switch val := v.(type) {
	case nil:
		return NoResultPlaceholder
	case string:
		if strings.TrimSpace(val) == "" {
			return NoResultPlaceholder
		}
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
