// Package agent implements the core agent loop: bounded
// request/parse/execute cycles over a growing conversation transcript,
// with live display updates and fallback to a single-pass runner when
// the loop itself fails.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quillhq/quill-agent/internal/events"
	"github.com/quillhq/quill-agent/internal/llm"
	"github.com/quillhq/quill-agent/internal/memory"
	"github.com/quillhq/quill-agent/internal/modeladapt"
	"github.com/quillhq/quill-agent/internal/prompts"
	"github.com/quillhq/quill-agent/internal/protocol"
	"github.com/quillhq/quill-agent/internal/stream"
	"github.com/quillhq/quill-agent/internal/tools"
)

// MaxIterations bounds the number of model calls per request. The loop
// never forces one more call past the bound; whatever visible text has
// accumulated becomes the answer.
const MaxIterations = 4

// Termination reasons reported in Result.Reason and on the event bus.
const (
	ReasonFinal         = "final"
	ReasonMaxIterations = "max_iterations"
	ReasonAborted       = "aborted"
	ReasonFallback      = "fallback"
)

// ErrDiscarded is the cancellation cause meaning the whole conversation
// is being thrown away: the loop drops its partial text instead of
// returning it.
var ErrDiscarded = errors.New("conversation discarded")

// Request is one user turn handed to the loop.
type Request struct {
	ConversationID string
	Message        string
	Model          string

	// OnUpdate, if non-nil, receives the full display text to replace
	// the current view. Called at least once per stream chunk and at
	// termination.
	OnUpdate func(text string)
}

// Result is what a terminated loop returns to the caller.
type Result struct {
	Answer     string
	Sources    []Source
	Reason     string
	Iterations int
}

// Loop drives the agent. One Loop serves many requests; per-request
// state lives on the stack of Run.
type Loop struct {
	logger   *slog.Logger
	client   llm.Client
	model    string
	codec    *protocol.Codec
	registry *tools.Registry
	guard    *tools.Guard
	memory   *memory.Store
	bus      *events.Bus

	maxIterations int
}

// New creates an agent loop. mem and bus may be nil; the loop then
// runs without history and without event emission.
func New(logger *slog.Logger, client llm.Client, model string, registry *tools.Registry, guard *tools.Guard, mem *memory.Store, bus *events.Bus) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger:   logger.With("component", "agent"),
		client:   client,
		model:    model,
		codec:    protocol.New(logger),
		registry: registry,
		guard:    guard,
		memory:   mem,
		bus:      bus,

		maxIterations: MaxIterations,
	}
}

// SetMaxIterations overrides the default iteration bound. Values less
// than 1 are ignored.
func (l *Loop) SetMaxIterations(n int) {
	if n > 0 {
		l.maxIterations = n
	}
}

// Run executes the agent loop for one user turn. Cancellation is
// silent: the best partial text accumulated so far is returned with
// ReasonAborted and a nil error, unless the cancellation cause is
// ErrDiscarded, in which case the answer is empty. A non-cancellation
// failure inside the loop falls back to a single non-agentic pass;
// only a failure of that fallback is returned as an error.
func (l *Loop) Run(ctx context.Context, req *Request) (*Result, error) {
	requestID := uuid.NewString()
	start := time.Now()

	l.bus.Emit(events.SourceAgent, events.KindRequestStart, map[string]any{
		"request_id":      requestID,
		"conversation_id": req.ConversationID,
	})

	model := req.Model
	if model == "" {
		model = l.model
	}
	adapter := modeladapt.ForModel(model)
	if adapter.NeedsSpecialHandling() {
		l.logger.Debug("model family uses adapted prompting",
			"request_id", requestID, "model", model)
	}

	transcript := l.buildTranscript(adapter, req)

	var (
		history []string // stripped per-iteration display segments
		sources []Source
	)

	publish := func(inProgress string) {
		if req.OnUpdate == nil {
			return
		}
		segments := history
		if inProgress != "" {
			segments = append(segments[:len(segments):len(segments)], inProgress)
		}
		req.OnUpdate(strings.Join(segments, "\n\n"))
	}

	finish := func(reason string, iterations int) *Result {
		answer := strings.Join(history, "\n\n")
		if reason != ReasonAborted {
			if strings.TrimSpace(answer) == "" {
				answer = prompts.EmptyResponseFallback
			}
			l.remember(req, answer)
		}
		if req.OnUpdate != nil {
			req.OnUpdate(answer)
		}
		l.bus.Emit(events.SourceAgent, events.KindRequestComplete, map[string]any{
			"request_id": requestID,
			"iterations": iterations,
			"reason":     reason,
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
		return &Result{
			Answer:     answer,
			Sources:    dedupeSources(sources),
			Reason:     reason,
			Iterations: iterations,
		}
	}

	abort := func(iterations int) *Result {
		if context.Cause(ctx) == ErrDiscarded {
			history = nil
		}
		l.logger.Debug("request aborted", "request_id", requestID, "iteration", iterations)
		return finish(ReasonAborted, iterations)
	}

	for iter := 0; iter < l.maxIterations; iter++ {
		if ctx.Err() != nil {
			return abort(iter), nil
		}

		l.bus.Emit(events.SourceAgent, events.KindIterationStart, map[string]any{
			"request_id": requestID,
			"iter":       iter,
		})

		l.bus.Emit(events.SourceAgent, events.KindLLMCall, map[string]any{
			"request_id": requestID,
			"iter":       iter,
			"model":      model,
		})
		full, err := l.streamTurn(ctx, model, transcript, publish)
		if err != nil {
			if ctx.Err() != nil {
				// Keep whatever streamed before the cancellation hit;
				// abort clears it when the cause is ErrDiscarded.
				if partial := l.codec.Strip(full, protocol.StripOptions{}); strings.TrimSpace(partial) != "" {
					history = append(history, partial)
				}
				return abort(iter), nil
			}
			l.logger.Warn("agent iteration failed, falling back",
				"request_id", requestID, "iteration", iter, "error", err)
			l.bus.Emit(events.SourceAgent, events.KindFallback, map[string]any{
				"request_id": requestID,
				"error":      err.Error(),
			})
			return l.runFallback(ctx, requestID, adapter, model, req)
		}

		calls := l.codec.Decode(full)
		l.bus.Emit(events.SourceAgent, events.KindLLMResponse, map[string]any{
			"request_id":  requestID,
			"iter":        iter,
			"model":       model,
			"content_len": len(full),
			"tool_calls":  len(calls),
		})

		if len(calls) == 0 {
			history = append(history, l.codec.Strip(full, protocol.StripOptions{}))
			return finish(ReasonFinal, iter+1), nil
		}

		// The stripped response is the model's visible reasoning for
		// this step; keep the call indicators so the user sees what
		// happened.
		history = append(history, l.codec.Strip(full, protocol.StripOptions{PreserveIndicators: true}))

		results := make([]tools.ExecutionResult, 0, len(calls))
		for _, call := range calls {
			if ctx.Err() != nil {
				return abort(iter), nil
			}
			publish(fmt.Sprintf("*Calling %s...*", protocol.DisplayName(call.Name)))

			l.bus.Emit(events.SourceTools, events.KindToolCall, map[string]any{
				"request_id": requestID,
				"tool":       call.Name,
			})
			toolStart := time.Now()
			res := l.guard.Execute(ctx, call, l.registry)
			l.bus.Emit(events.SourceTools, events.KindToolDone, map[string]any{
				"request_id":  requestID,
				"tool":        call.Name,
				"ok":          res.Success,
				"duration_ms": time.Since(toolStart).Milliseconds(),
			})

			if res.Success {
				sources = append(sources, extractSources(call.Name, res.Result)...)
			}
			results = append(results, res)
		}

		transcript = append(transcript,
			llm.Message{Role: "assistant", Content: full},
			llm.Message{Role: "user", Content: formatToolResults(results)},
		)
	}

	return finish(ReasonMaxIterations, l.maxIterations), nil
}

// buildTranscript assembles [adapted system prompt, prior turns,
// current user message].
func (l *Loop) buildTranscript(adapter *modeladapt.Adapter, req *Request) []llm.Message {
	system := prompts.System(l.codec.Instruction(l.registry.Describe()))
	transcript := []llm.Message{
		{Role: "system", Content: adapter.EnhanceSystemPrompt(system)},
	}

	if l.memory != nil && req.ConversationID != "" {
		for _, m := range l.memory.GetMessages(req.ConversationID) {
			transcript = append(transcript, llm.Message{Role: m.Role, Content: m.Content})
		}
	}

	userMsg := adapter.EnhanceUserMessage(req.Message, modeladapt.RequiresTools(req.Message))
	return append(transcript, llm.Message{Role: "user", Content: userMsg})
}

// streamTurn requests one streamed model response, publishing a live
// view after every chunk. Cancellation between chunks stops the stream.
func (l *Loop) streamTurn(ctx context.Context, model string, transcript []llm.Message, publish func(string)) (string, error) {
	asm := stream.New(func(text string) {
		publish(l.codec.Strip(text, protocol.StripOptions{}))
	})

	_, err := l.client.ChatStream(ctx, model, transcript, func(chunk llm.Chunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		asm.Process(chunk)
		return nil
	})
	full := asm.Close()
	if err != nil {
		return full, err
	}
	return full, nil
}

// remember persists the completed turn when a store is configured.
func (l *Loop) remember(req *Request, answer string) {
	if l.memory == nil || req.ConversationID == "" {
		return
	}
	if err := l.memory.AddMessage(req.ConversationID, "user", req.Message); err != nil {
		l.logger.Warn("failed to store user turn", "error", err)
		return
	}
	if err := l.memory.AddMessage(req.ConversationID, "assistant", answer); err != nil {
		l.logger.Warn("failed to store assistant turn", "error", err)
	}
}

// formatToolResults renders executed tool results as the synthesized
// user turn fed back to the model.
func formatToolResults(results []tools.ExecutionResult) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("Tool '%s' result: %s", r.ToolName, r.Result)
	}
	return strings.Join(blocks, "\n\n")
}
