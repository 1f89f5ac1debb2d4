package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/quillhq/quill-agent/internal/llm"
	"github.com/quillhq/quill-agent/internal/modeladapt"
	"github.com/quillhq/quill-agent/internal/prompts"
)

// runFallback re-issues the original user turn through a single
// non-agentic pass: no tools are offered and no iteration happens.
// This is the recovery path when the agentic strategy itself fails;
// an error here is terminal and goes to the caller.
func (l *Loop) runFallback(ctx context.Context, requestID string, adapter *modeladapt.Adapter, model string, req *Request) (*Result, error) {
	transcript := []llm.Message{
		{Role: "system", Content: adapter.EnhanceSystemPrompt(prompts.FallbackPreamble)},
	}
	if l.memory != nil && req.ConversationID != "" {
		for _, m := range l.memory.GetMessages(req.ConversationID) {
			transcript = append(transcript, llm.Message{Role: m.Role, Content: m.Content})
		}
	}
	transcript = append(transcript, llm.Message{Role: "user", Content: req.Message})

	full, err := l.streamTurn(ctx, model, transcript, func(text string) {
		if req.OnUpdate != nil {
			req.OnUpdate(text)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("fallback run failed: %w", err)
	}

	answer := strings.TrimSpace(full)
	if answer == "" {
		answer = prompts.EmptyResponseFallback
	}
	l.remember(req, answer)
	if req.OnUpdate != nil {
		req.OnUpdate(answer)
	}

	l.logger.Info("fallback run completed", "request_id", requestID, "model", model)
	return &Result{Answer: answer, Reason: ReasonFallback, Iterations: 0}, nil
}
