// Package prompts contains the prompt templates Quill sends to models.
//
// Prompt text is Go code rather than config files because it is program
// logic: it interpolates at runtime, embeds at compile time, and is
// covered by tests. User-facing configuration lives in config.yaml.
package prompts

import (
	"fmt"
	"strings"
)

// systemTemplate is the base system prompt. The format verb receives
// the tool-call instruction block built from the live registry.
const systemTemplate = `You are Quill, an assistant for a personal markdown note vault. You answer questions using the user's own notes first, supplementing with web search when the notes do not cover the topic.

Guidelines:
- Prefer the vault: search the user's notes before reaching for the web.
- Cite which notes informed your answer when you used vault_search.
- Be concise. The user wants answers, not essays.
- If neither the vault nor the web yields anything useful, say so plainly.

%s

Never place a tool call inside a code fence or split it across fences. Emit at most the tool calls you need; once you have enough information, answer directly without further calls.`

// System returns the base system prompt with the tool instruction
// block interpolated.
func System(toolInstructions string) string {
	return fmt.Sprintf(systemTemplate, strings.TrimSpace(toolInstructions))
}

// EmptyResponseFallback is shown to the user when the model produced
// no visible text at all.
const EmptyResponseFallback = "I processed your request but wasn't able to compose a response. Please try again."

// FallbackPreamble frames the single-pass retry after the agent loop
// fails: no tools are offered, so the model must answer from context.
const FallbackPreamble = "Answer the user's question directly from what you know. Do not attempt to use any tools."
