// Package llm provides LLM client implementations.
package llm

import (
	"context"
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents a chat message for the LLM.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Part is one typed segment of a streamed chunk. Providers that stream
// structured content blocks (Anthropic) emit chunks as ordered part
// lists; Type distinguishes visible answer text from internal reasoning.
type Part struct {
	Type     string `json:"type"` // "text" or "thinking"
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

// Chunk is one increment of a streaming response. Exactly one of the two
// shapes is populated per chunk:
//
//   - Parts non-nil: an ordered list of typed parts (Anthropic-style).
//   - Parts nil: scalar shape — Content holds plain text and Thinking
//     optionally carries side-channel reasoning (Ollama-style).
//
// Consumers must handle both shapes without knowing which provider
// produced the chunk.
type Chunk struct {
	Parts    []Part
	Content  string
	Thinking string
	Done     bool
}

// ChunkCallback receives streaming chunks. Returning a non-nil error
// stops the stream; the provider client surfaces that error to the
// caller.
type ChunkCallback func(Chunk) error

// ChatResponse is the unified response from any LLM provider.
// All fields use proper Go types — wire format conversion happens
// at provider boundaries (ollama.go, anthropic.go).
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message
	// Thinking is the model's accumulated internal reasoning, kept
	// separate from the visible answer in Message.Content.
	Thinking string
	Done     bool

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int

	// Timing (populated when available)
	TotalDuration time.Duration
}

// Client is the interface that all LLM providers must implement.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error)

	// ChatStream sends a streaming chat request. If onChunk is non-nil,
	// it is invoked for every received chunk.
	ChatStream(ctx context.Context, model string, messages []Message, onChunk ChunkCallback) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
