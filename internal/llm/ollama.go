package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quillhq/quill-agent/internal/httpkit"
)

// OllamaClient is a client for the Ollama API.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL: baseURL,
		// Large local models need time before the first token. No global
		// timeout; ctx cancellation controls streaming lifetime.
		httpClient: httpkit.NewClient(httpkit.WithTimeout(0)),
	}
}

// ollamaMessage is the wire format for a chat message. Thinking carries
// the side-channel reasoning that thinking-capable models emit alongside
// plain content.
type ollamaMessage struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
}

// ollamaChatRequest is the request format for the Ollama chat API.
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

// ollamaChatResponse is one NDJSON chunk (or the whole non-streaming
// response) from the Ollama chat API.
type ollamaChatResponse struct {
	Model     string        `json:"model"`
	CreatedAt string        `json:"created_at"`
	Message   ollamaMessage `json:"message"`
	Done      bool          `json:"done"`

	// Usage stats (when done=true)
	TotalDuration   int64 `json:"total_duration,omitempty"`
	PromptEvalCount int   `json:"prompt_eval_count,omitempty"`
	EvalCount       int   `json:"eval_count,omitempty"`
}

// Chat sends a chat completion request to Ollama.
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	return c.ChatStream(ctx, model, messages, nil)
}

// ChatStream sends a streaming chat request to Ollama. Each NDJSON chunk
// is forwarded to onChunk as a scalar-shaped [Chunk]: plain text in
// Content, reasoning (if the model emits it) in the Thinking side channel.
func (c *OllamaClient) ChatStream(ctx context.Context, model string, messages []Message, onChunk ChunkCallback) (*ChatResponse, error) {
	stream := onChunk != nil

	wireMsgs := make([]ollamaMessage, len(messages))
	for i, m := range messages {
		wireMsgs[i] = ollamaMessage{Role: m.Role, Content: m.Content}
	}

	req := ollamaChatRequest{
		Model:    model,
		Messages: wireMsgs,
		Stream:   stream,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 4096)
		return nil, fmt.Errorf("ollama API error %d: %s", resp.StatusCode, body)
	}

	if !stream {
		// Non-streaming: single JSON response
		var chatResp ollamaChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return convertFromOllama(&chatResp), nil
	}

	// Streaming: read newline-delimited JSON
	var (
		final           ollamaChatResponse
		contentBuilder  strings.Builder
		thinkingBuilder strings.Builder
	)
	decoder := json.NewDecoder(resp.Body)

	for {
		var chunk ollamaChatResponse
		if err := decoder.Decode(&chunk); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode stream chunk: %w", err)
		}

		contentBuilder.WriteString(chunk.Message.Content)
		thinkingBuilder.WriteString(chunk.Message.Thinking)

		if chunk.Message.Content != "" || chunk.Message.Thinking != "" {
			if err := onChunk(Chunk{
				Content:  chunk.Message.Content,
				Thinking: chunk.Message.Thinking,
				Done:     chunk.Done,
			}); err != nil {
				return nil, err
			}
		}

		if chunk.Done {
			final = chunk
			break
		}
	}

	final.Message.Content = contentBuilder.String()
	final.Message.Thinking = thinkingBuilder.String()
	return convertFromOllama(&final), nil
}

// convertFromOllama converts an Ollama response to the internal format.
func convertFromOllama(resp *ollamaChatResponse) *ChatResponse {
	created, _ := time.Parse(time.RFC3339Nano, resp.CreatedAt)
	return &ChatResponse{
		Model:     resp.Model,
		CreatedAt: created,
		Message: Message{
			Role:    "assistant",
			Content: resp.Message.Content,
		},
		Thinking:      resp.Message.Thinking,
		Done:          resp.Done,
		InputTokens:   resp.PromptEvalCount,
		OutputTokens:  resp.EvalCount,
		TotalDuration: time.Duration(resp.TotalDuration),
	}
}

// Ping checks if Ollama is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d", resp.StatusCode)
	}

	return nil
}

// ListModels returns available models.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}
