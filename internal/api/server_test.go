package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quillhq/quill-agent/internal/agent"
	"github.com/quillhq/quill-agent/internal/events"
	"github.com/quillhq/quill-agent/internal/llm"
	"github.com/quillhq/quill-agent/internal/tools"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.Level(100)}))
}

// cannedClient always answers with the same text and no tool calls.
type cannedClient struct {
	answer string
}

func (c *cannedClient) Chat(_ context.Context, model string, _ []llm.Message) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Model: model, Message: llm.Message{Role: "assistant", Content: c.answer}, Done: true}, nil
}

func (c *cannedClient) ChatStream(_ context.Context, model string, _ []llm.Message, onChunk llm.ChunkCallback) (*llm.ChatResponse, error) {
	if onChunk != nil {
		if err := onChunk(llm.Chunk{Content: c.answer}); err != nil {
			return nil, err
		}
		if err := onChunk(llm.Chunk{Done: true}); err != nil {
			return nil, err
		}
	}
	return &llm.ChatResponse{Model: model, Message: llm.Message{Role: "assistant", Content: c.answer}, Done: true}, nil
}

func (c *cannedClient) Ping(context.Context) error { return nil }

func newTestServer(t *testing.T, bus *events.Bus) *Server {
	t.Helper()
	reg := tools.NewRegistry()
	guard := tools.NewGuard(discardLogger(), time.Second)
	loop := agent.New(discardLogger(), &cannedClient{answer: "The answer."}, "test-model", reg, guard, nil, bus)
	return NewServer("127.0.0.1:0", loop, nil, nil, bus, discardLogger())
}

func TestHandleChat(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, nil).Handler())
	defer srv.Close()

	body := bytes.NewBufferString(`{"message": "hello"}`)
	resp, err := http.Post(srv.URL+"/api/chat", "application/json", body)
	if err != nil {
		t.Fatalf("POST /api/chat: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var chat ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if chat.Answer != "The answer." {
		t.Errorf("Answer = %q", chat.Answer)
	}
	if chat.Reason != agent.ReasonFinal {
		t.Errorf("Reason = %q, want %q", chat.Reason, agent.ReasonFinal)
	}
}

func TestHandleChatValidation(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, nil).Handler())
	defer srv.Close()

	tests := []struct {
		name string
		body string
	}{
		{"empty message", `{"message": ""}`},
		{"invalid json", `{not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	defer resp.Body.Close()

	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("status = %v", health["status"])
	}
}

func TestHandleEventsWebsocket(t *testing.T) {
	bus := events.New()
	srv := httptest.NewServer(newTestServer(t, bus).Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	// Give the handler a moment to subscribe before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	bus.Emit(events.SourceAgent, events.KindRequestStart, map[string]any{"request_id": "r1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Kind != events.KindRequestStart {
		t.Errorf("Kind = %q, want %q", ev.Kind, events.KindRequestStart)
	}
}

func TestHandleEventsWithoutBus(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events")
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestHandleRoot(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	var root map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&root); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if root["name"] != "Quill" {
		t.Errorf("name = %q", root["name"])
	}
}
