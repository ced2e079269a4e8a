package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vladip1/databricks-genie-mcp/internal/agent"
	"github.com/vladip1/databricks-genie-mcp/internal/guard"
	"github.com/vladip1/databricks-genie-mcp/internal/history"
	"github.com/vladip1/databricks-genie-mcp/internal/observe"
	"github.com/vladip1/databricks-genie-mcp/internal/provider"
	"github.com/vladip1/databricks-genie-mcp/internal/tools"
)

type failingProvider struct{}

func (failingProvider) Chat(context.Context, []provider.Message, []provider.ToolDefinition) (*provider.Response, error) {
	return nil, errors.New("model unreachable")
}
func (failingProvider) Name() string { return "failing" }

func testServer(t *testing.T, p provider.Provider) *Server {
	t.Helper()

	registry := tools.NewRegistry()
	err := registry.Register(tools.Definition{Name: "get_space", Description: "describe a space"},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			return map[string]string{"space_id": "S1", "title": "Sales"}, nil
		})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	obs := observe.New(&bytes.Buffer{}, false)
	orch := agent.New(p, registry, history.NewMemoryStore(), guard.New(guard.DefaultPolicy), obs)
	return NewServer(orch, obs, "genie-agent")
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := testServer(t, provider.NewStubProvider())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestChatCompletion(t *testing.T) {
	stub := provider.NewStubProvider(provider.Response{
		Content: "there are 42 rows",
		Usage:   provider.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	})
	s := testServer(t, stub)

	w := postJSON(t, s, "/v1/chat/completions", ChatCompletionRequest{
		Model:    "genie-agent",
		Messages: []ChatMessage{{Role: "user", Content: "how many rows"}},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.ID, "chatcmpl-") {
		t.Errorf("unexpected id %q", resp.ID)
	}
	if resp.Object != "chat.completion" {
		t.Errorf("unexpected object %q", resp.Object)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("expected one choice, got %d", len(resp.Choices))
	}
	choice := resp.Choices[0]
	if choice.FinishReason != "stop" || choice.Message.Content != "there are 42 rows" {
		t.Errorf("unexpected choice %+v", choice)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
}

func TestChatCompletionRequiresUserMessage(t *testing.T) {
	s := testServer(t, provider.NewStubProvider())

	w := postJSON(t, s, "/v1/chat/completions", ChatCompletionRequest{
		Model:    "genie-agent",
		Messages: []ChatMessage{{Role: "system", Content: "be nice"}},
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestChatCompletionErrorInChannel(t *testing.T) {
	s := testServer(t, failingProvider{})

	w := postJSON(t, s, "/v1/chat/completions", ChatCompletionRequest{
		Model:    "genie-agent",
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	})

	// Run failures are delivered as a completion, not a transport error.
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ChatCompletionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	choice := resp.Choices[0]
	if choice.FinishReason != "error" {
		t.Errorf("expected finish_reason error, got %q", choice.FinishReason)
	}
	if !strings.Contains(choice.Message.Content, "Error:") {
		t.Errorf("error text missing: %q", choice.Message.Content)
	}
}

func TestChatCompletionStreaming(t *testing.T) {
	stub := provider.NewStubProvider(
		provider.Response{ToolCalls: []provider.ToolCall{{ID: "c1", Name: "get_space", Args: `{}`}}},
		provider.Response{Content: "the space is Sales"},
	)
	s := testServer(t, stub)

	w := postJSON(t, s, "/v1/chat/completions", ChatCompletionRequest{
		Model:    "genie-agent",
		Messages: []ChatMessage{{Role: "user", Content: "what space is this"}},
		Stream:   true,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("unexpected content type %q", ct)
	}

	body := w.Body.String()
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("stream must end with the [DONE] sentinel: %q", body)
	}

	var content strings.Builder
	var finish string
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") || line == "data: [DONE]" {
			continue
		}
		var chunk ChatCompletionChunk
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			t.Fatalf("undecodable chunk %q: %v", line, err)
		}
		if chunk.Object != "chat.completion.chunk" {
			t.Errorf("unexpected chunk object %q", chunk.Object)
		}
		content.WriteString(chunk.Choices[0].Delta.Content)
		if fr := chunk.Choices[0].FinishReason; fr != nil {
			finish = *fr
		}
	}

	text := content.String()
	if !strings.Contains(text, "Using tool: get_space") {
		t.Errorf("tool narration missing: %q", text)
	}
	if !strings.Contains(text, "Result from get_space") || !strings.Contains(text, "Sales") {
		t.Errorf("tool result narration missing: %q", text)
	}
	if !strings.Contains(text, "the space is Sales") {
		t.Errorf("final text missing: %q", text)
	}
	if finish != "stop" {
		t.Errorf("expected finish_reason stop, got %q", finish)
	}
}

func TestChatCompletionStreamingError(t *testing.T) {
	s := testServer(t, failingProvider{})

	w := postJSON(t, s, "/v1/chat/completions", ChatCompletionRequest{
		Model:    "genie-agent",
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
		Stream:   true,
	})

	body := w.Body.String()
	if !strings.Contains(body, "Error:") || !strings.Contains(body, `"finish_reason":"error"`) {
		t.Errorf("inline error chunk missing: %q", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("error stream must still end with [DONE]")
	}
}

func TestChatCompletionSessionContinuity(t *testing.T) {
	stub := provider.NewStubProvider(
		provider.Response{Content: "first answer"},
		provider.Response{Content: "second answer"},
	)
	s := testServer(t, stub)

	for _, q := range []string{"first question", "second question"} {
		w := postJSON(t, s, "/v1/chat/completions", ChatCompletionRequest{
			Model:    "genie-agent",
			Messages: []ChatMessage{{Role: "user", Content: q}},
			User:     "alice",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("request failed: %d", w.Code)
		}
	}

	second := stub.Calls[1]
	var sawFirstTurn bool
	for _, m := range second {
		if m.Role == provider.RoleAssistant && m.Content == "first answer" {
			sawFirstTurn = true
		}
	}
	if !sawFirstTurn {
		t.Errorf("second request did not carry the first turn: %+v", second)
	}
}
