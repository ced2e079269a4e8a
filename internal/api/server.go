// Package api exposes the agent over an OpenAI-compatible HTTP surface:
// POST /v1/chat/completions (plain and SSE streaming) and GET /health. Any
// OpenAI chat client can point at this server unchanged.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vladip1/databricks-genie-mcp/internal/agent"
	"github.com/vladip1/databricks-genie-mcp/internal/observe"
	"github.com/vladip1/databricks-genie-mcp/internal/provider"
)

// Server wires the agent loop to the HTTP surface.
type Server struct {
	router  *gin.Engine
	agent   *agent.Orchestrator
	observe *observe.Observer
	model   string
}

// NewServer creates the HTTP server. model is the name reported in
// completion objects when the request leaves its model field empty.
func NewServer(orch *agent.Orchestrator, obs *observe.Observer, model string) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:  router,
		agent:   orch,
		observe: obs,
		model:   model,
	}

	router.GET("/health", s.health)
	router.POST("/v1/chat/completions", s.chatCompletions)
	return s
}

// Engine returns the underlying gin engine, mainly for tests.
func (s *Server) Engine() *gin.Engine { return s.router }

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.observe.Log().Info().Str("addr", addr).Msg("chat endpoint listening")
	return s.router.Run(addr)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) chatCompletions(c *gin.Context) {
	var req ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	prompt, ok := lastUserMessage(req.Messages)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no user message found in the request"})
		return
	}

	model := req.Model
	if model == "" {
		model = s.model
	}

	// The caller's user field doubles as the session key so a client that
	// sets it gets conversation continuity across requests.
	sessionID := req.User
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if req.Stream {
		s.streamCompletion(c, sessionID, model, prompt)
		return
	}
	s.completion(c, sessionID, model, prompt)
}

func lastUserMessage(messages []ChatMessage) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == provider.RoleUser {
			return messages[i].Content, true
		}
	}
	return "", false
}

// completion runs the agent to the end and returns one completion object.
// Run failures are delivered through the same channel as success: a
// completion whose content is the error text and finish_reason "error".
func (s *Server) completion(c *gin.Context, sessionID, model, prompt string) {
	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	result, err := s.agent.Ask(c.Request.Context(), sessionID, prompt)
	if err != nil {
		c.JSON(http.StatusOK, ChatCompletionResponse{
			ID:      id,
			Object:  "chat.completion",
			Created: created,
			Model:   model,
			Choices: []ChatCompletionChoice{{
				Message:      ChatMessage{Role: provider.RoleAssistant, Content: fmt.Sprintf("Error: %v", err)},
				FinishReason: "error",
			}},
		})
		return
	}

	c.JSON(http.StatusOK, ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: []ChatCompletionChoice{{
			Message:      ChatMessage{Role: provider.RoleAssistant, Content: result.Text},
			FinishReason: "stop",
		}},
		Usage: ChatCompletionUsage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
	})
}

// streamCompletion renders the run's event stream as SSE chunks: assistant
// text as deltas, tool activity as readable narration, then a finish chunk
// and the [DONE] sentinel. Errors arrive inline with finish_reason "error",
// never as a transport failure.
func (s *Server) streamCompletion(c *gin.Context, sessionID, model, prompt string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	id := "chatcmpl-" + uuid.NewString()
	writer := &chunkWriter{c: c, id: id, model: model}

	_, err := s.agent.Run(c.Request.Context(), sessionID,
		[]provider.Message{{Role: provider.RoleUser, Content: prompt}},
		func(e agent.Event) {
			switch e.Type {
			case agent.EventTextDelta:
				writer.delta(e.Text, nil)
			case agent.EventToolCall:
				writer.delta(fmt.Sprintf("\n\nUsing tool: %s\n", e.Tool), nil)
			case agent.EventToolResult:
				writer.delta(fmt.Sprintf("\nResult from %s:\n%s\n", e.Tool, prettyJSON(e.Result)), nil)
			case agent.EventEnd:
				stop := "stop"
				writer.delta("", &stop)
				writer.done()
			case agent.EventError:
				reason := "error"
				writer.delta(fmt.Sprintf("\n\nError: %s\n", e.Text), &reason)
				writer.done()
			}
		})
	if err != nil {
		// Already rendered as an inline error chunk by the event handler.
		s.observe.Log().Warn().Str("session", sessionID).Err(err).Msg("streaming run failed")
	}
}

// chunkWriter serializes completion chunks onto one SSE response.
type chunkWriter struct {
	c     *gin.Context
	id    string
	model string
}

func (w *chunkWriter) delta(content string, finishReason *string) {
	chunk := ChatCompletionChunk{
		ID:      w.id,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   w.model,
		Choices: []ChunkChoice{{
			Delta:        ChunkDelta{Content: content},
			FinishReason: finishReason,
		}},
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	fmt.Fprintf(w.c.Writer, "data: %s\n\n", data)
	w.c.Writer.Flush()
}

func (w *chunkWriter) done() {
	fmt.Fprint(w.c.Writer, "data: [DONE]\n\n")
	w.c.Writer.Flush()
}

// prettyJSON indents a JSON payload for the narration stream; non-JSON
// content passes through unchanged.
func prettyJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
