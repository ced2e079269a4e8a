package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/ollama/ollama/api"
)

type OllamaProvider struct {
	client *api.Client
	model  string
}

func NewOllamaProvider(model string) (*OllamaProvider, error) {
	if model == "" {
		model = "llama3.2"
	}

	baseURL := "http://localhost:11434"
	if envURL := os.Getenv("OLLAMA_HOST"); envURL != "" {
		baseURL = envURL
	}
	uri, _ := url.Parse(baseURL)
	client := api.NewClient(uri, http.DefaultClient)

	return &OllamaProvider{
		client: client,
		model:  model,
	}, nil
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	var apiMsgs []api.Message
	for _, m := range messages {
		apiMsgs = append(apiMsgs, api.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	req := &api.ChatRequest{
		Model:    p.model,
		Messages: apiMsgs,
		Stream:   new(bool), // false
		Tools:    ollamaTools(tools),
	}

	var respContent string
	var totalTokens int
	var toolCalls []ToolCall

	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		respContent += resp.Message.Content
		if resp.Done {
			totalTokens = resp.EvalCount + resp.PromptEvalCount
		}

		for _, tc := range resp.Message.ToolCalls {
			argsBytes, _ := json.Marshal(tc.Function.Arguments)
			toolCalls = append(toolCalls, ToolCall{
				ID:   "call_" + tc.Function.Name,
				Name: tc.Function.Name,
				Args: string(argsBytes),
			})
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("ollama chat failed: %w", err)
	}

	return &Response{
		Content:   respContent,
		ToolCalls: toolCalls,
		Usage: Usage{
			CompletionTokens: totalTokens,
			TotalTokens:      totalTokens,
		},
	}, nil
}

// ollamaTools lowers the generic JSON-schema declarations into the typed
// parameter shape the ollama API expects.
func ollamaTools(tools []ToolDefinition) []api.Tool {
	var out []api.Tool
	for _, t := range tools {
		props := api.NewToolPropertiesMap()
		if rawProps, ok := t.Parameters["properties"].(map[string]any); ok {
			for name, raw := range rawProps {
				spec, _ := raw.(map[string]any)
				typ, _ := spec["type"].(string)
				desc, _ := spec["description"].(string)
				props.Set(name, api.ToolProperty{
					Type:        api.PropertyType{typ},
					Description: desc,
				})
			}
		}

		var required []string
		if rawReq, ok := t.Parameters["required"].([]any); ok {
			for _, r := range rawReq {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}

		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters: api.ToolFunctionParameters{
					Type:       "object",
					Properties: props,
					Required:   required,
				},
			},
		})
	}
	return out
}
