package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if model == "" {
		model = "gemini-1.5-pro-latest"
	}

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	geminiModel := p.client.GenerativeModel(p.model)
	geminiModel.Tools = geminiTools(tools)

	cs := geminiModel.StartChat()

	var history []*genai.Content
	for _, m := range messages[:max(len(messages)-1, 0)] {
		if m.Role == RoleSystem {
			geminiModel.SystemInstruction = &genai.Content{
				Parts: []genai.Part{genai.Text(m.Content)},
			}
			continue
		}
		history = append(history, geminiContent(m))
	}
	cs.History = history

	if len(messages) == 0 {
		return nil, errors.New("no messages to send")
	}
	lastMsg := messages[len(messages)-1]
	var lastParts []genai.Part
	if lastMsg.ToolCallID != "" {
		lastParts = append(lastParts, genai.FunctionResponse{
			Name:     lastMsg.ToolCallID,
			Response: map[string]any{"result": lastMsg.Content},
		})
	} else {
		lastParts = append(lastParts, genai.Text(lastMsg.Content))
	}

	resp, err := cs.SendMessage(ctx, lastParts...)
	if err != nil {
		return nil, fmt.Errorf("gemini completion failed: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, errors.New("no candidates returned")
	}
	cand := resp.Candidates[0]

	var contentStr string
	var toolCalls []ToolCall

	for _, part := range cand.Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			contentStr += string(v)
		case genai.FunctionCall:
			argsBytes, _ := json.Marshal(v.Args)
			// Gemini has no call ids; the function name doubles as the
			// correlation key.
			toolCalls = append(toolCalls, ToolCall{
				ID:   v.Name,
				Name: v.Name,
				Args: string(argsBytes),
			})
		}
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return &Response{
		Content:   contentStr,
		ToolCalls: toolCalls,
		Usage:     usage,
	}, nil
}

func geminiContent(m Message) *genai.Content {
	role := "user"
	if m.Role == RoleAssistant {
		role = "model"
	}

	content := &genai.Content{Role: role}

	if m.ToolCallID != "" {
		content.Role = "user"
		content.Parts = append(content.Parts, genai.FunctionResponse{
			Name:     m.ToolCallID,
			Response: map[string]any{"result": m.Content},
		})
		return content
	}

	if m.Content != "" {
		content.Parts = append(content.Parts, genai.Text(m.Content))
	}
	for _, tc := range m.ToolCalls {
		var args map[string]any
		json.Unmarshal([]byte(tc.Args), &args)
		content.Parts = append(content.Parts, genai.FunctionCall{
			Name: tc.Name,
			Args: args,
		})
	}
	return content
}

func geminiTools(tools []ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}

	var decls []*genai.FunctionDeclaration
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  geminiSchema(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// geminiSchema lowers a JSON-schema object into the genai schema type. Only
// the object/string/integer/number/boolean shapes the tool inputs use are
// mapped.
func geminiSchema(params map[string]any) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}

	if props, ok := params["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			spec, _ := raw.(map[string]any)
			typ, _ := spec["type"].(string)
			desc, _ := spec["description"].(string)
			schema.Properties[name] = &genai.Schema{
				Type:        geminiType(typ),
				Description: desc,
			}
		}
	}
	if rawReq, ok := params["required"].([]any); ok {
		for _, r := range rawReq {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

func geminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeString
	}
}
