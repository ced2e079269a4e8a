package provider

import (
	"context"
)

// StubProvider replays a scripted sequence of responses. It backs tests and
// offline development; once the script is exhausted it yields a plain final
// answer so any loop running on it terminates.
type StubProvider struct {
	Responses []Response

	// Calls records the message history of each Chat invocation.
	Calls [][]Message
}

func NewStubProvider(responses ...Response) *StubProvider {
	return &StubProvider{Responses: responses}
}

func (m *StubProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.Calls = append(m.Calls, messages)

	if len(m.Responses) == 0 {
		return &Response{
			Content: "Done.",
			Usage:   Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
		}, nil
	}

	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	return &resp, nil
}

func (m *StubProvider) Name() string {
	return "stub"
}
