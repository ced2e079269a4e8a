// Package agent drives a chat model through the think, call tool, observe
// result loop until it produces a final answer. One Run is one such loop;
// its progress is reported as an ordered event stream that always ends with
// exactly one terminal event.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladip1/databricks-genie-mcp/internal/guard"
	"github.com/vladip1/databricks-genie-mcp/internal/history"
	"github.com/vladip1/databricks-genie-mcp/internal/observe"
	"github.com/vladip1/databricks-genie-mcp/internal/provider"
	"github.com/vladip1/databricks-genie-mcp/internal/tools"
)

// DefaultSystemPrompt frames the model as a Genie analytics assistant.
const DefaultSystemPrompt = `You are a data analytics assistant working against Databricks Genie spaces. ` +
	`Use the available tools to start conversations, poll messages until they complete, and fetch query results. ` +
	`After starting a conversation or sending a message, always poll it until complete before reading attachments. ` +
	`Answer with the data you retrieved; do not invent results.`

// Orchestrator runs the agent loop over a provider and the tool registry.
type Orchestrator struct {
	provider provider.Provider
	registry *tools.Registry
	history  history.Store
	guard    *guard.Guard
	observe  *observe.Observer

	systemPrompt string
}

func New(p provider.Provider, r *tools.Registry, h history.Store, g *guard.Guard, o *observe.Observer) *Orchestrator {
	return &Orchestrator{
		provider:     p,
		registry:     r,
		history:      h,
		guard:        g,
		observe:      o,
		systemPrompt: DefaultSystemPrompt,
	}
}

// SetSystemPrompt overrides the default system prompt.
func (o *Orchestrator) SetSystemPrompt(prompt string) {
	o.systemPrompt = prompt
}

// Result is the final record of one run.
type Result struct {
	Text  string
	Usage provider.Usage
}

// Ask runs one turn with a single user message and no streaming consumer.
func (o *Orchestrator) Ask(ctx context.Context, sessionID, question string) (*Result, error) {
	return o.Run(ctx, sessionID, []provider.Message{{Role: provider.RoleUser, Content: question}}, nil)
}

// Run executes the loop for one user turn: send the accumulated conversation
// to the model, invoke any tool calls it emits in order, feed the results
// back, and repeat until the model answers without tool calls. Events are
// emitted as they happen; the run ends with exactly one terminal event —
// end on success, error on any failure.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, userMessages []provider.Message, emit EmitFunc) (result *Result, err error) {
	ctx, span := o.observe.StartSpan(ctx, "agent.Run")
	defer span.End()

	if emit == nil {
		emit = func(Event) {}
	}

	fail := func(failure error) (*Result, error) {
		o.observe.Log().Error().Str("session", sessionID).Err(failure).Msg("run failed")
		emit(Event{Type: EventError, Timestamp: time.Now(), Text: failure.Error()})
		return nil, failure
	}

	// A panic anywhere in the loop still yields the single terminal event.
	defer func() {
		if r := recover(); r != nil {
			result, err = fail(fmt.Errorf("run panicked: %v", r))
		}
	}()

	msgs, err := o.conversation(ctx, sessionID, userMessages)
	if err != nil {
		return fail(err)
	}
	turnStart := len(msgs) - len(userMessages)

	toolDecls := o.registry.ProviderTools()

	var usage provider.Usage
	iteration := 0
	for {
		iteration++
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fail(ctxErr)
		}
		if v := o.guard.CheckBudget(iteration, usage.PromptTokens, usage.CompletionTokens); v != nil {
			return fail(fmt.Errorf("guard violation: %s", v.Message))
		}

		resp, chatErr := o.provider.Chat(ctx, msgs, toolDecls)
		if chatErr != nil {
			return fail(fmt.Errorf("model request failed: %w", chatErr))
		}
		usage.Add(resp.Usage)

		o.observe.Log().Info().
			Str("session", sessionID).
			Int("iteration", iteration).
			Int("tool_calls", len(resp.ToolCalls)).
			Int("tokens", resp.Usage.TotalTokens).
			Msg("model turn")

		if resp.Content != "" {
			emit(Event{Type: EventTextDelta, Timestamp: time.Now(), Text: resp.Content})
		}

		msgs = append(msgs, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			o.appendHistory(ctx, sessionID, msgs[turnStart:])
			emit(Event{Type: EventEnd, Timestamp: time.Now(), Text: resp.Content, Usage: &usage})
			return &Result{Text: resp.Content, Usage: usage}, nil
		}

		// Tool calls run sequentially in the order the model emitted them;
		// each result event strictly follows its call event.
		for _, call := range resp.ToolCalls {
			emit(Event{Type: EventToolCall, Timestamp: time.Now(), CallID: call.ID, Tool: call.Name, Args: call.Args})

			var payload json.RawMessage
			if v := o.guard.CheckTool(call.Name); v != nil {
				payload, _ = json.Marshal(map[string]string{"error": v.Message})
			} else {
				payload = o.registry.Execute(ctx, call.Name, json.RawMessage(call.Args))
			}

			emit(Event{
				Type:      EventToolResult,
				Timestamp: time.Now(),
				CallID:    call.ID,
				Tool:      call.Name,
				Result:    payload,
				IsError:   tools.IsErrorPayload(payload),
			})

			msgs = append(msgs, provider.Message{
				Role:       provider.RoleTool,
				Content:    string(payload),
				ToolCallID: call.ID,
			})
		}
	}
}

// conversation builds the model input: system prompt, prior session turns,
// then the incoming user messages.
func (o *Orchestrator) conversation(ctx context.Context, sessionID string, userMessages []provider.Message) ([]provider.Message, error) {
	var msgs []provider.Message
	if o.systemPrompt != "" {
		msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: o.systemPrompt})
	}

	if o.history != nil && sessionID != "" {
		batches, err := o.history.History(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("load session history: %w", err)
		}
		for _, batch := range batches {
			var prior []provider.Message
			if err := json.Unmarshal(batch, &prior); err != nil {
				o.observe.Log().Warn().Str("session", sessionID).Err(err).Msg("skipping undecodable history batch")
				continue
			}
			msgs = append(msgs, prior...)
		}
	}

	return append(msgs, userMessages...), nil
}

func (o *Orchestrator) appendHistory(ctx context.Context, sessionID string, turn []provider.Message) {
	if o.history == nil || sessionID == "" {
		return
	}

	batch, err := json.Marshal(turn)
	if err != nil {
		o.observe.Log().Warn().Str("session", sessionID).Err(err).Msg("failed to encode turn batch")
		return
	}
	if err := o.history.Append(ctx, sessionID, batch); err != nil {
		o.observe.Log().Warn().Str("session", sessionID).Err(err).Msg("failed to append session history")
	}
}
