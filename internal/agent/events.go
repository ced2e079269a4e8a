package agent

import (
	"encoding/json"
	"time"

	"github.com/vladip1/databricks-genie-mcp/internal/provider"
)

// EventType identifies one kind of run event.
type EventType string

const (
	// EventTextDelta carries a chunk of assistant text as the model
	// produces it.
	EventTextDelta EventType = "text_delta"
	// EventToolCall is emitted immediately before a tool invocation.
	EventToolCall EventType = "tool_call"
	// EventToolResult is emitted immediately after the matching tool call.
	EventToolResult EventType = "tool_result"
	// EventEnd terminates a successful run and carries the final text.
	EventEnd EventType = "end"
	// EventError terminates a failed run. A run emits exactly one terminal
	// event, either end or error.
	EventError EventType = "error"
)

// Event is one step in the ordered output stream of a run.
type Event struct {
	Type      EventType
	Timestamp time.Time

	// Text is the delta content, the final answer on end, or the error
	// message on error.
	Text string

	// Tool call correlation. A tool_result always follows its tool_call.
	CallID string
	Tool   string
	Args   string
	Result json.RawMessage
	// IsError marks a tool_result whose payload is an {"error": ...}.
	IsError bool

	// Usage is set on the end event only.
	Usage *provider.Usage
}

// EmitFunc receives run events in emission order. It is called from the
// run's own goroutine; a slow consumer slows the run.
type EmitFunc func(Event)
