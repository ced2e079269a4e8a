// Package ui defines how agent progress is shown to a person. The CLI
// picks a sink: plain text for one-shot questions, the TUI for chat.
package ui

import (
	"fmt"
	"io"
)

// Sink receives agent progress for display. Calls arrive in event order;
// either Done or Error ends a run.
type Sink interface {
	Status(status string)
	Delta(text string)
	ToolCall(name string)
	ToolResult(name, payload string, isError bool)
	Done()
	Error(err error)
}

// SilentSink discards everything.
type SilentSink struct{}

func (SilentSink) Status(string) {}
func (SilentSink) Delta(string) {}
func (SilentSink) ToolCall(string) {}
func (SilentSink) ToolResult(string, string, bool) {}
func (SilentSink) Done() {}
func (SilentSink) Error(error) {}

// TextSink streams progress as plain text, matching the narration the
// HTTP streaming surface produces.
type TextSink struct {
	W io.Writer
}

func (t TextSink) Status(status string) {}

func (t TextSink) Delta(text string) {
	fmt.Fprint(t.W, text)
}

func (t TextSink) ToolCall(name string) {
	fmt.Fprintf(t.W, "\n\nUsing tool: %s\n", name)
}

func (t TextSink) ToolResult(name, payload string, isError bool) {
	fmt.Fprintf(t.W, "\nResult from %s:\n%s\n", name, payload)
}

func (t TextSink) Done() {
	fmt.Fprintln(t.W)
}

func (t TextSink) Error(err error) {
	fmt.Fprintf(t.W, "\n\nError: %v\n", err)
}
