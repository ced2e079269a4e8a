package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/vladip1/databricks-genie-mcp/internal/agent"
	"github.com/vladip1/databricks-genie-mcp/internal/guard"
	"github.com/vladip1/databricks-genie-mcp/internal/history"
	"github.com/vladip1/databricks-genie-mcp/internal/observe"
	"github.com/vladip1/databricks-genie-mcp/internal/provider"
	"github.com/vladip1/databricks-genie-mcp/internal/tools"
	"github.com/vladip1/databricks-genie-mcp/internal/ui"
)

func TestCommandsRegistered(t *testing.T) {
	want := []string{"serve", "mcp", "ask", "chat", "config", "version"}

	registered := map[string]bool{}
	for _, cmd := range RootCmd.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range want {
		if !registered[name] {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestConfigSubcommands(t *testing.T) {
	for _, cmd := range RootCmd.Commands() {
		if cmd.Name() != "config" {
			continue
		}
		want := map[string]bool{"set": false, "get": false, "list": false, "delete": false}
		for _, sub := range cmd.Commands() {
			if _, ok := want[sub.Name()]; ok {
				want[sub.Name()] = true
			}
		}
		for name, found := range want {
			if !found {
				t.Errorf("config subcommand %q not registered", name)
			}
		}
		return
	}
	t.Fatal("config command not found")
}

// TestSinkEmitBridgesEvents runs the orchestrator against a stub provider
// and checks that the text sink reproduces the run as a readable stream.
func TestSinkEmitBridgesEvents(t *testing.T) {
	registry := tools.NewRegistry()
	if err := registry.Register(tools.Definition{Name: "get_space", Description: "Describe a space"},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			return map[string]string{"title": "Sales"}, nil
		}); err != nil {
		t.Fatal(err)
	}

	p := provider.NewStubProvider(
		provider.Response{ToolCalls: []provider.ToolCall{{ID: "call_1", Name: "get_space", Args: `{"space_id":"S1"}`}}},
		provider.Response{Content: "The space is Sales."},
	)
	obs := observe.New(&bytes.Buffer{}, false)
	orch := agent.New(p, registry, history.NewMemoryStore(), guard.New(guard.DefaultPolicy), obs)

	var out bytes.Buffer
	if _, err := orch.Run(context.Background(), "cli-test",
		[]provider.Message{{Role: provider.RoleUser, Content: "what space?"}},
		sinkEmit(ui.TextSink{W: &out})); err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "Using tool: get_space") {
		t.Errorf("output missing tool narration: %q", text)
	}
	if !strings.Contains(text, "The space is Sales.") {
		t.Errorf("output missing final answer: %q", text)
	}
}
