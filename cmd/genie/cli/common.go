package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vladip1/databricks-genie-mcp/internal/agent"
	"github.com/vladip1/databricks-genie-mcp/internal/config"
	"github.com/vladip1/databricks-genie-mcp/internal/credential"
	"github.com/vladip1/databricks-genie-mcp/internal/genie"
	"github.com/vladip1/databricks-genie-mcp/internal/guard"
	"github.com/vladip1/databricks-genie-mcp/internal/history"
	"github.com/vladip1/databricks-genie-mcp/internal/observe"
	"github.com/vladip1/databricks-genie-mcp/internal/provider"
	"github.com/vladip1/databricks-genie-mcp/internal/tools"
	"github.com/vladip1/databricks-genie-mcp/internal/ui"
)

func genieDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".genie")
}

func getCredentials() *credential.Store {
	store, err := credential.NewStore(genieDir())
	if err != nil {
		fmt.Printf("Failed to open credential store: %v\n", err)
		os.Exit(1)
	}
	return store
}

func newObserver(out io.Writer) *observe.Observer {
	return observe.New(out, verbose)
}

// loadConfig reads the config file and fills credentials from the
// credential store when neither the file nor the environment has them.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	creds := getCredentials()
	fillFromStore := func(dst *string, name string) {
		if *dst != "" {
			return
		}
		if v, err := creds.Get(name); err == nil {
			*dst = v
		}
	}
	fillFromStore(&cfg.Databricks.Token, "databricks.token")
	fillFromStore(&cfg.Databricks.ClientID, "databricks.client_id")
	fillFromStore(&cfg.Databricks.ClientSecret, "databricks.client_secret")
	fillFromStore(&cfg.Agent.APIKey, cfg.Agent.Provider+".api_key")

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// buildRegistry connects to the workspace and registers the analytics tools.
func buildRegistry(cfg config.Config) (*tools.Registry, error) {
	client, err := genie.NewClient(genie.Config{
		Host:         cfg.Databricks.Host,
		Token:        cfg.Databricks.Token,
		ClientID:     cfg.Databricks.ClientID,
		ClientSecret: cfg.Databricks.ClientSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to workspace: %w", err)
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterAnalytics(registry, client, genie.NewPoller(client)); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	return registry, nil
}

func buildProvider(cfg config.Config) (provider.Provider, error) {
	switch cfg.Agent.Provider {
	case "openai":
		return provider.NewOpenAIProvider(cfg.Agent.APIKey, cfg.Agent.BaseURL, cfg.Agent.Model)
	case "anthropic":
		return provider.NewAnthropicProvider(cfg.Agent.APIKey, cfg.Agent.Model)
	case "gemini":
		return provider.NewGeminiProvider(cfg.Agent.APIKey, cfg.Agent.Model)
	case "ollama":
		return provider.NewOllamaProvider(cfg.Agent.Model)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Agent.Provider)
	}
}

func buildHistory(cfg config.Config) (history.Store, error) {
	if cfg.History.Backend == "sqlite" {
		return history.NewSQLiteStore(cfg.History.Path)
	}
	return history.NewMemoryStore(), nil
}

// buildOrchestrator wires the full agent stack from configuration. The
// registry is returned too so the chat surface can drive tools directly.
func buildOrchestrator(cfg config.Config, obs *observe.Observer) (*agent.Orchestrator, *tools.Registry, func(), error) {
	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := buildProvider(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	hist, err := buildHistory(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	orch := agent.New(p, registry, hist, guard.New(cfg.Guard), obs)
	prompt, err := cfg.SystemPrompt()
	if err != nil {
		hist.Close()
		return nil, nil, nil, err
	}
	if prompt != "" {
		orch.SetSystemPrompt(prompt)
	}
	return orch, registry, func() { hist.Close() }, nil
}

// sinkEmit adapts a display sink to the agent's event stream.
func sinkEmit(sink ui.Sink) agent.EmitFunc {
	return func(ev agent.Event) {
		switch ev.Type {
		case agent.EventTextDelta:
			sink.Delta(ev.Text)
		case agent.EventToolCall:
			sink.ToolCall(ev.Tool)
		case agent.EventToolResult:
			sink.ToolResult(ev.Tool, string(ev.Result), ev.IsError)
		case agent.EventEnd:
			sink.Done()
		case agent.EventError:
			sink.Error(errors.New(ev.Text))
		}
	}
}
