// Package config loads the service configuration from an optional YAML
// file and the environment. Environment variables win over the file so
// deployments can keep credentials out of checked-in config.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vladip1/databricks-genie-mcp/internal/guard"
)

// Databricks holds workspace connection settings. Either a personal access
// token or an OAuth client credential pair must be present.
type Databricks struct {
	Host         string `yaml:"host"`
	Token        string `yaml:"token"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	SpaceID      string `yaml:"space_id"`
}

// Server holds the HTTP API settings.
type Server struct {
	Addr  string `yaml:"addr"`
	Model string `yaml:"model"`
}

// Agent holds the model provider settings for the orchestrator.
type Agent struct {
	Provider         string `yaml:"provider"`
	Model            string `yaml:"model"`
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	SystemPromptPath string `yaml:"system_prompt_path"`
}

// History selects the chat history backend.
type History struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// Config is the root of the configuration file.
type Config struct {
	Databricks Databricks   `yaml:"databricks"`
	Server     Server       `yaml:"server"`
	Agent      Agent        `yaml:"agent"`
	History    History      `yaml:"history"`
	Guard      guard.Policy `yaml:"guard"`
	Verbose    bool         `yaml:"verbose"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server:  Server{Addr: ":8000", Model: "databricks-genie"},
		Agent:   Agent{Provider: "anthropic"},
		History: History{Backend: "memory"},
		Guard:   guard.DefaultPolicy,
	}
}

// Load reads the YAML file at path if it exists, then applies environment
// overrides. An empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fall through to env-only configuration.
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.Databricks.Host, "DATABRICKS_HOST")
	setFromEnv(&c.Databricks.Token, "DATABRICKS_TOKEN")
	setFromEnv(&c.Databricks.ClientID, "DATABRICKS_CLIENT_ID")
	setFromEnv(&c.Databricks.ClientSecret, "DATABRICKS_CLIENT_SECRET")
	setFromEnv(&c.Databricks.SpaceID, "DATABRICKS_SPACE_ID")
	setFromEnv(&c.Agent.APIKey, "GENIE_AGENT_API_KEY")
	setFromEnv(&c.Agent.Provider, "GENIE_AGENT_PROVIDER")
	setFromEnv(&c.Agent.Model, "GENIE_AGENT_MODEL")
	setFromEnv(&c.Server.Addr, "GENIE_LISTEN_ADDR")
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks that the workspace connection is usable. It is called at
// startup so a misconfigured deployment fails fast instead of at the first
// tool call.
func (c *Config) Validate() error {
	if c.Databricks.Host == "" {
		return fmt.Errorf("databricks host is required (set DATABRICKS_HOST)")
	}
	hasToken := c.Databricks.Token != ""
	hasOAuth := c.Databricks.ClientID != "" && c.Databricks.ClientSecret != ""
	if !hasToken && !hasOAuth {
		return fmt.Errorf("databricks credentials are required (set DATABRICKS_TOKEN, or DATABRICKS_CLIENT_ID and DATABRICKS_CLIENT_SECRET)")
	}
	switch c.History.Backend {
	case "", "memory":
	case "sqlite":
		if c.History.Path == "" {
			return fmt.Errorf("history path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}
	return nil
}

// SystemPrompt reads the configured system prompt file, or returns "" when
// none was configured so the caller falls back to the built-in prompt.
func (c *Config) SystemPrompt() (string, error) {
	if c.Agent.SystemPromptPath == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Agent.SystemPromptPath)
	if err != nil {
		return "", fmt.Errorf("read system prompt %s: %w", c.Agent.SystemPromptPath, err)
	}
	return string(data), nil
}
