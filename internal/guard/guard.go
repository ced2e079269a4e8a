// Package guard enforces per-run limits on the agent loop: iteration and
// token budgets plus an allow-list of callable tools.
package guard

import (
	"github.com/bmatcuk/doublestar/v4"
)

// Policy defines the limits and scopes for one orchestration run.
type Policy struct {
	MaxIterations   int      `json:"max_iterations" yaml:"max_iterations"`
	MaxPromptTokens int      `json:"max_prompt_tokens" yaml:"max_prompt_tokens"`
	MaxOutputTokens int      `json:"max_output_tokens" yaml:"max_output_tokens"`
	AllowedTools    []string `json:"allowed_tools" yaml:"allowed_tools"`
}

// DefaultPolicy provides safe defaults. The token budgets are generous; the
// iteration cap is what actually stops a looping model.
var DefaultPolicy = Policy{
	MaxIterations:   20,
	MaxPromptTokens: 200000,
	MaxOutputTokens: 100000,
	AllowedTools:    []string{"*"},
}

// Violation represents a specific breach of policy.
type Violation struct {
	Rule    string
	Message string
	Fatal   bool
}

// Guard enforces the policy.
type Guard struct {
	policy Policy
}

func New(p Policy) *Guard {
	return &Guard{policy: p}
}

// Policy returns the guard's current policy configuration.
func (g *Guard) Policy() Policy {
	return g.policy
}

// CheckBudget verifies the run is within its iteration and token limits.
func (g *Guard) CheckBudget(iterations, promptTokens, outputTokens int) *Violation {
	if g.policy.MaxIterations > 0 && iterations > g.policy.MaxIterations {
		return &Violation{Rule: "max_iterations", Message: "Iteration limit exceeded", Fatal: true}
	}
	if g.policy.MaxPromptTokens > 0 && promptTokens > g.policy.MaxPromptTokens {
		return &Violation{Rule: "max_prompt_tokens", Message: "Prompt token budget exceeded", Fatal: true}
	}
	if g.policy.MaxOutputTokens > 0 && outputTokens > g.policy.MaxOutputTokens {
		return &Violation{Rule: "max_output_tokens", Message: "Output token budget exceeded", Fatal: true}
	}
	return nil
}

// CheckTool verifies a tool name against the allow-list globs.
func (g *Guard) CheckTool(name string) *Violation {
	allowed := false
	for _, pattern := range g.policy.AllowedTools {
		match, err := doublestar.Match(pattern, name)
		if err == nil && match {
			allowed = true
			break
		}
	}

	if !allowed {
		return &Violation{Rule: "allowed_tools", Message: "Tool not allowed: " + name, Fatal: true}
	}
	return nil
}
