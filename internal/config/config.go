// Package config loads the engine's YAML configuration: runtime settings,
// collaborator command lines, and the per-agent profiles consumed by the
// policy gate, limiter, and cycle engine.
package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fixflow/fixflow/internal/domain"
)

// CommandConfig defines how to launch an external collaborator process.
type CommandConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// FilPolicyConfig is the YAML form of an agent's allow/block lists.
type FilPolicyConfig struct {
	Allow []string `yaml:"allow"`
	Block []string `yaml:"block"`
}

// AgentConfig is the YAML form of one agent profile.
type AgentConfig struct {
	FilPolicy      FilPolicyConfig `yaml:"fil_policy"`
	Concurrency    struct {
		MaxParallel int `yaml:"max_parallel"`
	} `yaml:"concurrency"`
	Locks struct {
		Scope string `yaml:"scope"`
	} `yaml:"locks"`
	MaxLinesOfCode int `yaml:"max_lines_of_code"`
	Priority       int `yaml:"priority"`
}

// Config holds the engine's runtime configuration.
type Config struct {
	DBPath            string                 `yaml:"db_path"`
	Workspace         string                 `yaml:"workspace"`
	MaxRetries        int                    `yaml:"max_retries"`
	BackoffMs         int                    `yaml:"backoff_ms"`
	RunTimeoutSec     int                    `yaml:"run_timeout_sec"`
	CoverageThreshold float64                `yaml:"coverage_threshold"`
	MutationThreshold float64                `yaml:"mutation_threshold"`
	TestRunner        CommandConfig          `yaml:"test_runner"`
	Coverage          CommandConfig          `yaml:"coverage"`
	PhaseWorker       CommandConfig          `yaml:"phase_worker"`
	Mutation          CommandConfig          `yaml:"mutation"`
	Agents            map[string]AgentConfig `yaml:"agents"`
}

// Load reads a YAML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "fixflow.db"
	}
	if c.Workspace == "" {
		c.Workspace = "."
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMs == 0 {
		c.BackoffMs = 100
	}
	if c.RunTimeoutSec == 0 {
		c.RunTimeoutSec = 30
	}
	if c.CoverageThreshold == 0 {
		c.CoverageThreshold = 80
	}
	if c.MutationThreshold == 0 {
		c.MutationThreshold = 30
	}
	for name, agent := range c.Agents {
		if agent.MaxLinesOfCode == 0 {
			agent.MaxLinesOfCode = 300
		}
		if agent.Locks.Scope == "" {
			agent.Locks.Scope = string(domain.LockDeclared)
		}
		c.Agents[name] = agent
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.TestRunner.Command == "" {
		problems = append(problems, "test_runner.command is required")
	}
	if len(c.Agents) == 0 {
		problems = append(problems, "at least one agent is required")
	}
	for name, agent := range c.Agents {
		for _, raw := range append(append([]string{}, agent.FilPolicy.Allow...), agent.FilPolicy.Block...) {
			if _, ok := domain.ParseFilLevel(raw); !ok {
				problems = append(problems, fmt.Sprintf("agent %s: unknown FIL level %q", name, raw))
			}
		}
		switch agent.Locks.Scope {
		case string(domain.LockNone), string(domain.LockDeclared):
		default:
			problems = append(problems, fmt.Sprintf("agent %s: unknown lock scope %q", name, agent.Locks.Scope))
		}
		if agent.Concurrency.MaxParallel < 0 {
			problems = append(problems, fmt.Sprintf("agent %s: max_parallel must not be negative", name))
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}

// Profile converts the named agent's config into its domain profile.
// Returns ErrUnknownAgent if the agent is not configured.
func (c *Config) Profile(name string) (domain.AgentProfile, error) {
	agent, ok := c.Agents[name]
	if !ok {
		return domain.AgentProfile{}, domain.ErrUnknownAgent
	}

	profile := domain.AgentProfile{
		Name:           name,
		MaxParallel:    agent.Concurrency.MaxParallel,
		LockScope:      domain.LockScope(agent.Locks.Scope),
		MaxLinesOfCode: agent.MaxLinesOfCode,
		Priority:       agent.Priority,
	}
	for _, raw := range agent.FilPolicy.Allow {
		if level, ok := domain.ParseFilLevel(raw); ok {
			profile.FilPolicy.Allow = append(profile.FilPolicy.Allow, level)
		}
	}
	for _, raw := range agent.FilPolicy.Block {
		if level, ok := domain.ParseFilLevel(raw); ok {
			profile.FilPolicy.Block = append(profile.FilPolicy.Block, level)
		}
	}
	return profile, nil
}
