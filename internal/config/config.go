// Package config loads and validates reldo review configuration.
// Settings come from a JSON document (default .reldo/settings.json),
// merged field-by-field with built-in defaults and resolved against the
// working directory and environment before use.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/reldo-dev/reldo/internal/schema"
	"github.com/reldo-dev/reldo/internal/vars"
)

// Error reports a malformed, missing, or unresolvable configuration.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Reason, e.Err)
	}
	return "config: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// ServerConfig describes how to start one external MCP service.
type ServerConfig struct {
	Command string            `json:"command" mapstructure:"command"`
	Args    []string          `json:"args,omitempty" mapstructure:"args"`
	Env     map[string]string `json:"env,omitempty" mapstructure:"env"`
}

// AgentConfig defines a named review sub-agent.
type AgentConfig struct {
	Description string   `json:"description" mapstructure:"description"`
	Prompt      string   `json:"prompt" mapstructure:"prompt"`
	Tools       []string `json:"tools,omitempty" mapstructure:"tools"`
}

// LoggingConfig controls session recording.
type LoggingConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	OutputDir string `json:"output_dir" mapstructure:"output_dir"`
	Verbose   bool   `json:"verbose" mapstructure:"verbose"`
}

// Config is the immutable review configuration. Build one via Load,
// LoadFile, FromMap, or Default; do not mutate it afterwards.
type Config struct {
	Prompt         string                  `json:"prompt" mapstructure:"prompt"`
	AllowedTools   []string                `json:"allowed_tools" mapstructure:"allowed_tools"`
	MCPServers     map[string]ServerConfig `json:"mcp_servers,omitempty" mapstructure:"-"`
	Agents         map[string]AgentConfig  `json:"agents,omitempty" mapstructure:"-"`
	OutputSchema   map[string]any          `json:"output_schema,omitempty" mapstructure:"-"`
	CWD            string                  `json:"cwd" mapstructure:"cwd"`
	TimeoutSeconds int                     `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Model          string                  `json:"model" mapstructure:"model"`
	Logging        LoggingConfig           `json:"logging" mapstructure:"logging"`
}

// Timeout returns the configured review timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Snapshot returns the configuration as a plain map for session records.
func (c *Config) Snapshot() map[string]any {
	raw, err := json.Marshal(c)
	if err != nil {
		return map[string]any{"prompt": c.Prompt}
	}
	var snap map[string]any
	if err := json.Unmarshal(raw, &snap); err != nil {
		return map[string]any{"prompt": c.Prompt}
	}
	return snap
}

// setDefaults registers built-in defaults for every optional field.
func setDefaults(v *viper.Viper) {
	v.SetDefault("allowed_tools", DefaultAllowedTools())
	v.SetDefault("timeout_seconds", DefaultTimeoutSeconds)
	v.SetDefault("model", DefaultModel)
	v.SetDefault("logging.enabled", true)
	v.SetDefault("logging.output_dir", DefaultOutputDir)
	v.SetDefault("logging.verbose", false)
}

// caseSensitiveSections are decoded from the raw document rather than
// through viper, which folds map keys to lower case. Agent names, env
// variable names, and schema property names must keep their case.
type caseSensitiveSections struct {
	MCPServers   map[string]ServerConfig `json:"mcp_servers"`
	Agents       map[string]AgentConfig  `json:"agents"`
	OutputSchema map[string]any          `json:"output_schema"`
}

// parse decodes a settings document into an unvalidated Config.
func parse(data []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, &Error{Reason: "invalid settings document", Err: err}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, &Error{Reason: "invalid settings document", Err: err}
	}

	var sections caseSensitiveSections
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, &Error{Reason: "invalid settings document", Err: err}
	}
	c.MCPServers = sections.MCPServers
	c.Agents = sections.Agents
	c.OutputSchema = sections.OutputSchema

	return &c, nil
}

// finalize applies the working-directory override, variable substitution,
// and validation. It is the single exit point for every construction path.
func finalize(c *Config, cwdOverride string) (*Config, error) {
	if c.Prompt == "" {
		return nil, errorf("settings must include 'prompt'")
	}
	if c.TimeoutSeconds <= 0 {
		return nil, errorf("timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}

	if cwdOverride != "" {
		c.CWD = cwdOverride
	}
	if c.CWD == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, &Error{Reason: "determining working directory", Err: err}
		}
		c.CWD = cwd
	}

	// The cwd field itself may carry ${env:...} markers; ${cwd} inside it
	// resolves against the process working directory.
	procCwd, _ := os.Getwd()
	resolved, err := vars.Substitute(c.CWD, vars.OSContext(procCwd))
	if err != nil {
		return nil, &Error{Reason: "substituting cwd", Err: err}
	}
	if resolved, err = filepath.Abs(resolved); err != nil {
		return nil, &Error{Reason: "resolving cwd", Err: err}
	}
	c.CWD = resolved

	info, err := os.Stat(c.CWD)
	if err != nil {
		return nil, errorf("working directory does not exist: %s", c.CWD)
	}
	if !info.IsDir() {
		return nil, errorf("working directory is not a directory: %s", c.CWD)
	}

	ctx := vars.OSContext(c.CWD)
	if err := substituteServers(c, ctx); err != nil {
		return nil, err
	}
	if err := substituteAgents(c, ctx); err != nil {
		return nil, err
	}

	if c.AllowedTools == nil {
		c.AllowedTools = DefaultAllowedTools()
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Logging.OutputDir == "" {
		c.Logging.OutputDir = DefaultOutputDir
	}

	if c.OutputSchema != nil {
		if err := schema.CheckShape(c.OutputSchema); err != nil {
			return nil, &Error{Reason: "invalid output schema", Err: err}
		}
	}

	return c, nil
}

// substituteServers resolves markers in every server descriptor.
// The top-level prompt field is deliberately not substituted: file-path
// prompts are resolved later by the prompt package.
func substituteServers(c *Config, ctx vars.Context) error {
	for name, srv := range c.MCPServers {
		cmd, err := vars.Substitute(srv.Command, ctx)
		if err != nil {
			return &Error{Reason: fmt.Sprintf("substituting mcp server %q", name), Err: err}
		}
		args, err := vars.SubstituteSlice(srv.Args, ctx)
		if err != nil {
			return &Error{Reason: fmt.Sprintf("substituting mcp server %q", name), Err: err}
		}
		env, err := vars.SubstituteMap(srv.Env, ctx)
		if err != nil {
			return &Error{Reason: fmt.Sprintf("substituting mcp server %q", name), Err: err}
		}
		c.MCPServers[name] = ServerConfig{Command: cmd, Args: args, Env: env}
	}
	return nil
}

// substituteAgents resolves markers in every sub-agent definition.
func substituteAgents(c *Config, ctx vars.Context) error {
	for name, agent := range c.Agents {
		desc, err := vars.Substitute(agent.Description, ctx)
		if err != nil {
			return &Error{Reason: fmt.Sprintf("substituting agent %q", name), Err: err}
		}
		promptRef, err := vars.Substitute(agent.Prompt, ctx)
		if err != nil {
			return &Error{Reason: fmt.Sprintf("substituting agent %q", name), Err: err}
		}
		tools, err := vars.SubstituteSlice(agent.Tools, ctx)
		if err != nil {
			return &Error{Reason: fmt.Sprintf("substituting agent %q", name), Err: err}
		}
		c.Agents[name] = AgentConfig{Description: desc, Prompt: promptRef, Tools: tools}
	}
	return nil
}

// LoadFile loads and validates a settings document from path.
func LoadFile(path string) (*Config, error) {
	return loadFileWithCwd(path, "")
}

func loadFileWithCwd(path, cwdOverride string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errorf("config file not found: %s", path)
		}
		return nil, &Error{Reason: fmt.Sprintf("reading config file %s", path), Err: err}
	}
	c, err := parse(data)
	if err != nil {
		return nil, err
	}
	return finalize(c, cwdOverride)
}

// FromMap builds a Config from an in-memory document, applying the same
// defaulting, substitution, and validation as LoadFile.
func FromMap(doc map[string]any) (*Config, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, &Error{Reason: "encoding settings document", Err: err}
	}
	c, err := parse(data)
	if err != nil {
		return nil, err
	}
	return finalize(c, "")
}

// Default returns the built-in configuration for cwd. The orchestrator
// prompt comes from .reldo/orchestrator.md when present, otherwise the
// embedded default.
func Default(cwd string) (*Config, error) {
	promptRef := DefaultOrchestratorPrompt
	if _, err := os.Stat(filepath.Join(cwd, OrchestratorPath)); err == nil {
		promptRef = OrchestratorPath
	}

	c := &Config{
		Prompt:         promptRef,
		AllowedTools:   DefaultAllowedTools(),
		CWD:            cwd,
		TimeoutSeconds: DefaultTimeoutSeconds,
		Model:          DefaultModel,
		Logging: LoggingConfig{
			Enabled:   true,
			OutputDir: DefaultOutputDir,
		},
	}
	return finalize(c, "")
}

// Load resolves configuration for a review command invocation.
// Resolution order: explicit configPath (relative paths join cwdOverride),
// then .reldo/settings.json under the working directory, then built-ins.
// cwdOverride, when set, replaces the document's cwd field.
func Load(configPath, cwdOverride string) (*Config, error) {
	if configPath != "" {
		if !filepath.IsAbs(configPath) && cwdOverride != "" {
			configPath = filepath.Join(cwdOverride, configPath)
		}
		return loadFileWithCwd(configPath, cwdOverride)
	}

	base := cwdOverride
	if base == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, &Error{Reason: "determining working directory", Err: err}
		}
		base = cwd
	}

	settings := filepath.Join(base, SettingsPath)
	if _, err := os.Stat(settings); err == nil {
		return loadFileWithCwd(settings, base)
	}

	return Default(base)
}
