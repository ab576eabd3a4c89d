// Package runtime defines the boundary to the external agent runtime.
// A Runtime turns a resolved review request into a stream of typed events;
// the Claude CLI implementation lives in claude.go.
package runtime

import "context"

// Runtime executes review requests against an external agent process.
type Runtime interface {
	// Name returns the runtime identifier.
	Name() string

	// Run starts a review and returns the live event stream. The stream
	// ends when the process exits or ctx is cancelled.
	Run(ctx context.Context, req Request) (Stream, error)
}

// Stream delivers runtime events as they arrive.
type Stream interface {
	// Events returns the event channel. It is closed when the stream ends.
	Events() <-chan Event

	// Err reports the stream failure, if any, after Events is closed.
	Err() error

	// Close stops the underlying process and releases resources.
	Close() error
}

// AgentDef is a resolved sub-agent definition passed to the runtime.
type AgentDef struct {
	Description string   `json:"description"`
	Prompt      string   `json:"prompt"`
	Tools       []string `json:"tools,omitempty"`
}

// ServerDef describes one MCP server process for the runtime to start.
type ServerDef struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Request is the fully resolved input for one review run. All prompt
// references and variables are resolved before a Request is built.
type Request struct {
	Prompt       string
	SystemPrompt string
	Model        string
	AllowedTools []string
	Servers      map[string]ServerDef
	Agents       map[string]AgentDef
	OutputSchema map[string]any
	WorkDir      string
}
