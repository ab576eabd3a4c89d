// Package hooks provides an in-process registry of lifecycle handlers
// invoked around tool use and agent stops during a review. Handlers are
// registered programmatically; there is no config-file equivalent.
package hooks

import (
	"context"
	"encoding/json"
	"sync"
)

// Point names a lifecycle position a handler can attach to.
type Point string

const (
	PreToolUse   Point = "PreToolUse"
	PostToolUse  Point = "PostToolUse"
	SubagentStop Point = "SubagentStop"
	Stop         Point = "Stop"
)

// Decision is a handler's verdict on the observed event.
type Decision int

const (
	Allow Decision = iota
	Block
)

// Event describes what triggered the hook dispatch.
type Event struct {
	Point     Point
	ToolName  string
	ToolInput json.RawMessage
	ToolText  string
	AgentName string
}

// Result is a handler's response.
type Result struct {
	Decision      Decision
	Reason        string
	ModifiedInput json.RawMessage
	InjectMessage string
}

// Handler processes one hook event.
type Handler interface {
	Handle(ctx context.Context, ev Event) (Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, ev Event) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, ev Event) (Result, error) {
	return f(ctx, ev)
}

// Registry holds ordered handlers per point. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Point][]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Point][]Handler)}
}

// Register appends a handler at the given point. Handlers run in
// registration order.
func (r *Registry) Register(p Point, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[p] = append(r.handlers[p], h)
}

// RegisterFunc appends a function handler at the given point.
func (r *Registry) RegisterFunc(p Point, f HandlerFunc) {
	r.Register(p, f)
}

// Len reports how many handlers are registered at a point.
func (r *Registry) Len(p Point) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[p])
}

// Dispatch runs all handlers at ev.Point in order. The first Block
// decision short-circuits and is returned; handler errors propagate
// immediately. With no handlers (or all allowing), the result is Allow.
func (r *Registry) Dispatch(ctx context.Context, ev Event) (Result, error) {
	r.mu.RLock()
	handlers := r.handlers[ev.Point]
	r.mu.RUnlock()

	combined := Result{Decision: Allow}
	for _, h := range handlers {
		res, err := h.Handle(ctx, ev)
		if err != nil {
			return res, err
		}
		if res.Decision == Block {
			return res, nil
		}
		if res.ModifiedInput != nil {
			combined.ModifiedInput = res.ModifiedInput
		}
		if res.InjectMessage != "" {
			combined.InjectMessage = res.InjectMessage
		}
	}
	return combined, nil
}
