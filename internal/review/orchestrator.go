// Package review coordinates one code-review session: it resolves the
// configured prompts into a runtime request, consumes the event stream,
// accumulates text and metrics, validates structured output, and records
// the session on disk.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/reldo-dev/reldo/internal/config"
	"github.com/reldo-dev/reldo/internal/hooks"
	"github.com/reldo-dev/reldo/internal/logging"
	"github.com/reldo-dev/reldo/internal/prompt"
	"github.com/reldo-dev/reldo/internal/runtime"
	"github.com/reldo-dev/reldo/internal/schema"
	"github.com/reldo-dev/reldo/internal/session"
)

// EventHandler receives runtime events as they are processed. Used by the
// CLI and TUI for live output.
type EventHandler func(runtime.Event)

// Orchestrator runs reviews against a configured runtime.
type Orchestrator struct {
	cfg      *config.Config
	schema   *schema.Schema
	runtime  runtime.Runtime
	recorder *session.Recorder
	hooks    *hooks.Registry
	logger   *logging.Logger
	handler  EventHandler
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRuntime sets the agent runtime.
func WithRuntime(rt runtime.Runtime) Option {
	return func(o *Orchestrator) {
		o.runtime = rt
	}
}

// WithRecorder sets the session recorder.
func WithRecorder(r *session.Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithHooks sets the lifecycle hook registry.
func WithHooks(reg *hooks.Registry) Option {
	return func(o *Orchestrator) {
		o.hooks = reg
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithEventHandler sets an optional callback for live runtime events.
func WithEventHandler(h EventHandler) Option {
	return func(o *Orchestrator) {
		o.handler = h
	}
}

// New creates an orchestrator for cfg. The output schema, when configured,
// is compiled here so an invalid schema fails before any review runs.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:    cfg,
		hooks:  hooks.NewRegistry(),
		logger: logging.Component("review"),
	}
	for _, opt := range opts {
		opt(o)
	}

	if cfg.OutputSchema != nil {
		compiled, err := schema.Compile(cfg.OutputSchema)
		if err != nil {
			return nil, &config.Error{Reason: "invalid output schema", Err: err}
		}
		o.schema = compiled
	}

	if o.runtime == nil {
		o.runtime = runtime.NewClaudeCLI()
	}
	if o.recorder == nil {
		outputDir := cfg.Logging.OutputDir
		if !filepath.IsAbs(outputDir) {
			outputDir = filepath.Join(cfg.CWD, outputDir)
		}
		o.recorder = session.NewRecorder(session.RecorderConfig{
			Enabled:   cfg.Logging.Enabled,
			OutputDir: outputDir,
			Verbose:   cfg.Logging.Verbose,
		})
	}

	return o, nil
}

// Hooks returns the hook registry for programmatic registration.
func (o *Orchestrator) Hooks() *hooks.Registry {
	return o.hooks
}

func (o *Orchestrator) emit(ev runtime.Event) {
	if o.handler != nil {
		o.handler(ev)
	}
}

// buildRequest resolves prompts and assembles the runtime request.
// Resolution failures surface here, before any session record exists.
func (o *Orchestrator) buildRequest(promptText string) (runtime.Request, error) {
	systemPrompt, err := prompt.Resolve(o.cfg.Prompt, o.cfg.CWD)
	if err != nil {
		return runtime.Request{}, err
	}

	req := runtime.Request{
		Prompt:       promptText,
		SystemPrompt: systemPrompt,
		Model:        o.cfg.Model,
		AllowedTools: o.cfg.AllowedTools,
		OutputSchema: o.cfg.OutputSchema,
		WorkDir:      o.cfg.CWD,
	}

	if len(o.cfg.MCPServers) > 0 {
		req.Servers = make(map[string]runtime.ServerDef, len(o.cfg.MCPServers))
		for name, srv := range o.cfg.MCPServers {
			req.Servers[name] = runtime.ServerDef{
				Command: srv.Command,
				Args:    srv.Args,
				Env:     srv.Env,
			}
		}
	}

	if len(o.cfg.Agents) > 0 {
		req.Agents = make(map[string]runtime.AgentDef, len(o.cfg.Agents))
		for name, agent := range o.cfg.Agents {
			resolved, err := prompt.Resolve(agent.Prompt, o.cfg.CWD)
			if err != nil {
				return runtime.Request{}, err
			}
			req.Agents[name] = runtime.AgentDef{
				Description: agent.Description,
				Prompt:      resolved,
				Tools:       agent.Tools,
			}
		}
	}

	return req, nil
}

// Review runs one review session for promptText.
func (o *Orchestrator) Review(ctx context.Context, promptText string) (*Result, error) {
	if promptText == "" {
		return nil, &config.Error{Reason: "review prompt is empty"}
	}

	req, err := o.buildRequest(promptText)
	if err != nil {
		return nil, err
	}

	handle, err := o.recorder.Begin(o.cfg.Snapshot(), promptText)
	if err != nil {
		return nil, fmt.Errorf("starting session record: %w", err)
	}
	o.logger.InfoCtx("session started", map[string]any{"session": handle.ID()})

	// Stop fires once the review finishes, whatever the outcome. The defer
	// captures the caller's context so a timed-out review still dispatches.
	defer o.dispatchStop(ctx)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout())
	defer cancel()

	stream, err := o.runtime.Run(ctx, req)
	if err != nil {
		rerr := &RuntimeError{Runtime: o.runtime.Name(), Err: err}
		return nil, o.fail(handle, rerr, nil)
	}
	defer func() { _ = stream.Close() }()

	result, err := o.consume(ctx, stream, handle)
	if err != nil {
		return nil, o.fail(handle, err, result)
	}

	if o.schema != nil {
		if err := o.validateStructured(result); err != nil {
			return nil, o.fail(handle, err, result)
		}
	}

	if err := o.recorder.Complete(handle, result); err != nil {
		o.logger.Err(err).Str("session", handle.ID()).Msg("recording result")
	}
	o.logger.InfoCtx("session completed", map[string]any{
		"session":      handle.ID(),
		"total_tokens": result.TotalTokens,
		"duration_ms":  result.DurationMS,
	})

	return result, nil
}

// consume drains the event stream into a Result. The returned Result is
// partial when an error is also returned.
func (o *Orchestrator) consume(ctx context.Context, stream runtime.Stream, handle *session.Handle) (*Result, error) {
	result := &Result{}
	var accumulated []byte
	var structured json.RawMessage
	resultOverride := false

	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			_ = stream.Close()
			result.Text = string(accumulated)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return result, &TimeoutError{Timeout: o.cfg.Timeout()}
			}
			return result, ctx.Err()

		case ev, ok := <-events:
			if !ok {
				if !resultOverride {
					result.Text = string(accumulated)
				}
				if structured != nil {
					result.rawStructured = structured
				}
				if err := stream.Err(); err != nil {
					if errors.Is(ctx.Err(), context.DeadlineExceeded) {
						return result, &TimeoutError{Timeout: o.cfg.Timeout()}
					}
					return result, &RuntimeError{Runtime: o.runtime.Name(), Err: err}
				}
				return result, nil
			}

			if len(ev.Raw) > 0 {
				o.recorder.AppendTranscript(handle, string(ev.Raw))
			}
			o.emit(ev)

			switch ev.Kind {
			case runtime.KindText:
				accumulated = append(accumulated, ev.Text...)

			case runtime.KindToolUse:
				if err := o.dispatchToolHook(ctx, hooks.PreToolUse, ev); err != nil {
					_ = stream.Close()
					result.Text = string(accumulated)
					return result, err
				}

			case runtime.KindToolResult:
				if err := o.dispatchToolHook(ctx, hooks.PostToolUse, ev); err != nil {
					_ = stream.Close()
					result.Text = string(accumulated)
					return result, err
				}

			case runtime.KindUsage:
				result.InputTokens = ev.InputTokens
				result.OutputTokens = ev.OutputTokens
				result.TotalTokens = ev.InputTokens + ev.OutputTokens
				result.TotalCostUSD = ev.TotalCostUSD
				result.DurationMS = ev.DurationMS
				// The terminal result text, when supplied, is the
				// authoritative review text.
				if ev.HasResult && ev.ResultText != "" {
					result.Text = ev.ResultText
					resultOverride = true
				}

			case runtime.KindStructured:
				structured = ev.Payload
			}
		}
	}
}

// dispatchToolHook runs the hooks for one tool event. A Block decision or
// handler error aborts the review.
func (o *Orchestrator) dispatchToolHook(ctx context.Context, point hooks.Point, ev runtime.Event) error {
	res, err := o.hooks.Dispatch(ctx, hooks.Event{
		Point:     point,
		ToolName:  ev.ToolName,
		ToolInput: ev.ToolInput,
		ToolText:  ev.ToolText,
	})
	if err != nil {
		return fmt.Errorf("%s hook: %w", point, err)
	}
	if res.Decision == hooks.Block {
		return &HookBlockedError{ToolName: ev.ToolName, Reason: res.Reason}
	}
	return nil
}

// dispatchStop notifies Stop handlers that the review finished. Runs for
// every review that reached a session record, pass or fail.
func (o *Orchestrator) dispatchStop(ctx context.Context) {
	if _, err := o.hooks.Dispatch(ctx, hooks.Event{Point: hooks.Stop}); err != nil {
		o.logger.Err(err).Msg("stop hook")
	}
}

// validateStructured checks the structured payload against the schema and
// attaches it to the result.
func (o *Orchestrator) validateStructured(result *Result) error {
	payload := result.rawStructured
	if payload == nil {
		payload = extractJSON([]byte(result.Text))
	}
	if payload == nil {
		return &StructuredOutputError{
			Partial: result,
			Err:     errors.New("no structured output in runtime response"),
		}
	}

	doc, err := o.schema.Validate(payload)
	if err != nil {
		return &StructuredOutputError{Partial: result, Err: err}
	}
	result.StructuredOutput = doc
	return nil
}

// fail finalizes the session as failed and wraps err with the session id.
func (o *Orchestrator) fail(handle *session.Handle, cause error, partial *Result) error {
	var failErr error
	if partial != nil {
		failErr = o.recorder.Fail(handle, cause, partial)
	} else {
		failErr = o.recorder.Fail(handle, cause, nil)
	}
	if failErr != nil {
		o.logger.Err(failErr).Str("session", handle.ID()).Msg("recording failure")
	}
	return &SessionError{SessionID: handle.ID(), Err: cause}
}
