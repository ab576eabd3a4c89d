// claude.go implements Runtime for the Claude Code CLI, spawned with
// --output-format stream-json and decoded one JSON object per stdout line.
package runtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/reldo-dev/reldo/internal/logging"
)

// ClaudeCLI runs reviews through the claude binary.
type ClaudeCLI struct {
	binaryPath string
	logger     *logging.Logger
}

// ClaudeOption configures a ClaudeCLI.
type ClaudeOption func(*ClaudeCLI)

// WithBinaryPath sets a custom path to the claude binary.
func WithBinaryPath(path string) ClaudeOption {
	return func(c *ClaudeCLI) {
		c.binaryPath = path
	}
}

// WithLogger sets the runtime logger.
func WithLogger(l *logging.Logger) ClaudeOption {
	return func(c *ClaudeCLI) {
		c.logger = l
	}
}

// NewClaudeCLI creates the Claude CLI runtime.
func NewClaudeCLI(opts ...ClaudeOption) *ClaudeCLI {
	c := &ClaudeCLI{
		binaryPath: "claude",
		logger:     logging.Component("runtime"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns "claude".
func (c *ClaudeCLI) Name() string {
	return "claude"
}

// Available checks whether the claude binary is on PATH.
func (c *ClaudeCLI) Available() bool {
	_, err := exec.LookPath(c.binaryPath)
	return err == nil
}

// Run spawns the claude process and returns its event stream.
func (c *ClaudeCLI) Run(ctx context.Context, req Request) (Stream, error) {
	args, err := buildArgs(req)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, c.binaryPath, args...)
	if req.WorkDir != "" {
		cmd.Dir = req.WorkDir
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", c.binaryPath, err)
	}

	c.logger.DebugCtx("runtime started", map[string]any{
		"binary":  c.binaryPath,
		"workdir": req.WorkDir,
		"model":   req.Model,
	})

	wait := func() error {
		if err := cmd.Wait(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return fmt.Errorf("%s exited: %w: %s", c.binaryPath, err, msg)
			}
			return fmt.Errorf("%s exited: %w", c.binaryPath, err)
		}
		return nil
	}
	kill := func() error {
		if cmd.Process != nil {
			return cmd.Process.Kill()
		}
		return nil
	}

	return newLineStream(stdout, wait, kill), nil
}

// buildArgs assembles the claude CLI argument list for a request.
func buildArgs(req Request) ([]string, error) {
	args := []string{"-p", req.Prompt, "--verbose", "--output-format", "stream-json"}

	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.AllowedTools, ","))
	}
	if req.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", req.SystemPrompt)
	}
	if len(req.Servers) > 0 {
		doc, err := json.Marshal(map[string]any{"mcpServers": req.Servers})
		if err != nil {
			return nil, fmt.Errorf("encoding mcp servers: %w", err)
		}
		args = append(args, "--mcp-config", string(doc))
	}
	if len(req.Agents) > 0 {
		doc, err := json.Marshal(req.Agents)
		if err != nil {
			return nil, fmt.Errorf("encoding agents: %w", err)
		}
		args = append(args, "--agents", string(doc))
	}

	return args, nil
}

// lineStream scans a reader line by line and emits decoded events.
type lineStream struct {
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	kill      func() error

	mu  sync.Mutex
	err error
}

// newLineStream starts scanning rc. wait is called after the reader is
// drained to collect the process exit status; kill stops the process early.
func newLineStream(rc io.ReadCloser, wait func() error, kill func() error) *lineStream {
	s := &lineStream{
		events: make(chan Event),
		done:   make(chan struct{}),
		kill:   kill,
	}

	go func() {
		defer close(s.events)

		scanner := bufio.NewScanner(rc)
		// Handle large lines: a single assistant message can be very long.
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 4*1024*1024)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			for _, ev := range decodeLine(line) {
				select {
				case s.events <- ev:
				case <-s.done:
					_ = rc.Close()
					if wait != nil {
						_ = wait()
					}
					return
				}
			}
		}

		scanErr := scanner.Err()
		var waitErr error
		if wait != nil {
			waitErr = wait()
		}

		s.mu.Lock()
		if waitErr != nil {
			s.err = waitErr
		} else if scanErr != nil {
			s.err = fmt.Errorf("reading runtime output: %w", scanErr)
		}
		s.mu.Unlock()
	}()

	return s
}

func (s *lineStream) Events() <-chan Event {
	return s.events
}

func (s *lineStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *lineStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.kill != nil {
			err = s.kill()
		}
	})
	return err
}

// Wire format of claude --output-format stream-json.
type wireMessage struct {
	Type             string          `json:"type"`
	Message          *wirePayload    `json:"message"`
	Result           *string         `json:"result"`
	StructuredOutput json.RawMessage `json:"structured_output"`
	Usage            *wireUsage      `json:"usage"`
	TotalCostUSD     float64         `json:"total_cost_usd"`
	DurationMS       int64           `json:"duration_ms"`
}

type wirePayload struct {
	Content []wireBlock `json:"content"`
}

type wireBlock struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Name    string          `json:"name"`
	Input   json.RawMessage `json:"input"`
	Content json.RawMessage `json:"content"`
}

type wireUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// decodeLine turns one stream line into zero or more events. Malformed or
// unrecognized lines become Unknown events, never errors.
func decodeLine(line []byte) []Event {
	raw := make([]byte, len(line))
	copy(raw, line)

	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return []Event{{Kind: KindUnknown, Raw: raw}}
	}

	switch msg.Type {
	case "assistant":
		return decodeAssistant(&msg, raw)
	case "user":
		return decodeUser(&msg, raw)
	case "result":
		return decodeResult(&msg, raw)
	default:
		return []Event{{Kind: KindUnknown, Raw: raw}}
	}
}

func decodeAssistant(msg *wireMessage, raw []byte) []Event {
	if msg.Message == nil {
		return []Event{{Kind: KindUnknown, Raw: raw}}
	}

	var events []Event
	for _, block := range msg.Message.Content {
		switch block.Type {
		case "text":
			events = append(events, Event{Kind: KindText, Text: block.Text, Raw: raw})
		case "tool_use":
			events = append(events, Event{
				Kind:      KindToolUse,
				ToolName:  block.Name,
				ToolInput: block.Input,
				Raw:       raw,
			})
		}
	}
	return events
}

func decodeUser(msg *wireMessage, raw []byte) []Event {
	if msg.Message == nil {
		return nil
	}

	var events []Event
	for _, block := range msg.Message.Content {
		if block.Type != "tool_result" {
			continue
		}
		events = append(events, Event{
			Kind:     KindToolResult,
			ToolText: blockText(block.Content),
			Raw:      raw,
		})
	}
	return events
}

func decodeResult(msg *wireMessage, raw []byte) []Event {
	var events []Event

	if len(msg.StructuredOutput) > 0 {
		events = append(events, Event{
			Kind:    KindStructured,
			Payload: msg.StructuredOutput,
			Raw:     raw,
		})
	}

	usage := Event{
		Kind:         KindUsage,
		TotalCostUSD: msg.TotalCostUSD,
		DurationMS:   msg.DurationMS,
		Raw:          raw,
	}
	if msg.Usage != nil {
		usage.InputTokens = msg.Usage.InputTokens
		usage.OutputTokens = msg.Usage.OutputTokens
	}
	if msg.Result != nil {
		usage.ResultText = *msg.Result
		usage.HasResult = true
	}

	return append(events, usage)
}

// blockText extracts readable text from a tool_result content value,
// which may be a plain string or a list of text blocks.
func blockText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}

	var blocks []wireBlock
	if err := json.Unmarshal(content, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}

	return ""
}
