package review

import (
	"fmt"
	"time"
)

// RuntimeError reports a failure starting or running the agent runtime.
type RuntimeError struct {
	Runtime string
	Err     error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime %s: %v", e.Runtime, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// TimeoutError reports that the review exceeded its configured timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("review timed out after %s", e.Timeout)
}

// StructuredOutputError reports that the runtime's output did not satisfy
// the configured schema. Partial carries the accumulated text and metrics.
type StructuredOutputError struct {
	Partial *Result
	Err     error
}

func (e *StructuredOutputError) Error() string {
	return fmt.Sprintf("structured output: %v", e.Err)
}

func (e *StructuredOutputError) Unwrap() error { return e.Err }

// SessionError correlates a review failure with its session id.
type SessionError struct {
	SessionID string
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.SessionID, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// HookBlockedError reports that a registered hook blocked a tool call.
type HookBlockedError struct {
	ToolName string
	Reason   string
}

func (e *HookBlockedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("hook blocked tool %s", e.ToolName)
	}
	return fmt.Sprintf("hook blocked tool %s: %s", e.ToolName, e.Reason)
}
