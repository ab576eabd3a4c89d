package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/reldo-dev/reldo/internal/review"
	"github.com/reldo-dev/reldo/internal/runtime"
)

func newTestModel() Model {
	return New("review the diff", make(chan runtime.Event), make(chan Outcome))
}

func TestApplyTextBuffersLines(t *testing.T) {
	m := newTestModel()
	m.apply(runtime.Event{Kind: runtime.KindText, Text: "first line\nsecond "})
	m.apply(runtime.Event{Kind: runtime.KindText, Text: "half\ntrailing"})

	if len(m.lines) != 2 {
		t.Fatalf("lines = %v", m.lines)
	}
	if m.lines[0] != "first line" || m.lines[1] != "second half" {
		t.Errorf("lines = %v", m.lines)
	}
	if m.partial != "trailing" {
		t.Errorf("partial = %q", m.partial)
	}
}

func TestApplyToolEvents(t *testing.T) {
	m := newTestModel()
	m.apply(runtime.Event{Kind: runtime.KindToolUse, ToolName: "Grep"})
	if m.toolLine != "Grep" {
		t.Errorf("toolLine = %q", m.toolLine)
	}
	m.apply(runtime.Event{Kind: runtime.KindToolResult})
	if m.toolLine != "" {
		t.Errorf("toolLine = %q after result", m.toolLine)
	}
}

func TestUpdateOutcomeQuits(t *testing.T) {
	m := newTestModel()
	updated, cmd := m.Update(outcomeMsg(Outcome{Result: &review.Result{Text: "STATUS: PASS"}}))
	model := updated.(Model)
	if !model.done {
		t.Error("model should be done after outcome")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if cmd() != tea.Quit() {
		t.Error("outcome should quit the program")
	}
}

func TestViewStreaming(t *testing.T) {
	m := newTestModel()
	m.apply(runtime.Event{Kind: runtime.KindText, Text: "checking error handling\n"})
	m.apply(runtime.Event{Kind: runtime.KindToolUse, ToolName: "Read"})

	view := m.View()
	if !strings.Contains(view, "reviewing") {
		t.Error("view missing progress indicator")
	}
	if !strings.Contains(view, "checking error handling") {
		t.Error("view missing streamed text")
	}
	if !strings.Contains(view, "Read") {
		t.Error("view missing tool activity")
	}
}

func TestViewSummaryPass(t *testing.T) {
	m := newTestModel()
	m.done = true
	m.final = Outcome{Result: &review.Result{
		Text:         "STATUS: PASS",
		TotalTokens:  1540,
		TotalCostUSD: 0.0214,
		DurationMS:   45210,
	}}

	view := m.View()
	if !strings.Contains(view, "PASS") {
		t.Error("summary missing verdict")
	}
	if !strings.Contains(view, "1540") {
		t.Error("summary missing token count")
	}
	if !strings.Contains(view, "$0.0214") {
		t.Error("summary missing cost")
	}
}

func TestViewSummaryError(t *testing.T) {
	m := newTestModel()
	m.done = true
	m.final = Outcome{Err: errors.New("review timed out after 3m0s")}

	view := m.View()
	if !strings.Contains(view, "review failed") {
		t.Error("summary missing failure marker")
	}
	if !strings.Contains(view, "timed out") {
		t.Error("summary missing error detail")
	}
}

func TestDrainOutcomeUnblocksReview(t *testing.T) {
	events := make(chan runtime.Event, 64)
	outcome := make(chan Outcome, 1)
	cancelled := make(chan struct{})

	// Imitate the review goroutine: the event handler does plain blocking
	// sends, so without a drain it stalls once the buffer fills and the
	// outcome is never delivered.
	go func() {
		for i := 0; i < 200; i++ {
			events <- runtime.Event{Kind: runtime.KindText, Text: "chunk\n"}
		}
		close(events)
		outcome <- Outcome{Err: errors.New("review cancelled")}
	}()

	done := make(chan Outcome, 1)
	go func() {
		done <- drainOutcome(events, outcome, func() { close(cancelled) })
	}()

	select {
	case out := <-done:
		if out.Err == nil {
			t.Error("outcome should carry the cancellation error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("drainOutcome left the review goroutine blocked")
	}

	select {
	case <-cancelled:
	default:
		t.Error("early quit should cancel the review")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 80); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	got := truncate(strings.Repeat("x", 100), 10)
	if len(got) != 10 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{45200 * time.Millisecond, "45.2s"},
		{3*time.Minute + 5*time.Second, "3m05s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
