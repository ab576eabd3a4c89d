// Package ui provides the live review view for `reldo review --tui`.
// Uses Bubbletea to show the streaming agent output, tool activity, and
// the final verdict with metrics.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/reldo-dev/reldo/internal/review"
	"github.com/reldo-dev/reldo/internal/runtime"
)

// Outcome is the terminal state delivered to the view when the review
// goroutine finishes.
type Outcome struct {
	Result *review.Result
	Err    error
}

// Styles holds the lipgloss styles for the review view.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Muted  lipgloss.Style
	Tool   lipgloss.Style
	Pass   lipgloss.Style
	Fail   lipgloss.Style
	Errors lipgloss.Style
}

func newStyles() *Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#666", Dark: "#888"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	green := lipgloss.AdaptiveColor{Light: "#22863a", Dark: "#3fb950"}
	red := lipgloss.AdaptiveColor{Light: "#cb2431", Dark: "#f85149"}
	blue := lipgloss.AdaptiveColor{Light: "#0366d6", Dark: "#58a6ff"}

	return &Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(highlight),
		Label:  lipgloss.NewStyle().Foreground(subtle),
		Muted:  lipgloss.NewStyle().Foreground(subtle),
		Tool:   lipgloss.NewStyle().Foreground(blue),
		Pass:   lipgloss.NewStyle().Foreground(green).Bold(true),
		Fail:   lipgloss.NewStyle().Foreground(red).Bold(true),
		Errors: lipgloss.NewStyle().Foreground(red),
	}
}

type eventMsg runtime.Event

type outcomeMsg Outcome

// Model is the bubbletea model for a running review.
type Model struct {
	prompt  string
	events  <-chan runtime.Event
	outcome <-chan Outcome

	spinner  spinner.Model
	styles   *Styles
	width    int
	height   int
	started  time.Time
	toolLine string
	lines    []string
	partial  string

	done    bool
	final   Outcome
	elapsed time.Duration
}

// New creates the review view. events carries runtime events from the
// orchestrator's event handler; outcome delivers the terminal state.
func New(prompt string, events <-chan runtime.Event, outcome <-chan Outcome) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		prompt:  prompt,
		events:  events,
		outcome: outcome,
		spinner: sp,
		styles:  newStyles(),
		width:   80,
		height:  24,
		started: time.Now(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitEvent(), m.waitOutcome())
}

func (m Model) waitEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m Model) waitOutcome() tea.Cmd {
	return func() tea.Msg {
		return outcomeMsg(<-m.outcome)
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(runtime.Event(msg))
		return m, m.waitEvent()

	case outcomeMsg:
		m.done = true
		m.final = Outcome(msg)
		m.elapsed = time.Since(m.started)
		return m, tea.Quit
	}

	return m, nil
}

// apply folds one runtime event into the display state.
func (m *Model) apply(ev runtime.Event) {
	switch ev.Kind {
	case runtime.KindText:
		m.partial += ev.Text
		for {
			idx := strings.IndexByte(m.partial, '\n')
			if idx < 0 {
				break
			}
			m.lines = append(m.lines, m.partial[:idx])
			m.partial = m.partial[idx+1:]
		}
	case runtime.KindToolUse:
		m.toolLine = ev.ToolName
	case runtime.KindToolResult:
		m.toolLine = ""
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("reldo review"))
	b.WriteString("  ")
	b.WriteString(m.styles.Muted.Render(truncate(m.prompt, m.width-16)))
	b.WriteString("\n\n")

	if m.done {
		b.WriteString(m.renderSummary())
		return b.String()
	}

	b.WriteString(m.spinner.View())
	b.WriteString(" reviewing")
	if m.toolLine != "" {
		b.WriteString("  ")
		b.WriteString(m.styles.Tool.Render("[" + m.toolLine + "]"))
	}
	b.WriteString("\n\n")

	visible := m.visibleLines()
	for _, line := range visible {
		b.WriteString(truncate(line, m.width-2))
		b.WriteString("\n")
	}
	if m.partial != "" {
		b.WriteString(truncate(m.partial, m.width-2))
		b.WriteString("\n")
	}

	return b.String()
}

// visibleLines returns the tail of the streamed text that fits on screen.
func (m Model) visibleLines() []string {
	budget := m.height - 6
	if budget < 3 {
		budget = 3
	}
	if len(m.lines) <= budget {
		return m.lines
	}
	return m.lines[len(m.lines)-budget:]
}

func (m Model) renderSummary() string {
	var b strings.Builder

	if m.final.Err != nil {
		b.WriteString(m.styles.Fail.Render("review failed"))
		b.WriteString("\n")
		b.WriteString(m.styles.Errors.Render(m.final.Err.Error()))
		b.WriteString("\n")
		return b.String()
	}

	res := m.final.Result
	if res.Passed() {
		b.WriteString(m.styles.Pass.Render("PASS"))
	} else {
		b.WriteString(m.styles.Fail.Render("FAIL"))
	}
	b.WriteString("\n\n")

	b.WriteString(res.Text)
	if !strings.HasSuffix(res.Text, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.styles.Label.Render("tokens: "))
	b.WriteString(fmt.Sprintf("%d", res.TotalTokens))
	b.WriteString(m.styles.Label.Render("  cost: "))
	b.WriteString(fmt.Sprintf("$%.4f", res.TotalCostUSD))
	b.WriteString(m.styles.Label.Render("  duration: "))
	b.WriteString(formatDuration(time.Duration(res.DurationMS) * time.Millisecond))
	b.WriteString("\n")

	return b.String()
}

// Run drives the review view to completion and returns the outcome.
// Quitting the view before the review finishes cancels the review; the
// session is finalized as failed and its outcome returned.
func Run(prompt string, events <-chan runtime.Event, outcome <-chan Outcome, cancel func()) (Outcome, error) {
	model := New(prompt, events, outcome)
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return Outcome{}, fmt.Errorf("running review view: %w", err)
	}
	m, ok := final.(Model)
	if !ok || !m.done {
		return drainOutcome(events, outcome, cancel), nil
	}
	return m.final, nil
}

// drainOutcome winds down a review after an early quit: cancel stops the
// stream, and events is consumed until the review goroutine closes it.
// Without the drain the goroutine can block sending into a full events
// buffer and never deliver the outcome.
func drainOutcome(events <-chan runtime.Event, outcome <-chan Outcome, cancel func()) Outcome {
	if cancel != nil {
		cancel()
	}
	for range events {
	}
	return <-outcome
}

func truncate(s string, max int) string {
	if max < 4 {
		max = 4
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
