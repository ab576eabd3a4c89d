package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/reldo-dev/reldo/internal/config"
	"github.com/reldo-dev/reldo/internal/history"
	"github.com/reldo-dev/reldo/internal/logging"
	"github.com/reldo-dev/reldo/internal/review"
	"github.com/reldo-dev/reldo/internal/runtime"
	"github.com/reldo-dev/reldo/internal/ui"
)

var reviewCmd = &cobra.Command{
	Use:   "review PROMPT",
	Short: "Run one review session",
	Long: `Run a single review session with the configured orchestrator.

PROMPT is the review instruction: an inline string, a path to a .md or
.txt file, or "-" to read the instruction from stdin.

Examples:
  reldo review "review the changes in internal/server"
  reldo review prompts/release-check.md
  git diff | reldo review -`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().Bool("json", false, "Print the result as JSON")
	reviewCmd.Flags().Bool("exit-code", false, "Exit 1 when the review verdict is FAIL")
	reviewCmd.Flags().Bool("no-log", false, "Disable session recording for this run")
	reviewCmd.Flags().Bool("tui", false, "Show the live review view")
	reviewCmd.Flags().Int("timeout", 0, "Override the review timeout in seconds")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	configureColor(cmd)

	jsonOut, _ := cmd.Flags().GetBool("json")
	exitCode, _ := cmd.Flags().GetBool("exit-code")
	noLog, _ := cmd.Flags().GetBool("no-log")
	tui, _ := cmd.Flags().GetBool("tui")
	timeoutSeconds, _ := cmd.Flags().GetInt("timeout")
	verbose, _ := cmd.Flags().GetBool("verbose")

	promptText, err := readPromptArg(args[0], os.Stdin)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg = applyFlagOverrides(cfg, noLog, verbose, timeoutSeconds)

	initLogging(verbose)
	defer logging.Get().Close()

	store, err := openHistory(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: session index unavailable: %v\n", err)
	}
	if store != nil {
		defer store.Close()
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if tui && isInteractive() && !jsonOut {
		return runReviewTUI(ctx, cfg, store, promptText, exitCode)
	}

	opts := []review.Option{
		review.WithRuntime(newRuntime()),
		review.WithRecorder(newRecorder(cfg, store)),
		review.WithLogger(logging.Component("review")),
	}
	if !jsonOut {
		opts = append(opts, review.WithEventHandler(streamPrinter(verbose)))
	}

	orch, err := review.New(cfg, opts...)
	if err != nil {
		return err
	}

	result, err := orch.Review(ctx, promptText)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(result)
	}
	printSummary(result)
	if exitCode && !result.Passed() {
		exitFunc(1)
	}
	return nil
}

// runReviewTUI drives the review through the live view. The orchestrator
// runs in a goroutine and feeds events and the terminal outcome over
// channels. Quitting the view early cancels the review so the goroutine
// can finalize the session and exit.
func runReviewTUI(ctx context.Context, cfg *config.Config, store *history.Store, promptText string, exitCode bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan runtime.Event, 64)
	outcome := make(chan ui.Outcome, 1)

	orch, err := review.New(cfg,
		review.WithRuntime(newRuntime()),
		review.WithRecorder(newRecorder(cfg, store)),
		review.WithLogger(logging.Component("review")),
		review.WithEventHandler(func(ev runtime.Event) { events <- ev }),
	)
	if err != nil {
		return err
	}

	go func() {
		result, reviewErr := orch.Review(ctx, promptText)
		close(events)
		outcome <- ui.Outcome{Result: result, Err: reviewErr}
	}()

	final, err := ui.Run(promptText, events, outcome, cancel)
	if err != nil {
		return err
	}
	if final.Err != nil {
		return final.Err
	}
	if exitCode && final.Result != nil && !final.Result.Passed() {
		exitFunc(1)
	}
	return nil
}

// streamPrinter writes review text to stdout as it streams. Tool activity
// is shown only in verbose mode.
func streamPrinter(verbose bool) review.EventHandler {
	toolStyle := lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0366d6", Dark: "#58a6ff"})
	return func(ev runtime.Event) {
		switch ev.Kind {
		case runtime.KindText:
			fmt.Print(ev.Text)
		case runtime.KindToolUse:
			if verbose {
				fmt.Fprintln(os.Stderr, toolStyle.Render("[tool] "+ev.ToolName))
			}
		}
	}
}

func printJSON(result *review.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printSummary(result *review.Result) {
	if !strings.HasSuffix(result.Text, "\n") {
		fmt.Println()
	}

	muted := lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#666", Dark: "#888"})
	verdict := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#22863a", Dark: "#3fb950"}).Render("PASS")
	if !result.Passed() {
		verdict = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#cb2431", Dark: "#f85149"}).Render("FAIL")
	}

	dur := time.Duration(result.DurationMS) * time.Millisecond
	fmt.Printf("\n%s  %s\n", verdict, muted.Render(fmt.Sprintf(
		"%d tokens  $%.4f  %s", result.TotalTokens, result.TotalCostUSD, dur.Round(100*time.Millisecond))))
}
