package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/reldo-dev/reldo/internal/history"
	"github.com/reldo-dev/reldo/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect recorded review sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent review sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one recorded session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

func init() {
	sessionsListCmd.Flags().IntP("limit", "n", 20, "Maximum number of sessions to list")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openHistoryForRead(cmd *cobra.Command) (*history.Store, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	outputDir := resolveOutputDir(cfg)
	store, err := history.Open(history.DefaultPath(outputDir))
	if err != nil {
		return nil, "", fmt.Errorf("opening session index: %w", err)
	}
	return store, outputDir, nil
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	configureColor(cmd)
	limit, _ := cmd.Flags().GetInt("limit")

	store, _, err := openHistoryForRead(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(limit)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("no recorded sessions")
		return nil
	}

	header := lipgloss.NewStyle().Bold(true)
	fmt.Println(header.Render(fmt.Sprintf("%-24s %-10s %-17s %8s %9s  %s",
		"ID", "STATUS", "STARTED", "TOKENS", "COST", "PROMPT")))
	for _, rec := range records {
		fmt.Printf("%-24s %-10s %-17s %8d %9s  %s\n",
			rec.ID,
			styledStatus(rec.Status),
			rec.StartedAt.Local().Format("2006-01-02 15:04"),
			rec.TotalTokens,
			fmt.Sprintf("$%.4f", rec.TotalCostUSD),
			truncateText(strings.ReplaceAll(rec.Prompt, "\n", " "), 48))
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	configureColor(cmd)

	store, outputDir, err := openHistoryForRead(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Get(args[0])
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Errorf("session %s not found", args[0])
	}
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	label := lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#666", Dark: "#888"})
	fmt.Printf("%s %s\n", label.Render("id:"), rec.ID)
	fmt.Printf("%s %s\n", label.Render("status:"), styledStatus(rec.Status))
	fmt.Printf("%s %s\n", label.Render("started:"), rec.StartedAt.Local().Format(time.RFC3339))
	if !rec.CompletedAt.IsZero() {
		fmt.Printf("%s %s\n", label.Render("completed:"), rec.CompletedAt.Local().Format(time.RFC3339))
	}
	fmt.Printf("%s %d\n", label.Render("tokens:"), rec.TotalTokens)
	fmt.Printf("%s $%.4f\n", label.Render("cost:"), rec.TotalCostUSD)
	if rec.DurationMS > 0 {
		fmt.Printf("%s %s\n", label.Render("duration:"), (time.Duration(rec.DurationMS) * time.Millisecond).Round(100*time.Millisecond))
	}
	if rec.Error != "" {
		fmt.Printf("%s %s\n", label.Render("error:"), rec.Error)
	}
	fmt.Printf("%s %s\n", label.Render("prompt:"), rec.Prompt)

	sessionDir := filepath.Join(outputDir, "sessions", rec.ID)
	fmt.Printf("%s %s\n", label.Render("dir:"), sessionDir)
	printSessionResult(sessionDir, rec.Status, label)
	return nil
}

// printSessionResult dumps the terminal record file for the session when
// one exists on disk.
func printSessionResult(sessionDir, status string, label lipgloss.Style) {
	name := "result.json"
	if status == session.StatusFailed {
		name = "error.json"
	}
	data, err := os.ReadFile(filepath.Join(sessionDir, name))
	if err != nil {
		return
	}
	var terminal struct {
		Result struct {
			Text string `json:"text"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &terminal); err != nil {
		return
	}
	if terminal.Result.Text != "" {
		fmt.Printf("\n%s\n%s\n", label.Render("review:"), terminal.Result.Text)
	}
}

func styledStatus(status string) string {
	switch status {
	case session.StatusCompleted:
		return lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#22863a", Dark: "#3fb950"}).Render(status)
	case session.StatusFailed:
		return lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#cb2431", Dark: "#f85149"}).Render(status)
	default:
		return status
	}
}
