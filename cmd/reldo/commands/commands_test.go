package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reldo-dev/reldo/internal/config"
	"github.com/reldo-dev/reldo/internal/runtime"
)

// verdictStream replays a fixed text verdict followed by a usage event.
type verdictStream struct {
	ch chan runtime.Event
}

func (s *verdictStream) Events() <-chan runtime.Event { return s.ch }
func (s *verdictStream) Err() error                   { return nil }
func (s *verdictStream) Close() error                 { return nil }

type verdictRuntime struct {
	text string
}

func (r *verdictRuntime) Name() string { return "fake" }

func (r *verdictRuntime) Run(ctx context.Context, req runtime.Request) (runtime.Stream, error) {
	ch := make(chan runtime.Event, 2)
	ch <- runtime.Event{Kind: runtime.KindText, Text: r.text}
	ch <- runtime.Event{Kind: runtime.KindUsage, InputTokens: 10, OutputTokens: 5}
	close(ch)
	return &verdictStream{ch: ch}, nil
}

// runReviewCommand executes `reldo review` against a fake runtime and
// reports the exit code passed to exitFunc, or -1 when none was.
func runReviewCommand(t *testing.T, verdict string, args ...string) int {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	restoreRuntime := newRuntime
	newRuntime = func() runtime.Runtime { return &verdictRuntime{text: verdict} }
	t.Cleanup(func() { newRuntime = restoreRuntime })

	code := -1
	restoreExit := exitFunc
	exitFunc = func(c int) { code = c }
	t.Cleanup(func() { exitFunc = restoreExit })

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	return code
}

func TestReviewExitCodeFlagFailingVerdict(t *testing.T) {
	dir := t.TempDir()
	code := runReviewCommand(t, "## Review\n\nSTATUS: FAIL\n",
		"review", "check the diff", "--cwd", dir, "--no-log", "--no-color", "--exit-code")
	if code != 1 {
		t.Errorf("exit code = %d, want 1 for a failing verdict", code)
	}
}

func TestReviewExitCodeFlagPassingVerdict(t *testing.T) {
	dir := t.TempDir()
	code := runReviewCommand(t, "## Review\n\nSTATUS: PASS\n",
		"review", "check the diff", "--cwd", dir, "--no-log", "--no-color", "--exit-code")
	if code != -1 {
		t.Errorf("exit code = %d, want no exit call for a passing verdict", code)
	}
}

func TestReadPromptArgInline(t *testing.T) {
	got, err := readPromptArg("review the diff", nil)
	if err != nil {
		t.Fatalf("readPromptArg: %v", err)
	}
	if got != "review the diff" {
		t.Errorf("prompt = %q", got)
	}
}

func TestReadPromptArgStdin(t *testing.T) {
	got, err := readPromptArg("-", strings.NewReader("review this diff\n+func foo() {}\n"))
	if err != nil {
		t.Fatalf("readPromptArg: %v", err)
	}
	if got != "review this diff\n+func foo() {}" {
		t.Errorf("prompt = %q", got)
	}
}

func TestReadPromptArgEmptyStdin(t *testing.T) {
	if _, err := readPromptArg("-", strings.NewReader("  \n")); err == nil {
		t.Error("empty stdin should fail")
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg, err := config.FromMap(map[string]any{"prompt": "review", "cwd": t.TempDir()})
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}

	out := applyFlagOverrides(cfg, true, true, 30)
	if out.Logging.Enabled {
		t.Error("no-log should disable logging")
	}
	if !out.Logging.Verbose {
		t.Error("verbose should enable transcripts")
	}
	if out.TimeoutSeconds != 30 {
		t.Errorf("TimeoutSeconds = %d", out.TimeoutSeconds)
	}

	// the loaded config stays untouched
	if !cfg.Logging.Enabled || cfg.Logging.Verbose || cfg.TimeoutSeconds == 30 {
		t.Error("overrides mutated the original config")
	}
}

func TestApplyFlagOverridesZeroTimeoutKeepsConfig(t *testing.T) {
	cfg, err := config.FromMap(map[string]any{"prompt": "review", "cwd": t.TempDir(), "timeout_seconds": 45})
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	out := applyFlagOverrides(cfg, false, false, 0)
	if out.TimeoutSeconds != 45 {
		t.Errorf("TimeoutSeconds = %d", out.TimeoutSeconds)
	}
}

func TestResolveOutputDirRelative(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.FromMap(map[string]any{"prompt": "review", "cwd": dir})
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	if got := resolveOutputDir(cfg); got != filepath.Join(dir, config.DefaultOutputDir) {
		t.Errorf("resolveOutputDir = %q", got)
	}
}

func TestResolveOutputDirAbsolute(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "logs")
	cfg, err := config.FromMap(map[string]any{
		"prompt":  "review",
		"cwd":     dir,
		"logging": map[string]any{"output_dir": abs},
	})
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	if got := resolveOutputDir(cfg); got != abs {
		t.Errorf("resolveOutputDir = %q", got)
	}
}

func TestScaffoldCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	created, err := scaffold(dir, false)
	if err != nil {
		t.Fatalf("scaffold: %v", err)
	}
	if len(created) == 0 {
		t.Fatal("scaffold created nothing")
	}

	for _, rel := range []string{
		config.SettingsPath,
		config.OrchestratorPath,
		filepath.Join(config.DefaultOutputDir, ".gitignore"),
	} {
		if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}
	for _, rel := range []string{filepath.Join(config.DefaultOutputDir, "sessions"), config.AgentsDir} {
		info, err := os.Stat(filepath.Join(dir, rel))
		if err != nil || !info.IsDir() {
			t.Errorf("missing directory %s", rel)
		}
	}
}

func TestScaffoldSettingsLoadable(t *testing.T) {
	dir := t.TempDir()
	if _, err := scaffold(dir, false); err != nil {
		t.Fatalf("scaffold: %v", err)
	}

	cfg, err := config.Load("", dir)
	if err != nil {
		t.Fatalf("Load after scaffold: %v", err)
	}
	if cfg.Prompt != config.OrchestratorPath {
		t.Errorf("Prompt = %q", cfg.Prompt)
	}
	if cfg.Model != config.DefaultModel {
		t.Errorf("Model = %q", cfg.Model)
	}
	if !cfg.Logging.Enabled {
		t.Error("logging should default to enabled")
	}
}

func TestScaffoldSkipsExistingWithoutForce(t *testing.T) {
	dir := t.TempDir()
	if _, err := scaffold(dir, false); err != nil {
		t.Fatalf("scaffold: %v", err)
	}

	settings := filepath.Join(dir, config.SettingsPath)
	if err := os.WriteFile(settings, []byte(`{"prompt":"custom"}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	created, err := scaffold(dir, false)
	if err != nil {
		t.Fatalf("rescaffold: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("rescaffold created %v", created)
	}
	data, _ := os.ReadFile(settings)
	if !strings.Contains(string(data), "custom") {
		t.Error("existing settings were overwritten without --force")
	}
}

func TestScaffoldForceOverwrites(t *testing.T) {
	dir := t.TempDir()
	if _, err := scaffold(dir, false); err != nil {
		t.Fatalf("scaffold: %v", err)
	}
	settings := filepath.Join(dir, config.SettingsPath)
	if err := os.WriteFile(settings, []byte(`{"prompt":"custom"}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	created, err := scaffold(dir, true)
	if err != nil {
		t.Fatalf("scaffold --force: %v", err)
	}
	if len(created) == 0 {
		t.Error("force scaffold should rewrite files")
	}
	data, _ := os.ReadFile(settings)
	if strings.Contains(string(data), "custom") {
		t.Error("settings not overwritten with --force")
	}
}

func TestIgnoredPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/repo/internal/server.go", false},
		{"/repo/.reldo/sessions/x/session.json", true},
		{"/repo/.git/index", true},
		{"/repo/.reldo", true},
		{"/repo/data/history.db", true},
		{"/repo/data/history.db-wal", true},
		{"/repo/cmd/main.go", false},
	}
	for _, tt := range tests {
		if got := ignoredPath(tt.path); got != tt.want {
			t.Errorf("ignoredPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestTruncateText(t *testing.T) {
	if got := truncateText("short", 48); got != "short" {
		t.Errorf("truncateText = %q", got)
	}
	got := truncateText(strings.Repeat("a", 100), 48)
	if len(got) != 48 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncateText = %q", got)
	}
}
