package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/reldo-dev/reldo/internal/config"
	"github.com/reldo-dev/reldo/internal/history"
	"github.com/reldo-dev/reldo/internal/logging"
	"github.com/reldo-dev/reldo/internal/runtime"
	"github.com/reldo-dev/reldo/internal/session"
)

// isInteractive reports whether stdout is a terminal. Overridable in tests.
var isInteractive = func() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// exitFunc is called for non-zero verdict exits. Overridable in tests.
var exitFunc = os.Exit

// newRuntime builds the agent runtime for review runs. Overridable in tests.
var newRuntime = func() runtime.Runtime { return runtime.NewClaudeCLI() }

// configureColor disables colored output when --no-color or NO_COLOR is set.
func configureColor(cmd *cobra.Command) {
	noColor, _ := cmd.Flags().GetBool("no-color")
	if noColor || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// readPromptArg resolves the PROMPT argument. "-" reads the prompt from
// stdin; anything else is returned as-is.
func readPromptArg(arg string, stdin io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading prompt from stdin: %w", err)
	}
	text := strings.TrimRight(string(data), "\n")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty prompt on stdin")
	}
	return text, nil
}

// loadConfig resolves the review configuration from the --config and
// --cwd flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cwd, _ := cmd.Flags().GetString("cwd")
	return config.Load(configPath, cwd)
}

// applyFlagOverrides returns a copy of cfg with per-invocation flag
// overrides applied. The loaded config itself stays untouched.
func applyFlagOverrides(cfg *config.Config, noLog, verbose bool, timeoutSeconds int) *config.Config {
	out := *cfg
	if noLog {
		out.Logging.Enabled = false
	}
	if verbose {
		out.Logging.Verbose = true
	}
	if timeoutSeconds > 0 {
		out.TimeoutSeconds = timeoutSeconds
	}
	return &out
}

// resolveOutputDir returns the logging output directory, anchored at the
// review working directory when relative.
func resolveOutputDir(cfg *config.Config) string {
	dir := cfg.Logging.OutputDir
	if dir == "" {
		dir = config.DefaultOutputDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(cfg.CWD, dir)
	}
	return dir
}

// initLogging sets up the global logger for this invocation.
func initLogging(verbose bool) {
	lcfg := logging.DefaultConfig()
	if verbose {
		lcfg = logging.VerboseConfig()
	}
	if err := logging.Init(lcfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: logging unavailable: %v\n", err)
	}
}

// openHistory opens the session index under the output directory.
// A nil store with nil error means recording is disabled.
func openHistory(cfg *config.Config) (*history.Store, error) {
	if !cfg.Logging.Enabled {
		return nil, nil
	}
	return history.Open(history.DefaultPath(resolveOutputDir(cfg)))
}

// newRecorder builds the session recorder for cfg, indexed by store when
// one is available.
func newRecorder(cfg *config.Config, store *history.Store) *session.Recorder {
	opts := []session.Option{session.WithLogger(logging.Component("session"))}
	if store != nil {
		opts = append(opts, session.WithIndex(store))
	}
	return session.NewRecorder(session.RecorderConfig{
		Enabled:   cfg.Logging.Enabled,
		OutputDir: resolveOutputDir(cfg),
		Verbose:   cfg.Logging.Verbose,
	}, opts...)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func truncateText(s string, max int) string {
	if max < 4 {
		max = 4
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
