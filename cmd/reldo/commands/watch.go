package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/reldo-dev/reldo/internal/config"
	"github.com/reldo-dev/reldo/internal/logging"
	"github.com/reldo-dev/reldo/internal/review"
	"github.com/reldo-dev/reldo/internal/scheduler"
)

var watchCmd = &cobra.Command{
	Use:   "watch PROMPT [path...]",
	Short: "Re-run a review on file changes or on a schedule",
	Long: `Run the review whenever watched files change, or on a cron schedule.

Without --schedule, the given paths (default: the working directory) are
watched recursively and the review re-runs after changes settle for the
debounce interval. With --schedule, the review runs on the cron expression
instead and no file watching happens.

Examples:
  reldo watch "review uncommitted changes" internal/ cmd/
  reldo watch prompts/nightly.md --schedule "0 2 * * *"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().String("schedule", "", "Cron expression to run on instead of watching files")
	watchCmd.Flags().Duration("debounce", 2*time.Second, "Quiet period before a change triggers a review")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	configureColor(cmd)

	schedule, _ := cmd.Flags().GetString("schedule")
	debounce, _ := cmd.Flags().GetDuration("debounce")
	verbose, _ := cmd.Flags().GetBool("verbose")

	promptText, err := readPromptArg(args[0], os.Stdin)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg = applyFlagOverrides(cfg, false, verbose, 0)

	initLogging(verbose)
	defer logging.Get().Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	runOnce := func() {
		if err := watchReview(ctx, cfg, promptText, verbose); err != nil {
			fmt.Fprintf(os.Stderr, "review failed: %v\n", err)
		}
	}

	if schedule != "" {
		sched, err := scheduler.New(schedule, runOnce)
		if err != nil {
			return err
		}
		sched.Start()
		fmt.Printf("scheduled review (%s), ctrl+c to stop\n", schedule)
		<-ctx.Done()
		sched.Stop()
		return nil
	}

	paths := args[1:]
	if len(paths) == 0 {
		paths = []string{cfg.CWD}
	}
	return watchPaths(ctx, cfg.CWD, paths, debounce, runOnce)
}

// watchReview runs one review for the watch loop. Each run gets a fresh
// orchestrator so session recording and the index stay consistent.
func watchReview(ctx context.Context, cfg *config.Config, promptText string, verbose bool) error {
	store, err := openHistory(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: session index unavailable: %v\n", err)
	}
	if store != nil {
		defer store.Close()
	}

	orch, err := review.New(cfg,
		review.WithRuntime(newRuntime()),
		review.WithRecorder(newRecorder(cfg, store)),
		review.WithLogger(logging.Component("review")),
		review.WithEventHandler(streamPrinter(verbose)),
	)
	if err != nil {
		return err
	}

	result, err := orch.Review(ctx, promptText)
	if err != nil {
		return err
	}
	printSummary(result)
	return nil
}

// watchPaths blocks watching the given paths until ctx is cancelled,
// invoking run after changes settle for the debounce interval.
func watchPaths(ctx context.Context, baseDir string, paths []string, debounce time.Duration, run func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	defer watcher.Close()

	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		if err := addRecursive(watcher, p); err != nil {
			return err
		}
	}

	fmt.Printf("watching %s, ctrl+c to stop\n", strings.Join(paths, ", "))

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ignoredPath(ev.Name) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addRecursive(watcher, ev.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)

		case <-timerC:
			run()
		}
	}
}

// addRecursive watches dir and every subdirectory, skipping ignored ones.
func addRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if ignoredPath(path) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// ignoredPath filters out recording output and VCS noise so a review run
// does not retrigger itself.
func ignoredPath(path string) bool {
	base := filepath.Base(path)
	if base == config.DefaultOutputDir || base == ".git" || base == "node_modules" {
		return true
	}
	sep := string(filepath.Separator)
	for _, part := range []string{sep + config.DefaultOutputDir + sep, sep + ".git" + sep} {
		if strings.Contains(path, part) {
			return true
		}
	}
	return strings.HasSuffix(path, ".db") || strings.HasSuffix(path, ".db-wal") || strings.HasSuffix(path, ".db-shm")
}
