package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/reldo-dev/reldo/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a .reldo directory in the working directory",
	Long: `Create the .reldo directory with a starter settings document, the
default orchestrator prompt, and the sessions and agents directories.

Existing files are left alone unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	force, _ := cmd.Flags().GetBool("force")
	dir, _ := cmd.Flags().GetString("cwd")
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
		dir = wd
	}

	created, err := scaffold(dir, force)
	if err != nil {
		return err
	}
	if len(created) == 0 {
		fmt.Println("nothing to do, .reldo already initialized (use --force to overwrite)")
		return nil
	}
	for _, path := range created {
		fmt.Printf("created %s\n", path)
	}
	return nil
}

// defaultSettings is the starter settings document written by `reldo init`.
func defaultSettings() map[string]any {
	return map[string]any{
		"prompt":          config.OrchestratorPath,
		"model":           config.DefaultModel,
		"timeout_seconds": config.DefaultTimeoutSeconds,
		"allowed_tools":   config.DefaultAllowedTools(),
		"logging": map[string]any{
			"enabled":    true,
			"output_dir": config.DefaultOutputDir,
			"verbose":    false,
		},
	}
}

const initGitignore = `sessions/
history.db
*.log
`

// scaffold creates the .reldo layout under dir and returns the paths it
// created, relative to dir. Existing files are skipped unless force is set.
func scaffold(dir string, force bool) ([]string, error) {
	var created []string

	for _, sub := range []string{config.DefaultOutputDir, filepath.Join(config.DefaultOutputDir, "sessions"), config.AgentsDir} {
		path := filepath.Join(dir, sub)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return nil, fmt.Errorf("creating %s: %w", sub, err)
			}
			created = append(created, sub)
		}
	}

	settings, err := json.MarshalIndent(defaultSettings(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}
	files := []struct {
		rel     string
		content []byte
	}{
		{config.SettingsPath, append(settings, '\n')},
		{config.OrchestratorPath, []byte(config.DefaultOrchestratorPrompt)},
		{filepath.Join(config.DefaultOutputDir, ".gitignore"), []byte(initGitignore)},
	}

	for _, f := range files {
		path := filepath.Join(dir, f.rel)
		if !force {
			if _, err := os.Stat(path); err == nil {
				continue
			}
		}
		if err := os.WriteFile(path, f.content, 0644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", f.rel, err)
		}
		created = append(created, f.rel)
	}

	return created, nil
}
