package config

// Built-in defaults used when no settings document (or field) is present.
const (
	DefaultModel          = "claude-sonnet-4-20250514"
	DefaultTimeoutSeconds = 180
	DefaultOutputDir      = ".reldo"

	// SettingsPath is the settings document checked under the working
	// directory when no explicit config path is given.
	SettingsPath = ".reldo/settings.json"

	// OrchestratorPath is the orchestrator prompt file checked before
	// falling back to the embedded default prompt.
	OrchestratorPath = ".reldo/orchestrator.md"

	// AgentsDir holds per-agent prompt files created by `reldo init`.
	AgentsDir = ".reldo/agents"
)

// DefaultAllowedTools returns the default tool allowlist.
func DefaultAllowedTools() []string {
	return []string{"Read", "Glob", "Grep", "Bash", "Task"}
}

// DefaultOrchestratorPrompt is the embedded orchestrator prompt used when
// neither a settings document nor .reldo/orchestrator.md exists.
const DefaultOrchestratorPrompt = `# Code Review

You are a code reviewer. Review the code changes described in the prompt.

## Guidelines

1. **Read the files** mentioned in the prompt using the Read tool
2. **Check for issues** like:
   - Bugs or logic errors
   - Security vulnerabilities
   - Performance problems
   - Code style inconsistencies
   - Missing error handling
3. **Provide feedback** with specific file paths and line numbers

## Output Format

` + "```" + `
## Review Summary

### Issues Found
- **[file:line]** [severity] - Description of issue

### Suggestions
- [Optional improvements]

## Status

STATUS: PASS|FAIL

[PASS if no critical issues, FAIL if there are bugs or security issues]
` + "```" + `

Be concise and actionable. Focus on real problems, not style nitpicks.
`
