// Package prompt resolves prompt references into prompt text.
// A reference is either inline text (returned unchanged) or a path to a
// prompt document that is read from disk.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// promptExtensions are the document extensions treated as prompt files.
var promptExtensions = []string{".md", ".txt"}

// ResolutionError reports a prompt reference that looked like a file path
// but could not be read.
type ResolutionError struct {
	Ref string
	Err error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolving prompt %q: %v", e.Ref, e.Err)
	}
	return fmt.Sprintf("prompt file not found: %s", e.Ref)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Resolve returns the prompt text for ref. File references (recognized by a
// prompt extension, or by naming an existing file relative to baseDir or
// absolute) are read from disk; anything else is returned as inline text.
// Existence on disk wins: an inline-looking string that matches an existing
// file is treated as a file reference.
func Resolve(ref, baseDir string) (string, error) {
	if !isFileRef(ref, baseDir) {
		return ref, nil
	}

	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &ResolutionError{Ref: ref}
		}
		return "", &ResolutionError{Ref: ref, Err: err}
	}
	return string(data), nil
}

// isFileRef reports whether ref should be treated as a file path.
func isFileRef(ref, baseDir string) bool {
	if ref == "" || strings.ContainsAny(ref, "\n") {
		return false
	}

	for _, ext := range promptExtensions {
		if strings.HasSuffix(ref, ext) {
			return true
		}
	}

	// No recognized extension: only an existing file counts as a reference.
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
