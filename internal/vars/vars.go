// Package vars resolves substitution markers in configuration text.
// Two marker forms are recognized: ${cwd} for the working directory and
// ${env:NAME} for environment variables.
package vars

import (
	"fmt"
	"os"
	"regexp"
)

// markerPattern matches ${cwd} and ${env:NAME} markers. Anything else
// inside ${...} is not a marker and passes through untouched.
var markerPattern = regexp.MustCompile(`\$\{(cwd|env:([A-Za-z_][A-Za-z0-9_]*))\}`)

// Context supplies the values markers resolve against.
type Context struct {
	WorkDir   string
	LookupEnv func(name string) (string, bool)
}

// OSContext returns a Context bound to workDir and the process environment.
func OSContext(workDir string) Context {
	return Context{WorkDir: workDir, LookupEnv: os.LookupEnv}
}

// UnresolvedVarError reports an ${env:NAME} marker whose variable is not set.
type UnresolvedVarError struct {
	Name string
}

func (e *UnresolvedVarError) Error() string {
	return fmt.Sprintf("unresolved variable: environment variable %q is not set", e.Name)
}

// Substitute replaces every marker in s using ctx. Replacement is textual
// and non-recursive: substituted values are never re-scanned, so a value
// containing ${...} cannot trigger further expansion. Substituting an
// already-substituted string is a no-op.
func Substitute(s string, ctx Context) (string, error) {
	var missing *UnresolvedVarError

	out := markerPattern.ReplaceAllStringFunc(s, func(m string) string {
		groups := markerPattern.FindStringSubmatch(m)
		if groups[1] == "cwd" {
			return ctx.WorkDir
		}
		name := groups[2]
		if ctx.LookupEnv != nil {
			if v, ok := ctx.LookupEnv(name); ok {
				return v
			}
		}
		if missing == nil {
			missing = &UnresolvedVarError{Name: name}
		}
		return m
	})

	if missing != nil {
		return "", missing
	}
	return out, nil
}

// SubstituteSlice substitutes every element of in, returning a new slice.
func SubstituteSlice(in []string, ctx Context) ([]string, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		v, err := Substitute(s, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// SubstituteMap substitutes every value of in, returning a new map.
func SubstituteMap(in map[string]string, ctx Context) (map[string]string, error) {
	if in == nil {
		return nil, nil
	}
	out := make(map[string]string, len(in))
	for k, s := range in {
		v, err := Substitute(s, ctx)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
