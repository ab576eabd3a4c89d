package vars

import (
	"errors"
	"testing"
)

func testContext(workDir string, env map[string]string) Context {
	return Context{
		WorkDir: workDir,
		LookupEnv: func(name string) (string, bool) {
			v, ok := env[name]
			return v, ok
		},
	}
}

func TestSubstituteCwd(t *testing.T) {
	got, err := Substitute("${cwd}/config", testContext("/my/project", nil))
	if err != nil {
		t.Fatalf("Substitute: %v", err)
	}
	if got != "/my/project/config" {
		t.Errorf("got %q, want /my/project/config", got)
	}
}

func TestSubstituteEnvVar(t *testing.T) {
	ctx := testContext("/tmp", map[string]string{"RELDO_TEST_VAR": "test_value"})
	got, err := Substitute("prefix-${env:RELDO_TEST_VAR}-suffix", ctx)
	if err != nil {
		t.Fatalf("Substitute: %v", err)
	}
	if got != "prefix-test_value-suffix" {
		t.Errorf("got %q, want prefix-test_value-suffix", got)
	}
}

func TestSubstituteMissingEnvVarFails(t *testing.T) {
	_, err := Substitute("${env:NONEXISTENT_VAR_12345}", testContext("/tmp", nil))
	if err == nil {
		t.Fatal("expected error for missing env var")
	}
	var unresolved *UnresolvedVarError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected UnresolvedVarError, got %T", err)
	}
	if unresolved.Name != "NONEXISTENT_VAR_12345" {
		t.Errorf("error names %q, want NONEXISTENT_VAR_12345", unresolved.Name)
	}
}

func TestSubstituteMultipleMarkers(t *testing.T) {
	ctx := testContext("/root", map[string]string{"VAR_A": "aaa", "VAR_B": "bbb"})
	got, err := Substitute("${cwd}/${env:VAR_A}/${env:VAR_B}", ctx)
	if err != nil {
		t.Fatalf("Substitute: %v", err)
	}
	if got != "/root/aaa/bbb" {
		t.Errorf("got %q, want /root/aaa/bbb", got)
	}
}

func TestSubstituteUnknownPatternUnchanged(t *testing.T) {
	got, err := Substitute("${unknown_pattern}", testContext("/tmp", nil))
	if err != nil {
		t.Fatalf("Substitute: %v", err)
	}
	if got != "${unknown_pattern}" {
		t.Errorf("got %q, want marker left unchanged", got)
	}
}

func TestSubstituteNonRecursive(t *testing.T) {
	// A substituted value containing a marker must not be expanded again.
	ctx := testContext("/safe", map[string]string{"TRICKY": "${cwd}/injected"})
	got, err := Substitute("${env:TRICKY}", ctx)
	if err != nil {
		t.Fatalf("Substitute: %v", err)
	}
	if got != "${cwd}/injected" {
		t.Errorf("got %q, substituted value was re-expanded", got)
	}
}

func TestSubstituteIdempotent(t *testing.T) {
	ctx := testContext("/proj", map[string]string{"X": "xval"})
	once, err := Substitute("${cwd}/${env:X}", ctx)
	if err != nil {
		t.Fatalf("first Substitute: %v", err)
	}
	twice, err := Substitute(once, ctx)
	if err != nil {
		t.Fatalf("second Substitute: %v", err)
	}
	if once != twice {
		t.Errorf("not idempotent: %q != %q", once, twice)
	}
}

func TestSubstituteSlice(t *testing.T) {
	ctx := testContext("/my/path", nil)
	got, err := SubstituteSlice([]string{"${cwd}", "static", "${cwd}/sub"}, ctx)
	if err != nil {
		t.Fatalf("SubstituteSlice: %v", err)
	}
	want := []string{"/my/path", "static", "/my/path/sub"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSubstituteMap(t *testing.T) {
	ctx := testContext("/project", nil)
	got, err := SubstituteMap(map[string]string{"path": "${cwd}/config", "static": "unchanged"}, ctx)
	if err != nil {
		t.Fatalf("SubstituteMap: %v", err)
	}
	if got["path"] != "/project/config" || got["static"] != "unchanged" {
		t.Errorf("got %v", got)
	}
}
