package pgexec

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestFindFallsBackToBareName(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	got := Find("definitely-not-a-real-tool")
	if got != "definitely-not-a-real-tool" {
		t.Fatalf("expected bare name fallback, got %q", got)
	}
}

func TestFindPrefersPath(t *testing.T) {
	got := Find("sh")
	if got == "sh" || !filepath.IsAbs(got) {
		t.Fatalf("expected absolute path for sh, got %q", got)
	}
}

func TestRunSuccess(t *testing.T) {
	code, err := Run(context.Background(), "sh", []string{"-c", "exit 0"})
	if err != nil {
		t.Fatal(err)
	}
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
}

// The child's exit code must pass through untouched.
func TestRunPropagatesExitCode(t *testing.T) {
	code, err := Run(context.Background(), "sh", []string{"-c", "exit 7"})
	if err != nil {
		t.Fatal(err)
	}
	if code != 7 {
		t.Fatalf("expected exit 7, got %d", code)
	}
}

func TestRunMissingExecutable(t *testing.T) {
	_, err := Run(context.Background(), filepath.Join(t.TempDir(), "missing-tool"), nil)
	if !errors.Is(err, ErrExecutableNotFound) {
		t.Fatalf("expected ErrExecutableNotFound, got %v", err)
	}
}
