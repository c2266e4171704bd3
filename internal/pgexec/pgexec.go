// Package pgexec locates and runs the wrapped PostgreSQL client tools. All
// arguments are passed via argv, never through a shell, and the child
// inherits this process's stdio so dump output streams straight through.
package pgexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ErrExecutableNotFound means the wrapped tool is not installed anywhere we
// looked.
var ErrExecutableNotFound = errors.New("pgexec: executable not found")

// commonDirs are checked after PATH; versioned directories cover RPM-based
// installs that keep client tools off PATH.
var commonDirs = []string{
	"/usr/bin",
	"/usr/local/bin",
	"/usr/pgsql-17/bin",
	"/usr/pgsql-16/bin",
	"/usr/pgsql-15/bin",
	"/usr/pgsql-14/bin",
}

// Find returns the path of the named tool, preferring PATH, then common
// PostgreSQL install locations. When nothing is found it falls back to the
// bare name so the eventual exec error names the missing tool.
func Find(name string) string {
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	for _, dir := range commonDirs {
		p := filepath.Join(dir, name)
		if isExecutable(p) {
			return p
		}
	}
	return name
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// Run executes the tool with the given arguments and inherited stdio,
// blocking until it exits. The returned int is the child's exit code. A
// missing executable is reported as ErrExecutableNotFound.
func Run(ctx context.Context, path string, args []string) (int, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s; ensure PostgreSQL client tools are installed", ErrExecutableNotFound, path)
	}
	return 0, err
}
