// Package logx builds pgtunnel's logger: terse warnings by default, a
// colorized debug stream in verbose mode, always behind credential
// redaction.
package logx

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// New returns the application logger writing to stderr. Verbose mode lowers
// the level to debug and, on a terminal, switches to the tinted handler.
func New(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	var inner slog.Handler
	if verbose && isatty.IsTerminal(os.Stderr.Fd()) {
		inner = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	} else {
		inner = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return slog.New(NewRedactingHandler(inner))
}
