// Package log provides the zerolog-backed implementation of the
// readiness.Logger contract, wired the way cmd/cryptorun/main.go sets up
// its global zerolog.Logger (console writer to stderr when attached to a
// TTY, RFC3339 timestamps otherwise left to the structured encoder).
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Logger adapts a zerolog.Logger to the readiness.Logger interface.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger writing to w. When w is *os.File and is a terminal,
// output goes through zerolog's human-readable ConsoleWriter; otherwise raw
// JSON lines are written, matching how cmd/cryptorun distinguishes
// interactive from piped/automation output.
func New(w io.Writer) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	out := w
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		out = zerolog.ConsoleWriter{Out: f, TimeFormat: time.Kitchen}
	}
	return &Logger{zl: zerolog.New(out).With().Timestamp().Logger()}
}

// NewStderr is the common case: log to stderr, TTY-detected.
func NewStderr() *Logger { return New(os.Stderr) }

func (l *Logger) Info(msg string, kv map[string]any) {
	l.zl.Info().Fields(kv).Msg(msg)
}

func (l *Logger) Warn(msg string, kv map[string]any) {
	l.zl.Warn().Fields(kv).Msg(msg)
}
