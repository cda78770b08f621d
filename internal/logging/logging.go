// Package logging builds the daemon's slog handler from the command line:
// verbosity picks the level, the output format follows the terminal, and an
// optional file receives a full JSON debug log.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// LevelTrace is below slog.LevelDebug and covers per-relay chatter.
const LevelTrace = slog.LevelDebug - 4

// Format selects the stderr encoding.
type Format string

const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a --log-format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatAuto, FormatText, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown log format %q (want auto, text or json)", s)
	}
}

// Level maps a -v count to a level: 0 warn, 1 info, 2 debug, 3+ trace.
func Level(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return slog.LevelWarn
	case verbosity == 1:
		return slog.LevelInfo
	case verbosity == 2:
		return slog.LevelDebug
	default:
		return LevelTrace
	}
}

// Options configures New.
type Options struct {
	Verbosity int
	Format    Format
	// Stderr defaults to os.Stderr.
	Stderr *os.File
	// LogFile, when set, is created and receives every record down to
	// trace level as JSON.
	LogFile string
}

// New builds the logger. The returned closer releases the log file and is
// never nil.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: Level(opts.Verbosity), ReplaceAttr: replaceLevel}
	var console slog.Handler
	if useJSON(opts.Format, stderr) {
		console = slog.NewJSONHandler(stderr, hopts)
	} else {
		console = slog.NewTextHandler(stderr, hopts)
	}

	if opts.LogFile == "" {
		return slog.New(console), io.NopCloser(nil), nil
	}

	lf, err := os.Create(opts.LogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	file := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: LevelTrace, ReplaceAttr: replaceLevel})
	return slog.New(NewMultiHandler(console, file)), lf, nil
}

func useJSON(f Format, out *os.File) bool {
	switch f {
	case FormatJSON:
		return true
	case FormatText:
		return false
	default:
		return !IsTTY(out.Fd())
	}
}

// IsTTY reports whether the given file descriptor refers to a terminal.
func IsTTY(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}
