// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New creates a logger writing to stderr, keeping stdout free for guest
// output. It standardizes the "error" key to "err".
func New(level slog.Level, format string) *slog.Logger {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}
	if strings.EqualFold(format, FormatJSON) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps LOG_LEVEL and RUST_LOG style values to a slog level.
// RUST_LOG directives such as "reglet=debug,warn" use the bare directive
// when present, otherwise the most verbose module level. Unknown values
// fall back to info.
func ParseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if s == "" {
		return slog.LevelInfo
	}

	var global string
	best, found := slog.LevelError+4, false
	for _, directive := range strings.Split(s, ",") {
		directive = strings.TrimSpace(directive)
		if directive == "" {
			continue
		}
		if _, lvl, ok := strings.Cut(directive, "="); ok {
			if l, ok := levelName(lvl); ok && l < best {
				best, found = l, true
			}
			continue
		}
		global = directive
	}
	if l, ok := levelName(global); ok {
		return l
	}
	if found {
		return best
	}
	return slog.LevelInfo
}

func levelName(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error", "off":
		return slog.LevelError, true
	default:
		return 0, false
	}
}
