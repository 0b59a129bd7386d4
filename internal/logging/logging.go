// Package logging builds the slog logger shared by the CLI and the sync core.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Anything else is info.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a text logger at level writing to sink. sink is "stderr"
// (default), "stdout", "discard" or "file:<path>". The returned closer
// releases the file sink and is never nil.
func New(level, sink string) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	sink = strings.TrimSpace(sink)
	switch {
	case sink == "" || sink == "stderr":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nopCloser{}, nil
	case sink == "stdout":
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nopCloser{}, nil
	case sink == "discard":
		return slog.New(slog.DiscardHandler), nopCloser{}, nil
	case strings.HasPrefix(sink, "file:"):
		path := strings.TrimPrefix(sink, "file:")
		if path == "" {
			return nil, nil, fmt.Errorf("log sink file: empty path")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("log sink file: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, nil, fmt.Errorf("log sink file: %w", err)
		}
		return slog.New(slog.NewTextHandler(f, opts)), f, nil
	default:
		return nil, nil, fmt.Errorf("unknown log sink %q", sink)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
