package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sync.log")
	logger, closer, err := New("debug", "file:"+path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Debug("stale response discarded", "conversation", "c1")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "stale response discarded") || !strings.Contains(string(data), "conversation=c1") {
		t.Fatalf("unexpected log contents %q", data)
	}
}

func TestUnknownSink(t *testing.T) {
	if _, _, err := New("info", "syslog"); err == nil {
		t.Fatal("expected unknown sink error")
	}
	if _, _, err := New("info", "file:"); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestDiscardSink(t *testing.T) {
	logger, closer, err := New("debug", "discard")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if closer == nil {
		t.Fatal("expected a closer")
	}
	if logger.Enabled(t.Context(), slog.LevelError) {
		t.Fatal("discard logger should not be enabled")
	}
	logger.Error("dropped")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
