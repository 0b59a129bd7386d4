package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigReadsYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `server_url: https://chat.example.com
user_id: "7"
page_size: 20
read_state:
  backend: memory
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STREAMSYNC_USER_NAME", "ada")
	t.Setenv("STREAMSYNC_SERVER_URL", "")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServerURL != "https://chat.example.com" {
		t.Errorf("server url = %q", cfg.ServerURL)
	}
	if cfg.UserID != "7" || cfg.UserName != "ada" {
		t.Errorf("user = %q/%q", cfg.UserID, cfg.UserName)
	}
	if cfg.PageSize != 20 {
		t.Errorf("page size = %d, want 20", cfg.PageSize)
	}
	if cfg.JumpPageSize != DefaultJumpPageSize {
		t.Errorf("jump page size = %d, want default", cfg.JumpPageSize)
	}
	if cfg.ReadState.Backend != "memory" {
		t.Errorf("backend = %q", cfg.ReadState.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestValidateRejectsSchemelessURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServerURL = "chat.example.com"
	cfg.UserID = "1"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected scheme error")
	}
}

func TestApplyEnvRejectsBadInt(t *testing.T) {
	cfg := Config{}
	env := map[string]string{"STREAMSYNC_PAGE_SIZE": "lots"}
	if err := cfg.applyEnv(func(k string) string { return env[k] }); err == nil {
		t.Fatal("expected error for non-numeric page size")
	}
}

func TestResolvedSocketURL(t *testing.T) {
	tests := []struct {
		server string
		socket string
		want   string
	}{
		{"https://chat.example.com", "", "wss://chat.example.com/ws"},
		{"http://localhost:8080/api/", "", "ws://localhost:8080/api/ws"},
		{"http://localhost:8080", "ws://other/socket", "ws://other/socket"},
	}
	for _, tt := range tests {
		cfg := Config{ServerURL: tt.server, SocketURL: tt.socket}
		got, err := cfg.ResolvedSocketURL()
		if err != nil {
			t.Fatalf("%s: %v", tt.server, err)
		}
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.server, got, tt.want)
		}
	}
}
