package command

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func executeCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

// executeSplit keeps stdout apart so JSON output can be decoded.
func executeSplit(cmd *cobra.Command, args ...string) (string, string, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// writeConfig writes a config file for serverURL and returns its path.
func writeConfig(t *testing.T, serverURL, backend, path string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	body := fmt.Sprintf(`server_url: %q
user_id: u1
user_name: me
log_sink: discard
read_state:
  backend: %s
  path: %q
`, serverURL, backend, path)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestRootCommandVersion(t *testing.T) {
	cmd := NewRootCmd("test")

	output, err := executeCommand(cmd, "--version")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !strings.Contains(output, "streamsync version test") {
		t.Fatalf("expected version output, got %q", output)
	}
}

func TestRootCommandHelp(t *testing.T) {
	cmd := NewRootCmd("test")

	output, err := executeCommand(cmd)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	for _, sub := range []string{"chat", "tail", "history", "reads"} {
		if !strings.Contains(output, sub) {
			t.Fatalf("expected %q in help output, got %q", sub, output)
		}
	}
}

func TestServerCommandsRequireServer(t *testing.T) {
	cfgPath := writeConfig(t, "", "memory", "")

	output, err := executeCommand(NewRootCmd("test"), "--config", cfgPath, "history", "C")
	if err == nil {
		t.Fatal("expected error without a server url")
	}
	if !strings.Contains(output, "server url is required") {
		t.Fatalf("unexpected output %q", output)
	}
}
