package services_test

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/MegaGrindStone/ollama-web-ui/internal/services"
)

func newTestSandbox(t *testing.T, timeout time.Duration) (services.Sandbox, string) {
	t.Helper()

	interpreter, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 is not available")
	}

	dir := t.TempDir()
	return services.NewSandbox(interpreter, dir, timeout, discardLogger), dir
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("script files left behind: %v", entries)
	}
}

func TestSandboxRun(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		wantOutput string
		wantPrefix string
	}{
		{
			name:       "Standard output",
			code:       "print('hello')",
			wantOutput: "hello\n",
		},
		{
			name:       "Runtime error",
			code:       "raise ValueError('boom')",
			wantPrefix: "Error: ",
		},
		{
			name:       "Syntax error",
			code:       "def (",
			wantPrefix: "Error: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, dir := newTestSandbox(t, 0)

			out, err := s.Run(context.Background(), tt.code)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if tt.wantOutput != "" && out != tt.wantOutput {
				t.Errorf("Run() = %q, want %q", out, tt.wantOutput)
			}
			if tt.wantPrefix != "" && !strings.HasPrefix(out, tt.wantPrefix) {
				t.Errorf("Run() = %q, want prefix %q", out, tt.wantPrefix)
			}

			assertDirEmpty(t, dir)
		})
	}
}

func TestSandboxRunErrorCarriesStderr(t *testing.T) {
	s, _ := newTestSandbox(t, 0)

	out, err := s.Run(context.Background(), "raise ValueError('boom')")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out, "ValueError: boom") {
		t.Errorf("Run() = %q, want the traceback", out)
	}
}

func TestSandboxRunTimeout(t *testing.T) {
	s, dir := newTestSandbox(t, 200*time.Millisecond)

	out, err := s.Run(context.Background(), "import time\ntime.sleep(5)")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.HasPrefix(out, "Error: execution timed out") {
		t.Errorf("Run() = %q, want a timeout error", out)
	}

	assertDirEmpty(t, dir)
}

func TestSandboxMissingInterpreter(t *testing.T) {
	dir := t.TempDir()
	s := services.NewSandbox("interpreter-that-does-not-exist", dir, 0, discardLogger)

	if _, err := s.Run(context.Background(), "print('hello')"); err == nil {
		t.Error("Run() should fail when the interpreter can't be started")
	}
	if out := s.Execute(context.Background(), "print('hello')"); !strings.HasPrefix(out, "Error: ") {
		t.Errorf("Execute() = %q, want an error output", out)
	}

	assertDirEmpty(t, dir)
}
