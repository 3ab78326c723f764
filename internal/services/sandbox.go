package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/MegaGrindStone/ollama-web-ui/internal/metrics"
	"github.com/google/uuid"
)

// Sandbox runs submitted python code with a local interpreter. Every run writes the code to its own
// uniquely named file under dir, which is removed once the interpreter exits.
type Sandbox struct {
	interpreter string
	dir         string
	timeout     time.Duration

	logger *slog.Logger
}

// DefaultSandboxTimeout bounds a single run when no timeout is configured.
const DefaultSandboxTimeout = 10 * time.Second

// NewSandbox creates a Sandbox running interpreter on scripts written to dir. An empty dir means the
// system temporary directory, and a non-positive timeout means DefaultSandboxTimeout.
func NewSandbox(interpreter, dir string, timeout time.Duration, logger *slog.Logger) Sandbox {
	if dir == "" {
		dir = os.TempDir()
	}
	if timeout <= 0 {
		timeout = DefaultSandboxTimeout
	}
	return Sandbox{
		interpreter: interpreter,
		dir:         dir,
		timeout:     timeout,
		logger:      logger.With(slog.String("module", "sandbox")),
	}
}

// Run executes code and returns its standard output. A non-zero exit, or a run exceeding the
// timeout, is not an error: the returned output then starts with "Error: " and carries the standard
// error of the process. An error is returned only if the script couldn't be written or the
// interpreter couldn't be started.
func (s Sandbox) Run(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	path := filepath.Join(s.dir, uuid.New().String()+"_script.py")
	if err := os.WriteFile(path, []byte(code), 0600); err != nil {
		return "", fmt.Errorf("failed to write script: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("Failed to remove script",
				slog.String("path", path),
				slog.String(errLoggerKey, err.Error()))
		}
	}()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.interpreter, path)
	cmd.Dir = s.dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		metrics.RecordCodeExecution("timeout", elapsed.Seconds())
		return fmt.Sprintf("Error: execution timed out after %s", s.timeout), nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		metrics.RecordCodeExecution("error", elapsed.Seconds())
		return "Error: " + stderr.String(), nil
	}
	if err != nil {
		metrics.RecordCodeExecution("failed", elapsed.Seconds())
		return "", fmt.Errorf("failed to run interpreter: %w", err)
	}

	metrics.RecordCodeExecution("ok", elapsed.Seconds())
	return stdout.String(), nil
}

// Execute runs code in-process and folds any failure into the returned output, so the result can be
// attached to a code segment as is.
func (s Sandbox) Execute(ctx context.Context, code string) string {
	out, err := s.Run(ctx, code)
	if err != nil {
		s.logger.Error("Failed to execute code", slog.String(errLoggerKey, err.Error()))
		return "Error: " + err.Error()
	}
	return out
}
