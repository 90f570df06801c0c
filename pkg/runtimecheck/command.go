package runtimecheck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// FilePlaceholder in a command argument is replaced with the game file path.
const FilePlaceholder = "{file}"

// CommandDiagnostics captures execution details for a command check.
type CommandDiagnostics struct {
	Command  []string      `json:"command"`
	Workdir  string        `json:"workdir,omitempty"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// CommandChecker runs an external headless runner against the game. The
// game is written to a temporary .html file whose path replaces {file} in
// the command (or is appended when no argument contains it). The runner
// must print a JSON Report on stdout.
type CommandChecker struct {
	command []string
	workdir string
	timeout time.Duration
}

// NewCommandChecker creates a new command checker.
func NewCommandChecker(command []string, workdir string, timeout time.Duration) (*CommandChecker, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("command checker requires a command")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CommandChecker{command: append([]string(nil), command...), workdir: workdir, timeout: timeout}, nil
}

// Name returns the checker identifier.
func (c *CommandChecker) Name() string {
	return "command:" + filepath.Base(c.command[0])
}

// Check writes the game to disk, runs the command and parses its report.
// Timeouts and unparseable output become error entries rather than errors.
func (c *CommandChecker) Check(ctx context.Context, code string) (Report, error) {
	tmp, err := os.CreateTemp("", "game-*.html")
	if err != nil {
		return Report{}, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(code); err != nil {
		tmp.Close()
		return Report{}, fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Report{}, fmt.Errorf("closing temp file: %w", err)
	}

	args := c.expand(tmp.Name())
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	if c.workdir != "" {
		cmd.Dir = c.workdir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			if ctx.Err() != nil {
				return Report{}, ctx.Err()
			}
			return Report{}, fmt.Errorf("command check failed to run: %w", runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	diag := &CommandDiagnostics{
		Command:  args,
		Workdir:  c.workdir,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Duration: duration,
	}

	if ctx.Err() != nil {
		return Report{}, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return Report{
			Errors:      []string{fmt.Sprintf("runtime check timed out after %s", c.timeout)},
			Diagnostics: diag,
		}, nil
	}

	var report Report
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &report); err != nil {
		msg := fmt.Sprintf("runtime check produced no report (exit status %d)", exitCode)
		if s := strings.TrimSpace(stderr.String()); s != "" {
			msg += ": " + firstLine(s)
		}
		return Report{Errors: []string{msg}, Diagnostics: diag}, nil
	}
	if exitCode != 0 && len(report.Errors) == 0 {
		report.Errors = []string{fmt.Sprintf("runtime check exited with status %d", exitCode)}
	}
	if len(report.Errors) > 0 {
		report.Success = false
	}
	report.Diagnostics = diag
	return report, nil
}

func (c *CommandChecker) expand(path string) []string {
	args := make([]string, 0, len(c.command)+1)
	replaced := false
	for _, arg := range c.command {
		if strings.Contains(arg, FilePlaceholder) {
			arg = strings.ReplaceAll(arg, FilePlaceholder, path)
			replaced = true
		}
		args = append(args, arg)
	}
	if !replaced {
		args = append(args, path)
	}
	return args
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
