package gitx

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"repobridge/internal/errors"
)

// Runner executes a process from an argument list. Commands are never built
// by string concatenation, so paths with spaces or shell metacharacters are
// safe by construction.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (stdout string, err error)
}

// ExecRunner runs commands via os/exec, distinguishing exit-code failure
// (surfaced as a GIT error with captured stderr) from plain stderr chatter.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	if len(args) == 0 {
		return "", errors.Git("empty command", nil, nil)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		details := map[string]any{
			"command": strings.Join(args, " "),
			"dir":     dir,
			"stderr":  strings.TrimSpace(stderr.String()),
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			details["exit_code"] = exitErr.ExitCode()
		}
		return stdout.String(), errors.Git("command failed", details, err)
	}

	return stdout.String(), nil
}
