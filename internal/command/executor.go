// Package command runs the external reconstruction tools.
package command

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// Command is one external tool invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
}

// String returns the command line as it would be typed in a shell.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	for _, p := range append([]string{c.Name}, c.Args...) {
		if p == "" || strings.ContainsAny(p, " \t\"'") {
			p = `"` + strings.ReplaceAll(p, `"`, `\"`) + `"`
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	ExitCode int
	Output   []byte
}

// Executor runs commands synchronously.
// This abstraction enables pipeline tests without real tools installed.
type Executor interface {
	// Run executes cmd and waits for it to exit. A non-zero exit status is
	// reported through Result.ExitCode; the error is reserved for commands
	// that could not be started or were interrupted.
	Run(ctx context.Context, cmd Command) (Result, error)
}

// OSExecutor runs commands as child processes with stdout and stderr
// combined.
type OSExecutor struct{}

// NewOSExecutor creates a new OSExecutor.
func NewOSExecutor() *OSExecutor {
	return &OSExecutor{}
}

// Run executes cmd. Cancelling ctx kills the child process.
func (OSExecutor) Run(ctx context.Context, cmd Command) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir

	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out

	err := c.Run()
	res := Result{Output: out.Bytes()}
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	res.ExitCode = -1
	return res, err
}
