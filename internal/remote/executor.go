package remote

import (
	"context"
	"fmt"
	"strings"
)

// Result carries the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunOptions adjusts a single command invocation.
type RunOptions struct {
	// Dir is the working directory for the command. Empty means the
	// executor's default.
	Dir string
}

// CommandError reports a command that exited non-zero, with its captured
// output attached for diagnostics.
type CommandError struct {
	Cmd      string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q exited with code %d\nSTDOUT:\n%s\nSTDERR:\n%s",
		e.Cmd, e.ExitCode, e.Stdout, e.Stderr)
}

// Executor runs shell commands and manipulates files on the execution host.
// SSHExecutor serves production runs; LocalExecutor and MockExecutor back
// mock mode and tests. A non-zero exit surfaces as *CommandError.
type Executor interface {
	Run(ctx context.Context, command string, opts RunOptions) (Result, error)
	Exists(ctx context.Context, path string) (bool, error)
	Mkdir(ctx context.Context, path string) error
	RemoveAll(ctx context.Context, path string) error
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
}

const shellSafeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-./:=@%+,"

// Quote returns a POSIX shell single-quoted form of s, safe to embed in a
// command line.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !strings.ContainsRune(shellSafeChars, r) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
