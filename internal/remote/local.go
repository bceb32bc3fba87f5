package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// LocalExecutor runs commands and file operations against the local
// machine. It backs mock runs and tests.
type LocalExecutor struct {
	logger *logrus.Logger
}

func NewLocalExecutor(logger *logrus.Logger) *LocalExecutor {
	return &LocalExecutor{logger: logger}
}

func (e *LocalExecutor) Run(ctx context.Context, command string, opts RunOptions) (Result, error) {
	e.logger.Infof("[local]$ %s", command)
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, &CommandError{
				Cmd:      command,
				ExitCode: res.ExitCode,
				Stdout:   res.Stdout,
				Stderr:   res.Stderr,
			}
		}
		return res, fmt.Errorf("run local command: %w", err)
	}
	return res, nil
}

func (e *LocalExecutor) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (e *LocalExecutor) Mkdir(_ context.Context, path string) error {
	return os.MkdirAll(path, 0o755)
}

func (e *LocalExecutor) RemoveAll(_ context.Context, path string) error {
	return os.RemoveAll(path)
}

func (e *LocalExecutor) ReadFile(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func (e *LocalExecutor) WriteFile(_ context.Context, path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
