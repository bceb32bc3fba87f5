package sas

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"deployment-manager/internal/remote"
)

// BatchSession runs submitted code as batch SAS invocations on the deploy
// host. Each Submit writes the code to a scratch file in the work
// directory, runs the interpreter against it, and returns the produced log.
type BatchSession struct {
	exec    remote.Executor
	sasPath string
	workDir string
	env     string
	logger  *logrus.Logger
}

// NewBatchFactory returns a Factory producing batch sessions that run
// through exec with the given interpreter path, using workDir for scratch
// files.
func NewBatchFactory(exec remote.Executor, sasPath, workDir string, logger *logrus.Logger) Factory {
	return func(ctx context.Context, env string) (Session, error) {
		return &BatchSession{
			exec:    exec,
			sasPath: sasPath,
			workDir: workDir,
			env:     env,
			logger:  logger,
		}, nil
	}
}

func (s *BatchSession) Submit(ctx context.Context, code string) (string, error) {
	id := uuid.NewString()
	srcPath := path.Join(s.workDir, fmt.Sprintf("sas_submit_%s.sas", id))
	logPath := path.Join(s.workDir, fmt.Sprintf("sas_submit_%s.log", id))

	if err := s.exec.WriteFile(ctx, srcPath, code); err != nil {
		return "", fmt.Errorf("write SAS source: %w", err)
	}

	command := fmt.Sprintf("ENVIRONMENT=%s %s -sysin %s -log %s -batch -noterminal",
		remote.Quote(s.env), remote.Quote(s.sasPath), remote.Quote(srcPath), remote.Quote(logPath))
	s.logger.WithField("source", srcPath).Debug("Submitting batch SAS code")

	_, runErr := s.exec.Run(ctx, command, remote.RunOptions{Dir: s.workDir})
	if runErr != nil {
		// A nonzero SAS exit usually means ERROR lines in the log, which
		// the caller inspects. Anything else is a transport failure.
		var cmdErr *remote.CommandError
		if !errors.As(runErr, &cmdErr) {
			return "", fmt.Errorf("run batch SAS: %w", runErr)
		}
	}

	logContent, err := s.exec.ReadFile(ctx, logPath)
	if err != nil {
		if runErr != nil {
			return "", fmt.Errorf("run batch SAS: %w", runErr)
		}
		return "", fmt.Errorf("read SAS log: %w", err)
	}
	return logContent, nil
}

func (s *BatchSession) Close() error { return nil }
