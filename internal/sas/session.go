package sas

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"deployment-manager/internal/domain"
	"deployment-manager/internal/remote"
)

// Session is the opaque scripting-session contract: submit code, get the
// textual execution log back.
type Session interface {
	Submit(ctx context.Context, code string) (string, error)
	Close() error
}

// Factory opens a session for a target environment.
type Factory func(ctx context.Context, env string) (Session, error)

// WithSession opens a session, runs fn, and closes the session on every
// exit path.
func WithSession(ctx context.Context, factory Factory, env string, fn func(Session) error) (err error) {
	session, err := factory(ctx, env)
	if err != nil {
		return fmt.Errorf("open SAS session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close SAS session: %w", cerr)
		}
	}()
	return fn(session)
}

// CheckLog splits a SAS log into its ERROR and WARNING lines.
func CheckLog(logContent string) (errLines, warnLines []string) {
	for _, line := range strings.Split(logContent, "\n") {
		switch {
		case strings.HasPrefix(line, "ERROR"):
			errLines = append(errLines, line)
		case strings.HasPrefix(line, "WARN"):
			warnLines = append(warnLines, line)
		}
	}
	return errLines, warnLines
}

// SubmitChecked submits code, persists the log at logPath through the
// executor, and fails when the log contains ERROR lines. WARNING lines are
// reported but not fatal.
func SubmitChecked(ctx context.Context, session Session, exec remote.Executor, code, logPath string, logger *logrus.Logger) (string, error) {
	logContent, err := session.Submit(ctx, code)
	if err != nil {
		return "", err
	}

	logger.WithField("log", logPath).Info("Saving SAS log")
	if err := exec.WriteFile(ctx, logPath, logContent); err != nil {
		return "", fmt.Errorf("save SAS log: %w", err)
	}

	errLines, warnLines := CheckLog(logContent)
	for _, line := range warnLines {
		logger.Warn(line)
	}
	for _, line := range errLines {
		logger.Error(line)
	}
	if len(errLines) > 0 {
		return logContent, fmt.Errorf("%w (see %s)", domain.ErrSASLogErrors, logPath)
	}
	return logContent, nil
}
