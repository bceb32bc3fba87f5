package remote

import (
	"context"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
)

// MockExecutor simulates the execution host for --mock runs: git commands
// are stubbed (there is no repository to talk to), everything else runs
// against the local filesystem.
type MockExecutor struct {
	local  *LocalExecutor
	logger *logrus.Logger
}

func NewMockExecutor(logger *logrus.Logger) *MockExecutor {
	return &MockExecutor{local: NewLocalExecutor(logger), logger: logger}
}

func (e *MockExecutor) Run(ctx context.Context, command string, opts RunOptions) (Result, error) {
	if isGitCommand(command) {
		return e.runGit(ctx, command, opts)
	}
	return e.local.Run(ctx, command, opts)
}

func isGitCommand(command string) bool {
	fields := strings.Fields(command)
	return len(fields) > 0 && strings.HasSuffix(fields[0], "git")
}

func (e *MockExecutor) runGit(ctx context.Context, command string, opts RunOptions) (Result, error) {
	e.logger.Infof("[mock]$ %s", command)
	fields := strings.Fields(command)
	switch {
	case strings.Contains(command, " clone "):
		// Pretend the clone happened by seeding a small sample repository.
		dir := strings.Trim(fields[len(fields)-1], `'"`)
		if !path.IsAbs(dir) {
			dir = path.Join(opts.Dir, dir)
		}
		if err := e.seedRepository(ctx, dir); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	case strings.Contains(command, " merge-base "):
		return Result{Stdout: "abc123def456\n"}, nil
	case strings.Contains(command, " diff "):
		return Result{Stdout: mockDiffOutput}, nil
	default:
		// fetch, merge and anything else succeed silently.
		return Result{}, nil
	}
}

const mockDiffOutput = "M\tcodes/sample_job.sas\n" +
	"A\textra_files/DEPLOY-101_pre_deploy.sh\n" +
	"A\textra_files/DEPLOY-102_meta.txt\n"

func (e *MockExecutor) seedRepository(ctx context.Context, dir string) error {
	files := map[string]string{
		"codes/sample_job.sas":                 "data work.sample; run;\n",
		"extra_files/DEPLOY-101_pre_deploy.sh": "echo sample pre-deploy step\n",
		"extra_files/DEPLOY-102_meta.txt":      "/Shared Data/jobs/sample_job (Job)\n",
	}
	for rel, content := range files {
		full := path.Join(dir, rel)
		if err := e.local.Mkdir(ctx, path.Dir(full)); err != nil {
			return err
		}
		if err := e.local.WriteFile(ctx, full, content); err != nil {
			return err
		}
	}
	return nil
}

func (e *MockExecutor) Exists(ctx context.Context, path string) (bool, error) {
	return e.local.Exists(ctx, path)
}

func (e *MockExecutor) Mkdir(ctx context.Context, path string) error {
	return e.local.Mkdir(ctx, path)
}

func (e *MockExecutor) RemoveAll(ctx context.Context, path string) error {
	return e.local.RemoveAll(ctx, path)
}

func (e *MockExecutor) ReadFile(ctx context.Context, path string) (string, error) {
	return e.local.ReadFile(ctx, path)
}

func (e *MockExecutor) WriteFile(ctx context.Context, path, content string) error {
	return e.local.WriteFile(ctx, path, content)
}
