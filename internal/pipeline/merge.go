package pipeline

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"deployment-manager/internal/domain"
	"deployment-manager/internal/remote"
)

// ChangeSet is the outcome of locally merging the eligible pull requests:
// the pull requests that actually merged and the union of files every
// diffed candidate branch changes relative to master.
type ChangeSet struct {
	Merged       []domain.PullRequest
	ChangedFiles []string
}

// Merger clones the repository into the work directory and merges pull
// request branches into a local master.
type Merger struct {
	exec    remote.Executor
	gitPath string
	workDir string
	logger  *logrus.Logger
}

func NewMerger(exec remote.Executor, gitPath, workDir string, logger *logrus.Logger) *Merger {
	return &Merger{exec: exec, gitPath: gitPath, workDir: workDir, logger: logger}
}

func (m *Merger) repoDir() string {
	return path.Join(m.workDir, RepoDirName)
}

func (m *Merger) git(ctx context.Context, args string) (remote.Result, error) {
	command := fmt.Sprintf("%s %s", m.gitPath, args)
	return m.exec.Run(ctx, command, remote.RunOptions{Dir: m.repoDir()})
}

// MergeLocal clones master, determines what each candidate branch
// changes, and merges the candidates in ascending pull request order.
func (m *Merger) MergeLocal(ctx context.Context, cloneURL string, candidates []domain.PullRequest) (ChangeSet, error) {
	if len(candidates) == 0 {
		m.logger.Info("No pull requests to merge")
		return ChangeSet{}, nil
	}

	m.logger.WithField("url", cloneURL).Info("Cloning repository")
	cloneCmd := fmt.Sprintf("%s clone --branch master %s %s", m.gitPath, remote.Quote(cloneURL), RepoDirName)
	if _, err := m.exec.Run(ctx, cloneCmd, remote.RunOptions{Dir: m.workDir}); err != nil {
		return ChangeSet{}, fmt.Errorf("clone repository: %w", err)
	}

	changes, diffed := m.collectChanges(ctx, candidates)
	merged := m.mergeCandidates(ctx, diffed)

	// The package carries every diffed candidate's files, even when the
	// candidate later fails to merge.
	files := make(map[string]struct{})
	for _, branchFiles := range changes {
		for _, f := range branchFiles {
			files[f] = struct{}{}
		}
	}
	changed := make([]string, 0, len(files))
	for f := range files {
		changed = append(changed, f)
	}
	sort.Strings(changed)
	return ChangeSet{Merged: merged, ChangedFiles: changed}, nil
}

// collectChanges diffs every candidate branch against its merge base with
// master. Candidates whose diff cannot be produced are dropped.
func (m *Merger) collectChanges(ctx context.Context, candidates []domain.PullRequest) (map[int][]string, []domain.PullRequest) {
	changes := make(map[int][]string)
	var diffed []domain.PullRequest
	for _, pr := range candidates {
		if pr.SourceBranch == "" {
			m.logger.WithField("pr", pr.ID).Warn("Pull request has no source branch, skipping")
			continue
		}
		files, err := m.changedFilesForBranch(ctx, pr.SourceBranch)
		if err != nil {
			m.logger.WithError(err).WithField("pr", pr.ID).Warn("Cannot diff pull request branch, skipping")
			continue
		}
		changes[pr.ID] = files
		diffed = append(diffed, pr)
	}
	return changes, diffed
}

func (m *Merger) changedFilesForBranch(ctx context.Context, branch string) ([]string, error) {
	if _, err := m.git(ctx, fmt.Sprintf("fetch origin %s", remote.Quote(branch))); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", branch, err)
	}
	base, err := m.git(ctx, fmt.Sprintf("merge-base HEAD origin/%s", remote.Quote(branch)))
	if err != nil {
		return nil, fmt.Errorf("merge-base %s: %w", branch, err)
	}
	diff, err := m.git(ctx, fmt.Sprintf("diff -M -C --name-status --diff-filter=ACMR %s origin/%s",
		strings.TrimSpace(base.Stdout), remote.Quote(branch)))
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", branch, err)
	}
	return parseNameStatus(diff.Stdout), nil
}

// parseNameStatus extracts file paths from git name-status output. Adds
// and modifications carry the path in the second column, renames and
// copies carry the destination in the third.
func parseNameStatus(out string) []string {
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		status := cols[0]
		switch {
		case strings.HasPrefix(status, "A") || strings.HasPrefix(status, "M") || strings.HasPrefix(status, "C") || strings.HasPrefix(status, "R"):
			if strings.HasPrefix(status, "R") || strings.HasPrefix(status, "C") {
				if len(cols) >= 3 {
					files = append(files, cols[2])
				}
			} else if len(cols) >= 2 {
				files = append(files, cols[1])
			}
		}
	}
	return files
}

// mergeCandidates merges the branches into local master in ascending
// pull request order. A failed merge is aborted and the candidate
// dropped. Returns the pull requests that merged.
func (m *Merger) mergeCandidates(ctx context.Context, candidates []domain.PullRequest) []domain.PullRequest {
	sorted := append([]domain.PullRequest(nil), candidates...)
	domain.SortByID(sorted)

	var merged []domain.PullRequest
	for _, pr := range sorted {
		m.logger.Info("Merging locally: " + pr.String())
		// The branch may have moved since the diff stage.
		if _, err := m.git(ctx, fmt.Sprintf("fetch origin %s", remote.Quote(pr.SourceBranch))); err != nil {
			m.logger.WithError(err).WithField("pr", pr.ID).Warn("Re-fetch before merge failed, skipping")
			continue
		}
		if _, err := m.git(ctx, fmt.Sprintf("merge --no-ff origin/%s", remote.Quote(pr.SourceBranch))); err != nil {
			m.logger.WithError(err).WithField("pr", pr.ID).Warn("Local merge failed, aborting merge and skipping")
			if _, abortErr := m.git(ctx, "merge --abort"); abortErr != nil {
				m.logger.WithError(abortErr).WithField("pr", pr.ID).Warn("merge --abort failed")
			}
			continue
		}
		merged = append(merged, pr)
	}
	return merged
}
