package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"deployment-manager/internal/bitbucket"
	"deployment-manager/internal/domain"
)

// MergeRemote merges the pull requests on Bitbucket in ascending ID
// order, stopping at the first failure so later pull requests are not
// merged on top of a missing predecessor.
func MergeRemote(ctx context.Context, platform bitbucket.Platform, prs []domain.PullRequest, logger *logrus.Logger) error {
	if len(prs) == 0 {
		logger.Info("No pull requests to merge remotely")
		return nil
	}

	sorted := append([]domain.PullRequest(nil), prs...)
	domain.SortByID(sorted)

	for _, pr := range sorted {
		logger.Info("Merging on Bitbucket: " + pr.String())
		if err := platform.MergePullRequest(ctx, pr); err != nil {
			return fmt.Errorf("remote merge stopped at pull request %d: %w", pr.ID, err)
		}
	}
	logger.WithField("count", len(sorted)).Info("All pull requests merged on Bitbucket")
	return nil
}
