package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"deployment-manager/internal/bitbucket"
	"deployment-manager/internal/domain"
)

// AnalyzePullRequests fetches the open pull requests against master and
// keeps the ones with enough approvals.
func AnalyzePullRequests(ctx context.Context, client *bitbucket.Client, platform bitbucket.Platform, minApprovals int, logger *logrus.Logger) ([]domain.PullRequest, error) {
	prs, err := bitbucket.FetchOpenPullRequests(ctx, client, platform, logger)
	if err != nil {
		return nil, err
	}

	eligible := domain.FilterByApprovals(prs, minApprovals)
	for _, pr := range prs {
		if pr.ApprovalCount < minApprovals {
			logger.WithFields(logrus.Fields{
				"pr":        pr.ID,
				"approvals": pr.ApprovalCount,
				"required":  minApprovals,
			}).Warn("Skipping pull request without enough approvals")
		}
	}
	for _, pr := range eligible {
		logger.Info(pr.String())
	}
	return eligible, nil
}
