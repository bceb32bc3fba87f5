package bitbucket

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"deployment-manager/internal/config"
	"deployment-manager/internal/domain"
)

// Platform abstracts the two Bitbucket API dialects. Implementations
// build repository URLs, decode pull requests from raw API objects, and
// merge pull requests.
type Platform interface {
	PullRequestsURL() string
	CloneURL() string
	ParsePullRequest(raw json.RawMessage) (domain.PullRequest, error)
	MergePullRequest(ctx context.Context, pr domain.PullRequest) error
}

// New selects the platform implementation for the configured Bitbucket
// flavor.
func New(cfg *config.Config, client *Client, repo string, logger *logrus.Logger) Platform {
	if cfg.IsBitbucketServer {
		return NewServerPlatform(client, cfg.BitbucketHost, cfg.BitbucketWorkspace, repo, logger)
	}
	return NewCloudPlatform(client, cfg.BitbucketWorkspace, repo, logger)
}
