package bitbucket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"deployment-manager/internal/domain"
)

// ServerPlatform talks to an on-prem Bitbucket Server over its 1.0 REST
// API.
type ServerPlatform struct {
	client    *Client
	host      string
	workspace string
	repo      string
	logger    *logrus.Logger
}

func NewServerPlatform(client *Client, host, workspace, repo string, logger *logrus.Logger) *ServerPlatform {
	return &ServerPlatform{
		client:    client,
		host:      host,
		workspace: workspace,
		repo:      repo,
		logger:    logger,
	}
}

func (p *ServerPlatform) baseURL() string {
	if strings.Contains(p.host, "://") {
		return p.host
	}
	return "https://" + p.host
}

func (p *ServerPlatform) repoURL() string {
	return fmt.Sprintf("%s/rest/api/1.0/projects/%s/repos/%s", p.baseURL(), p.workspace, p.repo)
}

func (p *ServerPlatform) PullRequestsURL() string {
	return p.repoURL() + "/pull-requests?state=OPEN&at=refs/heads/master"
}

func (p *ServerPlatform) CloneURL() string {
	return fmt.Sprintf("ssh://git@%s:7999/%s/%s.git", p.host, strings.ToLower(p.workspace), p.repo)
}

type serverPullRequest struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Version *int   `json:"version"`
	FromRef struct {
		DisplayID string `json:"displayId"`
	} `json:"fromRef"`
	Reviewers []struct {
		Approved bool `json:"approved"`
	} `json:"reviewers"`
}

func (p *ServerPlatform) ParsePullRequest(raw json.RawMessage) (domain.PullRequest, error) {
	var spr serverPullRequest
	if err := json.Unmarshal(raw, &spr); err != nil {
		return domain.PullRequest{}, fmt.Errorf("decode pull request: %w", err)
	}
	approvals := 0
	for _, r := range spr.Reviewers {
		if r.Approved {
			approvals++
		}
	}
	return domain.PullRequest{
		ID:            spr.ID,
		Title:         spr.Title,
		SourceBranch:  spr.FromRef.DisplayID,
		ApprovalCount: approvals,
		Version:       spr.Version,
		Raw:           raw,
	}, nil
}

type serverErrorBody struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
	Message string `json:"message"`
}

func serverFailureReason(status int, body []byte) string {
	var eb serverErrorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if len(eb.Errors) > 0 {
			msgs := make([]string, 0, len(eb.Errors))
			for _, e := range eb.Errors {
				if e.Message != "" {
					msgs = append(msgs, e.Message)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	if len(body) > 0 {
		return fmt.Sprintf("HTTP %d: %s", status, string(body))
	}
	return fmt.Sprintf("HTTP %d", status)
}

func isStaleVersion(reason string) bool {
	lower := strings.ToLower(reason)
	return strings.Contains(lower, "out-of-date") || strings.Contains(lower, "out of date")
}

func (p *ServerPlatform) mergeURL(id int) string {
	return fmt.Sprintf("%s/pull-requests/%d/merge", p.repoURL(), id)
}

func (p *ServerPlatform) tryMerge(ctx context.Context, id int, version *int) (bool, string, error) {
	payload := map[string]any{}
	if version != nil {
		payload["version"] = *version
	}
	status, body, err := p.client.Post(ctx, p.mergeURL(id), payload)
	if err != nil {
		return false, "", err
	}
	if status == 200 {
		return true, "", nil
	}
	return false, serverFailureReason(status, body), nil
}

func (p *ServerPlatform) currentVersion(ctx context.Context, id int) (*int, error) {
	body, err := p.client.Get(ctx, fmt.Sprintf("%s/pull-requests/%d", p.repoURL(), id))
	if err != nil {
		return nil, err
	}
	var pr struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("decode pull request %d: %w", id, err)
	}
	return pr.Version, nil
}

// MergePullRequest merges a server pull request, refreshing the version
// and retrying once when the server reports the version as stale.
func (p *ServerPlatform) MergePullRequest(ctx context.Context, pr domain.PullRequest) error {
	ok, reason, err := p.tryMerge(ctx, pr.ID, pr.Version)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if !isStaleVersion(reason) {
		return fmt.Errorf("merge pull request %d: %s", pr.ID, reason)
	}

	p.logger.WithField("pr", pr.ID).Info("Pull request version is stale, refreshing")
	version, err := p.currentVersion(ctx, pr.ID)
	if err != nil {
		return fmt.Errorf("refresh pull request %d: %w", pr.ID, err)
	}
	ok, reason, err = p.tryMerge(ctx, pr.ID, version)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("merge pull request %d: %s", pr.ID, reason)
	}
	return nil
}
