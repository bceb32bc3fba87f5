package bitbucket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"deployment-manager/internal/domain"
)

const cloudAPIBase = "https://api.bitbucket.org/2.0"

// CloudPlatform talks to Bitbucket Cloud over its 2.0 REST API.
type CloudPlatform struct {
	client    *Client
	apiBase   string
	workspace string
	repo      string
	logger    *logrus.Logger
}

func NewCloudPlatform(client *Client, workspace, repo string, logger *logrus.Logger) *CloudPlatform {
	return &CloudPlatform{
		client:    client,
		apiBase:   cloudAPIBase,
		workspace: workspace,
		repo:      repo,
		logger:    logger,
	}
}

func (p *CloudPlatform) repoURL() string {
	return fmt.Sprintf("%s/repositories/%s/%s", p.apiBase, p.workspace, p.repo)
}

func (p *CloudPlatform) PullRequestsURL() string {
	return p.repoURL() + "/pullrequests?state=OPEN&fields=%2Bvalues.participants"
}

func (p *CloudPlatform) CloneURL() string {
	return fmt.Sprintf("git@bitbucket.org:%s/%s.git", p.workspace, p.repo)
}

type cloudPullRequest struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Source struct {
		Branch struct {
			Name string `json:"name"`
		} `json:"branch"`
	} `json:"source"`
	Participants []struct {
		Approved bool `json:"approved"`
	} `json:"participants"`
}

func (p *CloudPlatform) ParsePullRequest(raw json.RawMessage) (domain.PullRequest, error) {
	var cpr cloudPullRequest
	if err := json.Unmarshal(raw, &cpr); err != nil {
		return domain.PullRequest{}, fmt.Errorf("decode pull request: %w", err)
	}
	approvals := 0
	for _, part := range cpr.Participants {
		if part.Approved {
			approvals++
		}
	}
	return domain.PullRequest{
		ID:            cpr.ID,
		Title:         cpr.Title,
		SourceBranch:  cpr.Source.Branch.Name,
		ApprovalCount: approvals,
		Raw:           raw,
	}, nil
}

func cloudFailureReason(status int, body []byte) string {
	var eb struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		return eb.Error.Message
	}
	if len(body) > 0 {
		return fmt.Sprintf("HTTP %d: %s", status, string(body))
	}
	return fmt.Sprintf("HTTP %d", status)
}

func (p *CloudPlatform) MergePullRequest(ctx context.Context, pr domain.PullRequest) error {
	url := fmt.Sprintf("%s/pullrequests/%d/merge", p.repoURL(), pr.ID)
	status, body, err := p.client.Post(ctx, url, map[string]any{})
	if err != nil {
		return err
	}
	if status == 200 || status == 201 {
		return nil
	}
	return fmt.Errorf("merge pull request %d: %s", pr.ID, cloudFailureReason(status, body))
}
