package bitbucket

import (
	"context"
	"encoding/json"

	"deployment-manager/internal/domain"
)

// MockPlatform is a canned Platform for dry runs and tests.
type MockPlatform struct {
	ListURL       string
	CloneURLValue string
	MergeErr      error
	MergedIDs     []int
}

func (p *MockPlatform) PullRequestsURL() string { return p.ListURL }

func (p *MockPlatform) CloneURL() string {
	if p.CloneURLValue != "" {
		return p.CloneURLValue
	}
	return "git@example.invalid:mock/mock.git"
}

func (p *MockPlatform) ParsePullRequest(raw json.RawMessage) (domain.PullRequest, error) {
	var pr domain.PullRequest
	if err := json.Unmarshal(raw, &pr); err != nil {
		return domain.PullRequest{}, err
	}
	pr.Raw = raw
	return pr, nil
}

func (p *MockPlatform) MergePullRequest(_ context.Context, pr domain.PullRequest) error {
	if p.MergeErr != nil {
		return p.MergeErr
	}
	p.MergedIDs = append(p.MergedIDs, pr.ID)
	return nil
}

// SamplePullRequests returns the fixed set of pull requests a mock run
// works with.
func SamplePullRequests() []domain.PullRequest {
	return []domain.PullRequest{
		{ID: 101, Title: "DEPLOY-101 new report job", SourceBranch: "feature/DEPLOY-101-new-report", ApprovalCount: 2},
		{ID: 102, Title: "DEPLOY-102 fix dictionary load", SourceBranch: "bugfix/DEPLOY-102-dictionary", ApprovalCount: 1},
	}
}
