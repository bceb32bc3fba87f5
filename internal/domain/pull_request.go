package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// PullRequest is the unified view of a Bitbucket pull request. The same
// struct covers the Server and Cloud payload dialects.
type PullRequest struct {
	ID            int
	Title         string
	SourceBranch  string
	ApprovalCount int

	// Version is tracked only by Bitbucket Server, which requires it for its
	// optimistic-concurrency merge call. Nil for Cloud.
	Version *int

	// Raw keeps the original API payload for diagnostics. It takes no part
	// in comparisons.
	Raw json.RawMessage
}

func (pr PullRequest) String() string {
	return fmt.Sprintf("PR #%d: %s (%s)", pr.ID, pr.Title, pr.SourceBranch)
}

// SortByID orders pull requests by ascending ID in place. Merge processing
// follows this order regardless of how discovery returned them.
func SortByID(prs []PullRequest) {
	sort.Slice(prs, func(i, j int) bool { return prs[i].ID < prs[j].ID })
}

// FilterByApprovals keeps pull requests with at least min approvals.
// A non-positive min disables filtering and returns the input unchanged.
func FilterByApprovals(prs []PullRequest, min int) []PullRequest {
	if min <= 0 {
		return prs
	}
	filtered := make([]PullRequest, 0, len(prs))
	for _, pr := range prs {
		if pr.ApprovalCount >= min {
			filtered = append(filtered, pr)
		}
	}
	return filtered
}
