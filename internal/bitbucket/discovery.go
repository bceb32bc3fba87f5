package bitbucket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"deployment-manager/internal/domain"
)

// pageEnvelope covers both pagination dialects. Cloud pages carry a next
// URL, server pages carry isLastPage plus nextPageStart.
type pageEnvelope struct {
	Values        []json.RawMessage `json:"values"`
	Next          string            `json:"next"`
	IsLastPage    *bool             `json:"isLastPage"`
	NextPageStart *int              `json:"nextPageStart"`
}

// FetchOpenPullRequests walks every page of the platform's open pull
// request listing and returns the decoded pull requests.
func FetchOpenPullRequests(ctx context.Context, client *Client, platform Platform, logger *logrus.Logger) ([]domain.PullRequest, error) {
	listURL := platform.PullRequestsURL()
	url := listURL

	var raws []json.RawMessage
	for url != "" {
		body, err := client.Get(ctx, url)
		if err != nil {
			return nil, err
		}
		var page pageEnvelope
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode pull request page: %w", err)
		}
		raws = append(raws, page.Values...)

		switch {
		case page.Next != "":
			url = page.Next
		case page.IsLastPage != nil && !*page.IsLastPage && page.NextPageStart != nil:
			url = fmt.Sprintf("%s&start=%d", listURL, *page.NextPageStart)
		default:
			url = ""
		}
	}

	prs := make([]domain.PullRequest, 0, len(raws))
	for _, raw := range raws {
		pr, err := platform.ParsePullRequest(raw)
		if err != nil {
			return nil, err
		}
		prs = append(prs, pr)
	}
	logger.WithField("count", len(prs)).Info("Fetched open pull requests")
	return prs, nil
}
