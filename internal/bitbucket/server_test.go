package bitbucket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deployment-manager/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// serverHost strips the scheme so the platform exercises its own URL
// assembly against the test server.
func serverHost(ts *httptest.Server) string {
	return strings.TrimPrefix(ts.URL, "https://")
}

func TestServerPlatformURLs(t *testing.T) {
	p := NewServerPlatform(nil, "git.example.com", "FIN", "risk-models", testLogger())

	assert.Equal(t,
		"https://git.example.com/rest/api/1.0/projects/FIN/repos/risk-models/pull-requests?state=OPEN&at=refs/heads/master",
		p.PullRequestsURL())
	assert.Equal(t, "ssh://git@git.example.com:7999/fin/risk-models.git", p.CloneURL())
}

func TestServerParsePullRequest(t *testing.T) {
	raw := json.RawMessage(`{
		"id": 42,
		"title": "DEPLOY-7 add scoring job",
		"version": 3,
		"fromRef": {"displayId": "feature/DEPLOY-7-scoring"},
		"reviewers": [{"approved": true}, {"approved": false}, {"approved": true}]
	}`)
	p := NewServerPlatform(nil, "git.example.com", "FIN", "risk-models", testLogger())

	pr, err := p.ParsePullRequest(raw)

	require.NoError(t, err)
	assert.Equal(t, 42, pr.ID)
	assert.Equal(t, "DEPLOY-7 add scoring job", pr.Title)
	assert.Equal(t, "feature/DEPLOY-7-scoring", pr.SourceBranch)
	assert.Equal(t, 2, pr.ApprovalCount)
	require.NotNil(t, pr.Version)
	assert.Equal(t, 3, *pr.Version)
}

func TestServerFailureReason(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{
			name:   "errors array",
			status: 409,
			body:   `{"errors": [{"message": "Vetoed by hook"}, {"message": "Build failed"}]}`,
			want:   "Vetoed by hook; Build failed",
		},
		{
			name:   "top level message",
			status: 409,
			body:   `{"message": "Merge conflict"}`,
			want:   "Merge conflict",
		},
		{
			name:   "unparseable body",
			status: 500,
			body:   "gateway exploded",
			want:   "HTTP 500: gateway exploded",
		},
		{
			name:   "empty body",
			status: 404,
			body:   "",
			want:   "HTTP 404",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serverFailureReason(tt.status, []byte(tt.body)))
		})
	}
}

func TestIsStaleVersion(t *testing.T) {
	assert.True(t, isStaleVersion("Pull request is Out-of-Date"))
	assert.True(t, isStaleVersion("the pull request is out of date, re-fetch"))
	assert.False(t, isStaleVersion("merge conflict"))
}

func TestServerMergeStaleVersionRetriesOnce(t *testing.T) {
	version := func(n int) *int { return &n }
	var mergeAttempts int
	var sentVersions []int

	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/pull-requests/42/merge"):
			mergeAttempts++
			var payload struct {
				Version int `json:"version"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			sentVersions = append(sentVersions, payload.Version)
			if mergeAttempts == 1 {
				w.WriteHeader(http.StatusConflict)
				fmt.Fprint(w, `{"errors": [{"message": "Pull request is out-of-date"}]}`)
				return
			}
			fmt.Fprint(w, `{"state": "MERGED"}`)
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/pull-requests/42"):
			fmt.Fprint(w, `{"id": 42, "version": 5}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	client := NewClient("token", testLogger())
	p := NewServerPlatform(client, serverHost(ts), "FIN", "risk-models", testLogger())

	err := p.MergePullRequest(context.Background(), domain.PullRequest{ID: 42, Version: version(3)})

	require.NoError(t, err)
	assert.Equal(t, 2, mergeAttempts)
	assert.Equal(t, []int{3, 5}, sentVersions)
}

func TestServerMergeNonStaleFailureDoesNotRetry(t *testing.T) {
	var mergeAttempts int
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mergeAttempts++
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"errors": [{"message": "Merge conflict"}]}`)
	}))
	defer ts.Close()

	client := NewClient("token", testLogger())
	p := NewServerPlatform(client, serverHost(ts), "FIN", "risk-models", testLogger())

	err := p.MergePullRequest(context.Background(), domain.PullRequest{ID: 7})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Merge conflict")
	assert.Equal(t, 1, mergeAttempts)
}

func TestServerMergeStaleTwiceFails(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `{"id": 7, "version": 9}`)
			return
		}
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"errors": [{"message": "Pull request is out-of-date"}]}`)
	}))
	defer ts.Close()

	client := NewClient("token", testLogger())
	p := NewServerPlatform(client, serverHost(ts), "FIN", "risk-models", testLogger())

	err := p.MergePullRequest(context.Background(), domain.PullRequest{ID: 7})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "out-of-date")
}
