package bitbucket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchOpenPullRequestsCloudPagination(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pulls":
			fmt.Fprintf(w, `{"values": [{"ID": 1}, {"ID": 2}], "next": "%s/pulls2"}`, ts.URL)
		case "/pulls2":
			fmt.Fprintf(w, `{"values": [{"ID": 3}], "next": "%s/pulls3"}`, ts.URL)
		case "/pulls3":
			fmt.Fprint(w, `{"values": [{"ID": 4}]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	client := NewClient("token", testLogger())
	platform := &MockPlatform{ListURL: ts.URL + "/pulls"}

	prs, err := FetchOpenPullRequests(context.Background(), client, platform, testLogger())

	require.NoError(t, err)
	require.Len(t, prs, 4)
	assert.Equal(t, 1, prs[0].ID)
	assert.Equal(t, 4, prs[3].ID)
}

func TestFetchOpenPullRequestsServerPagination(t *testing.T) {
	var requests []string
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RequestURI())
		switch r.URL.Query().Get("start") {
		case "":
			fmt.Fprint(w, `{"values": [{"ID": 1}], "isLastPage": false, "nextPageStart": 25}`)
		case "25":
			fmt.Fprint(w, `{"values": [{"ID": 2}], "isLastPage": true}`)
		default:
			t.Errorf("unexpected start %q", r.URL.Query().Get("start"))
		}
	}))
	defer ts.Close()

	client := NewClient("token", testLogger())
	listURL := ts.URL + "/pulls?state=OPEN"
	platform := &MockPlatform{ListURL: listURL}

	prs, err := FetchOpenPullRequests(context.Background(), client, platform, testLogger())

	require.NoError(t, err)
	require.Len(t, prs, 2)
	assert.Equal(t, []string{"/pulls?state=OPEN", "/pulls?state=OPEN&start=25"}, requests)
}

func TestFetchOpenPullRequestsIsIdempotent(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"values": [{"ID": 9, "Title": "one"}]}`)
	}))
	defer ts.Close()

	client := NewClient("token", testLogger())
	platform := &MockPlatform{ListURL: ts.URL + "/pulls"}

	first, err := FetchOpenPullRequests(context.Background(), client, platform, testLogger())
	require.NoError(t, err)
	second, err := FetchOpenPullRequests(context.Background(), client, platform, testLogger())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFetchOpenPullRequestsEmpty(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"values": []}`)
	}))
	defer ts.Close()

	client := NewClient("token", testLogger())
	platform := &MockPlatform{ListURL: ts.URL + "/pulls"}

	prs, err := FetchOpenPullRequests(context.Background(), client, platform, testLogger())

	require.NoError(t, err)
	assert.Empty(t, prs)
}
