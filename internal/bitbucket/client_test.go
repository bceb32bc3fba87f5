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

func TestClientRetriesTransientStatuses(t *testing.T) {
	var attempts int
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer ts.Close()

	client := NewClient("secret", testLogger())

	body, err := client.Get(context.Background(), ts.URL)

	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(body))
	assert.Equal(t, 3, attempts)
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var attempts int
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "no such repo")
	}))
	defer ts.Close()

	client := NewClient("secret", testLogger())

	_, err := client.Get(context.Background(), ts.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.Equal(t, 1, attempts)
}

func TestClientPostReturnsStatusAndBody(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"message": "cannot merge"}`)
	}))
	defer ts.Close()

	client := NewClient("secret", testLogger())

	status, body, err := client.Post(context.Background(), ts.URL, map[string]any{"version": 3})

	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, status)
	assert.JSONEq(t, `{"message": "cannot merge"}`, string(body))
}
