package bitbucket

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

const (
	requestTimeout = 15 * time.Second
	retryBaseDelay = 500 * time.Millisecond
	maxRetries     = 4
)

// Client is a thin Bitbucket HTTP client with bearer authentication and
// exponential-backoff retries on transient failures.
type Client struct {
	httpClient *http.Client
	token      string
	logger     *logrus.Logger
}

func NewClient(token string, logger *logrus.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				// The on-prem server presents a self-signed certificate.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		token:  token,
		logger: logger,
	}
}

func isTransientStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// do performs one HTTP exchange with retries. Connection errors and
// transient statuses are retried up to maxRetries times with a doubling
// delay starting at retryBaseDelay.
func (c *Client) do(ctx context.Context, method, url string, payload []byte) (int, []byte, error) {
	var status int
	var body []byte

	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBaseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.WithError(err).Warn("Bitbucket request failed, retrying")
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		status = resp.StatusCode
		if isTransientStatus(status) {
			c.logger.WithFields(logrus.Fields{
				"status": status,
				"url":    url,
			}).Warn("Transient Bitbucket response, retrying")
			return retry.RetryableError(fmt.Errorf("transient status %d", status))
		}
		return nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	return status, body, nil
}

// Get fetches url and returns the body for 2xx responses.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	status, body, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("GET %s: HTTP %d: %s", url, status, string(body))
	}
	return body, nil
}

// Post sends payload as JSON and returns the status and body without
// judging success, since merge endpoints encode outcomes in non-2xx
// responses the caller wants to inspect.
func (c *Client) Post(ctx context.Context, url string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode payload: %w", err)
	}
	return c.do(ctx, http.MethodPost, url, data)
}
