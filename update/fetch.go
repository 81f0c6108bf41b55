package update

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	userAgent = "feedspool/1.0"

	// maxBodySize caps how much of a response is read; feeds larger
	// than this are almost certainly not feeds.
	maxBodySize = 8 << 20

	fetchRetries = 2
)

// StatusError is a non-200 response to a feed fetch.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message(), e.Code)
}

// Message returns the user-facing description of the failure.
func (e *StatusError) Message() string {
	switch {
	case e.Code == http.StatusBadRequest:
		return "Bad request"
	case e.Code == http.StatusUnauthorized:
		return "Unauthorized"
	case e.Code == http.StatusForbidden:
		return "Forbidden"
	case e.Code == http.StatusNotFound:
		return "Not found"
	case e.Code == http.StatusMethodNotAllowed:
		return "Method not allowed"
	case e.Code == http.StatusNotAcceptable:
		return "Not acceptable"
	case e.Code >= 500:
		return "Server error"
	default:
		return "Unexpected error"
	}
}

// Fetcher downloads feed documents. Transient failures (network errors
// and 5xx responses) are retried with exponential backoff; 4xx
// responses fail immediately.
type Fetcher struct {
	client        *http.Client
	retryInterval time.Duration
}

// NewFetcher creates a Fetcher with the given per-request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:        &http.Client{Timeout: timeout},
		retryInterval: 500 * time.Millisecond,
	}
}

// Fetch downloads the document at url and returns its body and
// Content-Type. Credentials, when both set, go out as HTTP basic auth.
func (f *Fetcher) Fetch(ctx context.Context, url, username, password string) ([]byte, string, error) {
	var body []byte
	var contentType string

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("User-Agent", userAgent)
		if username != "" && password != "" {
			req.SetBasicAuth(username, password)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to fetch feed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			statusErr := &StatusError{Code: resp.StatusCode}
			if resp.StatusCode >= 500 {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		contentType = resp.Header.Get("Content-Type")
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return fmt.Errorf("failed to read feed body: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.retryInterval
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, fetchRetries), ctx))
	if err != nil {
		return nil, "", err
	}
	return body, contentType, nil
}
