package bitbucket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nhle/polly-merge/internal/source"
)

// DefaultTimeout bounds a single request when the caller does not set one.
const DefaultTimeout = 10 * time.Second

// APIError is a non-2xx response from the Bitbucket REST API.
type APIError struct {
	StatusCode int
	Method     string
	Path       string

	// Messages holds errors[].message from the response body, if any.
	Messages []string

	// Body is the raw response body when it carried no error messages.
	Body string
}

func (e *APIError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf(
			"bitbucket API error (%d) on %s %s: %s",
			e.StatusCode, e.Method, e.Path,
			strings.Join(e.Messages, "; "),
		)
	}
	return fmt.Sprintf(
		"unexpected status %d on %s %s: %s",
		e.StatusCode, e.Method, e.Path, e.Body,
	)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client is a thin HTTP client for the Bitbucket Server/DC REST API.
// It handles Bearer token authentication and JSON marshaling. Requests
// are never retried.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new Bitbucket HTTP client. The baseURL should be
// the root URL of the Bitbucket instance (e.g., https://bitbucket.corp.example.com).
// The token is a Personal Access Token used for Bearer authentication.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) Get(
	ctx context.Context,
	path string,
	result interface{},
) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// Post performs an HTTP POST request with a JSON body and unmarshals
// the JSON response.
func (c *Client) Post(
	ctx context.Context,
	path string,
	body interface{},
	result interface{},
) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// do builds the request, handles auth, and does JSON (de)serialization.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	// Always JSON, even for the body-less merge POST.
	req.Header.Set("Content-Type", "application/json")
	if method != http.MethodGet {
		req.Header.Set("X-Atlassian-Token", "no-check")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return &source.AuthError{
			Host: c.baseURL,
			Message: fmt.Sprintf(
				"authentication failed (401): check your "+
					"Personal Access Token for %s", c.baseURL,
			),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
		}
		var bbErr BBErrorResponse
		if json.Unmarshal(respBody, &bbErr) == nil && len(bbErr.Errors) > 0 {
			for _, e := range bbErr.Errors {
				apiErr.Messages = append(apiErr.Messages, e.Message)
			}
		} else {
			apiErr.Body = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	// No content to parse (e.g. 204).
	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf(
			"unmarshaling response from %s %s: %w", method, path, err,
		)
	}

	return nil
}

// getAllPages fetches every page of a paginated endpoint, looping on
// isLastPage/nextPageStart.
func getAllPages[T any](
	ctx context.Context,
	c *Client,
	path string,
	limit int,
) ([]T, error) {
	if limit <= 0 {
		limit = 25
	}

	var all []T
	start := 0

	for {
		separator := "?"
		if strings.Contains(path, "?") {
			separator = "&"
		}
		pagePath := fmt.Sprintf(
			"%s%sstart=%d&limit=%d", path, separator, start, limit,
		)

		var page Page[T]
		if err := c.Get(ctx, pagePath, &page); err != nil {
			return nil, err
		}

		all = append(all, page.Values...)

		// A server that omits nextPageStart (or repeats start) would loop
		// forever; stop there.
		if page.IsLastPage || page.NextPageStart <= start {
			break
		}
		start = page.NextPageStart
	}

	return all, nil
}

// GetAllPRPages fetches all pages of pull requests from a paginated
// endpoint.
func (c *Client) GetAllPRPages(
	ctx context.Context,
	path string,
	limit int,
) ([]PullRequest, error) {
	return getAllPages[PullRequest](ctx, c, path, limit)
}

// GetAllActivityPages fetches all pages of activities from a paginated
// endpoint.
func (c *Client) GetAllActivityPages(
	ctx context.Context,
	path string,
	limit int,
) ([]Activity, error) {
	return getAllPages[Activity](ctx, c, path, limit)
}
