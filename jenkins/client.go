/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package jenkins is a small client for the parts of the Jenkins JSON API
// needed to submit parameterized builds and follow them to completion.
package jenkins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
)

const defaultUserAgent = "prbuild"

// Option customizes the Client.
type Option func(*Client)

// WithBasicAuth authenticates every request with a user name and API token.
// Empty credentials leave the client unauthenticated.
func WithBasicAuth(username, token string) Option {
	return func(c *Client) {
		if username == "" || token == "" {
			return
		}
		c.username, c.token = username, token
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client talks to a single Jenkins controller.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	username   string
	token      string
	userAgent  string
}

// New constructs a Client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("jenkins url is required")
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parsing jenkins url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("jenkins url %q must be http or https", baseURL)
	}
	c := &Client{
		base:       u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Authenticated reports whether requests carry credentials.
func (c *Client) Authenticated() bool { return c.username != "" }

// APIError is returned for responses outside the 2xx range and for
// requests that never got a response.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
}

func (e *APIError) Unwrap() error { return e.Err }

// Transient reports whether repeating the request may succeed.
func (e *APIError) Transient() bool {
	if e.Err != nil {
		return !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, context.DeadlineExceeded)
	}
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

// IsNotFound reports whether err is a 404 from Jenkins.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// resolve turns a path relative to the controller root, or an absolute
// URL reported by Jenkins itself, into a request URL.
func (c *Client) resolve(ref string) (*url.URL, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", ref, err)
	}
	return c.base.ResolveReference(r), nil
}

func (c *Client) do(ctx context.Context, method, ref string, form url.Values) (*http.Response, error) {
	u, err := c.resolve(ref)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.Authenticated() {
		req.SetBasicAuth(c.username, c.token)
	}

	clog.FromContext(ctx).With("method", method).With("url", u.String()).Debug("Jenkins request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Method: method, URL: u.String(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{
			Method:     method,
			URL:        u.String(),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, ref string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", ref, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, ref string, form url.Values) (*http.Response, error) {
	if form == nil {
		form = url.Values{}
	}
	return c.do(ctx, http.MethodPost, ref, form)
}

// apiJSON appends the JSON API suffix to a Jenkins object URL.
func apiJSON(objectURL string) string {
	return strings.TrimSuffix(objectURL, "/") + "/api/json"
}

// JobPath maps a job full name such as "folder/job" onto its URL path.
func JobPath(fullName string) string {
	var b strings.Builder
	for part := range strings.SplitSeq(strings.Trim(fullName, "/"), "/") {
		if part == "" {
			continue
		}
		b.WriteString("job/")
		b.WriteString(url.PathEscape(part))
		b.WriteString("/")
	}
	return b.String()
}

// Version probes the controller and returns the version it reports.
func (c *Client) Version(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "api/json?tree=mode", nil)
	if err != nil {
		return "", fmt.Errorf("connecting to jenkins: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	v := resp.Header.Get("X-Jenkins")
	if v == "" {
		return "", errors.New("connecting to jenkins: response is missing the X-Jenkins header")
	}
	return v, nil
}
