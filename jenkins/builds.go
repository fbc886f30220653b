/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package jenkins

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/chainguard-dev/clog"
)

// maxArtifactSize caps artifact downloads.
const maxArtifactSize = 64 << 20

// BuildJob enqueues a build of the named job and returns the URL of the
// resulting queue item.
func (c *Client) BuildJob(ctx context.Context, job string, params map[string]string) (string, error) {
	if job == "" {
		return "", errors.New("job name is required")
	}
	endpoint := JobPath(job) + "build"
	form := url.Values{}
	if len(params) > 0 {
		endpoint = JobPath(job) + "buildWithParameters"
		for _, k := range slices.Sorted(maps.Keys(params)) {
			form.Set(k, params[k])
		}
	}

	resp, err := c.post(ctx, endpoint, form)
	if err != nil {
		return "", fmt.Errorf("triggering %s: %w", job, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", fmt.Errorf("triggering %s: response is missing the queue item location", job)
	}
	u, err := c.resolve(loc)
	if err != nil {
		return "", fmt.Errorf("triggering %s: %w", job, err)
	}
	clog.FromContext(ctx).With("job", job).With("queue_item", u.String()).Info("Build enqueued")
	return u.String(), nil
}

// QueueItem fetches the current state of a queue item.
func (c *Client) QueueItem(ctx context.Context, itemURL string) (*QueueItem, error) {
	var qi QueueItem
	if err := c.getJSON(ctx, apiJSON(itemURL), &qi); err != nil {
		return nil, fmt.Errorf("fetching queue item: %w", err)
	}
	return &qi, nil
}

// Queue lists every item currently in the build queue.
func (c *Client) Queue(ctx context.Context) (*Queue, error) {
	var q Queue
	if err := c.getJSON(ctx, "queue/api/json", &q); err != nil {
		return nil, fmt.Errorf("fetching queue: %w", err)
	}
	return &q, nil
}

// CancelQueueItem removes an item from the queue. Items that have already
// left the queue are not an error.
func (c *Client) CancelQueueItem(ctx context.Context, id int64) error {
	resp, err := c.post(ctx, "queue/cancelItem?id="+strconv.FormatInt(id, 10), nil)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("cancelling queue item %d: %w", id, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// BuildURL returns the URL of a numbered build of a job.
func (c *Client) BuildURL(job string, number int) string {
	u := c.base.JoinPath(strings.TrimSuffix(JobPath(job), "/"), strconv.Itoa(number))
	return u.String() + "/"
}

// Build fetches a build by URL.
func (c *Client) Build(ctx context.Context, buildURL string) (*Build, error) {
	var b Build
	if err := c.getJSON(ctx, apiJSON(buildURL), &b); err != nil {
		return nil, fmt.Errorf("fetching build: %w", err)
	}
	return &b, nil
}

// Job fetches a job and the references of its retained builds.
func (c *Client) Job(ctx context.Context, name string) (*Job, error) {
	var j Job
	if err := c.getJSON(ctx, JobPath(name)+"api/json?tree=name,fullName,url,builds[number,url]", &j); err != nil {
		return nil, fmt.Errorf("fetching job %s: %w", name, err)
	}
	return &j, nil
}

// TestReport fetches the test report of a build. A build that published
// no report yields nil and no error.
func (c *Client) TestReport(ctx context.Context, buildURL string) (*TestReport, error) {
	var r TestReport
	if err := c.getJSON(ctx, strings.TrimSuffix(buildURL, "/")+"/testReport/api/json", &r); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching test report: %w", err)
	}
	return &r, nil
}

// SetKeepLog makes sure the build's "keep forever" flag matches enabled,
// toggling it only when it differs. It reports whether a toggle happened.
func (c *Client) SetKeepLog(ctx context.Context, buildURL string, enabled bool) (bool, error) {
	b, err := c.Build(ctx, buildURL)
	if err != nil {
		return false, err
	}
	if b.KeepLog == enabled {
		return false, nil
	}
	resp, err := c.post(ctx, strings.TrimSuffix(buildURL, "/")+"/toggleLogKeep", nil)
	if err != nil {
		return false, fmt.Errorf("toggling log retention: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return true, nil
}

// Stop aborts a running build.
func (c *Client) Stop(ctx context.Context, buildURL string) error {
	resp, err := c.post(ctx, strings.TrimSuffix(buildURL, "/")+"/stop", nil)
	if err != nil {
		return fmt.Errorf("stopping build: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Delete removes a build and its logs.
func (c *Client) Delete(ctx context.Context, buildURL string) error {
	resp, err := c.post(ctx, strings.TrimSuffix(buildURL, "/")+"/doDelete", nil)
	if err != nil {
		return fmt.Errorf("deleting build: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Artifact downloads an archived file of a build.
func (c *Client) Artifact(ctx context.Context, buildURL, relativePath string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, strings.TrimSuffix(buildURL, "/")+"/artifact/"+strings.TrimPrefix(relativePath, "/"), nil)
	if err != nil {
		return nil, fmt.Errorf("downloading artifact %s: %w", relativePath, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", relativePath, err)
	}
	if len(data) > maxArtifactSize {
		return nil, fmt.Errorf("artifact %s exceeds %d bytes", relativePath, maxArtifactSize)
	}
	return data, nil
}
