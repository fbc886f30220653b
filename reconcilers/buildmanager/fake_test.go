/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildmanager_test

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"chainguard.dev/prbuild/jenkins"
	"chainguard.dev/prbuild/reconcilers/buildmanager"
	"chainguard.dev/prbuild/reconcilers/githubreconciler/annotations"
	"chainguard.dev/prbuild/retry"
)

const (
	queueURL = "https://ci/queue/item/7/"
	buildURL = "https://ci/job/app/5/"
	token    = "https://github.com/fork/app.git#feature"
)

func fast() retry.Config {
	return retry.Config{Timeout: time.Second, Interval: time.Millisecond}
}

func fastOptions(extra ...buildmanager.Option) []buildmanager.Option {
	return append([]buildmanager.Option{
		buildmanager.WithConnectRetry(fast()),
		buildmanager.WithSubmitRetry(fast()),
		buildmanager.WithStartRetry(fast()),
		buildmanager.WithExecutionRetry(fast()),
		buildmanager.WithDetailsRetry(fast()),
		buildmanager.WithShortRetry(fast()),
		buildmanager.WithCleanupRetry(fast()),
	}, extra...)
}

func strptr(s string) *string { return &s }

func notFound(url string) error {
	return &jenkins.APIError{Method: http.MethodGet, URL: url, StatusCode: http.StatusNotFound}
}

// fakeServer replays scripted queue and build states. The last entry of a
// script repeats once the script is exhausted.
type fakeServer struct {
	mu sync.Mutex

	versionErrs int
	submitErr   error
	queueMisses int

	queueScript []jenkins.QueueItem
	buildScript []jenkins.Build
	queueCalls  int
	buildCalls  int

	report    *jenkins.TestReport
	reportErr error

	// Cleanup state.
	queue  []jenkins.QueueItem
	items  map[string]jenkins.QueueItem
	job    *jenkins.Job
	builds map[string]*jenkins.Build

	submitted  map[string]string
	submits    int
	keepLog    map[string]bool
	cancelled  []int64
	stopped    []string
	deleted    []string
	keepToggle []string
}

func (f *fakeServer) Version(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.versionErrs > 0 {
		f.versionErrs--
		return "", &jenkins.APIError{Method: http.MethodGet, URL: "https://ci/api/json", StatusCode: http.StatusServiceUnavailable}
	}
	return "2.462.1", nil
}

func (f *fakeServer) BuildJob(_ context.Context, _ string, params map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = maps.Clone(params)
	return queueURL, nil
}

func (f *fakeServer) QueueItem(_ context.Context, itemURL string) (*jenkins.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if qi, ok := f.items[itemURL]; ok {
		return &qi, nil
	}
	if itemURL != queueURL || len(f.queueScript) == 0 {
		return nil, notFound(itemURL)
	}
	if f.queueMisses > 0 {
		f.queueMisses--
		return nil, notFound(itemURL)
	}
	qi := f.queueScript[min(f.queueCalls, len(f.queueScript)-1)]
	f.queueCalls++
	return &qi, nil
}

func (f *fakeServer) Queue(context.Context) (*jenkins.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &jenkins.Queue{Items: f.queue}, nil
}

func (f *fakeServer) CancelQueueItem(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeServer) Build(_ context.Context, url string) (*jenkins.Build, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.builds[url]; ok {
		c := *b
		c.KeepLog = f.keepLog[url]
		return &c, nil
	}
	if url != buildURL || len(f.buildScript) == 0 {
		return nil, notFound(url)
	}
	b := f.buildScript[min(f.buildCalls, len(f.buildScript)-1)]
	f.buildCalls++
	b.KeepLog = f.keepLog[url]
	return &b, nil
}

func (f *fakeServer) BuildURL(job string, number int) string {
	return fmt.Sprintf("https://ci/job/%s/%d/", job, number)
}

func (f *fakeServer) Job(_ context.Context, name string) (*jenkins.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.job == nil || f.job.Name != name {
		return nil, notFound(name)
	}
	return f.job, nil
}

func (f *fakeServer) TestReport(context.Context, string) (*jenkins.TestReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.report, f.reportErr
}

func (f *fakeServer) SetKeepLog(_ context.Context, url string, enabled bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keepLog == nil {
		f.keepLog = map[string]bool{}
	}
	if _, ok := f.builds[url]; !ok && url != buildURL {
		return false, notFound(url)
	}
	if f.keepLog[url] == enabled {
		return false, nil
	}
	f.keepLog[url] = enabled
	f.keepToggle = append(f.keepToggle, url)
	return true, nil
}

func (f *fakeServer) Stop(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, url)
	return nil
}

func (f *fakeServer) Delete(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	delete(f.builds, url)
	return nil
}

type published struct {
	id      string
	body    string
	payload any
}

// fakePublisher keeps one live annotation per id, like the comment store:
// publishing replaces the earlier annotation and moves it to the end.
type fakePublisher struct {
	mu      sync.Mutex
	calls   []published
	live    []annotations.Tag
	err     error
	tagsErr error
}

func (p *fakePublisher) Publish(_ context.Context, id, body string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, published{id: id, body: body, payload: payload})
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.live = slices.DeleteFunc(p.live, func(t annotations.Tag) bool { return t.ID == id })
	p.live = append(p.live, annotations.Tag{ID: id, Metadata: raw})
	return nil
}

func (p *fakePublisher) Tags(context.Context) ([]annotations.Tag, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tagsErr != nil {
		return nil, p.tagsErr
	}
	return slices.Clone(p.live), nil
}

func leftItem() jenkins.QueueItem {
	return jenkins.QueueItem{
		Class:      "hudson.model.Queue$LeftItem",
		ID:         7,
		Executable: &jenkins.BuildRef{Number: 5, URL: buildURL},
	}
}

func blockedItem() jenkins.QueueItem {
	return jenkins.QueueItem{Class: "hudson.model.Queue$BlockedItem", ID: 7, Blocked: true, Why: "Build #4 is already in progress"}
}

func running() jenkins.Build {
	return jenkins.Build{Number: 5, URL: buildURL, Building: true}
}

func finished(result string, duration int64) jenkins.Build {
	return jenkins.Build{Number: 5, URL: buildURL, Result: strptr(result), Duration: duration}
}
