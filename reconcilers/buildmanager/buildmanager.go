/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildmanager

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/prbuild/jenkins"
	"chainguard.dev/prbuild/reconcilers/githubreconciler/annotations"
	"chainguard.dev/prbuild/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var (
	buildCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prbuild_builds_total",
			Help: "Builds followed to a terminal result",
		},
		[]string{"job", "result"},
	)

	cleanupCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prbuild_cleanup_total",
			Help: "Queue items cancelled and builds removed for superseded pull request runs",
		},
		[]string{"job", "kind"},
	)
)

func tracer() oteltrace.Tracer {
	return otel.Tracer("chainguard.dev/prbuild/buildmanager",
		oteltrace.WithInstrumentationVersion("1.0.0"))
}

// Server is the subset of the Jenkins client the Manager drives.
type Server interface {
	Version(ctx context.Context) (string, error)
	BuildJob(ctx context.Context, job string, params map[string]string) (string, error)
	QueueItem(ctx context.Context, itemURL string) (*jenkins.QueueItem, error)
	Queue(ctx context.Context) (*jenkins.Queue, error)
	CancelQueueItem(ctx context.Context, id int64) error
	Build(ctx context.Context, buildURL string) (*jenkins.Build, error)
	BuildURL(job string, number int) string
	Job(ctx context.Context, name string) (*jenkins.Job, error)
	TestReport(ctx context.Context, buildURL string) (*jenkins.TestReport, error)
	SetKeepLog(ctx context.Context, buildURL string, enabled bool) (bool, error)
	Stop(ctx context.Context, buildURL string) error
	Delete(ctx context.Context, buildURL string) error
}

// Publisher writes annotations addressed by logical id and reads back the
// tags of those already on the pull request.
type Publisher interface {
	Publish(ctx context.Context, id, body string, payload any) error
	Tags(ctx context.Context) ([]annotations.Tag, error)
}

// State is the lifecycle position of a build request.
type State int

const (
	StateNew State = iota
	StateSubmitted
	StateQueued
	StateBlocked
	StateLeftQueue
	StateExecuting
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSubmitted:
		return "SUBMITTED"
	case StateQueued:
		return "QUEUED"
	case StateBlocked:
		return "BLOCKED"
	case StateLeftQueue:
		return "LEFT_QUEUE"
	case StateExecuting:
		return "EXECUTING"
	case StateFinished:
		return "FINISHED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result is the terminal outcome of a build.
type Result string

const (
	ResultSuccess  Result = jenkins.ResultSuccess
	ResultUnstable Result = jenkins.ResultUnstable
	ResultFailure  Result = jenkins.ResultFailure
	ResultAborted  Result = jenkins.ResultAborted
	// ResultTimeout means the build did not finish within the execution
	// budget. It is an outcome, not an error.
	ResultTimeout Result = "TIMEOUT"
)

// Fatal reports whether the result must fail the calling workflow.
func (r Result) Fatal() bool {
	return r == ResultFailure || r == ResultAborted
}

// parseResult maps a Jenkins result onto a terminal Result. Results
// outside the known set are not terminal.
func parseResult(s string) (Result, bool) {
	switch r := Result(s); r {
	case ResultSuccess, ResultUnstable, ResultFailure, ResultAborted:
		return r, true
	}
	return "", false
}

// ErrDetailsUnavailable is returned when the build finished but its
// duration could not be read before the details budget ran out.
var ErrDetailsUnavailable = errors.New("error fetching build details")

// BuildFailedError is returned for FAILURE and ABORTED outcomes.
type BuildFailedError struct {
	Job    string
	Result Result
	URL    string
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("build of %s returned %s: %s", e.Job, e.Result, e.URL)
}

// Manager drives builds on a single build server.
type Manager struct {
	server Server
	cfg    *config
}

// New constructs a Manager.
func New(server Server, opts ...Option) (*Manager, error) {
	if server == nil {
		return nil, errors.New("build server is required")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	for name, rc := range map[string]retry.Config{
		"connect":   cfg.connect,
		"submit":    cfg.submit,
		"start":     cfg.start,
		"execution": cfg.execution,
		"details":   cfg.details,
		"short":     cfg.short,
		"cleanup":   cfg.cleanup,
	} {
		if err := rc.Validate(); err != nil {
			return nil, fmt.Errorf("%s retry: %w", name, err)
		}
	}
	return &Manager{server: server, cfg: cfg}, nil
}

// CorrelationParameter is the name of the parameter carrying the token.
func (m *Manager) CorrelationParameter() string { return m.cfg.correlationParameter }

// NewSession prepares a session that tags builds with token and reports
// through pub. A nil publisher disables annotations.
func (m *Manager) NewSession(pub Publisher, token string) *Session {
	return &Session{
		manager:   m,
		publisher: pub,
		token:     token,
		state:     StateNew,
	}
}

// nonTransient marks errors that repeating the call cannot fix, so poll
// loops give up on them immediately.
func nonTransient(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *jenkins.APIError
	if errors.As(err, &apiErr) && !apiErr.Transient() {
		return retry.Permanent(err)
	}
	return err
}
