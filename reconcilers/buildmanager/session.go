/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildmanager

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"chainguard.dev/prbuild/jenkins"
	"chainguard.dev/prbuild/reconcilers/githubreconciler/annotations"
	"chainguard.dev/prbuild/retry"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Request describes a build to trigger. It is not modified by Run.
type Request struct {
	Job string
	// DisplayName labels the build in annotations. Defaults to Job.
	DisplayName string
	Parameters  map[string]string
	// Emails fill the notification parameter when the request carries it.
	Emails []string
}

// AnnotationID is the logical id of the build annotations for job.
func AnnotationID(job string) string {
	return "jenkins-" + job
}

// Outcome summarizes a followed build.
type Outcome struct {
	Result   Result
	Number   int
	URL      string
	Duration time.Duration
	Tests    *jenkins.TestReport
}

// Session follows builds triggered for one pull request.
type Session struct {
	manager   *Manager
	publisher Publisher
	token     string
	state     State
}

// State reports the lifecycle position of the most recent Run.
func (s *Session) State() State { return s.state }

func (s *Session) transition(ctx context.Context, to State) {
	if s.state == to {
		return
	}
	clog.FromContext(ctx).With("from", s.state.String()).With("to", to.String()).Info("Build state changed")
	oteltrace.SpanFromContext(ctx).AddEvent("state", oteltrace.WithAttributes(attribute.String("state", to.String())))
	s.state = to
}

func (s *Session) parameters(req Request) map[string]string {
	params := maps.Clone(req.Parameters)
	if params == nil {
		params = map[string]string{}
	}
	if _, ok := params[NotificationParameter]; ok && len(req.Emails) > 0 {
		params[NotificationParameter] = strings.Join(req.Emails, ",")
	}
	if s.token != "" {
		params[s.manager.cfg.correlationParameter] = s.token
	}
	return params
}

// Run submits the request and follows it to a terminal result, publishing
// a started and a finished annotation along the way. FAILURE and ABORTED
// yield a *BuildFailedError alongside the outcome. TIMEOUT is reported in
// the outcome without an error.
func (s *Session) Run(ctx context.Context, req Request) (_ *Outcome, err error) {
	if req.Job == "" {
		return nil, errors.New("job name is required")
	}
	display := req.DisplayName
	if display == "" {
		display = req.Job
	}

	ctx, span := tracer().Start(ctx, "buildmanager.run", oteltrace.WithAttributes(attribute.String("job", req.Job)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("job", req.Job))
	m := s.manager
	s.state = StateNew

	if _, err := retry.Do(ctx, m.cfg.connect, "connect", m.server.Version); err != nil {
		return nil, fmt.Errorf("connecting to build server: %w", err)
	}

	itemURL, err := retry.Do(ctx, m.cfg.submit, "submit build", func(ctx context.Context) (string, error) {
		u, err := m.server.BuildJob(ctx, req.Job, s.parameters(req))
		return u, nonTransient(err)
	})
	if err != nil {
		return nil, fmt.Errorf("submitting %s: %w", req.Job, err)
	}
	s.transition(ctx, StateSubmitted)
	s.transition(ctx, StateQueued)

	ref, err := retry.Poll(ctx, m.cfg.start, "wait for executor", func(ctx context.Context) (*jenkins.BuildRef, retry.Status, error) {
		return s.pollQueue(ctx, itemURL)
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for %s to start: %w", req.Job, err)
	}
	s.transition(ctx, StateExecuting)
	clog.FromContext(ctx).With("build", ref.URL).Info("Build started")

	id := AnnotationID(req.Job)
	current := BuildID{FullName: req.Job, Number: ref.Number}
	keepLog := []KeepLogEntry{{Build: current, Enabled: true}}
	if s.publisher != nil {
		// Republishing replaces the previous annotation, so builds it
		// still retains are carried over.
		prior := slices.DeleteFunc(s.retainedLogs(ctx, id), func(e KeepLogEntry) bool { return e.Build == current })
		keepLog = append(prior, keepLog...)
		body := fmt.Sprintf("%s - Build started [here](%s)", display, ref.URL)
		if err := s.publisher.Publish(ctx, id, body, keepLog); err != nil {
			clog.FromContext(ctx).Warnf("Publishing started annotation failed: %v", err)
		}
	}

	result, err := s.waitResult(ctx, ref.URL)
	if err != nil {
		return nil, err
	}
	s.transition(ctx, StateFinished)
	buildCounter.WithLabelValues(req.Job, string(result)).Inc()

	out := &Outcome{Result: result, Number: ref.Number, URL: ref.URL}
	if s.publisher == nil {
		clog.FromContext(ctx).Info("No publisher configured, skipping annotations")
		return out, terminal(req.Job, out)
	}

	if m.cfg.keepLogs {
		if _, err := retry.Do(ctx, m.cfg.short, "keep logs", func(ctx context.Context) (bool, error) {
			return m.server.SetKeepLog(ctx, ref.URL, true)
		}); err != nil {
			clog.FromContext(ctx).Warnf("Marking build logs to be kept failed: %v", err)
		}
	}

	rep := report{display: display, url: ref.URL, result: result}
	if result != ResultTimeout {
		d, err := s.waitDuration(ctx, ref.URL)
		if err != nil {
			rep.detailsErr = true
			if perr := s.publisher.Publish(ctx, id, rep.String(), keepLog); perr != nil {
				clog.FromContext(ctx).Warnf("Publishing degraded annotation failed: %v", perr)
			}
			return out, fmt.Errorf("%w: %w", ErrDetailsUnavailable, err)
		}
		out.Duration = d
		rep.duration = d
	}

	tests, err := retry.Do(ctx, m.cfg.short, "fetch test report", func(ctx context.Context) (*jenkins.TestReport, error) {
		r, err := m.server.TestReport(ctx, ref.URL)
		return r, nonTransient(err)
	})
	if err != nil {
		clog.FromContext(ctx).Warnf("Fetching test report failed: %v", err)
		rep.testsErr = true
	}
	out.Tests = tests
	rep.tests = tests

	if err := s.publisher.Publish(ctx, id, rep.String(), keepLog); err != nil {
		return out, fmt.Errorf("publishing build report: %w", err)
	}
	return out, terminal(req.Job, out)
}

func terminal(job string, out *Outcome) error {
	if out.Result.Fatal() {
		return &BuildFailedError{Job: job, Result: out.Result, URL: out.URL}
	}
	return nil
}

// retainedLogs returns the builds recorded under id whose logs are still
// retained. Discard records are replayed so released builds drop out.
func (s *Session) retainedLogs(ctx context.Context, id string) []KeepLogEntry {
	tags, err := s.publisher.Tags(ctx)
	if err != nil {
		clog.FromContext(ctx).Warnf("Listing annotations failed, earlier retained builds are not carried over: %v", err)
		return nil
	}
	tags = slices.DeleteFunc(tags, func(t annotations.Tag) bool {
		return t.ID != id && t.ID != DiscardLogsID
	})
	var out []KeepLogEntry
	for _, b := range FoldKeepLogs(tags) {
		out = append(out, KeepLogEntry{Build: b, Enabled: true})
	}
	return out
}

// pollQueue observes a queue item once. Blocked, waiting and not yet
// visible items are not ready; a cancelled item can never start.
func (s *Session) pollQueue(ctx context.Context, itemURL string) (*jenkins.BuildRef, retry.Status, error) {
	qi, err := s.manager.server.QueueItem(ctx, itemURL)
	switch {
	case isNotFound(err):
		// Jenkins may not expose a freshly submitted item yet.
		clog.FromContext(ctx).With("item", itemURL).Debug("Queue item not visible yet")
		return nil, retry.NotReady, nil
	case err != nil:
		return nil, retry.Failed, nonTransient(err)
	}
	switch {
	case qi.Cancelled:
		return nil, retry.Failed, retry.Permanent(fmt.Errorf("queue item %d was cancelled", qi.ID))
	case qi.Executable != nil:
		s.transition(ctx, StateLeftQueue)
		return qi.Executable, retry.Ready, nil
	case qi.LeftQueue():
		// Left the queue but the executable is not visible yet.
		s.transition(ctx, StateLeftQueue)
		return nil, retry.NotReady, nil
	case qi.IsBlocked():
		s.transition(ctx, StateBlocked)
		clog.FromContext(ctx).With("why", qi.Why).Debug("Build is blocked")
		return nil, retry.NotReady, nil
	default:
		s.transition(ctx, StateQueued)
		return nil, retry.NotReady, nil
	}
}

// waitResult follows a running build until it records a result or the
// execution budget runs out, in which case the result is TIMEOUT. The
// first check happens one interval after the build started.
func (s *Session) waitResult(ctx context.Context, buildURL string) (Result, error) {
	cfg := s.manager.cfg.execution
	if err := retry.Sleep(ctx, cfg.Interval); err != nil {
		return "", err
	}
	// The initial pause counts against the budget.
	cfg.Timeout = max(cfg.Timeout-cfg.Interval, 0)

	result, err := retry.Poll(ctx, cfg, "wait for result", func(ctx context.Context) (Result, retry.Status, error) {
		b, err := s.manager.server.Build(ctx, buildURL)
		if err != nil {
			return "", retry.Failed, err
		}
		if !b.Finished() {
			return "", retry.NotReady, nil
		}
		r, ok := parseResult(*b.Result)
		if !ok {
			clog.FromContext(ctx).With("result", *b.Result).Info("Build reported a non-terminal result, still waiting")
			return "", retry.NotReady, nil
		}
		return r, retry.Ready, nil
	})
	switch {
	case err == nil:
		clog.FromContext(ctx).With("result", string(result)).Info("Build finished")
		return result, nil
	case errors.Is(err, retry.ErrExhausted):
		clog.FromContext(ctx).Infof("Build has not finished within %s", s.manager.cfg.execution.Timeout)
		return ResultTimeout, nil
	default:
		return "", fmt.Errorf("waiting for result: %w", err)
	}
}

// waitDuration reads the recorded duration, which Jenkins only fills in
// once the build is fully complete.
func (s *Session) waitDuration(ctx context.Context, buildURL string) (time.Duration, error) {
	return retry.Poll(ctx, s.manager.cfg.details, "fetch build details", func(ctx context.Context) (time.Duration, retry.Status, error) {
		b, err := s.manager.server.Build(ctx, buildURL)
		if err != nil {
			return 0, retry.Failed, err
		}
		if b.Duration <= 0 {
			return 0, retry.NotReady, nil
		}
		return time.Duration(b.Duration) * time.Millisecond, retry.Ready, nil
	})
}
