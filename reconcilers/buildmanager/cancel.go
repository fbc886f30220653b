/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildmanager

import (
	"context"
	"fmt"

	"chainguard.dev/prbuild/jenkins"
	"chainguard.dev/prbuild/retry"
	"github.com/chainguard-dev/clog"
)

// CancelledID is the logical id of the annotation reporting removed builds
// of job.
func CancelledID(job string) string {
	return "removed-" + job
}

func isNotFound(err error) bool { return jenkins.IsNotFound(err) }

// Cancel removes every trace of builds of job tagged with token: queued
// requests are cancelled first, then matching builds are stopped and
// deleted. It reports whether any build was removed. Finding nothing is
// not an error.
func (m *Manager) Cancel(ctx context.Context, job, token string) (bool, error) {
	if token == "" {
		return false, fmt.Errorf("correlation token is required to cancel builds of %s", job)
	}
	ctx, span := tracer().Start(ctx, "buildmanager.cancel")
	defer span.End()
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("job", job))

	if _, err := retry.Do(ctx, m.cfg.cleanup, "cancel queued", func(ctx context.Context) (int, error) {
		return m.cancelQueued(ctx, job, token)
	}); err != nil {
		return false, fmt.Errorf("cancelling queued builds of %s: %w", job, err)
	}

	// Builds deleted by a failed attempt are gone on the next one, so the
	// count accumulates across attempts.
	removed := 0
	if _, err := retry.Do(ctx, m.cfg.cleanup, "remove builds", func(ctx context.Context) (struct{}, error) {
		n, err := m.removeBuilds(ctx, job, token)
		removed += n
		return struct{}{}, err
	}); err != nil {
		return removed > 0, fmt.Errorf("removing builds of %s: %w", job, err)
	}
	return removed > 0, nil
}

// Cancel removes the builds of job triggered for this session's pull
// request and, when any were removed, publishes a notice.
func (s *Session) Cancel(ctx context.Context, job string) (bool, error) {
	removed, err := s.manager.Cancel(ctx, job, s.token)
	if err != nil || !removed || s.publisher == nil {
		return removed, err
	}
	body := fmt.Sprintf("_Builds running on this PR stopped and deleted for job: %s_", job)
	if err := s.publisher.Publish(ctx, CancelledID(job), body, nil); err != nil {
		return removed, fmt.Errorf("publishing cancellation notice: %w", err)
	}
	return removed, nil
}

func (m *Manager) matches(actions jenkins.Actions, token string) bool {
	v, ok := actions.Parameter(m.cfg.correlationParameter)
	return ok && v == token
}

func (m *Manager) cancelQueued(ctx context.Context, job, token string) (int, error) {
	q, err := m.server.Queue(ctx)
	if err != nil {
		return 0, nonTransient(err)
	}
	n := 0
	for _, item := range q.Items {
		if item.Task.Name != job {
			continue
		}
		// The queue listing omits parameters on some controllers.
		full, err := m.server.QueueItem(ctx, m.queueItemURL(item))
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return n, nonTransient(err)
		}
		if !m.matches(full.Actions, token) {
			continue
		}
		if err := m.server.CancelQueueItem(ctx, item.ID); err != nil {
			return n, nonTransient(err)
		}
		clog.FromContext(ctx).With("queue_item", item.ID).Info("Queued build cancelled")
		cleanupCounter.WithLabelValues(job, "queue").Inc()
		n++
	}
	return n, nil
}

func (m *Manager) queueItemURL(item jenkins.QueueItem) string {
	if item.URL != "" {
		return item.URL
	}
	return fmt.Sprintf("queue/item/%d/", item.ID)
}

func (m *Manager) removeBuilds(ctx context.Context, job, token string) (int, error) {
	j, err := m.server.Job(ctx, job)
	if err != nil {
		if isNotFound(err) {
			clog.FromContext(ctx).Info("Job not found, nothing to remove")
			return 0, nil
		}
		return 0, nonTransient(err)
	}

	n := 0
	for _, ref := range j.Builds {
		b, err := m.server.Build(ctx, ref.URL)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return n, nonTransient(err)
		}
		if !m.matches(b.Actions, token) {
			continue
		}
		if b.KeepLog {
			if _, err := m.server.SetKeepLog(ctx, ref.URL, false); err != nil {
				return n, nonTransient(err)
			}
		}
		if b.Building {
			if err := m.server.Stop(ctx, ref.URL); err != nil {
				return n, nonTransient(err)
			}
		}
		if err := m.server.Delete(ctx, ref.URL); err != nil {
			if isNotFound(err) {
				continue
			}
			return n, nonTransient(err)
		}
		clog.FromContext(ctx).With("build", ref.URL).Info("Build stopped and deleted")
		cleanupCounter.WithLabelValues(job, "build").Inc()
		n++
	}
	return n, nil
}
