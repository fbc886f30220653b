/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildmanager

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"chainguard.dev/prbuild/reconcilers/githubreconciler/annotations"
	"chainguard.dev/prbuild/retry"
	"github.com/chainguard-dev/clog"
)

// DiscardLogsID is the logical id of the annotation recording builds
// whose retained logs were released.
const DiscardLogsID = "keepLogs"

// BuildID names a build across runs.
type BuildID struct {
	FullName string `json:"fullName"`
	Number   int    `json:"number"`
}

// KeepLogEntry records whether a build's logs are being retained.
type KeepLogEntry struct {
	Build   BuildID `json:"build"`
	Enabled bool    `json:"enabled"`
}

// FoldKeepLogs replays keep-log entries from tags in order and returns
// the builds whose logs are still retained. Tags whose metadata is not a
// list of entries are ignored.
func FoldKeepLogs(tags []annotations.Tag) []BuildID {
	var order []BuildID
	seen := map[BuildID]bool{}
	retained := map[BuildID]bool{}
	for _, t := range tags {
		var entries []KeepLogEntry
		if err := t.Decode(&entries); err != nil {
			continue
		}
		for _, e := range entries {
			if e.Build.FullName == "" {
				continue
			}
			if e.Enabled {
				if !seen[e.Build] {
					order = append(order, e.Build)
					seen[e.Build] = true
				}
				retained[e.Build] = true
			} else {
				delete(retained, e.Build)
			}
		}
	}
	return slices.DeleteFunc(order, func(b BuildID) bool { return !retained[b] })
}

// DiscardLogs stops retaining the logs of the given builds and returns
// the entries to record. A build that no longer exists counts as
// discarded.
func (m *Manager) DiscardLogs(ctx context.Context, builds []BuildID) ([]KeepLogEntry, error) {
	var out []KeepLogEntry
	var errs []error
	for _, b := range builds {
		url := m.server.BuildURL(b.FullName, b.Number)
		_, err := retry.Do(ctx, m.cfg.short, "discard logs", func(ctx context.Context) (bool, error) {
			changed, err := m.server.SetKeepLog(ctx, url, false)
			return changed, nonTransient(err)
		})
		if err != nil && !isNotFound(err) {
			errs = append(errs, fmt.Errorf("discarding logs of %s #%d: %w", b.FullName, b.Number, err))
			continue
		}
		clog.FromContext(ctx).With("build", url).Info("Build logs released")
		out = append(out, KeepLogEntry{Build: b, Enabled: false})
	}
	return out, errors.Join(errs...)
}

// DiscardLogs releases the logs retained for this session's pull request,
// as recorded in its annotations, and records the release.
func (s *Session) DiscardLogs(ctx context.Context, tags []annotations.Tag) ([]KeepLogEntry, error) {
	builds := FoldKeepLogs(tags)
	if len(builds) == 0 {
		clog.FromContext(ctx).Info("No retained build logs to discard")
		return nil, nil
	}
	entries, err := s.manager.DiscardLogs(ctx, builds)
	if len(entries) > 0 && s.publisher != nil {
		if perr := s.publisher.Publish(ctx, DiscardLogsID, "_Discarded old logs_", entries); perr != nil {
			return entries, errors.Join(err, fmt.Errorf("publishing discarded logs: %w", perr))
		}
	}
	return entries, err
}
