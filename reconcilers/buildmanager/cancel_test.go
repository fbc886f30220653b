/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildmanager_test

import (
	"context"
	"testing"

	"chainguard.dev/prbuild/jenkins"
	"chainguard.dev/prbuild/reconcilers/buildmanager"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func params(v string) jenkins.Actions {
	return jenkins.Actions{{
		Class:      "hudson.model.ParametersAction",
		Parameters: []jenkins.Parameter{{Name: "PR_SOURCE", Value: v}},
	}}
}

func cleanupServer() *fakeServer {
	const other = "https://github.com/fork/app.git#other"
	return &fakeServer{
		queue: []jenkins.QueueItem{
			{ID: 11, Task: jenkins.Task{Name: "app"}, URL: "queue/item/11/"},
			{ID: 12, Task: jenkins.Task{Name: "app"}, URL: "queue/item/12/"},
			{ID: 13, Task: jenkins.Task{Name: "lib"}, URL: "queue/item/13/"},
		},
		items: map[string]jenkins.QueueItem{
			"queue/item/11/": {ID: 11, Actions: params(token)},
			"queue/item/12/": {ID: 12, Actions: params(other)},
			"queue/item/13/": {ID: 13, Actions: params(token)},
		},
		job: &jenkins.Job{Name: "app", Builds: []jenkins.BuildRef{
			{Number: 3, URL: "https://ci/job/app/3/"},
			{Number: 2, URL: "https://ci/job/app/2/"},
			{Number: 1, URL: "https://ci/job/app/1/"},
		}},
		builds: map[string]*jenkins.Build{
			"https://ci/job/app/3/": {Number: 3, Building: true, Actions: params(token)},
			"https://ci/job/app/2/": {Number: 2, Actions: params(other)},
			"https://ci/job/app/1/": {Number: 1, Actions: params(token)},
		},
		keepLog: map[string]bool{"https://ci/job/app/3/": true},
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	srv := cleanupServer()
	pub := &fakePublisher{}
	m, err := buildmanager.New(srv, fastOptions()...)
	require.NoError(t, err)

	removed, err := m.NewSession(pub, token).Cancel(context.Background(), "app")
	require.NoError(t, err)
	require.True(t, removed)

	if diff := cmp.Diff([]int64{11}, srv.cancelled); diff != "" {
		t.Errorf("cancelled (-want, +got) = %s", diff)
	}
	if diff := cmp.Diff([]string{"https://ci/job/app/3/"}, srv.stopped); diff != "" {
		t.Errorf("stopped (-want, +got) = %s", diff)
	}
	if diff := cmp.Diff([]string{"https://ci/job/app/3/", "https://ci/job/app/1/"}, srv.deleted); diff != "" {
		t.Errorf("deleted (-want, +got) = %s", diff)
	}
	require.False(t, srv.keepLog["https://ci/job/app/3/"])

	require.Len(t, pub.calls, 1)
	require.Equal(t, "removed-app", pub.calls[0].id)
	require.Equal(t, "_Builds running on this PR stopped and deleted for job: app_", pub.calls[0].body)
}

func TestCancel_Idempotent(t *testing.T) {
	t.Parallel()
	srv := cleanupServer()
	pub := &fakePublisher{}
	m, err := buildmanager.New(srv, fastOptions()...)
	require.NoError(t, err)
	s := m.NewSession(pub, token)

	_, err = s.Cancel(context.Background(), "app")
	require.NoError(t, err)

	// The queue fake is static, so only the build side can be observed
	// converging.
	removed, err := s.Cancel(context.Background(), "app")
	require.NoError(t, err)
	require.False(t, removed)
	require.Len(t, pub.calls, 1)
}

func TestCancel_UnknownJob(t *testing.T) {
	t.Parallel()
	srv := cleanupServer()
	m, err := buildmanager.New(srv, fastOptions()...)
	require.NoError(t, err)

	removed, err := m.Cancel(context.Background(), "missing", token)
	require.NoError(t, err)
	require.False(t, removed)
	require.Empty(t, srv.cancelled)
}

func TestCancel_RequiresToken(t *testing.T) {
	t.Parallel()
	m, err := buildmanager.New(cleanupServer(), fastOptions()...)
	require.NoError(t, err)

	_, err = m.Cancel(context.Background(), "app", "")
	require.Error(t, err)
}
