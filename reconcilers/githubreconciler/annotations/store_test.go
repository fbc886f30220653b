/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package annotations_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"chainguard.dev/prbuild/reconcilers/githubreconciler"
	"chainguard.dev/prbuild/reconcilers/githubreconciler/annotations"
	ghtesting "chainguard.dev/prbuild/reconcilers/githubreconciler/testing"
	"chainguard.dev/prbuild/retry"
	"github.com/stretchr/testify/require"
)

var res = &githubreconciler.Resource{Owner: "acme", Repo: "app", Number: 42}

func fastRetry() annotations.Option {
	return annotations.WithRetry(retry.Config{Timeout: 50 * time.Millisecond, Interval: time.Millisecond})
}

func countTagged(bodies []string, id string) int {
	n := 0
	for _, b := range bodies {
		if annotations.HasTag(b, id) {
			n++
		}
	}
	return n
}

func TestPublish_Idempotent(t *testing.T) {
	t.Parallel()
	fake := &ghtesting.Issues{}
	fake.Seed("a human comment")
	store := annotations.New(fake, res, fastRetry())
	ctx := context.Background()

	require.NoError(t, store.Publish(ctx, "jenkins-app", "Build started", nil))
	require.NoError(t, store.Publish(ctx, "jenkins-app", "Build finished", nil))
	require.NoError(t, store.Publish(ctx, "jenkins-app", "Build finished", nil))

	bodies := fake.Bodies()
	require.Len(t, bodies, 2)
	require.Equal(t, "a human comment", bodies[0])
	require.Equal(t, 1, countTagged(bodies, "jenkins-app"))
	require.True(t, strings.HasPrefix(bodies[1], "Build finished\n<!--"))
}

func TestPublish_IndependentIDs(t *testing.T) {
	t.Parallel()
	fake := &ghtesting.Issues{}
	store := annotations.New(fake, res, fastRetry())
	ctx := context.Background()

	require.NoError(t, store.Publish(ctx, "jenkins-app", "app", nil))
	require.NoError(t, store.Publish(ctx, "jenkins-lib", "lib", nil))
	require.NoError(t, store.Publish(ctx, "jenkins-app", "app again", nil))

	bodies := fake.Bodies()
	require.Equal(t, 1, countTagged(bodies, "jenkins-app"))
	require.Equal(t, 1, countTagged(bodies, "jenkins-lib"))
}

func TestPublish_RemovesEveryDuplicate(t *testing.T) {
	t.Parallel()
	fake := &ghtesting.Issues{PageSize: 1}
	for range 3 {
		body, err := annotations.Embed("stale", "jenkins-app", nil)
		require.NoError(t, err)
		fake.Seed(body)
	}
	store := annotations.New(fake, res, fastRetry())

	require.NoError(t, store.Publish(context.Background(), "jenkins-app", "fresh", nil))

	bodies := fake.Bodies()
	require.Len(t, bodies, 1)
	require.True(t, strings.HasPrefix(bodies[0], "fresh"))
	require.Equal(t, 3, fake.Deletes)
}

func TestPublish_ListFailureStillCreates(t *testing.T) {
	t.Parallel()
	fake := &ghtesting.Issues{ListErr: ghtesting.ErrInjected}
	store := annotations.New(fake, res, fastRetry())

	require.NoError(t, store.Publish(context.Background(), "jenkins-app", "body", nil))
	require.Equal(t, 1, fake.Creates)
}

func TestPublish_DeleteFailureStillCreates(t *testing.T) {
	t.Parallel()
	fake := &ghtesting.Issues{DeleteErr: ghtesting.ErrInjected}
	body, err := annotations.Embed("stale", "jenkins-app", nil)
	require.NoError(t, err)
	fake.Seed(body)
	store := annotations.New(fake, res, fastRetry())

	require.NoError(t, store.Publish(context.Background(), "jenkins-app", "fresh", nil))
	require.Equal(t, 1, fake.Creates)
}

func TestPublish_RetriesCreate(t *testing.T) {
	t.Parallel()
	fake := &ghtesting.Issues{CreateFailures: 2}
	store := annotations.New(fake, res, annotations.WithRetry(retry.Config{Timeout: time.Second, Interval: time.Millisecond}))

	require.NoError(t, store.Publish(context.Background(), "jenkins-app", "body", nil))
	require.Equal(t, 1, fake.Creates)
}

func TestPublish_CreateExhausted(t *testing.T) {
	t.Parallel()
	fake := &ghtesting.Issues{CreateFailures: 1000}
	store := annotations.New(fake, res, annotations.WithRetry(retry.Config{Timeout: 5 * time.Millisecond, Interval: time.Millisecond}))

	err := store.Publish(context.Background(), "jenkins-app", "body", nil)
	require.ErrorIs(t, err, retry.ErrExhausted)
	require.ErrorIs(t, err, ghtesting.ErrInjected)
}

func TestTags(t *testing.T) {
	t.Parallel()
	fake := &ghtesting.Issues{PageSize: 1}
	store := annotations.New(fake, res, fastRetry())
	ctx := context.Background()

	require.NoError(t, store.Publish(ctx, "a", "first", []int{1}))
	fake.Seed("untagged")
	require.NoError(t, store.Publish(ctx, "b", "second", nil))

	tags, err := store.Tags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	require.Equal(t, "a", tags[0].ID)
	require.Equal(t, "b", tags[1].ID)
}
