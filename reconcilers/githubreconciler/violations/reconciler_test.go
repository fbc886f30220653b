/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package violations_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"chainguard.dev/prbuild/reconcilers/githubreconciler"
	"chainguard.dev/prbuild/reconcilers/githubreconciler/annotations"
	ghtesting "chainguard.dev/prbuild/reconcilers/githubreconciler/testing"
	"chainguard.dev/prbuild/reconcilers/githubreconciler/violations"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-github/v84/github"
	"github.com/stretchr/testify/require"
)

const (
	id  = "jenkins-app-pmd"
	sha = "abc123"
)

var res = &githubreconciler.Resource{Owner: "acme", Repo: "app", Number: 42}

func violation(msg string, line int) violations.Violation {
	return violations.Violation{Message: msg, File: "src/A.java", Severity: "3", Category: "design", Line: line}
}

// liveHashes returns the sorted hashes carried by comments tagged with id.
func liveHashes(t *testing.T, fake *ghtesting.Reviews) []string {
	t.Helper()
	var out []string
	for _, b := range fake.Bodies() {
		for _, tag := range annotations.Extract(b) {
			if tag.ID != id {
				continue
			}
			var p struct {
				Hash string `json:"hash"`
			}
			require.NoError(t, tag.Decode(&p))
			out = append(out, p.Hash)
		}
	}
	slices.Sort(out)
	return out
}

func hashes(vs ...violations.Violation) []string {
	var out []string
	for _, v := range vs {
		out = append(out, v.Hash())
	}
	slices.Sort(out)
	return out
}

func TestReconcile_PostThenDelete(t *testing.T) {
	t.Parallel()
	fake := &ghtesting.Reviews{}
	r := violations.New(fake, res, id)
	ctx := context.Background()
	h1 := violation("H1", 10)

	got, err := r.Reconcile(ctx, sha, []violations.Violation{h1})
	require.NoError(t, err)
	if diff := cmp.Diff(&violations.Result{Created: 1}, got); diff != "" {
		t.Errorf("first Reconcile() (-want, +got) = %s", diff)
	}
	require.Len(t, fake.Comments, 1)
	c := fake.Comments[0]
	require.Equal(t, "src/A.java", c.GetPath())
	require.Equal(t, 10, c.GetLine())
	require.Equal(t, "RIGHT", c.GetSide())
	require.Equal(t, sha, c.GetCommitID())

	got, err = r.Reconcile(ctx, sha, nil)
	require.NoError(t, err)
	if diff := cmp.Diff(&violations.Result{Deleted: 1}, got); diff != "" {
		t.Errorf("second Reconcile() (-want, +got) = %s", diff)
	}
	require.Empty(t, fake.Comments)
}

func TestReconcile_SetProperty(t *testing.T) {
	t.Parallel()

	a, b, c, d := violation("a", 1), violation("b", 2), violation("c", 3), violation("d", 4)
	for _, tc := range []struct {
		name   string
		before []violations.Violation
		after  []violations.Violation
		want   violations.Result
	}{{
		name:  "from nothing",
		after: []violations.Violation{a, b},
		want:  violations.Result{Created: 2},
	}, {
		name:   "partial overlap",
		before: []violations.Violation{a, b, c},
		after:  []violations.Violation{b, c, d},
		want:   violations.Result{Created: 1, Deleted: 1, Unchanged: 2},
	}, {
		name:   "disjoint",
		before: []violations.Violation{a, b},
		after:  []violations.Violation{c, d},
		want:   violations.Result{Created: 2, Deleted: 2},
	}, {
		name:   "duplicates in input",
		before: []violations.Violation{a},
		after:  []violations.Violation{a, a, b, b},
		want:   violations.Result{Created: 1, Unchanged: 1},
	}} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fake := &ghtesting.Reviews{PageSize: 2}
			fake.Seed(&github.PullRequestComment{Body: github.Ptr("a human review comment")})
			r := violations.New(fake, res, id)
			ctx := context.Background()

			_, err := r.Reconcile(ctx, sha, tc.before)
			require.NoError(t, err)

			got, err := r.Reconcile(ctx, sha, tc.after)
			require.NoError(t, err)
			if diff := cmp.Diff(&tc.want, got); diff != "" {
				t.Errorf("Reconcile() (-want, +got) = %s", diff)
			}
			if diff := cmp.Diff(hashes(slices.Compact(slices.Clone(tc.after))...), liveHashes(t, fake)); diff != "" {
				t.Errorf("live hashes (-want, +got) = %s", diff)
			}
			require.Contains(t, fake.Bodies(), "a human review comment")

			// Running again over the same input is a no-op.
			again, err := r.Reconcile(ctx, sha, tc.after)
			require.NoError(t, err)
			require.Zero(t, again.Created)
			require.Zero(t, again.Deleted)
		})
	}
}

func TestReconcile_RemovesDuplicateComments(t *testing.T) {
	t.Parallel()
	fake := &ghtesting.Reviews{}
	a := violation("a", 1)
	for range 3 {
		body, err := annotations.Embed("dup", id, map[string]string{"hash": a.Hash()})
		require.NoError(t, err)
		fake.Seed(&github.PullRequestComment{Body: github.Ptr(body)})
	}

	got, err := violations.New(fake, res, id).Reconcile(context.Background(), sha, []violations.Violation{a})
	require.NoError(t, err)
	if diff := cmp.Diff(&violations.Result{Deleted: 2, Unchanged: 1}, got); diff != "" {
		t.Errorf("Reconcile() (-want, +got) = %s", diff)
	}
	require.Len(t, fake.Comments, 1)
}

func TestReconcile_IgnoresOtherIDs(t *testing.T) {
	t.Parallel()
	fake := &ghtesting.Reviews{}
	body, err := annotations.Embed("other job", "jenkins-lib-pmd", map[string]string{"hash": "x"})
	require.NoError(t, err)
	fake.Seed(&github.PullRequestComment{Body: github.Ptr(body)})

	got, err := violations.New(fake, res, id).Reconcile(context.Background(), sha, nil)
	require.NoError(t, err)
	require.Zero(t, got.Deleted)
	require.Len(t, fake.Comments, 1)
}

func TestReconcile_Undelivered(t *testing.T) {
	t.Parallel()
	fake := &ghtesting.Reviews{
		Reject: func(c *github.PullRequestComment) bool { return c.GetLine() > 100 },
	}
	r := violations.New(fake, res, id)

	got, err := r.Reconcile(context.Background(), sha, []violations.Violation{violation("in diff", 5), violation("outside diff", 500)})
	require.NoError(t, err)
	if diff := cmp.Diff(&violations.Result{Created: 1, Undelivered: 1}, got); diff != "" {
		t.Errorf("Reconcile() (-want, +got) = %s", diff)
	}

	// The undelivered finding is retried on the next run and nothing else moves.
	got, err = r.Reconcile(context.Background(), sha, []violations.Violation{violation("in diff", 5), violation("outside diff", 500)})
	require.NoError(t, err)
	if diff := cmp.Diff(&violations.Result{Unchanged: 1, Undelivered: 1}, got); diff != "" {
		t.Errorf("Reconcile() (-want, +got) = %s", diff)
	}
}

func TestReconcile_ListFailure(t *testing.T) {
	t.Parallel()
	fake := &ghtesting.Reviews{ListErr: ghtesting.ErrInjected}

	_, err := violations.New(fake, res, id).Reconcile(context.Background(), sha, []violations.Violation{violation("a", 1)})
	require.ErrorIs(t, err, ghtesting.ErrInjected)
	require.Zero(t, fake.Creates)
}

func TestIsUnprocessable(t *testing.T) {
	t.Parallel()
	require.True(t, violations.IsUnprocessable(ghtesting.Unprocessable("nope")))
	require.True(t, violations.IsUnprocessable(fmt.Errorf("wrapped: %w", ghtesting.Unprocessable("nope"))))
	require.False(t, violations.IsUnprocessable(errors.New("plain")))
	require.False(t, violations.IsUnprocessable(&github.ErrorResponse{}))
}

func TestID(t *testing.T) {
	t.Parallel()
	require.Equal(t, "jenkins-app", violations.ID("app", ""))
	require.Equal(t, "jenkins-app-pmd", violations.ID("app", "pmd"))
}
