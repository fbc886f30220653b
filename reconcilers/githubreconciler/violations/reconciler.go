/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package violations keeps inline review comments on a pull request in
// sync with the static analysis findings of its latest build.
//
// Every comment carries the hash of the finding it reports. Reconciling
// deletes comments whose finding disappeared, creates comments for new
// findings, and leaves the rest untouched, so repeated runs over the same
// findings change nothing.
package violations

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"chainguard.dev/prbuild/reconcilers/githubreconciler"
	"chainguard.dev/prbuild/reconcilers/githubreconciler/annotations"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var violationCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "prbuild_violation_comments_total",
		Help: "Violation review comments by reconciliation action",
	},
	[]string{"action"},
)

// ReviewComments is the subset of the GitHub pull request review comment
// API used by Reconciler.
type ReviewComments interface {
	ListComments(ctx context.Context, owner, repo string, number int, opts *github.PullRequestListCommentsOptions) ([]*github.PullRequestComment, *github.Response, error)
	CreateComment(ctx context.Context, owner, repo string, number int, comment *github.PullRequestComment) (*github.PullRequestComment, *github.Response, error)
	DeleteComment(ctx context.Context, owner, repo string, commentID int64) (*github.Response, error)
}

// IsUnprocessable reports whether GitHub refused a request with HTTP 422,
// as it does for comments on lines outside the diff.
func IsUnprocessable(err error) bool {
	var ger *github.ErrorResponse
	return errors.As(err, &ger) && ger.Response != nil && ger.Response.StatusCode == http.StatusUnprocessableEntity
}

// ID returns the logical id of the violation comments for a job.
func ID(job, kind string) string {
	if kind == "" {
		return "jenkins-" + job
	}
	return "jenkins-" + job + "-" + kind
}

type payload struct {
	Hash string `json:"hash"`
}

// Result counts what a reconciliation did.
type Result struct {
	Created     int
	Deleted     int
	Unchanged   int
	Undelivered int
}

// Reconciler manages the violation comments of one logical id on a pull
// request.
type Reconciler struct {
	client ReviewComments
	owner  string
	repo   string
	number int
	id     string
}

// New constructs a Reconciler for res whose comments are tagged with id.
func New(client ReviewComments, res *githubreconciler.Resource, id string) *Reconciler {
	return &Reconciler{
		client: client,
		owner:  res.Owner,
		repo:   res.Repo,
		number: res.Number,
		id:     id,
	}
}

// Reconcile makes the set of tagged comments match fresh. New comments
// are anchored on commitSHA.
func (r *Reconciler) Reconcile(ctx context.Context, commitSHA string, fresh []Violation) (*Result, error) {
	log := clog.FromContext(ctx).With("annotation", r.id)

	live, err := r.live(ctx)
	if err != nil {
		return nil, err
	}

	want := make(map[string]Violation, len(fresh))
	var order []string
	for _, v := range fresh {
		h := v.Hash()
		if _, ok := want[h]; ok {
			continue
		}
		want[h] = v
		order = append(order, h)
	}

	res := &Result{}
	kept := map[string]bool{}
	for _, c := range live {
		// Keep the first comment per hash; later copies are duplicates.
		if _, ok := want[c.hash]; ok && !kept[c.hash] {
			kept[c.hash] = true
			res.Unchanged++
			continue
		}
		if _, err := r.client.DeleteComment(ctx, r.owner, r.repo, c.id); err != nil {
			var ger *github.ErrorResponse
			if errors.As(err, &ger) && ger.Response != nil && ger.Response.StatusCode == http.StatusNotFound {
				continue
			}
			return res, fmt.Errorf("deleting comment %d: %w", c.id, err)
		}
		violationCounter.WithLabelValues("deleted").Inc()
		res.Deleted++
	}

	for _, h := range order {
		if kept[h] {
			continue
		}
		v := want[h]
		body, err := annotations.Embed(render(v), r.id, payload{Hash: h})
		if err != nil {
			return res, err
		}
		_, _, err = r.client.CreateComment(ctx, r.owner, r.repo, r.number, &github.PullRequestComment{
			Body:     github.Ptr(body),
			CommitID: github.Ptr(commitSHA),
			Path:     github.Ptr(v.File),
			Line:     github.Ptr(v.Line),
			Side:     github.Ptr("RIGHT"),
		})
		switch {
		case err == nil:
			violationCounter.WithLabelValues("created").Inc()
			res.Created++
		case IsUnprocessable(err):
			log.With("violation", v.String()).Infof("GitHub refused the comment, likely outside the diff: %v", err)
			violationCounter.WithLabelValues("undelivered").Inc()
			res.Undelivered++
		default:
			return res, fmt.Errorf("commenting on %s:%d: %w", v.File, v.Line, err)
		}
	}

	log.With("created", res.Created).
		With("deleted", res.Deleted).
		With("unchanged", res.Unchanged).
		With("undelivered", res.Undelivered).
		Info("Violations reconciled")
	return res, nil
}

type liveComment struct {
	id   int64
	hash string
}

func (r *Reconciler) live(ctx context.Context) ([]liveComment, error) {
	opts := &github.PullRequestListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	var out []liveComment
	for {
		page, resp, err := r.client.ListComments(ctx, r.owner, r.repo, r.number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing review comments: %w", err)
		}
		for _, c := range page {
			for _, t := range annotations.Extract(c.GetBody()) {
				if t.ID != r.id {
					continue
				}
				var p payload
				if err := t.Decode(&p); err != nil {
					clog.FromContext(ctx).With("comment", c.GetID()).Warnf("Ignoring tag with unreadable payload: %v", err)
					continue
				}
				out = append(out, liveComment{id: c.GetID(), hash: p.Hash})
				break
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func render(v Violation) string {
	return fmt.Sprintf("**%s** `%s`\n\n%s", v.Severity, v.Category, v.Message)
}
