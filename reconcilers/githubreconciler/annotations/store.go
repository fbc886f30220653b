/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package annotations publishes pull request comments addressed by a
// logical id. Publishing under an id replaces whatever was previously
// published under it, so repeated runs leave exactly one comment per id.
package annotations

import (
	"context"
	"fmt"

	"chainguard.dev/prbuild/reconcilers/githubreconciler"
	"chainguard.dev/prbuild/retry"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var publishCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "prbuild_annotations_total",
		Help: "Annotation operations performed against pull requests",
	},
	[]string{"action"},
)

// IssueComments is the subset of the GitHub issues API used by Store.
type IssueComments interface {
	ListComments(ctx context.Context, owner, repo string, number int, opts *github.IssueListCommentsOptions) ([]*github.IssueComment, *github.Response, error)
	CreateComment(ctx context.Context, owner, repo string, number int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error)
	DeleteComment(ctx context.Context, owner, repo string, commentID int64) (*github.Response, error)
}

// Option customizes the Store.
type Option func(*Store)

// WithRetry overrides the budget for creating comments.
func WithRetry(cfg retry.Config) Option {
	return func(s *Store) { s.retry = cfg }
}

// Store publishes annotations onto a single pull request.
type Store struct {
	client IssueComments
	owner  string
	repo   string
	number int
	retry  retry.Config
}

// New constructs a Store for the pull request identified by res.
func New(client IssueComments, res *githubreconciler.Resource, opts ...Option) *Store {
	s := &Store{
		client: client,
		owner:  res.Owner,
		repo:   res.Repo,
		number: res.Number,
		retry:  retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish replaces the annotation identified by id with body, tagged with
// payload. Failures to read or remove prior annotations are logged and do
// not prevent the new one from being created.
func (s *Store) Publish(ctx context.Context, id, body string, payload any) error {
	log := clog.FromContext(ctx).With("annotation", id)

	text, err := Embed(body, id, payload)
	if err != nil {
		return err
	}

	comments, err := s.comments(ctx)
	if err != nil {
		log.Warnf("Listing comments failed, assuming no prior annotation: %v", err)
	}
	for _, c := range comments {
		if !HasTag(c.GetBody(), id) {
			continue
		}
		if _, err := s.client.DeleteComment(ctx, s.owner, s.repo, c.GetID()); err != nil {
			log.With("comment", c.GetID()).Warnf("Deleting prior annotation failed: %v", err)
			continue
		}
		publishCounter.WithLabelValues("deleted").Inc()
	}

	created, err := retry.Do(ctx, s.retry, "create annotation", func(ctx context.Context) (*github.IssueComment, error) {
		c, _, err := s.client.CreateComment(ctx, s.owner, s.repo, s.number, &github.IssueComment{Body: github.Ptr(text)})
		return c, err
	})
	if err != nil {
		return fmt.Errorf("publishing annotation %s: %w", id, err)
	}
	publishCounter.WithLabelValues("created").Inc()
	log.With("comment", created.GetID()).Info("Annotation published")
	return nil
}

// Tags returns the tags of every comment on the pull request, in comment
// order.
func (s *Store) Tags(ctx context.Context) ([]Tag, error) {
	comments, err := s.comments(ctx)
	if err != nil {
		return nil, err
	}
	var tags []Tag
	for _, c := range comments {
		tags = append(tags, Extract(c.GetBody())...)
	}
	return tags, nil
}

func (s *Store) comments(ctx context.Context) ([]*github.IssueComment, error) {
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	var all []*github.IssueComment
	for {
		page, resp, err := s.client.ListComments(ctx, s.owner, s.repo, s.number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing comments: %w", err)
		}
		all = append(all, page...)
		if resp == nil || resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}
