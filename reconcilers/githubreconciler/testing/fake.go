/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package testing provides in-memory fakes of the GitHub comment APIs.
package testing

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"

	"github.com/google/go-github/v84/github"
)

// Unprocessable builds the error go-github returns for an HTTP 422.
func Unprocessable(msg string) error {
	return &github.ErrorResponse{
		Response: &http.Response{StatusCode: http.StatusUnprocessableEntity},
		Message:  msg,
	}
}

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("injected failure")

func page[T any](items []T, opts github.ListOptions, size int) ([]T, *github.Response) {
	if opts.PerPage > 0 && (size == 0 || opts.PerPage < size) {
		size = opts.PerPage
	}
	if size <= 0 {
		size = len(items)
	}
	p := max(opts.Page, 1)
	start := min((p-1)*size, len(items))
	end := min(start+size, len(items))
	resp := &github.Response{}
	if end < len(items) {
		resp.NextPage = p + 1
	}
	return slices.Clone(items[start:end]), resp
}

// Issues fakes the issue comment endpoints for a single pull request.
type Issues struct {
	mu     sync.Mutex
	nextID int64

	Comments []*github.IssueComment
	// PageSize forces pagination when non-zero.
	PageSize int

	ListErr   error
	DeleteErr error
	// CreateFailures makes the first N creates fail with ErrInjected.
	CreateFailures int

	Creates int
	Deletes int
}

// Seed adds a comment as if it had been created earlier.
func (f *Issues) Seed(body string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.Comments = append(f.Comments, &github.IssueComment{ID: github.Ptr(f.nextID), Body: github.Ptr(body)})
	return f.nextID
}

// Bodies returns the current comment bodies in order.
func (f *Issues) Bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Comments))
	for _, c := range f.Comments {
		out = append(out, c.GetBody())
	}
	return out
}

func (f *Issues) ListComments(_ context.Context, _, _ string, _ int, opts *github.IssueListCommentsOptions) ([]*github.IssueComment, *github.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, nil, f.ListErr
	}
	var lo github.ListOptions
	if opts != nil {
		lo = opts.ListOptions
	}
	items, resp := page(f.Comments, lo, f.PageSize)
	return items, resp, nil
}

func (f *Issues) CreateComment(_ context.Context, _, _ string, _ int, comment *github.IssueComment) (*github.IssueComment, *github.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateFailures > 0 {
		f.CreateFailures--
		return nil, nil, ErrInjected
	}
	f.nextID++
	c := &github.IssueComment{ID: github.Ptr(f.nextID), Body: github.Ptr(comment.GetBody())}
	f.Comments = append(f.Comments, c)
	f.Creates++
	return c, &github.Response{}, nil
}

func (f *Issues) DeleteComment(_ context.Context, _, _ string, id int64) (*github.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return nil, f.DeleteErr
	}
	i := slices.IndexFunc(f.Comments, func(c *github.IssueComment) bool { return c.GetID() == id })
	if i < 0 {
		return nil, &github.ErrorResponse{Response: &http.Response{StatusCode: http.StatusNotFound}}
	}
	f.Comments = slices.Delete(f.Comments, i, i+1)
	f.Deletes++
	return &github.Response{}, nil
}

// Reviews fakes the pull request review comment endpoints.
type Reviews struct {
	mu     sync.Mutex
	nextID int64

	Comments []*github.PullRequestComment
	PageSize int

	ListErr error
	// Reject returns true for comments GitHub would refuse with a 422,
	// typically lines outside the diff.
	Reject func(*github.PullRequestComment) bool

	Creates int
	Deletes int
}

// Seed adds a review comment as if it had been created earlier.
func (f *Reviews) Seed(c *github.PullRequestComment) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.ID = github.Ptr(f.nextID)
	f.Comments = append(f.Comments, c)
	return f.nextID
}

// Bodies returns the current comment bodies in order.
func (f *Reviews) Bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Comments))
	for _, c := range f.Comments {
		out = append(out, c.GetBody())
	}
	return out
}

func (f *Reviews) ListComments(_ context.Context, _, _ string, _ int, opts *github.PullRequestListCommentsOptions) ([]*github.PullRequestComment, *github.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, nil, f.ListErr
	}
	var lo github.ListOptions
	if opts != nil {
		lo = opts.ListOptions
	}
	items, resp := page(f.Comments, lo, f.PageSize)
	return items, resp, nil
}

func (f *Reviews) CreateComment(_ context.Context, _, _ string, _ int, comment *github.PullRequestComment) (*github.PullRequestComment, *github.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Reject != nil && f.Reject(comment) {
		return nil, nil, Unprocessable("pull_request_review_thread.line must be part of the diff")
	}
	f.nextID++
	c := *comment
	c.ID = github.Ptr(f.nextID)
	f.Comments = append(f.Comments, &c)
	f.Creates++
	return &c, &github.Response{}, nil
}

func (f *Reviews) DeleteComment(_ context.Context, _, _ string, id int64) (*github.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.IndexFunc(f.Comments, func(c *github.PullRequestComment) bool { return c.GetID() == id })
	if i < 0 {
		return nil, &github.ErrorResponse{Response: &http.Response{StatusCode: http.StatusNotFound}}
	}
	f.Comments = slices.Delete(f.Comments, i, i+1)
	f.Deletes++
	return &github.Response{}, nil
}
