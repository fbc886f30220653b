/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubreconciler

import (
	"context"
	"fmt"
	"strings"

	"github.com/shurcooL/githubv4"
)

// Querier is the subset of *githubv4.Client used here.
type Querier interface {
	Query(ctx context.Context, q any, variables map[string]any) error
}

// PullRequest is a point-in-time view of the fields the build reconcilers
// act on.
type PullRequest struct {
	Draft        bool
	HeadRef      string
	HeadSHA      string
	HeadCloneURL string
	// Emails holds the author and commit author addresses, deduplicated in
	// the order they were first seen.
	Emails []string
}

// SkipCI reports whether builds should not be triggered for the pull
// request. Draft pull requests opened from merge_ branches are
// bookkeeping and never built.
func (pr *PullRequest) SkipCI() bool {
	return pr.Draft && strings.HasPrefix(pr.HeadRef, "merge_")
}

// CorrelationToken mirrors Resource.CorrelationToken using live data.
func (pr *PullRequest) CorrelationToken() string {
	return pr.HeadCloneURL + "#" + pr.HeadRef
}

// FetchPullRequest loads the current state of the pull request.
func FetchPullRequest(ctx context.Context, q Querier, res *Resource) (*PullRequest, error) {
	var query struct {
		Repository struct {
			PullRequest struct {
				IsDraft        bool
				HeadRefName    string
				HeadRefOid     string
				HeadRepository *struct {
					Url string
				}
				Author struct {
					User struct {
						Email string
					} `graphql:"... on User"`
				}
				Commits struct {
					Nodes []struct {
						Commit struct {
							Author struct {
								Email string
								User  *struct {
									Email string
								}
							}
						}
					}
				} `graphql:"commits(first: 100)"`
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}

	variables := map[string]any{
		"owner":  githubv4.String(res.Owner),
		"repo":   githubv4.String(res.Repo),
		"number": githubv4.Int(res.Number),
	}
	if err := q.Query(ctx, &query, variables); err != nil {
		return nil, fmt.Errorf("querying pull request %s: %w", res, err)
	}

	pr := query.Repository.PullRequest
	out := &PullRequest{
		Draft:   pr.IsDraft,
		HeadRef: pr.HeadRefName,
		HeadSHA: pr.HeadRefOid,
	}
	if pr.HeadRepository != nil {
		out.HeadCloneURL = pr.HeadRepository.Url + ".git"
	}

	seen := map[string]bool{}
	add := func(email string) {
		if email == "" || seen[email] {
			return
		}
		seen[email] = true
		out.Emails = append(out.Emails, email)
	}
	add(pr.Author.User.Email)
	for _, n := range pr.Commits.Nodes {
		// Prefer the linked GitHub account, fall back to the git author.
		if u := n.Commit.Author.User; u != nil && u.Email != "" {
			add(u.Email)
			continue
		}
		add(n.Commit.Author.Email)
	}
	return out, nil
}
