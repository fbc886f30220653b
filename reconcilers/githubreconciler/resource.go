/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package githubreconciler holds the pull request context shared by the
// reconcilers that publish build results back onto GitHub.
package githubreconciler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Resource identifies the pull request being reconciled.
type Resource struct {
	Owner  string
	Repo   string
	Number int

	// HeadCloneURL is the clone URL of the repository the head branch lives in.
	HeadCloneURL string
	// HeadRef is the head branch name.
	HeadRef string
	// HeadSHA is the head commit at the time the event fired.
	HeadSHA string
	// Draft reports whether the pull request was a draft when the event fired.
	Draft bool
}

// String renders the resource as owner/repo#number.
func (r *Resource) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// CorrelationToken is the value stamped on every build triggered for this
// pull request, used later to find those builds again.
func (r *Resource) CorrelationToken() string {
	return r.HeadCloneURL + "#" + r.HeadRef
}

type event struct {
	Number      int `json:"number"`
	PullRequest *struct {
		Number int  `json:"number"`
		Draft  bool `json:"draft"`
		Head   struct {
			Ref  string `json:"ref"`
			SHA  string `json:"sha"`
			Repo struct {
				CloneURL string `json:"clone_url"`
			} `json:"repo"`
		} `json:"head"`
		Base struct {
			Repo struct {
				FullName string `json:"full_name"`
			} `json:"repo"`
		} `json:"base"`
	} `json:"pull_request"`
}

// LoadEvent reads a pull_request webhook payload, as written by GitHub
// Actions at $GITHUB_EVENT_PATH.
func LoadEvent(path string) (*Resource, error) {
	if path == "" {
		return nil, errors.New("event path is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading event: %w", err)
	}
	return ParseEvent(b)
}

// ParseEvent decodes a pull_request webhook payload.
func ParseEvent(b []byte) (*Resource, error) {
	var ev event
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}
	if ev.PullRequest == nil {
		return nil, errors.New("event does not describe a pull request")
	}
	owner, repo, ok := strings.Cut(ev.PullRequest.Base.Repo.FullName, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("malformed base repository %q", ev.PullRequest.Base.Repo.FullName)
	}
	number := ev.Number
	if number == 0 {
		number = ev.PullRequest.Number
	}
	if number <= 0 {
		return nil, errors.New("event is missing the pull request number")
	}
	return &Resource{
		Owner:        owner,
		Repo:         repo,
		Number:       number,
		HeadCloneURL: ev.PullRequest.Head.Repo.CloneURL,
		HeadRef:      ev.PullRequest.Head.Ref,
		HeadSHA:      ev.PullRequest.Head.SHA,
		Draft:        ev.PullRequest.Draft,
	}, nil
}
