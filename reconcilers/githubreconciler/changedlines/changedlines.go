/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package changedlines extracts the lines a pull request adds, so that
// downstream analysis can be restricted to them.
package changedlines

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"chainguard.dev/prbuild/reconcilers/githubreconciler"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/waigani/diffparser"
)

// PullRequestFiles is the subset of the GitHub pull request API used here.
type PullRequestFiles interface {
	ListFiles(ctx context.Context, owner, repo string, number int, opts *github.ListOptions) ([]*github.CommitFile, *github.Response, error)
}

// File lists the added lines of one changed file.
type File struct {
	Path        string `json:"path"`
	LineNumbers []int  `json:"lineNumbers"`
	IsNewFile   bool   `json:"isNewFile"`
}

// ListFiles returns every file changed by the pull request.
func ListFiles(ctx context.Context, client PullRequestFiles, res *githubreconciler.Resource) ([]*github.CommitFile, error) {
	opts := &github.ListOptions{PerPage: 100}
	var all []*github.CommitFile
	for {
		page, resp, err := client.ListFiles(ctx, res.Owner, res.Repo, res.Number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing files of %s: %w", res, err)
		}
		all = append(all, page...)
		if resp == nil || resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

// FromPatch computes the added lines of path from its unified diff hunks,
// as GitHub reports them without file headers.
func FromPatch(path, patch string) (*File, error) {
	f := &File{Path: path}
	if strings.TrimSpace(patch) == "" {
		return f, nil
	}
	f.IsNewFile = strings.HasPrefix(patch, "@@ -0,0 ")

	orig := "a/" + path
	if f.IsNewFile {
		orig = "/dev/null"
	}
	full := fmt.Sprintf("diff --git a/%[1]s b/%[1]s\n--- %[2]s\n+++ b/%[1]s\n%[3]s", path, orig, strings.TrimSuffix(patch, "\n")+"\n")
	d, err := diffparser.Parse(full)
	if err != nil {
		return nil, fmt.Errorf("parsing patch of %s: %w", path, err)
	}
	for _, df := range d.Files {
		for _, h := range df.Hunks {
			for _, l := range h.NewRange.Lines {
				if l.Mode == diffparser.ADDED {
					f.LineNumbers = append(f.LineNumbers, l.Number)
				}
			}
		}
	}
	return f, nil
}

// Collect returns the added lines of every changed file. Files without
// added lines, such as deletions or binary files, are omitted.
func Collect(ctx context.Context, files []*github.CommitFile) ([]File, error) {
	out := make([]File, 0, len(files))
	for _, cf := range files {
		f, err := FromPatch(cf.GetFilename(), cf.GetPatch())
		if err != nil {
			return nil, err
		}
		clog.FromContext(ctx).With("file", f.Path).With("lines", len(f.LineNumbers)).Debug("File processed")
		if len(f.LineNumbers) == 0 {
			continue
		}
		out = append(out, *f)
	}
	return out, nil
}

// Encode renders files as base64-encoded JSON, safe to pass through a
// single-line step output.
func Encode(files []File) (string, error) {
	if files == nil {
		files = []File{}
	}
	b, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("encoding changed lines: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
