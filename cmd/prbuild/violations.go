/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/prbuild/jenkins"
	"chainguard.dev/prbuild/reconcilers/githubreconciler"
	"chainguard.dev/prbuild/reconcilers/githubreconciler/violations"
	"chainguard.dev/prbuild/retry"
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
)

type violationsConfig struct {
	Jenkins jenkinsConfig
	GitHub  githubConfig

	Job               string `env:"INPUT_JOB_NAME,required"`
	BuildNumber       int    `env:"INPUT_BUILD_NUMBER,required"`
	JobTypeIdentifier string `env:"INPUT_JOB_TYPE_IDENTIFIER"`
	ArtifactName      string `env:"INPUT_ARTIFACT_NAME,default=pmd.zip"`
}

func newViolationsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "violations",
		Short: "Mirror the static analysis findings of a build as review comments",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(ctx context.Context) error {
			var cfg violationsConfig
			if err := a.load(ctx, &cfg); err != nil {
				return err
			}
			return runViolations(ctx, cfg)
		}),
	}
}

// findArtifact returns the relative path of the first artifact called name.
func findArtifact(b *jenkins.Build, name string) (string, bool) {
	for _, a := range b.Artifacts {
		if a.FileName == name {
			return a.RelativePath, true
		}
	}
	return "", false
}

func runViolations(ctx context.Context, cfg violationsConfig) error {
	jc, err := cfg.Jenkins.client(ctx)
	if err != nil {
		return err
	}
	pr, err := cfg.GitHub.pullRequest(ctx)
	if err != nil {
		return err
	}
	if pr.clients.Anonymous {
		return errors.New("GitHub credentials are required to report violations")
	}
	snapshot, err := githubreconciler.FetchPullRequest(ctx, pr.clients.GraphQL, pr.res)
	if err != nil {
		return err
	}

	buildURL := jc.BuildURL(cfg.Job, cfg.BuildNumber)
	build, err := retry.Do(ctx, retry.DefaultConfig(), "fetch build", func(ctx context.Context) (*jenkins.Build, error) {
		return jc.Build(ctx, buildURL)
	})
	if err != nil {
		return err
	}
	path, ok := findArtifact(build, cfg.ArtifactName)
	if !ok {
		return fmt.Errorf("build %s has no artifact %s", build.URL, cfg.ArtifactName)
	}
	data, err := jc.Artifact(ctx, build.URL, path)
	if err != nil {
		return err
	}
	found, err := violations.ParseArchive(ctx, data)
	if err != nil {
		return err
	}

	id := violations.ID(cfg.Job, cfg.JobTypeIdentifier)
	res, err := violations.New(pr.clients.REST.PullRequests, pr.res, id).Reconcile(ctx, snapshot.HeadSHA, found)
	if err != nil {
		return err
	}
	clog.FromContext(ctx).
		With("created", res.Created).
		With("deleted", res.Deleted).
		With("unchanged", res.Unchanged).
		With("undelivered", res.Undelivered).
		Info("Violations reconciled")
	return nil
}
