/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/prbuild/reconcilers/buildmanager"
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const maxParallelJobs = 4

type discardBuildsConfig struct {
	Jenkins jenkinsConfig
	GitHub  githubConfig

	JobNames             string `env:"INPUT_JOB_NAMES,required"`
	CorrelationParameter string `env:"INPUT_CORRELATION_PARAMETER,default=PR_SOURCE"`
}

func newDiscardBuildsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discard-builds",
		Short: "Cancel, stop and delete the builds triggered for the pull request",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(ctx context.Context) error {
			var cfg discardBuildsConfig
			if err := a.load(ctx, &cfg); err != nil {
				return err
			}
			return runDiscardBuilds(ctx, cfg)
		}),
	}
}

func runDiscardBuilds(ctx context.Context, cfg discardBuildsConfig) error {
	jobs := splitList(cfg.JobNames)
	if len(jobs) == 0 {
		return errors.New("no job names given")
	}
	jc, err := cfg.Jenkins.client(ctx)
	if err != nil {
		return err
	}
	mgr, err := buildmanager.New(jc, buildmanager.WithCorrelationParameter(cfg.CorrelationParameter))
	if err != nil {
		return err
	}
	pr, err := cfg.GitHub.pullRequest(ctx)
	if err != nil {
		return err
	}
	var pub buildmanager.Publisher
	if store := pr.store(); store != nil {
		pub = store
	}

	session := mgr.NewSession(pub, pr.res.CorrelationToken())
	// Jobs are independent; one failing does not stop the others.
	errs := make([]error, len(jobs))
	var g errgroup.Group
	g.SetLimit(maxParallelJobs)
	for i, job := range jobs {
		g.Go(func() error {
			removed, err := session.Cancel(ctx, job)
			if err != nil {
				errs[i] = err
				return nil
			}
			clog.FromContext(ctx).With("job", job).With("removed", removed).Info("Builds discarded")
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

type discardLogsConfig struct {
	Jenkins jenkinsConfig
	GitHub  githubConfig
}

func newDiscardLogsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discard-logs",
		Short: "Stop retaining the logs of builds previously run for the pull request",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(ctx context.Context) error {
			var cfg discardLogsConfig
			if err := a.load(ctx, &cfg); err != nil {
				return err
			}
			return runDiscardLogs(ctx, cfg)
		}),
	}
}

func runDiscardLogs(ctx context.Context, cfg discardLogsConfig) error {
	jc, err := cfg.Jenkins.client(ctx)
	if err != nil {
		return err
	}
	mgr, err := buildmanager.New(jc)
	if err != nil {
		return err
	}
	pr, err := cfg.GitHub.pullRequest(ctx)
	if err != nil {
		return err
	}
	store := pr.store()
	if store == nil {
		return errors.New("GitHub credentials are required to discard logs")
	}
	tags, err := store.Tags(ctx)
	if err != nil {
		return err
	}
	entries, err := mgr.NewSession(store, pr.res.CorrelationToken()).DiscardLogs(ctx, tags)
	if err != nil {
		return fmt.Errorf("discarding logs: %w", err)
	}
	clog.FromContext(ctx).With("builds", len(entries)).Info("Build logs discarded")
	return nil
}
