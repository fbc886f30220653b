/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"

	"chainguard.dev/prbuild/reconcilers/buildmanager"
	"chainguard.dev/prbuild/reconcilers/githubreconciler"
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
)

type ciConfig struct {
	Jenkins jenkinsConfig
	GitHub  githubConfig

	Job         string `env:"INPUT_JOB_NAME,required"`
	DisplayName string `env:"INPUT_DISPLAY_JOB_NAME"`
	Parameters  string `env:"INPUT_PARAMETERS"`

	// Timeouts and interval are in seconds.
	Timeout      int `env:"INPUT_TIMEOUT,default=3600"`
	StartTimeout int `env:"INPUT_START_TIMEOUT,default=600"`
	Interval     int `env:"INPUT_INTERVAL,default=10"`

	KeepLogs             bool   `env:"INPUT_KEEP_LOGS,default=true"`
	CorrelationParameter string `env:"INPUT_CORRELATION_PARAMETER,default=PR_SOURCE"`
}

func (c ciConfig) options() ([]buildmanager.Option, error) {
	start, err := phase(c.StartTimeout, c.Interval)
	if err != nil {
		return nil, fmt.Errorf("start timeout: %w", err)
	}
	exec, err := phase(c.Timeout, c.Interval)
	if err != nil {
		return nil, fmt.Errorf("timeout: %w", err)
	}
	return []buildmanager.Option{
		buildmanager.WithStartRetry(start),
		buildmanager.WithExecutionRetry(exec),
		buildmanager.WithKeepLogs(c.KeepLogs),
		buildmanager.WithCorrelationParameter(c.CorrelationParameter),
	}, nil
}

func newCICommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ci",
		Short: "Trigger a Jenkins build for the pull request and report its result",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(ctx context.Context) error {
			var cfg ciConfig
			if err := a.load(ctx, &cfg); err != nil {
				return err
			}
			return runCI(ctx, cfg)
		}),
	}
}

func runCI(ctx context.Context, cfg ciConfig) error {
	params, err := parseParameters(cfg.Parameters)
	if err != nil {
		return err
	}
	opts, err := cfg.options()
	if err != nil {
		return err
	}
	jc, err := cfg.Jenkins.client(ctx)
	if err != nil {
		return err
	}
	mgr, err := buildmanager.New(jc, opts...)
	if err != nil {
		return err
	}
	pr, err := cfg.GitHub.pullRequest(ctx)
	if err != nil {
		return err
	}
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("pr", pr.res.String()))

	req := buildmanager.Request{
		Job:         cfg.Job,
		DisplayName: cfg.DisplayName,
		Parameters:  params,
	}
	// Without credentials the event payload is all there is to go on.
	snapshot := &githubreconciler.PullRequest{
		Draft:        pr.res.Draft,
		HeadRef:      pr.res.HeadRef,
		HeadSHA:      pr.res.HeadSHA,
		HeadCloneURL: pr.res.HeadCloneURL,
	}
	var pub buildmanager.Publisher
	if store := pr.store(); store != nil {
		if snapshot, err = githubreconciler.FetchPullRequest(ctx, pr.clients.GraphQL, pr.res); err != nil {
			return err
		}
		pub = store
	}
	if snapshot.SkipCI() {
		clog.InfoContextf(ctx, "Skipping CI for draft merge branch %s", snapshot.HeadRef)
		return nil
	}
	req.Emails = snapshot.Emails

	out, err := mgr.NewSession(pub, snapshot.CorrelationToken()).Run(ctx, req)
	if out != nil {
		clog.FromContext(ctx).With("result", string(out.Result)).With("build", out.URL).Info("Build finished")
	}
	return err
}
