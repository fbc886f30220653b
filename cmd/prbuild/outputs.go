/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"

	"chainguard.dev/prbuild/reconcilers/buildmanager/parameters"
	"chainguard.dev/prbuild/reconcilers/githubreconciler/changedlines"
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
)

type changedLinesConfig struct {
	GitHub githubConfig
	Output string `env:"GITHUB_OUTPUT,required"`
}

func newChangedLinesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "changed-lines",
		Short: "Write the lines added by the pull request to the step outputs",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(ctx context.Context) error {
			var cfg changedLinesConfig
			if err := a.load(ctx, &cfg); err != nil {
				return err
			}
			return runChangedLines(ctx, cfg)
		}),
	}
}

func runChangedLines(ctx context.Context, cfg changedLinesConfig) error {
	pr, err := cfg.GitHub.pullRequest(ctx)
	if err != nil {
		return err
	}
	files, err := changedlines.ListFiles(ctx, pr.clients.REST.PullRequests, pr.res)
	if err != nil {
		return err
	}
	changed, err := changedlines.Collect(ctx, files)
	if err != nil {
		return err
	}
	encoded, err := changedlines.Encode(changed)
	if err != nil {
		return err
	}
	clog.FromContext(ctx).With("files", len(changed)).Info("Changed lines collected")
	return writeOutput(cfg.Output, "changed_files", encoded)
}

type extraParametersConfig struct {
	GitHub     githubConfig
	ConfigFile string `env:"INPUT_CONFIG_FILE_NAME,required"`
	Output     string `env:"GITHUB_OUTPUT,required"`
}

func newExtraParametersCommand(a *app) *cobra.Command {
	var printSchema bool
	cmd := &cobra.Command{
		Use:   "extra-parameters",
		Short: "Select build parameters from the paths the pull request touches",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().BoolVar(&printSchema, "schema", false, "print the JSON schema of the configuration file and exit")
	cmd.RunE = a.runE(func(ctx context.Context) error {
		if printSchema {
			b, err := parameters.SchemaJSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		}
		var cfg extraParametersConfig
		if err := a.load(ctx, &cfg); err != nil {
			return err
		}
		return runExtraParameters(ctx, cfg)
	})
	return cmd
}

func runExtraParameters(ctx context.Context, cfg extraParametersConfig) error {
	rules, err := parameters.Load(cfg.ConfigFile)
	if err != nil {
		return err
	}
	pr, err := cfg.GitHub.pullRequest(ctx)
	if err != nil {
		return err
	}
	files, err := changedlines.ListFiles(ctx, pr.clients.REST.PullRequests, pr.res)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.GetFilename())
	}
	clog.FromContext(ctx).With("files", names).Debug("Files updated")

	extra, err := compactJSON(rules.ExtraParameters(names))
	if err != nil {
		return err
	}
	clog.FromContext(ctx).With("extra_parameters", extra).Info("Extra parameters selected")
	return writeOutput(cfg.Output, "extra_parameters", extra)
}
