/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main implements prbuild, a set of GitHub Action steps that drive
// Jenkins builds for pull requests and report back on them.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chainguard.dev/prbuild/metrics"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
)

type rootConfig struct {
	LogLevel string `env:"INPUT_LOG_LEVEL,default=INFO"`
	Metrics  metrics.Config
}

// app carries what every subcommand shares.
type app struct {
	lookuper envconfig.Lookuper
	metrics  metrics.Config
}

func (a *app) load(ctx context.Context, target any) error {
	return envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   target,
		Lookuper: a.lookuper,
	})
}

// runE adapts a subcommand body, pushing the metrics it recorded whether
// or not it succeeded.
func (a *app) runE(fn func(ctx context.Context) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		err := fn(ctx)
		if perr := metrics.Push(ctx, a.metrics, metrics.WithGrouping("command", cmd.Name())); perr != nil {
			clog.FromContext(ctx).Warnf("Pushing metrics failed: %v", perr)
		}
		return err
	}
}

func parseLevel(s string) slog.Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "WARNING" {
		s = "WARN"
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func newRootCommand(lookuper envconfig.Lookuper) *cobra.Command {
	a := &app{lookuper: lookuper}
	root := &cobra.Command{
		Use:           "prbuild",
		Short:         "Run and report Jenkins builds for GitHub pull requests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var cfg rootConfig
			if err := a.load(cmd.Context(), &cfg); err != nil {
				return err
			}
			a.metrics = cfg.Metrics
			logger := clog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
			cmd.SetContext(clog.WithLogger(cmd.Context(), logger))
			return nil
		},
	}
	root.AddCommand(
		newCICommand(a),
		newDiscardBuildsCommand(a),
		newDiscardLogsCommand(a),
		newViolationsCommand(a),
		newChangedLinesCommand(a),
		newExtraParametersCommand(a),
	)
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand(envconfig.OsLookuper()).ExecuteContext(ctx); err != nil {
		clog.ErrorContextf(ctx, "prbuild: %v", err)
		cancel()
		os.Exit(1)
	}
}
