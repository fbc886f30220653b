/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildmanager

import (
	"time"

	"chainguard.dev/prbuild/retry"
)

const (
	// DefaultCorrelationParameter is the build parameter that carries the
	// correlation token.
	DefaultCorrelationParameter = "PR_SOURCE"

	// NotificationParameter, when present in a request, is filled with the
	// pull request's author emails.
	NotificationParameter = "NOTIFICATION_EMAIL"
)

// Option customizes the Manager.
type Option func(*config)

type config struct {
	connect   retry.Config
	submit    retry.Config
	start     retry.Config
	execution retry.Config
	details   retry.Config
	short     retry.Config
	cleanup   retry.Config

	correlationParameter string
	keepLogs             bool
}

func defaultConfig() *config {
	return &config{
		connect:   retry.DefaultConfig(),
		submit:    retry.DefaultConfig(),
		start:     retry.Config{Timeout: 10 * time.Minute, Interval: 10 * time.Second},
		execution: retry.Config{Timeout: time.Hour, Interval: 10 * time.Second},
		details:   retry.Config{Timeout: 10 * time.Minute, Interval: 10 * time.Second},
		short:     retry.DefaultConfig(),
		cleanup:   retry.DefaultConfig(),

		correlationParameter: DefaultCorrelationParameter,
		keepLogs:             true,
	}
}

// WithConnectRetry bounds the initial reachability probe.
func WithConnectRetry(cfg retry.Config) Option {
	return func(c *config) { c.connect = cfg }
}

// WithSubmitRetry bounds submitting the build request.
func WithSubmitRetry(cfg retry.Config) Option {
	return func(c *config) { c.submit = cfg }
}

// WithStartRetry bounds how long a request may wait in the queue before an
// executor picks it up.
func WithStartRetry(cfg retry.Config) Option {
	return func(c *config) { c.start = cfg }
}

// WithExecutionRetry bounds how long a running build is followed before
// the outcome is reported as TIMEOUT.
func WithExecutionRetry(cfg retry.Config) Option {
	return func(c *config) { c.execution = cfg }
}

// WithDetailsRetry bounds fetching the recorded build duration.
func WithDetailsRetry(cfg retry.Config) Option {
	return func(c *config) { c.details = cfg }
}

// WithShortRetry bounds single remote calls such as toggling log retention
// or reading the test report.
func WithShortRetry(cfg retry.Config) Option {
	return func(c *config) { c.short = cfg }
}

// WithCleanupRetry bounds each phase of Cancel.
func WithCleanupRetry(cfg retry.Config) Option {
	return func(c *config) { c.cleanup = cfg }
}

// WithCorrelationParameter renames the build parameter carrying the
// correlation token.
func WithCorrelationParameter(name string) Option {
	return func(c *config) {
		if name != "" {
			c.correlationParameter = name
		}
	}
}

// WithKeepLogs controls whether finished builds are marked to be kept.
func WithKeepLogs(enabled bool) Option {
	return func(c *config) { c.keepLogs = enabled }
}
