/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics ships the counters recorded during a single action run to
// a Prometheus Pushgateway. Runs are short lived, so there is nothing to
// scrape.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Config selects the Pushgateway. An empty URL disables pushing.
type Config struct {
	URL string `env:"INPUT_PUSHGATEWAY_URL"`
	Job string `env:"INPUT_PUSHGATEWAY_JOB,default=prbuild"`
}

// Option configures a Pusher.
type Option func(*pusher)

type pusher struct {
	gatherer prometheus.Gatherer
	client   *http.Client
	grouping map[string]string
}

// WithGatherer overrides the registry that is pushed.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(p *pusher) { p.gatherer = g }
}

// WithHTTPClient overrides the HTTP client used to reach the gateway.
func WithHTTPClient(c *http.Client) Option {
	return func(p *pusher) { p.client = c }
}

// WithGrouping adds a grouping label to the pushed metrics.
func WithGrouping(name, value string) Option {
	return func(p *pusher) { p.grouping[name] = value }
}

// Push adds the gathered metrics to the configured gateway. Existing
// series of other runs in the same group are left in place.
func Push(ctx context.Context, cfg Config, opts ...Option) error {
	if cfg.URL == "" {
		return nil
	}
	p := &pusher{
		gatherer: prometheus.DefaultGatherer,
		client:   http.DefaultClient,
		grouping: map[string]string{},
	}
	for _, opt := range opts {
		opt(p)
	}

	pu := push.New(cfg.URL, cfg.Job).Gatherer(p.gatherer).Client(p.client)
	for k, v := range p.grouping {
		pu = pu.Grouping(k, v)
	}
	if err := pu.AddContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", cfg.URL, err)
	}
	clog.FromContext(ctx).With("gateway", cfg.URL).Debug("Pushed metrics")
	return nil
}
