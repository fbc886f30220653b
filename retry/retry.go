/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
)

// ErrExhausted matches any *ExhaustedError via errors.Is.
var ErrExhausted = errors.New("retry exhausted")

// Config bounds a polling loop.
type Config struct {
	// Timeout is the total time budget. Once it has elapsed no further
	// attempt is started.
	Timeout time.Duration
	// Interval is the fixed pause between attempts.
	Interval time.Duration
}

// Validate checks that the configuration has usable values.
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	return nil
}

// MaxAttempts is the upper bound on the number of invocations a loop with
// this configuration performs.
func (c Config) MaxAttempts() int {
	if c.Interval <= 0 {
		return 1
	}
	n := c.Timeout / c.Interval
	if c.Timeout%c.Interval != 0 {
		n++
	}
	return int(n) + 1
}

// DefaultConfig is the budget used for short remote calls: one minute,
// polled every ten seconds.
func DefaultConfig() Config {
	return Config{
		Timeout:  60 * time.Second,
		Interval: 10 * time.Second,
	}
}

// Status is the outcome of a single polling attempt.
type Status int

const (
	// NotReady means the observed state has not settled yet.
	NotReady Status = iota
	// Ready means the attempt produced its final value.
	Ready
	// Failed means the attempt returned an error.
	Failed
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case NotReady:
		return "not-ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ExhaustedError is returned when the time budget runs out before an
// attempt reports Ready.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Elapsed   time.Duration
	// Last is the error from the final failed attempt, nil when the
	// final attempt was merely NotReady.
	Last error
}

func (e *ExhaustedError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("%s: gave up after %d attempts in %s: %v", e.Operation, e.Attempts, e.Elapsed.Round(time.Millisecond), e.Last)
	}
	return fmt.Sprintf("%s: not ready after %d attempts in %s", e.Operation, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Is reports ErrExhausted as a match.
func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Poll and Do return the
// underlying error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Poll invokes fn until it reports Ready, the configured timeout elapses,
// or ctx is cancelled. Errors are logged and retried unless marked
// Permanent. On timeout it returns an *ExhaustedError carrying the last
// error observed.
func Poll[T any](ctx context.Context, cfg Config, operation string, fn func(context.Context) (T, Status, error)) (T, error) {
	var zero T
	if err := cfg.Validate(); err != nil {
		return zero, fmt.Errorf("%s: invalid retry config: %w", operation, err)
	}

	log := clog.FromContext(ctx).With("operation", operation)
	start := time.Now()
	var lastErr error

	for attempt := 1; ; attempt++ {
		result, status, err := fn(ctx)
		switch {
		case err != nil:
			if IsPermanent(err) {
				var p *permanentError
				errors.As(err, &p)
				return zero, p.err
			}
			lastErr = err
			log.With("attempt", attempt).
				With("error", err.Error()).
				Warn("Attempt failed, retrying")
		case status == Ready:
			return result, nil
		case status == Failed:
			return zero, fmt.Errorf("%s: attempt reported failure", operation)
		default:
			lastErr = nil
			log.With("attempt", attempt).Debug("Not ready yet")
		}

		if time.Since(start) >= cfg.Timeout {
			return zero, &ExhaustedError{Operation: operation, Attempts: attempt, Elapsed: time.Since(start), Last: lastErr}
		}
		if err := Sleep(ctx, cfg.Interval); err != nil {
			return zero, err
		}
		if time.Since(start) >= cfg.Timeout {
			return zero, &ExhaustedError{Operation: operation, Attempts: attempt, Elapsed: time.Since(start), Last: lastErr}
		}
	}
}

// Do retries fn on every error until it succeeds or the budget runs out.
func Do[T any](ctx context.Context, cfg Config, operation string, fn func(context.Context) (T, error)) (T, error) {
	return Poll(ctx, cfg, operation, func(ctx context.Context) (T, Status, error) {
		v, err := fn(ctx)
		if err != nil {
			return v, Failed, err
		}
		return v, Ready, nil
	})
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
