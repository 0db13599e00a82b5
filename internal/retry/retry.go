// Copyright 2026 CoreOS, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry implements the engine's retry policy: Do,
// UntilTimeout, and WaitUntilReady honor a context.Context
// deadline/cancellation in addition to an attempt count, since the
// engine must be cancellable mid-retry.
package retry

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// ShouldRetry decides whether a failed attempt is worth retrying.
type ShouldRetry func(err error) bool

// Always retries any non-nil error.
func Always(error) bool { return true }

// Do calls f until it succeeds, shouldRetry returns false on its error,
// attempts is exhausted, or ctx is done. It waits delay between
// attempts.
func Do(ctx context.Context, attempts int, delay time.Duration, shouldRetry ShouldRetry, f func(context.Context) error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		start := time.Now()
		err = f(ctx)
		log.WithFields(log.Fields{
			"attempt":  i + 1,
			"attempts": attempts,
			"elapsed":  time.Since(start),
		}).Debug("retry.Do: attempt finished")

		if err == nil || !shouldRetry(err) {
			return err
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}

// UntilTimeout calls f repeatedly, waiting delay between calls, until
// it succeeds, the context is cancelled, or timeout elapses.
func UntilTimeout(ctx context.Context, timeout, delay time.Duration, f func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		start := time.Now()
		err := f(ctx)
		log.WithField("elapsed", time.Since(start)).Debug("retry.UntilTimeout: f() returned")
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// WaitUntilReady polls checkFunction until it reports done, errors, or
// the context/timeout expires.
func WaitUntilReady(ctx context.Context, timeout, delay time.Duration, checkFunction func(context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		start := time.Now()
		done, err := checkFunction(ctx)
		log.WithField("elapsed", time.Since(start)).Debug("retry.WaitUntilReady: check finished")
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
