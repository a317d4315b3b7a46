// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Backoff is the delay between reopen attempts. It doubles after each
// failed open up to Max and drops back to Min once an open succeeds.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

func (b Backoff) next(d time.Duration) time.Duration {
	d *= 2
	if d > b.Max {
		d = b.Max
	}
	return d
}

// Opener opens a fresh link
type Opener func() (Link, error)

// Session uses an open link until it fails. Returning nil ends Keep.
type Session func(ctx context.Context, l Link) error

// Keep opens a link, hands it to session and closes it when session
// returns. A session that fails, or an open that fails, is retried after the
// backoff delay. Keep returns when ctx is done or a session returns nil.
func Keep(ctx context.Context, open Opener, session Session, backoff Backoff, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	delay := backoff.Min
	for {
		l, err := open()
		if err != nil {
			log.Warn("link open failed", zap.Error(err), zap.Duration("retry_in", delay))
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			delay = backoff.next(delay)
			continue
		}

		delay = backoff.Min
		err = session(ctx, l)
		l.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}

		log.Warn("link lost", zap.Error(err), zap.Duration("reopen_in", delay))
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
	}
}

// sleep waits for d and reports false if ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// First returns an Opener that hands out an already open link once and
// calls open for every later attempt
func First(l Link, open Opener) Opener {
	return func() (Link, error) {
		if l != nil {
			first := l
			l = nil
			return first, nil
		}
		return open()
	}
}
