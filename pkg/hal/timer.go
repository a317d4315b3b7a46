// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hal provides the hardware collaborators of the bartender core for
// a host: a periodic timer and simulated carousel and pour actuators.
package hal

import (
	"errors"
	"sync"
	"time"
)

// ErrInvalidTimer is returned when Arm gets a non-positive period or a nil
// handler
var ErrInvalidTimer = errors.New("hal: invalid timer period or handler")

// Timer calls a registered handler once per period until disarmed. The
// handler runs on the timer's own goroutine.
type Timer struct {
	mu      sync.Mutex
	handler func()
	done    chan struct{}
	stopped chan struct{}
}

// NewTimer creates a disarmed timer
func NewTimer() *Timer {
	return &Timer{}
}

// Arm registers handler and starts calling it every period. Arming an armed
// timer replaces the handler and period.
func (t *Timer) Arm(period time.Duration, handler func()) error {
	if period <= 0 || handler == nil {
		return ErrInvalidTimer
	}

	t.Disarm()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler = handler
	t.done = make(chan struct{})
	t.stopped = make(chan struct{})

	go t.run(period, handler, t.done, t.stopped)
	return nil
}

// Disarm stops the timer and clears the handler. It waits for an in-flight
// handler call to return, so it must not be called from the handler itself.
func (t *Timer) Disarm() {
	t.mu.Lock()
	done, stopped := t.done, t.stopped
	t.handler = nil
	t.done = nil
	t.stopped = nil
	t.mu.Unlock()

	if done == nil {
		return
	}
	close(done)
	<-stopped
}

// Armed reports whether a handler is registered
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handler != nil
}

func (t *Timer) run(period time.Duration, handler func(), done, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			handler()
		}
	}
}
