// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link opens the byte stream between the controller and the
// bartender: a serial port, or a WebSocket bridge that carries the same
// bytes in binary messages.
package link

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrClosed is returned by Read and Write once the link is gone for good.
// A caller that wants to continue reopens the link.
var ErrClosed = errors.New("link closed")

// Link is one open connection. Read may be called from one goroutine while
// Write is called from another.
type Link interface {
	io.Reader
	io.Writer
	io.Closer
}

// Options selects and tunes the link. URL takes precedence over Port.
type Options struct {
	Port string
	Baud int

	URL        string
	Username   string
	Password   string
	SkipVerify bool

	// ReadTimeout bounds one serial read. A read that times out returns
	// zero bytes and no error.
	ReadTimeout time.Duration

	// Keepalive is the WebSocket ping period. A peer that has not answered
	// within two periods is treated as gone. Zero disables pings and read
	// deadlines.
	Keepalive time.Duration
}

// Open opens the link described by opts
func Open(opts Options) (Link, error) {
	if opts.URL != "" {
		return dialWebSocket(opts)
	}
	if opts.Port != "" {
		return openSerial(opts)
	}
	return nil, errors.New("link: no port or url given")
}

// Describe returns a one-line description of the link for status output
func Describe(opts Options) string {
	if opts.URL != "" {
		return fmt.Sprintf("WebSocket: %s", opts.URL)
	}
	return fmt.Sprintf("Serial: %s @ %d baud", opts.Port, opts.Baud)
}
