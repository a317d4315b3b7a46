// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package uart

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// pumpChunkSize bounds a single link read or write
const pumpChunkSize = 64

// Pump plays the role of the receive and transmit-ready interrupt handlers
// for a host link: it moves bytes between an io.ReadWriter and a Transport.
type Pump struct {
	transport *Transport
	link      io.ReadWriter
	log       *zap.Logger
}

// NewPump creates a pump for the given transport and link
func NewPump(t *Transport, link io.ReadWriter, log *zap.Logger) *Pump {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pump{transport: t, link: link, log: log}
}

// Run services the link until ctx is cancelled or the link fails. Both
// loops are finished with when Run returns, except a receive loop blocked
// in Read, which returns once the caller closes the link. A transport may be
// handed to a new pump on a new link afterwards; bytes still queued for
// transmission go out on the new link.
func (p *Pump) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)

	go func() { errc <- p.receiveLoop(ctx) }()
	go func() { errc <- p.transmitLoop(ctx) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		return err
	}
}

// receiveLoop feeds every byte read from the link to OnReceive. A read
// that returns nothing (a link read timeout) only checks for shutdown.
func (p *Pump) receiveLoop(ctx context.Context) error {
	buf := make([]byte, pumpChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := p.link.Read(buf)
		for i := 0; i < n; i++ {
			if rerr := p.transport.OnReceive(buf[i]); rerr != nil {
				p.log.Warn("receive buffer overflow, byte dropped",
					zap.Uint8("byte", buf[i]))
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("link closed: %w", err)
			}
			return fmt.Errorf("link read: %w", err)
		}
	}
}

// transmitLoop drains the transmit buffer each time it is armed
func (p *Pump) transmitLoop(ctx context.Context) error {
	out := make([]byte, 0, pumpChunkSize)
	for {
		if err := p.drain(out); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.transport.Kick():
		}

		// A pump that is shutting down leaves the kick for its successor
		if err := ctx.Err(); err != nil {
			signal(p.transport.kick)
			return err
		}
	}
}

// drain writes everything queued for transmission, in chunks
func (p *Pump) drain(out []byte) error {
	for {
		b, ok := p.transport.OnTransmitReady()
		if ok {
			out = append(out, b)
		}
		if len(out) == cap(out) || (!ok && len(out) > 0) {
			if _, err := p.link.Write(out); err != nil {
				return fmt.Errorf("link write: %w", err)
			}
			out = out[:0]
		}
		if !ok {
			return nil
		}
	}
}
