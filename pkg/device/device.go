// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package device runs the bartender main flow: it reads complete frames from
// the serial transport and hands them to the command dispatcher one at a
// time.
package device

import (
	"context"
	"errors"
	"time"

	"github.com/Thermoquad/bartender/pkg/bartender"
	"github.com/Thermoquad/bartender/pkg/hal"
	"github.com/Thermoquad/bartender/pkg/handler"
	"github.com/Thermoquad/bartender/pkg/protocol"
	"github.com/Thermoquad/bartender/pkg/uart"
	"go.uber.org/zap"
)

// Options configures a Device
type Options struct {
	// Heartbeat is the period of the status log line; zero disables it
	Heartbeat time.Duration

	Logger *zap.Logger
}

// Device is the main flow of one bartender
type Device struct {
	transport *uart.Transport
	machine   *bartender.Machine
	handler   *handler.Handler
	timer     *hal.Timer
	heartbeat time.Duration
	log       *zap.Logger

	resetRequest chan struct{}
}

// New wires a device around an existing transport and machine
func New(transport *uart.Transport, machine *bartender.Machine, opts Options) (*Device, error) {
	if transport == nil || machine == nil {
		return nil, errors.New("device: transport and machine are required")
	}
	if opts.Heartbeat < 0 {
		return nil, errors.New("device: negative heartbeat")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Device{
		transport:    transport,
		machine:      machine,
		handler:      handler.New(machine, transport, opts.Logger.Named("handler")),
		timer:        hal.NewTimer(),
		heartbeat:    opts.Heartbeat,
		log:          opts.Logger,
		resetRequest: make(chan struct{}, 1),
	}, nil
}

// Run executes the main flow until ctx is cancelled. Commands run to
// completion on this goroutine, so a move blocks frame processing until it
// ends.
func (d *Device) Run(ctx context.Context) error {
	if d.heartbeat > 0 {
		if err := d.timer.Arm(d.heartbeat, d.beat); err != nil {
			return err
		}
		defer d.timer.Disarm()
	}

	d.log.Info("bartender ready",
		zap.Uint8("location", d.machine.Location()),
		zap.Stringer("status", d.machine.Status()))

	for {
		d.drain()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.transport.Received():
		case <-d.resetRequest:
			d.reset()
		}
	}
}

// RequestReset queues a machine reset on the main flow. Safe from any
// goroutine; requests made while one is pending are merged.
func (d *Device) RequestReset() {
	select {
	case d.resetRequest <- struct{}{}:
	default:
	}
}

// Stats returns the dispatcher counters
func (d *Device) Stats() handler.Stats {
	return d.handler.Stats()
}

// drain dispatches every complete frame waiting in the receive buffer
func (d *Device) drain() {
	var frame protocol.Message
	for d.transport.Available() >= protocol.MessageSize {
		if err := d.transport.ReadFull(frame[:]); err != nil {
			return
		}
		d.handler.Handle(frame)
	}
}

func (d *Device) reset() {
	if err := d.machine.Reset(); err != nil {
		d.log.Warn("reset rejected", zap.Stringer("status", d.machine.Status()), zap.Error(err))
		return
	}
	d.log.Info("reset complete", zap.Uint8("location", d.machine.Location()))
}

func (d *Device) beat() {
	rx, tx := d.transport.Dropped()
	stats := d.handler.Stats()
	d.log.Info("heartbeat",
		zap.Uint8("location", d.machine.Location()),
		zap.Stringer("status", d.machine.Status()),
		zap.Uint64("frames", stats.Frames),
		zap.Uint64("malformed", stats.Malformed),
		zap.Uint64("rx_dropped", rx),
		zap.Uint64("tx_dropped", tx))
}
