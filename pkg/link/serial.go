// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.bug.st/serial"
)

// serialLink is a serial port opened 8N1
type serialLink struct {
	port   serial.Port
	closed atomic.Bool
}

func openSerial(opts Options) (Link, error) {
	mode := &serial.Mode{
		BaudRate: opts.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(opts.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", opts.Port, err)
	}

	if opts.ReadTimeout > 0 {
		if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", opts.Port, err)
		}
	}

	// Stale bytes from before the open are not part of any exchange
	_ = port.ResetInputBuffer()

	return &serialLink{port: port}, nil
}

func (s *serialLink) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err != nil {
		return n, s.wrap(err)
	}
	return n, nil
}

func (s *serialLink) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	if err != nil {
		return n, s.wrap(err)
	}
	return n, nil
}

func (s *serialLink) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.port.Close()
}

// wrap maps a closed or unplugged port onto ErrClosed
func (s *serialLink) wrap(err error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	var perr *serial.PortError
	if errors.As(err, &perr) && perr.Code() == serial.PortClosed {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return fmt.Errorf("serial: %w", err)
}
