// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bartender owns the carousel's logical location and operation
// status and runs the move and pour operations.
//
// The status word is the cancellation channel between the main flow and
// asynchronous actors (the home limit sensor, an emergency stop). It is only
// ever changed by a single atomic store or compare-and-swap, and the motion
// loop reloads it before every physical step.
package bartender

import (
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// MaxLocation is the highest carousel station; 0 is home
const MaxLocation = 12

// Status is the machine's operation status
type Status uint32

const (
	StatusIdle Status = iota
	StatusMoving
	StatusPouring
	StatusInterrupted
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusMoving:
		return "moving"
	case StatusPouring:
		return "pouring"
	case StatusInterrupted:
		return "interrupted"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// DefaultPourHold is how long the pour actuator is held at each end of a
// dispense cycle
const DefaultPourHold = 5 * time.Second

// Config holds the machine's configuration data
type Config struct {
	// Calibration is the per-segment step table; the zero value selects
	// DefaultCalibration
	Calibration Calibration

	// PourHold is the hold time at each end of a dispense cycle
	PourHold time.Duration

	Logger *zap.Logger
}

// Machine is the single carousel instance, created at boot
type Machine struct {
	stepper     Stepper
	pour        PourActuator
	calibration Calibration
	pourHold    time.Duration
	log         *zap.Logger

	status   atomic.Uint32
	location atomic.Uint32
}

// New creates the machine at location 0 (home) with status Idle
func New(stepper Stepper, pour PourActuator, cfg Config) (*Machine, error) {
	if stepper == nil || pour == nil {
		return nil, errors.New("bartender: stepper and pour actuator are required")
	}
	if cfg.Calibration == (Calibration{}) {
		cfg.Calibration = DefaultCalibration
	}
	if cfg.PourHold < 0 {
		return nil, errors.New("bartender: negative pour hold")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Machine{
		stepper:     stepper,
		pour:        pour,
		calibration: cfg.Calibration,
		pourHold:    cfg.PourHold,
		log:         cfg.Logger,
	}, nil
}

// Status returns the current status
func (m *Machine) Status() Status {
	return Status(m.status.Load())
}

// Location returns the current logical location
func (m *Machine) Location() uint8 {
	return uint8(m.location.Load())
}

// MoveTo drives the carousel to target, one segment at a time. It blocks
// for the whole physical travel.
//
// An interrupt during the run de-energizes the stepper, forces the location
// to home and reports success. A stop ends the run with ErrStopped.
func (m *Machine) MoveTo(target uint8) error {
	if target > MaxLocation {
		return ErrInvalidLocation
	}
	if !m.status.CompareAndSwap(uint32(StatusIdle), uint32(StatusMoving)) {
		return ErrBusy
	}

	location := m.Location()
	dir := Reverse
	if target > location {
		dir = Forward
	}

	m.log.Debug("move",
		zap.Uint8("from", location),
		zap.Uint8("to", target),
		zap.Stringer("direction", dir))

	// The last segment home is run open-ended; the home limit sensor
	// interrupts it.
	if location == 1 && target == 0 {
		return m.home()
	}

	for location != target {
		steps := m.calibration.Steps(location, dir)
		for i := uint16(0); i < steps; i++ {
			if m.Status() != StatusMoving {
				return m.settle()
			}
			m.stepper.Step(dir)
		}

		if dir == Forward {
			location++
		} else {
			location--
		}
		m.location.Store(uint32(location))
	}

	return m.settle()
}

// home steps in reverse until the status word leaves Moving
func (m *Machine) home() error {
	for m.Status() == StatusMoving {
		m.stepper.Step(Reverse)
	}
	return m.settle()
}

// settle ends a motion run: the stepper is released and the status word
// leaves Moving.
func (m *Machine) settle() error {
	m.stepper.Release()

	for {
		switch m.Status() {
		case StatusInterrupted:
			m.location.Store(0)
			if m.status.CompareAndSwap(uint32(StatusInterrupted), uint32(StatusIdle)) {
				m.log.Info("move interrupted, location reset to home")
				return nil
			}
		case StatusStopped:
			m.log.Warn("move stopped", zap.Uint8("location", m.Location()))
			return ErrStopped
		case StatusMoving:
			if m.status.CompareAndSwap(uint32(StatusMoving), uint32(StatusIdle)) {
				return nil
			}
		default:
			return nil
		}
	}
}

// Pour runs amount dispense cycles at the current location. It is not
// interruptible.
func (m *Machine) Pour(amount uint8) error {
	if !m.status.CompareAndSwap(uint32(StatusIdle), uint32(StatusPouring)) {
		return ErrBusy
	}

	m.log.Debug("pour", zap.Uint8("amount", amount), zap.Uint8("location", m.Location()))

	for i := uint8(0); i < amount; i++ {
		m.pour.Move(PourUp)
		time.Sleep(m.pourHold)

		m.pour.Move(PourDown)
		time.Sleep(m.pourHold)

		m.pour.Stop()
	}

	if !m.status.CompareAndSwap(uint32(StatusPouring), uint32(StatusIdle)) {
		return ErrStopped
	}
	return nil
}

// Interrupt cancels an active move. It is a single compare-and-swap and is
// safe from any goroutine. Returns false if no move was active.
func (m *Machine) Interrupt() bool {
	return m.status.CompareAndSwap(uint32(StatusMoving), uint32(StatusInterrupted))
}

// Stop puts the machine in the Stopped state until Reset. It is a single
// atomic store and is safe from any goroutine, including while a move or
// pour is in flight.
func (m *Machine) Stop() {
	m.status.Store(uint32(StatusStopped))
}

// Reset recovers from Stopped: the pour actuator is retracted, the carousel
// is driven home and the machine returns to Idle at location 0. It fails
// with ErrInvalidCall unless the machine is Stopped.
//
// An interrupt that arrives while the actuator retracts is discarded; only
// the homing run that follows can end on the limit sensor.
func (m *Machine) Reset() error {
	if !m.status.CompareAndSwap(uint32(StatusStopped), uint32(StatusMoving)) {
		return ErrInvalidCall
	}

	m.log.Info("reset: retracting pour actuator and homing")

	m.pour.Move(PourDown)
	time.Sleep(m.pourHold)
	m.pour.Stop()

	if m.status.CompareAndSwap(uint32(StatusInterrupted), uint32(StatusMoving)) {
		m.log.Warn("reset: interrupt during retract ignored")
	}

	return m.home()
}
