// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bartender

// Direction is the carousel travel direction
type Direction uint8

const (
	Forward Direction = 0
	Reverse Direction = 1
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "reverse"
}

// PourDirection is the pour actuator drive direction
type PourDirection uint8

const (
	PourUp   PourDirection = 0x01 // dispensing position
	PourDown PourDirection = 0x02 // return / retracted position
)

func (d PourDirection) String() string {
	switch d {
	case PourUp:
		return "up"
	case PourDown:
		return "down"
	default:
		return "unknown"
	}
}

// Stepper drives the carousel motor
type Stepper interface {
	// Step advances one physical increment and blocks for the settle interval
	Step(dir Direction)

	// Release de-energizes all drive lines
	Release()
}

// PourActuator drives the pour mechanism
type PourActuator interface {
	Move(dir PourDirection)
	Stop()
}
