// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

// Command builder functions create frames ready for transmission by a
// controller. Each returns a well-formed Command message with a blank
// response code.

func newCommand(cmd uint8) Message {
	var m Message
	addEndings(&m)
	m[IndexType] = TypeCommand
	m[IndexCommand] = cmd
	m[IndexResponse] = Blank
	return m
}

// NewStopCommand creates a STOP command
func NewStopCommand() Message {
	return newCommand(CmdStop)
}

// NewMoveCommand creates a MOVE command to the given location.
// Location 0 is home. Values above MaxLocation are encoded as given; the
// bartender rejects them.
func NewMoveCommand(location uint8) Message {
	m := newCommand(CmdMove)
	m[ParamLocation] = location
	return m
}

// NewPourCommand creates a POUR command for amount dispense cycles
func NewPourCommand(amount uint8) Message {
	m := newCommand(CmdPour)
	m[ParamAmount] = amount
	return m
}

// NewStatusCommand creates a STATUS query
func NewStatusCommand() Message {
	return newCommand(CmdStatus)
}

// NewLocationCommand creates a LOCATION query
func NewLocationCommand() Message {
	return newCommand(CmdLocation)
}

// StatusOf extracts the machine status from a Status response
func StatusOf(m *Message) uint8 {
	return m[ParamStatus]
}
