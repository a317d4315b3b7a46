// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package protocol implements the bartender serial protocol.
//
// Every message is a fixed 32-byte frame:
//
//	offset 0      start sentinel (0xFF)
//	offset 1      type (Command or Response)
//	offset 2      command code
//	offset 3      response code (Blank for commands)
//	offset 4..30  payload
//	offset 31     end sentinel (0xFE)
//
// Long-running commands (Move, Pour) are answered twice: an immediate Ok
// when the request is accepted and a Complete or Error once it finishes.
package protocol

// Frame layout
const (
	MessageSize = 32

	IndexStart    = 0x00
	IndexType     = 0x01
	IndexCommand  = 0x02
	IndexResponse = 0x03
	IndexPayload  = 0x04
	IndexEnd      = 0x1F
)

// Framing sentinels
const (
	StartByte = 0xFF
	EndByte   = 0xFE
)

// Blank fills unused command and response fields
const Blank = 0x00

// Message types
const (
	TypeResponse = 0x01
	TypeCommand  = 0x02
)

// Command codes (Controller → Bartender)
const (
	CmdStop     = 0x01
	CmdMove     = 0x02
	CmdPour     = 0x03
	CmdStatus   = 0x04
	CmdLocation = 0x05
)

// Parameter offsets within the frame
const (
	ParamLocation = 0x04 // Move: target location
	ParamAmount   = 0x04 // Pour: number of dispense cycles
	ParamStatus   = 0x04 // Status response: machine status
)

// Response codes (Bartender → Controller)
const (
	RspOk             = 0x01
	RspError          = 0x02
	RspMalformed      = 0x03
	RspUnknownCommand = 0x04
	RspUnknownType    = 0x05
	RspNotImplemented = 0x06
	RspComplete       = 0x07
	RspFatal          = 0x08
	RspQueueFull      = 0x09
)

// MaxLocation is the highest carousel station; 0 is home
const MaxLocation = 12

// Status values reported in the Status response payload
const (
	StatusIdle        = 0x00
	StatusMoving      = 0x01
	StatusPouring     = 0x02
	StatusInterrupted = 0x03
	StatusStopped     = 0x04
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateFrame
)
