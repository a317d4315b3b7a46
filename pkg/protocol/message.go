// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned when a frame's sentinels are wrong
var ErrMalformed = errors.New("malformed message")

// Message is one 32-byte protocol frame
type Message [MessageSize]byte

// Valid reports whether both sentinels are in place. Nothing else about the
// frame is checked.
func (m *Message) Valid() bool {
	return m[IndexStart] == StartByte && m[IndexEnd] == EndByte
}

// Validate returns ErrMalformed if the sentinels are wrong
func Validate(m *Message) error {
	if !m.Valid() {
		return fmt.Errorf("%w: start=0x%02X end=0x%02X", ErrMalformed, m[IndexStart], m[IndexEnd])
	}
	return nil
}

// Type returns the message type byte
func (m *Message) Type() uint8 {
	return m[IndexType]
}

// Command returns the command code byte
func (m *Message) Command() uint8 {
	return m[IndexCommand]
}

// ResponseCode returns the response code byte
func (m *Message) ResponseCode() uint8 {
	return m[IndexResponse]
}

// Payload returns the payload region (offsets 4..30)
func (m *Message) Payload() []byte {
	return m[IndexPayload:IndexEnd]
}

// Bytes returns the frame as a slice backed by the message
func (m *Message) Bytes() []byte {
	return m[:]
}

// IsResponse reports whether the message is a response
func (m *Message) IsResponse() bool {
	return m.Type() == TypeResponse
}

// Terminal reports whether a response ends its exchange. For two-phase
// commands the Ok response is not terminal.
func (m *Message) Terminal() bool {
	if m.ResponseCode() == RspOk && IsTwoPhase(m.Command()) {
		return false
	}
	return true
}

//////////////////////////////////////////////////////////////
// Response builders
//////////////////////////////////////////////////////////////

// BuildOk fills buf with an Ok response for cmd
func BuildOk(buf *Message, cmd uint8) {
	buildResponse(buf, cmd, RspOk)
}

// BuildError fills buf with an error response carrying code
func BuildError(buf *Message, cmd uint8, code uint8) {
	buildResponse(buf, cmd, code)
}

// BuildComplete fills buf with a Complete response for cmd
func BuildComplete(buf *Message, cmd uint8) {
	buildResponse(buf, cmd, RspComplete)
}

func buildResponse(buf *Message, cmd, code uint8) {
	clear(buf[:])
	addEndings(buf)

	buf[IndexType] = TypeResponse
	buf[IndexCommand] = cmd
	buf[IndexResponse] = code
}

func addEndings(buf *Message) {
	buf[IndexStart] = StartByte
	buf[IndexEnd] = EndByte
}

// IsTwoPhase reports whether cmd is answered with Ok followed by
// Complete or Error
func IsTwoPhase(cmd uint8) bool {
	return cmd == CmdMove || cmd == CmdPour
}
