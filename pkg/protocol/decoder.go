// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"fmt"
	"time"
)

// Frame is a decoded message with its receive timestamp
type Frame struct {
	Message   Message
	Timestamp time.Time
}

// Decoder reassembles frames from a byte stream on the controller side.
//
// Bytes are ignored until a start sentinel is seen. The next 31 bytes
// complete the frame; if the last one is not the end sentinel the frame is
// rejected and the decoder waits for the next start sentinel.
type Decoder struct {
	state       int
	buffer      Message
	bufferIndex int
	skipped     int
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{state: stateIdle}
}

// Reset returns the decoder to idle, discarding any partial frame
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.bufferIndex = 0
}

// Skipped returns the number of bytes discarded while hunting for a start
// sentinel since the last completed frame
func (d *Decoder) Skipped() int {
	return d.skipped
}

// DecodeByte processes a single byte.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns an error if a frame ends without its end sentinel.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	switch d.state {
	case stateIdle:
		if b != StartByte {
			d.skipped++
			return nil, nil
		}
		d.buffer[IndexStart] = b
		d.bufferIndex = 1
		d.state = stateFrame
		return nil, nil

	case stateFrame:
		d.buffer[d.bufferIndex] = b
		d.bufferIndex++
		if d.bufferIndex < MessageSize {
			return nil, nil
		}

		d.Reset()
		if b != EndByte {
			return nil, fmt.Errorf("%w: missing end sentinel (got 0x%02X)", ErrMalformed, b)
		}

		d.skipped = 0
		return &Frame{Message: d.buffer, Timestamp: time.Now()}, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid decoder state: %d", d.state)
	}
}
