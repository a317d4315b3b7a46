// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package handler

import (
	"fmt"
	"testing"

	"github.com/Thermoquad/bartender/pkg/bartender"
	"github.com/Thermoquad/bartender/pkg/protocol"
	"github.com/Thermoquad/bartender/pkg/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Fakes
// ============================================================

// eventLog records writer and actuator activity in order
type eventLog struct {
	events []string
	frames []protocol.Message
}

// recorder is a ResponseWriter that decodes every full frame it receives
type recorder struct {
	log   *eventLog
	limit int // bytes accepted before overflowing; 0 = unlimited
	total int
}

func (r *recorder) WriteChunk(p []byte) (int, error) {
	n := len(p)
	if r.limit > 0 && r.total+n > r.limit {
		n = r.limit - r.total
	}
	r.total += n

	if n == protocol.MessageSize {
		var m protocol.Message
		copy(m[:], p)
		r.log.frames = append(r.log.frames, m)
		r.log.events = append(r.log.events,
			"rsp "+protocol.FormatCommand(m.Command())+" "+protocol.FormatResponseCode(m.ResponseCode()))
	}
	if n < len(p) {
		return n, ring.ErrOverflow
	}
	return n, nil
}

type stepper struct{ log *eventLog }

func (s *stepper) Step(dir bartender.Direction) {
	s.log.events = append(s.log.events, "step "+dir.String())
}

func (s *stepper) Release() {
	s.log.events = append(s.log.events, "release")
}

type pour struct{ log *eventLog }

func (p *pour) Move(dir bartender.PourDirection) {
	p.log.events = append(p.log.events, "pour "+dir.String())
}

func (p *pour) Stop() {
	p.log.events = append(p.log.events, "pour stop")
}

// calibration with entries 3 and 4 summing to 9
var calibration = bartender.Calibration{1, 1, 1, 4, 5, 1, 1, 1, 1, 1, 1, 1, 1}

func newTestHandler(t *testing.T) (*Handler, *bartender.Machine, *eventLog) {
	t.Helper()
	log := &eventLog{}
	m, err := bartender.New(&stepper{log}, &pour{log}, bartender.Config{Calibration: calibration})
	require.NoError(t, err)
	return New(m, &recorder{log: log}, nil), m, log
}

func command(cmd, param uint8) protocol.Message {
	var m protocol.Message
	m[protocol.IndexStart] = protocol.StartByte
	m[protocol.IndexType] = protocol.TypeCommand
	m[protocol.IndexCommand] = cmd
	m[protocol.IndexPayload] = param
	m[protocol.IndexEnd] = protocol.EndByte
	return m
}

func countPrefix(events []string, prefix string) int {
	n := 0
	for _, e := range events {
		if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func assertResponse(t *testing.T, m protocol.Message, cmd, code uint8) {
	t.Helper()
	assert.True(t, m.Valid())
	assert.Equal(t, uint8(protocol.TypeResponse), m.Type())
	assert.Equal(t, cmd, m.Command(), "command")
	assert.Equal(t, code, m.ResponseCode(), "response code")
}

// ============================================================
// Validation
// ============================================================

func TestHandle_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		start byte
		end   byte
	}{
		{"bad start", 0x00, protocol.EndByte},
		{"bad end", protocol.StartByte, 0x00},
		{"swapped", protocol.EndByte, protocol.StartByte},
		{"both blank", 0x00, 0x00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, m, log := newTestHandler(t)

			// Content of a valid move; the sentinels alone decide
			frame := command(protocol.CmdMove, 5)
			frame[protocol.IndexStart] = tt.start
			frame[protocol.IndexEnd] = tt.end

			h.Handle(frame)

			require.Len(t, log.frames, 1)
			assertResponse(t, log.frames[0], protocol.Blank, protocol.RspMalformed)
			assert.Zero(t, countPrefix(log.events, "step"))
			assert.Equal(t, uint8(0), m.Location())
			assert.Equal(t, uint64(1), h.Stats().Malformed)
		})
	}
}

func TestHandle_MalformedIgnoresBody(t *testing.T) {
	fill := func(b byte) protocol.Message {
		var m protocol.Message
		for i := range m {
			m[i] = b
		}
		return m
	}
	withType := func(msgType uint8) protocol.Message {
		m := command(protocol.CmdMove, 5)
		m[protocol.IndexType] = msgType
		return m
	}

	bodies := []struct {
		name  string
		frame protocol.Message
	}{
		{"move", command(protocol.CmdMove, 5)},
		{"pour", command(protocol.CmdPour, 3)},
		{"stop", command(protocol.CmdStop, 0)},
		{"response type", withType(protocol.TypeResponse)},
		{"unknown type", withType(0x7A)},
		{"unknown command", command(0x42, 1)},
		{"all 0xFF", fill(0xFF)},
		{"all zero", fill(0x00)},
	}
	sentinels := []struct {
		name  string
		start byte
		end   byte
	}{
		{"bad start", 0xAA, protocol.EndByte},
		{"bad end", protocol.StartByte, 0xAA},
		{"swapped", protocol.EndByte, protocol.StartByte},
	}

	for _, body := range bodies {
		for _, s := range sentinels {
			t.Run(body.name+"/"+s.name, func(t *testing.T) {
				h, m, log := newTestHandler(t)
				h.Handle(command(protocol.CmdMove, 3))
				log.events = nil
				log.frames = nil

				frame := body.frame
				frame[protocol.IndexStart] = s.start
				frame[protocol.IndexEnd] = s.end
				h.Handle(frame)

				require.Len(t, log.frames, 1)
				assertResponse(t, log.frames[0], protocol.Blank, protocol.RspMalformed)
				assert.Equal(t, []string{"rsp BLANK MALFORMED_MESSAGE"}, log.events, "no actuator activity")
				assert.Equal(t, uint8(3), m.Location())
				assert.Equal(t, bartender.StatusIdle, m.Status())
				assert.Equal(t, uint64(1), h.Stats().Malformed)
			})
		}
	}
}

func TestHandle_MessageType(t *testing.T) {
	tests := []struct {
		name    string
		msgType uint8
		code    uint8
	}{
		{"response", protocol.TypeResponse, protocol.RspNotImplemented},
		{"zero", 0x00, protocol.RspUnknownType},
		{"unknown", 0x7A, protocol.RspUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, log := newTestHandler(t)

			frame := command(protocol.CmdMove, 3)
			frame[protocol.IndexType] = tt.msgType
			h.Handle(frame)

			require.Len(t, log.frames, 1)
			assertResponse(t, log.frames[0], protocol.Blank, tt.code)
			assert.Zero(t, countPrefix(log.events, "step"))
		})
	}
}

func TestHandle_UnknownCommand(t *testing.T) {
	for _, cmd := range []uint8{0x00, 0x06, 0x42, 0xFF} {
		t.Run(fmt.Sprintf("0x%02X", cmd), func(t *testing.T) {
			h, _, log := newTestHandler(t)
			h.Handle(command(cmd, 0))

			require.Len(t, log.frames, 1)
			assertResponse(t, log.frames[0], protocol.Blank, protocol.RspUnknownCommand)
		})
	}
}

// ============================================================
// Single-phase commands
// ============================================================

func TestHandle_Stop(t *testing.T) {
	h, m, log := newTestHandler(t)
	h.Handle(command(protocol.CmdStop, 0))

	require.Len(t, log.frames, 1)
	assertResponse(t, log.frames[0], protocol.CmdStop, protocol.RspOk)
	assert.Equal(t, bartender.StatusIdle, m.Status())
}

func TestHandle_Status(t *testing.T) {
	h, m, log := newTestHandler(t)

	h.Handle(command(protocol.CmdStatus, 0))
	require.Len(t, log.frames, 1)
	assertResponse(t, log.frames[0], protocol.CmdStatus, protocol.RspOk)
	assert.Equal(t, uint8(protocol.StatusIdle), protocol.StatusOf(&log.frames[0]))

	m.Stop()
	h.Handle(command(protocol.CmdStatus, 0))
	require.Len(t, log.frames, 2)
	assert.Equal(t, uint8(protocol.StatusStopped), protocol.StatusOf(&log.frames[1]))
}

func TestHandle_Location(t *testing.T) {
	h, _, log := newTestHandler(t)
	h.Handle(command(protocol.CmdMove, 4))
	log.frames = nil

	h.Handle(command(protocol.CmdLocation, 0))
	require.Len(t, log.frames, 1)
	assertResponse(t, log.frames[0], protocol.CmdLocation, protocol.RspOk)
	assert.Equal(t, make([]byte, 27), log.frames[0].Payload())
}

// ============================================================
// Two-phase commands
// ============================================================

func TestHandle_MoveSequence(t *testing.T) {
	h, m, log := newTestHandler(t)
	h.Handle(command(protocol.CmdMove, 3))
	log.events = nil
	log.frames = nil

	h.Handle(command(protocol.CmdMove, 5))

	require.Len(t, log.frames, 2)
	assertResponse(t, log.frames[0], protocol.CmdMove, protocol.RspOk)
	assertResponse(t, log.frames[1], protocol.CmdMove, protocol.RspComplete)

	// Ok, 9 forward steps, release, Complete
	require.Len(t, log.events, 12)
	assert.Equal(t, "rsp MOVE OK", log.events[0])
	for i := 1; i <= 9; i++ {
		assert.Equal(t, "step forward", log.events[i])
	}
	assert.Equal(t, "release", log.events[10])
	assert.Equal(t, "rsp MOVE COMPLETE", log.events[11])

	assert.Equal(t, uint8(5), m.Location())
	assert.Equal(t, bartender.StatusIdle, m.Status())
}

func TestHandle_MoveOutOfRange(t *testing.T) {
	h, m, log := newTestHandler(t)
	h.Handle(command(protocol.CmdMove, 13))

	require.Len(t, log.frames, 1)
	assertResponse(t, log.frames[0], protocol.CmdMove, protocol.RspError)
	assert.Zero(t, countPrefix(log.events, "step"))
	assert.Equal(t, uint8(0), m.Location())
}

func TestHandle_MoveWhileStopped(t *testing.T) {
	h, m, log := newTestHandler(t)
	m.Stop()

	h.Handle(command(protocol.CmdMove, 2))

	require.Len(t, log.frames, 2)
	assertResponse(t, log.frames[0], protocol.CmdMove, protocol.RspOk)
	assertResponse(t, log.frames[1], protocol.CmdMove, protocol.RspError)
	assert.Zero(t, countPrefix(log.events, "step"))
	assert.Equal(t, bartender.StatusStopped, m.Status())
}

func TestHandle_Pour(t *testing.T) {
	h, m, log := newTestHandler(t)
	h.Handle(command(protocol.CmdPour, 2))

	require.Len(t, log.frames, 2)
	assertResponse(t, log.frames[0], protocol.CmdPour, protocol.RspOk)
	assertResponse(t, log.frames[1], protocol.CmdPour, protocol.RspComplete)
	assert.Equal(t, 2, countPrefix(log.events, "pour up"))
	assert.Equal(t, 2, countPrefix(log.events, "pour down"))
	assert.Equal(t, bartender.StatusIdle, m.Status())
}

func TestHandle_PourWhileStopped(t *testing.T) {
	h, m, log := newTestHandler(t)
	m.Stop()

	h.Handle(command(protocol.CmdPour, 1))

	require.Len(t, log.frames, 2)
	assertResponse(t, log.frames[0], protocol.CmdPour, protocol.RspOk)
	assertResponse(t, log.frames[1], protocol.CmdPour, protocol.RspError)
	assert.Zero(t, countPrefix(log.events, "pour up"))
}

// ============================================================
// Transmit overflow
// ============================================================

func TestHandle_PartialWrite(t *testing.T) {
	log := &eventLog{}
	m, err := bartender.New(&stepper{log}, &pour{log}, bartender.Config{Calibration: calibration})
	require.NoError(t, err)

	// Room for the Ok only; Complete is truncated
	h := New(m, &recorder{log: log, limit: protocol.MessageSize + 10}, nil)
	h.Handle(command(protocol.CmdMove, 1))

	require.Len(t, log.frames, 1)
	assertResponse(t, log.frames[0], protocol.CmdMove, protocol.RspOk)
	assert.Equal(t, uint8(1), m.Location(), "the move still runs")
	assert.Equal(t, uint64(1), h.Stats().PartialWrites)
	assert.Equal(t, uint64(1), h.Stats().Frames)
}
