// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/bartender/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameMsg(cmd, code uint8) controlDataMsg {
	var m protocol.Message
	protocol.BuildError(&m, cmd, code)
	return controlDataMsg{frame: &protocol.Frame{Message: m, Timestamp: time.Now()}}
}

func TestControlModel_TwoPhaseMove(t *testing.T) {
	m := initialControlModel(&controlLink{}, "test")
	m.pending = &pendingCommand{command: protocol.CmdMove, arg: 7, sent: time.Now()}

	m.processControlData(frameMsg(protocol.CmdMove, protocol.RspOk))
	require.NotNil(t, m.pending)
	assert.True(t, m.pending.accepted)
	assert.False(t, m.hasLocation)

	m.processControlData(frameMsg(protocol.CmdMove, protocol.RspComplete))
	assert.Nil(t, m.pending)
	assert.True(t, m.hasLocation)
	assert.Equal(t, uint8(7), m.location)
	assert.Equal(t, uint64(2), m.stats.TotalFrames)
	assert.Equal(t, uint64(1), m.stats.Completions)
}

func TestControlModel_TwoPhaseError(t *testing.T) {
	m := initialControlModel(&controlLink{}, "test")
	m.pending = &pendingCommand{command: protocol.CmdPour, arg: 2, sent: time.Now()}

	m.processControlData(frameMsg(protocol.CmdPour, protocol.RspOk))
	m.processControlData(frameMsg(protocol.CmdPour, protocol.RspError))

	assert.Nil(t, m.pending)
	require.NotEmpty(t, m.eventLog)
	assert.True(t, m.eventLog[len(m.eventLog)-1].isError)
}

func TestControlModel_Status(t *testing.T) {
	m := initialControlModel(&controlLink{}, "test")

	status := frameMsg(protocol.CmdStatus, protocol.RspOk)
	status.frame.Message[protocol.ParamStatus] = protocol.StatusStopped
	m.processControlData(status)

	assert.True(t, m.hasStatus)
	assert.Equal(t, uint8(protocol.StatusStopped), m.status)
}

func TestControlModel_DecodeError(t *testing.T) {
	m := initialControlModel(&controlLink{}, "test")
	m.processControlData(controlDataMsg{decodeErr: errors.New("missing end sentinel")})

	assert.Equal(t, uint64(1), m.stats.DecodeErrors)
	assert.Empty(t, m.eventLog, "errors before sync are not logged")
}

func TestControlModel_ParseArg(t *testing.T) {
	m := initialControlModel(&controlLink{}, "test")
	move, pour := controlActions[0], controlActions[1]

	tests := []struct {
		name    string
		a       action
		value   string
		want    uint8
		wantErr bool
	}{
		{"placeholder", move, "", 0, false},
		{"max location", move, "12", 12, false},
		{"location too high", move, "13", 0, true},
		{"not a number", move, "x", 0, true},
		{"pour", pour, "3", 3, false},
		{"pour zero", pour, "0", 0, true},
		{"pour too many", pour, "21", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.argInput.SetValue(tt.value)
			got, err := m.parseArg(tt.a)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
