// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/Thermoquad/bartender/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// respond reads one command frame from conn and writes the given responses
func respond(t *testing.T, conn net.Conn, responses ...protocol.Message) {
	t.Helper()
	go func() {
		var cmd protocol.Message
		if _, err := io.ReadFull(conn, cmd[:]); err != nil {
			return
		}
		for _, r := range responses {
			if _, err := conn.Write(r.Bytes()); err != nil {
				return
			}
		}
	}()
}

func response(cmd, code uint8) protocol.Message {
	var m protocol.Message
	protocol.BuildError(&m, cmd, code)
	return m
}

// ============================================================
// exchange
// ============================================================

func TestExchange(t *testing.T) {
	tests := []struct {
		name      string
		msg       protocol.Message
		responses []protocol.Message
		want      []uint8
	}{
		{
			name:      "single phase",
			msg:       protocol.NewStatusCommand(),
			responses: []protocol.Message{response(protocol.CmdStatus, protocol.RspOk)},
			want:      []uint8{protocol.RspOk},
		},
		{
			name: "two phase complete",
			msg:  protocol.NewMoveCommand(5),
			responses: []protocol.Message{
				response(protocol.CmdMove, protocol.RspOk),
				response(protocol.CmdMove, protocol.RspComplete),
			},
			want: []uint8{protocol.RspOk, protocol.RspComplete},
		},
		{
			name: "two phase error",
			msg:  protocol.NewPourCommand(2),
			responses: []protocol.Message{
				response(protocol.CmdPour, protocol.RspOk),
				response(protocol.CmdPour, protocol.RspError),
			},
			want: []uint8{protocol.RspOk, protocol.RspError},
		},
		{
			name:      "rejected move",
			msg:       protocol.NewMoveCommand(13),
			responses: []protocol.Message{response(protocol.CmdMove, protocol.RspError)},
			want:      []uint8{protocol.RspError},
		},
		{
			name:      "malformed",
			msg:       protocol.NewMoveCommand(1),
			responses: []protocol.Message{response(protocol.Blank, protocol.RspMalformed)},
			want:      []uint8{protocol.RspMalformed},
		},
		{
			name: "unrelated response is skipped",
			msg:  protocol.NewLocationCommand(),
			responses: []protocol.Message{
				response(protocol.CmdStatus, protocol.RspOk),
				response(protocol.CmdLocation, protocol.RspOk),
			},
			want: []uint8{protocol.RspOk, protocol.RspOk},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			respond(t, server, tt.responses...)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			var seen int
			got, err := exchange(ctx, client, tt.msg, func(protocol.Message) { seen++ })
			require.NoError(t, err)

			codes := make([]uint8, len(got))
			for i, m := range got {
				codes[i] = m.ResponseCode()
			}
			assert.Equal(t, tt.want, codes)
			assert.Equal(t, len(got), seen)
		})
	}
}

func TestExchange_Timeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// Accepted but never completed
	respond(t, server, response(protocol.CmdMove, protocol.RspOk))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	got, err := exchange(ctx, client, protocol.NewMoveCommand(3), nil)
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, got, 1)
}

func TestExchange_LinkClosed(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		var cmd protocol.Message
		_, _ = io.ReadFull(server, cmd[:])
		server.Close()
	}()

	_, err := exchange(context.Background(), client, protocol.NewStatusCommand(), nil)
	assert.ErrorIs(t, err, ErrNoResponse)
}

// ============================================================
// Argument parsing
// ============================================================

func TestParseUint8(t *testing.T) {
	v, err := parseUint8("12", "location")
	require.NoError(t, err)
	assert.Equal(t, uint8(12), v)

	for _, bad := range []string{"", "-1", "256", "three"} {
		_, err := parseUint8(bad, "location")
		assert.Error(t, err, bad)
	}
}
