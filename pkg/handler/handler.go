// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package handler validates incoming frames, routes commands to the machine
// and emits the matching responses.
//
// Move and Pour are two-phase: Ok is written before the operation starts
// and Complete or Error after it ends. Every other command gets exactly one
// response.
package handler

import (
	"sync/atomic"

	"github.com/Thermoquad/bartender/pkg/bartender"
	"github.com/Thermoquad/bartender/pkg/protocol"
	"go.uber.org/zap"
)

// ResponseWriter accepts encoded response frames. uart.Transport satisfies it.
type ResponseWriter interface {
	WriteChunk(p []byte) (int, error)
}

// Machine is the part of the machine state the dispatcher drives
type Machine interface {
	MoveTo(target uint8) error
	Pour(amount uint8) error
	Status() bartender.Status
	Location() uint8
}

// Stats counts dispatcher activity
type Stats struct {
	Frames        uint64
	Malformed     uint64
	Rejected      uint64
	PartialWrites uint64
}

// Handler is the command dispatcher. It is driven from the main flow only.
type Handler struct {
	machine Machine
	out     ResponseWriter
	log     *zap.Logger

	rsp protocol.Message

	frames        atomic.Uint64
	malformed     atomic.Uint64
	rejected      atomic.Uint64
	partialWrites atomic.Uint64
}

// New creates a dispatcher writing responses to out
func New(machine Machine, out ResponseWriter, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{machine: machine, out: out, log: log}
}

// Handle processes one received frame to completion. For Move and Pour it
// blocks for the whole operation.
func (h *Handler) Handle(frame protocol.Message) {
	h.frames.Add(1)

	if err := protocol.Validate(&frame); err != nil {
		h.malformed.Add(1)
		h.log.Debug("dropping malformed frame", zap.Error(err))
		h.replyError(protocol.Blank, protocol.RspMalformed)
		return
	}

	switch frame.Type() {
	case protocol.TypeCommand:
	case protocol.TypeResponse:
		h.rejected.Add(1)
		h.replyError(protocol.Blank, protocol.RspNotImplemented)
		return
	default:
		h.rejected.Add(1)
		h.log.Debug("unknown message type", zap.Uint8("type", frame.Type()))
		h.replyError(protocol.Blank, protocol.RspUnknownType)
		return
	}

	switch cmd := frame.Command(); cmd {
	case protocol.CmdStop:
		h.replyOk(protocol.CmdStop)

	case protocol.CmdMove:
		h.handleMove(frame[protocol.ParamLocation])

	case protocol.CmdPour:
		h.handlePour(frame[protocol.ParamAmount])

	case protocol.CmdStatus:
		protocol.BuildOk(&h.rsp, protocol.CmdStatus)
		h.rsp[protocol.ParamStatus] = uint8(h.machine.Status())
		h.send()

	case protocol.CmdLocation:
		// Acknowledged without a location value
		h.replyOk(protocol.CmdLocation)

	default:
		h.rejected.Add(1)
		h.log.Debug("unknown command", zap.Uint8("command", cmd))
		h.replyError(protocol.Blank, protocol.RspUnknownCommand)
	}
}

func (h *Handler) handleMove(target uint8) {
	if target > protocol.MaxLocation {
		h.log.Warn("move target out of range", zap.Uint8("target", target))
		h.replyError(protocol.CmdMove, protocol.RspError)
		return
	}

	h.replyOk(protocol.CmdMove)

	if err := h.machine.MoveTo(target); err != nil {
		h.log.Warn("move failed", zap.Uint8("target", target), zap.Error(err))
		h.replyError(protocol.CmdMove, protocol.RspError)
		return
	}

	h.log.Info("move complete", zap.Uint8("location", h.machine.Location()))
	h.replyComplete(protocol.CmdMove)
}

func (h *Handler) handlePour(amount uint8) {
	h.replyOk(protocol.CmdPour)

	if err := h.machine.Pour(amount); err != nil {
		h.log.Warn("pour failed", zap.Uint8("amount", amount), zap.Error(err))
		h.replyError(protocol.CmdPour, protocol.RspError)
		return
	}

	h.log.Info("pour complete", zap.Uint8("amount", amount))
	h.replyComplete(protocol.CmdPour)
}

func (h *Handler) replyOk(cmd uint8) {
	protocol.BuildOk(&h.rsp, cmd)
	h.send()
}

func (h *Handler) replyError(cmd, code uint8) {
	protocol.BuildError(&h.rsp, cmd, code)
	h.send()
}

func (h *Handler) replyComplete(cmd uint8) {
	protocol.BuildComplete(&h.rsp, cmd)
	h.send()
}

// send writes the response buffer. A transmit overflow truncates the frame;
// the remainder is dropped and counted.
func (h *Handler) send() {
	n, err := h.out.WriteChunk(h.rsp.Bytes())
	if err == nil {
		return
	}

	h.partialWrites.Add(1)
	h.log.Error("response truncated",
		zap.String("command", protocol.FormatCommand(h.rsp.Command())),
		zap.String("code", protocol.FormatResponseCode(h.rsp.ResponseCode())),
		zap.Int("written", n),
		zap.Error(err))
}

// Stats returns a snapshot of the dispatcher counters
func (h *Handler) Stats() Stats {
	return Stats{
		Frames:        h.frames.Load(),
		Malformed:     h.malformed.Load(),
		Rejected:      h.rejected.Load(),
		PartialWrites: h.partialWrites.Load(),
	}
}
