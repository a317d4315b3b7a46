// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import "fmt"

// AnomalyType represents different kinds of frame anomalies
type AnomalyType int

const (
	AnomalyUnknownType AnomalyType = iota
	AnomalyUnknownCommand
	AnomalyUnknownResponse
	AnomalyInvalidLocation
	AnomalyInvalidStatus
	AnomalyOutOfSequence
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyUnknownType:
		return "UNKNOWN_TYPE"
	case AnomalyUnknownCommand:
		return "UNKNOWN_COMMAND"
	case AnomalyUnknownResponse:
		return "UNKNOWN_RESPONSE"
	case AnomalyInvalidLocation:
		return "INVALID_LOCATION"
	case AnomalyInvalidStatus:
		return "INVALID_STATUS"
	case AnomalyOutOfSequence:
		return "OUT_OF_SEQUENCE"
	default:
		return "UNKNOWN"
	}
}

// ValidationError describes one anomaly in a well-formed frame
type ValidationError struct {
	Type    AnomalyType
	Message string
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateMessage checks the fields of a well-formed frame against the
// protocol's value ranges. It returns nil for a valid frame.
func ValidateMessage(m *Message) []ValidationError {
	var errs []ValidationError

	switch m.Type() {
	case TypeCommand:
		switch m.Command() {
		case CmdStop, CmdPour, CmdStatus, CmdLocation:
		case CmdMove:
			if loc := m[ParamLocation]; loc > MaxLocation {
				errs = append(errs, ValidationError{
					Type:    AnomalyInvalidLocation,
					Message: fmt.Sprintf("Move to location %d (max %d)", loc, MaxLocation),
				})
			}
		default:
			errs = append(errs, ValidationError{
				Type:    AnomalyUnknownCommand,
				Message: fmt.Sprintf("Unknown command 0x%02X", m.Command()),
			})
		}

	case TypeResponse:
		if m.ResponseCode() < RspOk || m.ResponseCode() > RspQueueFull {
			errs = append(errs, ValidationError{
				Type:    AnomalyUnknownResponse,
				Message: fmt.Sprintf("Unknown response code 0x%02X", m.ResponseCode()),
			})
		}
		if m.Command() == CmdStatus && m.ResponseCode() == RspOk {
			if s := StatusOf(m); s > StatusStopped {
				errs = append(errs, ValidationError{
					Type:    AnomalyInvalidStatus,
					Message: fmt.Sprintf("Status value %d out of range", s),
				})
			}
		}

	default:
		errs = append(errs, ValidationError{
			Type:    AnomalyUnknownType,
			Message: fmt.Sprintf("Unknown message type 0x%02X", m.Type()),
		})
	}

	return errs
}

// Sequencer follows the exchanges on a link and flags responses that break
// the two-phase rules: a Complete with no accepted command, a second Ok
// before the first command finished, or a command sent while a move or pour
// is still running.
type Sequencer struct {
	pending  uint8 // two-phase command in flight, Blank if none
	accepted bool
}

// Observe records one frame and returns any sequence anomaly it causes
func (s *Sequencer) Observe(m *Message) []ValidationError {
	switch m.Type() {
	case TypeCommand:
		if s.pending != Blank && m.Command() != CmdStop {
			return []ValidationError{{
				Type:    AnomalyOutOfSequence,
				Message: fmt.Sprintf("%s sent while %s is in progress", FormatCommand(m.Command()), FormatCommand(s.pending)),
			}}
		}
		if IsTwoPhase(m.Command()) {
			s.pending = m.Command()
			s.accepted = false
		}
		return nil

	case TypeResponse:
		return s.observeResponse(m)
	}
	return nil
}

func (s *Sequencer) observeResponse(m *Message) []ValidationError {
	cmd := m.Command()
	if !IsTwoPhase(cmd) {
		return nil
	}

	switch m.ResponseCode() {
	case RspOk:
		if s.accepted && s.pending == cmd {
			return []ValidationError{{
				Type:    AnomalyOutOfSequence,
				Message: fmt.Sprintf("Second OK for %s", FormatCommand(cmd)),
			}}
		}
		s.pending = cmd
		s.accepted = true

	case RspComplete:
		if s.pending != cmd || !s.accepted {
			s.reset()
			return []ValidationError{{
				Type:    AnomalyOutOfSequence,
				Message: fmt.Sprintf("COMPLETE for %s without an accepted command", FormatCommand(cmd)),
			}}
		}
		s.reset()

	default:
		s.reset()
	}
	return nil
}

// Pending returns the two-phase command in flight, or Blank
func (s *Sequencer) Pending() uint8 {
	return s.pending
}

func (s *Sequencer) reset() {
	s.pending = Blank
	s.accepted = false
}
