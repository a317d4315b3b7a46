// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"fmt"
	"strings"
)

// FormatFrame formats a decoded frame into a human-readable line
func FormatFrame(f *Frame) string {
	return fmt.Sprintf("[%s] %s", f.Timestamp.Format("15:04:05.000"), FormatMessage(&f.Message))
}

// FormatMessage formats a message into a human-readable string
func FormatMessage(m *Message) string {
	if !m.Valid() {
		return fmt.Sprintf("MALFORMED start=0x%02X end=0x%02X\n%s", m[IndexStart], m[IndexEnd], FormatHex(m.Bytes()))
	}

	switch m.Type() {
	case TypeCommand:
		result := fmt.Sprintf("COMMAND %s (0x%02X)\n", FormatCommand(m.Command()), m.Command())
		switch m.Command() {
		case CmdMove:
			result += fmt.Sprintf("  Location: %d\n", m[ParamLocation])
		case CmdPour:
			result += fmt.Sprintf("  Amount: %d\n", m[ParamAmount])
		}
		return result

	case TypeResponse:
		result := fmt.Sprintf("RESPONSE %s %s (0x%02X)\n",
			FormatCommand(m.Command()), FormatResponseCode(m.ResponseCode()), m.ResponseCode())
		if m.Command() == CmdStatus && m.ResponseCode() == RspOk {
			result += fmt.Sprintf("  Status: %s (0x%02X)\n", FormatStatus(StatusOf(m)), StatusOf(m))
		}
		return result

	default:
		return fmt.Sprintf("%s (0x%02X)\n%s", FormatType(m.Type()), m.Type(), FormatHex(m.Bytes()))
	}
}

// FormatType returns the human-readable name for a message type
func FormatType(t uint8) string {
	switch t {
	case TypeCommand:
		return "COMMAND"
	case TypeResponse:
		return "RESPONSE"
	default:
		return "UNKNOWN_TYPE"
	}
}

// FormatCommand returns the human-readable name for a command code
func FormatCommand(cmd uint8) string {
	switch cmd {
	case Blank:
		return "BLANK"
	case CmdStop:
		return "STOP"
	case CmdMove:
		return "MOVE"
	case CmdPour:
		return "POUR"
	case CmdStatus:
		return "STATUS"
	case CmdLocation:
		return "LOCATION"
	default:
		return "UNKNOWN"
	}
}

// FormatResponseCode returns the human-readable name for a response code
func FormatResponseCode(code uint8) string {
	switch code {
	case RspOk:
		return "OK"
	case RspError:
		return "ERROR"
	case RspMalformed:
		return "MALFORMED_MESSAGE"
	case RspUnknownCommand:
		return "UNKNOWN_COMMAND"
	case RspUnknownType:
		return "UNKNOWN_TYPE"
	case RspNotImplemented:
		return "NOT_IMPLEMENTED"
	case RspComplete:
		return "COMPLETE"
	case RspFatal:
		return "FATAL"
	case RspQueueFull:
		return "QUEUE_FULL"
	default:
		return "UNKNOWN"
	}
}

// FormatStatus returns the human-readable name for a machine status
func FormatStatus(status uint8) string {
	statusNames := []string{"IDLE", "MOVING", "POURING", "INTERRUPTED", "STOPPED"}
	if int(status) < len(statusNames) {
		return statusNames[status]
	}
	return "UNKNOWN"
}

// FormatHex renders bytes as a 16-per-line hex dump
func FormatHex(data []byte) string {
	var s strings.Builder
	s.WriteString("  Bytes: ")
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			s.WriteString("\n         ")
		}
		fmt.Fprintf(&s, "%02X ", b)
	}
	s.WriteString("\n")
	return s.String()
}
