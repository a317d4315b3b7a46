// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bartender

import "errors"

var (
	// ErrBusy is returned when another operation is already active
	ErrBusy = errors.New("bartender: busy")

	// ErrInvalidCall is returned when an operation's precondition is not met
	ErrInvalidCall = errors.New("bartender: invalid call")

	// ErrInvalidLocation is returned for targets outside [0, MaxLocation]
	ErrInvalidLocation = errors.New("bartender: invalid location")

	// ErrStopped is returned when an operation ended because the machine
	// was stopped; the machine stays stopped until Reset
	ErrStopped = errors.New("bartender: stopped")
)
