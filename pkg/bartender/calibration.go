// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bartender

import "fmt"

// Segments is the number of calibration entries, one per location
const Segments = MaxLocation + 1

// Calibration holds the step count of each segment between adjacent
// locations. Forward travel out of location i uses entry i; reverse travel
// out of location i uses entry i-1.
type Calibration [Segments]uint16

// DefaultCalibration is the table measured on the reference carousel
var DefaultCalibration = Calibration{900, 635, 675, 675, 660, 675, 675, 675, 675, 675, 645, 675, 675}

// NewCalibration builds a table from a slice of step counts
func NewCalibration(steps []uint16) (Calibration, error) {
	var c Calibration
	if len(steps) != Segments {
		return c, fmt.Errorf("calibration needs %d entries, got %d", Segments, len(steps))
	}
	for i, s := range steps {
		if s == 0 {
			return c, fmt.Errorf("calibration entry %d is zero", i)
		}
		c[i] = s
	}
	return c, nil
}

// Steps returns the step count for leaving location in direction dir
func (c *Calibration) Steps(location uint8, dir Direction) uint16 {
	if dir == Forward {
		return c[location]
	}
	return c[location-1]
}
