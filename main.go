// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Bartender - Drink Carousel Controller
//
// Runs the bartender control core on a serial link and provides the
// controller-side tools for driving and monitoring it.

package main

import (
	"os"

	"github.com/Thermoquad/bartender/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
