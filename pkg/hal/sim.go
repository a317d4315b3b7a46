// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"sync"
	"time"

	"github.com/Thermoquad/bartender/pkg/bartender"
	"go.uber.org/zap"
)

var (
	_ bartender.Stepper      = (*SimStepper)(nil)
	_ bartender.PourActuator = (*SimPour)(nil)
)

// SimStepper is a simulated carousel stepper. It tracks the carriage's step
// position and trips the home limit sensor when a reverse step reaches
// position 0.
type SimStepper struct {
	settle time.Duration
	log    *zap.Logger

	mu       sync.Mutex
	position int
	steps    uint64
	onLimit  func()
}

// NewSimStepper creates a carriage at home that sleeps settle per step
func NewSimStepper(settle time.Duration, log *zap.Logger) *SimStepper {
	if log == nil {
		log = zap.NewNop()
	}
	return &SimStepper{settle: settle, log: log}
}

// OnLimit registers the home limit sensor handler, typically
// Machine.Interrupt
func (s *SimStepper) OnLimit(fn func()) {
	s.mu.Lock()
	s.onLimit = fn
	s.mu.Unlock()
}

// Step moves the carriage one step and blocks for the settle interval
func (s *SimStepper) Step(dir bartender.Direction) {
	s.mu.Lock()
	s.steps++
	if dir == bartender.Forward {
		s.position++
	} else {
		s.position--
	}
	tripped := dir == bartender.Reverse && s.position <= 0
	if tripped {
		s.position = 0
	}
	onLimit := s.onLimit
	s.mu.Unlock()

	if s.settle > 0 {
		time.Sleep(s.settle)
	}

	if tripped && onLimit != nil {
		s.log.Debug("home limit reached")
		onLimit()
	}
}

// Release de-energizes the simulated coils
func (s *SimStepper) Release() {
	s.log.Debug("stepper released", zap.Int("position", s.Position()))
}

// Position returns the carriage position in steps from home
func (s *SimStepper) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Steps returns the number of steps taken since creation
func (s *SimStepper) Steps() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

// SimPour is a simulated pour actuator
type SimPour struct {
	log *zap.Logger

	mu     sync.Mutex
	state  bartender.PourDirection
	moving bool
	cycles uint64
}

// NewSimPour creates a retracted pour actuator
func NewSimPour(log *zap.Logger) *SimPour {
	if log == nil {
		log = zap.NewNop()
	}
	return &SimPour{log: log, state: bartender.PourDown}
}

// Move drives the actuator toward dir. A down move from the dispensing
// position completes a cycle.
func (p *SimPour) Move(dir bartender.PourDirection) {
	p.mu.Lock()
	if dir == bartender.PourDown && p.state == bartender.PourUp {
		p.cycles++
	}
	p.state = dir
	p.moving = true
	p.mu.Unlock()

	p.log.Debug("pour actuator", zap.Stringer("direction", dir))
}

// Stop de-energizes the actuator
func (p *SimPour) Stop() {
	p.mu.Lock()
	p.moving = false
	p.mu.Unlock()
}

// Position returns the last commanded position and whether the actuator is
// energized
func (p *SimPour) Position() (bartender.PourDirection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.moving
}

// Cycles returns the number of completed dispense cycles
func (p *SimPour) Cycles() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycles
}
