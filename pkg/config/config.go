// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the bartender YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/bartender/pkg/bartender"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Link        LinkConfig      `yaml:"link"`
	Machine     MachineConfig   `yaml:"machine"`
	Simulator   SimulatorConfig `yaml:"simulator"`
	HeartbeatMs int             `yaml:"heartbeat_ms"`
	Log         LogConfig       `yaml:"log"`
}

// ---- LINK ----

type LinkConfig struct {
	// Serial port; ignored when URL is set
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`

	// WebSocket serial bridge
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`

	// ReadTimeoutMs bounds a single serial read so link readers notice
	// shutdown; KeepaliveMs is the WebSocket ping period (0 disables)
	ReadTimeoutMs int `yaml:"read_timeout_ms"`
	KeepaliveMs   int `yaml:"keepalive_ms"`

	// Reopen backoff after the link is lost
	ReconnectMinMs int `yaml:"reconnect_min_ms"`
	ReconnectMaxMs int `yaml:"reconnect_max_ms"`

	RxBuffer int `yaml:"rx_buffer"`
	TxBuffer int `yaml:"tx_buffer"`
}

// ---- MACHINE ----

type MachineConfig struct {
	// Calibration holds one step count per segment, home first
	Calibration []uint16 `yaml:"calibration"`
	PourHoldMs  int      `yaml:"pour_hold_ms"`
}

// ---- SIMULATOR ----

type SimulatorConfig struct {
	StepSettleMs int `yaml:"step_settle_ms"`
}

// ---- LOG ----

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Link: LinkConfig{
			Port:           "/dev/ttyUSB0",
			Baud:           9600,
			ReadTimeoutMs:  200,
			KeepaliveMs:    10000,
			ReconnectMinMs: 1000,
			ReconnectMaxMs: 30000,
			RxBuffer:       64,
			TxBuffer:       64,
		},
		Machine: MachineConfig{
			Calibration: append([]uint16(nil), bartender.DefaultCalibration[:]...),
			PourHoldMs:  int(bartender.DefaultPourHold / time.Millisecond),
		},
		Simulator:   SimulatorConfig{StepSettleMs: 5},
		HeartbeatMs: 10000,
		Log:         LogConfig{Level: "info"},
	}
}

// Load reads a YAML file on top of Default. Keys missing from the file keep
// their default values; unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Calibration converts the configured step table
func (c *Config) Calibration() (bartender.Calibration, error) {
	return bartender.NewCalibration(c.Machine.Calibration)
}

// PourHold returns the pour hold as a duration
func (c *Config) PourHold() time.Duration {
	return time.Duration(c.Machine.PourHoldMs) * time.Millisecond
}

// StepSettle returns the simulated stepper settle interval
func (c *Config) StepSettle() time.Duration {
	return time.Duration(c.Simulator.StepSettleMs) * time.Millisecond
}

// Heartbeat returns the status heartbeat period; zero disables it
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatMs) * time.Millisecond
}

// ReadTimeout returns the serial read timeout
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Link.ReadTimeoutMs) * time.Millisecond
}

// Keepalive returns the WebSocket ping period; zero disables it
func (c *Config) Keepalive() time.Duration {
	return time.Duration(c.Link.KeepaliveMs) * time.Millisecond
}

// Reconnect returns the first and the longest delay between reopen attempts
func (c *Config) Reconnect() (first, longest time.Duration) {
	return time.Duration(c.Link.ReconnectMinMs) * time.Millisecond,
		time.Duration(c.Link.ReconnectMaxMs) * time.Millisecond
}
