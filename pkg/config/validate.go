// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"net/url"

	"github.com/Thermoquad/bartender/pkg/protocol"
	"go.uber.org/zap/zapcore"
)

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ------------------------------------------------------------
	// LINK
	// ------------------------------------------------------------

	if cfg.Link.Port == "" && cfg.Link.URL == "" {
		return fmt.Errorf("link: either port or url must be set")
	}
	if cfg.Link.URL != "" {
		u, err := url.Parse(cfg.Link.URL)
		if err != nil {
			return fmt.Errorf("link: invalid url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("link: unsupported url scheme %q (use ws:// or wss://)", u.Scheme)
		}
	}
	if cfg.Link.Baud <= 0 {
		return fmt.Errorf("link: baud must be positive, got %d", cfg.Link.Baud)
	}
	if cfg.Link.ReadTimeoutMs <= 0 {
		return fmt.Errorf("link: read_timeout_ms must be positive, got %d", cfg.Link.ReadTimeoutMs)
	}
	if cfg.Link.KeepaliveMs < 0 {
		return fmt.Errorf("link: keepalive_ms must not be negative, got %d", cfg.Link.KeepaliveMs)
	}
	if cfg.Link.ReconnectMinMs <= 0 {
		return fmt.Errorf("link: reconnect_min_ms must be positive, got %d", cfg.Link.ReconnectMinMs)
	}
	if cfg.Link.ReconnectMaxMs < cfg.Link.ReconnectMinMs {
		return fmt.Errorf("link: reconnect_max_ms (%d) is below reconnect_min_ms (%d)",
			cfg.Link.ReconnectMaxMs, cfg.Link.ReconnectMinMs)
	}

	// The device only reads whole frames and answers with whole frames
	if cfg.Link.RxBuffer < protocol.MessageSize {
		return fmt.Errorf("link: rx_buffer must hold a %d-byte frame, got %d",
			protocol.MessageSize, cfg.Link.RxBuffer)
	}
	if cfg.Link.TxBuffer < protocol.MessageSize {
		return fmt.Errorf("link: tx_buffer must hold a %d-byte frame, got %d",
			protocol.MessageSize, cfg.Link.TxBuffer)
	}

	// ------------------------------------------------------------
	// MACHINE
	// ------------------------------------------------------------

	if _, err := cfg.Calibration(); err != nil {
		return fmt.Errorf("machine: %w", err)
	}
	if cfg.Machine.PourHoldMs < 0 {
		return fmt.Errorf("machine: pour_hold_ms must not be negative, got %d", cfg.Machine.PourHoldMs)
	}

	// ------------------------------------------------------------
	// TIMING
	// ------------------------------------------------------------

	if cfg.Simulator.StepSettleMs < 0 {
		return fmt.Errorf("simulator: step_settle_ms must not be negative, got %d", cfg.Simulator.StepSettleMs)
	}
	if cfg.HeartbeatMs < 0 {
		return fmt.Errorf("heartbeat_ms must not be negative, got %d", cfg.HeartbeatMs)
	}

	// ------------------------------------------------------------
	// LOG
	// ------------------------------------------------------------

	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	return nil
}
