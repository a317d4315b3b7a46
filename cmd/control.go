// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Thermoquad/bartender/pkg/link"
	"github.com/Thermoquad/bartender/pkg/protocol"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for driving the bartender",
	Long: `Drive the bartender via an interactive terminal UI.

Features:
  - Move, pour, status, location and stop commands
  - Two-phase tracking of move and pour (accepted, then complete or error)
  - Periodic status polling while no command is in flight
  - Statistics tracking and event logging
  - Automatic reconnection on connection loss

Arrow keys choose a command, Tab moves to its argument, Enter sends.

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// errLinkDown is returned by send while the link is being reopened
var errLinkDown = errors.New("link down")

// controlLink owns the controller's side of the link: the TUI sends frames
// through it while a link session feeds decoded frames back to the TUI.
type controlLink struct {
	mu  sync.Mutex
	cur link.Link

	// notify delivers a message to the TUI
	notify func(tea.Msg)
}

// send writes one frame on the current link
func (c *controlLink) send(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur == nil {
		return errLinkDown
	}
	_, err := c.cur.Write(msg.Bytes())
	return err
}

func (c *controlLink) set(l link.Link) {
	c.mu.Lock()
	c.cur = l
	c.mu.Unlock()
}

// session serves one open link: it asks for the machine status and forwards
// every frame to the TUI until the link fails or ctx is done
func (c *controlLink) session(ctx context.Context, l link.Link) error {
	c.set(l)
	defer c.set(nil)

	_ = c.send(protocol.NewStatusCommand())

	events := make(chan linkEvent, 16)
	readErr := make(chan error, 1)
	go func() { readErr <- readLink(l, events, ctx.Done()) }()

	synced := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			c.notify(connectionLostMsg{})
			if err == nil {
				err = link.ErrClosed
			}
			return err

		case ev := <-events:
			if !synced && ev.frame != nil {
				synced = true
				c.notify(controlSyncMsg{skippedBytes: ev.skipped})
			}
			c.notify(controlDataMsg{frame: ev.frame, decodeErr: ev.decodeErr})
		}
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// The first open fails the command; later ones are retried
	first, opts, err := openLink(cfg)
	if err != nil {
		return err
	}

	cl := &controlLink{}
	p := tea.NewProgram(initialControlModel(cl, link.Describe(opts)),
		tea.WithAltScreen(), tea.WithMouseCellMotion())
	cl.notify = p.Send

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Every open after the first is a reconnect
	opened := 0
	firstOrReopen := link.First(first, reopener(opts))
	open := func() (link.Link, error) {
		l, err := firstOrReopen()
		if err != nil {
			return nil, err
		}
		if opened > 0 {
			p.Send(reconnectedMsg{connInfo: link.Describe(opts)})
		}
		opened++
		return l, nil
	}

	kept := make(chan struct{})
	go func() {
		defer close(kept)
		_ = link.Keep(ctx, open, cl.session, linkBackoff(cfg), nil)
	}()

	_, err = p.Run()
	cancel()
	<-kept

	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
