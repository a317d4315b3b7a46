// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Thermoquad/bartender/pkg/link"
	"github.com/Thermoquad/bartender/pkg/protocol"
	"github.com/spf13/cobra"
)

var sendTimeout time.Duration

// ErrNoResponse is returned when the exchange ends before a terminal response
var ErrNoResponse = errors.New("no terminal response")

var moveCmd = &cobra.Command{
	Use:   "move <location>",
	Short: "Move the carousel to a station (0 = home, max 12)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := parseUint8(args[0], "location")
		if err != nil {
			return err
		}
		return runSend(cmd, protocol.NewMoveCommand(loc))
	},
}

var pourCmd = &cobra.Command{
	Use:   "pour <amount>",
	Short: "Run dispense cycles at the current station",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseUint8(args[0], "amount")
		if err != nil {
			return err
		}
		return runSend(cmd, protocol.NewPourCommand(amount))
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the machine status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSend(cmd, protocol.NewStatusCommand())
	},
}

var locationCmd = &cobra.Command{
	Use:   "location",
	Short: "Query the carousel location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSend(cmd, protocol.NewLocationCommand())
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Send a stop command",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSend(cmd, protocol.NewStopCommand())
	},
}

func init() {
	for _, c := range []*cobra.Command{moveCmd, pourCmd, statusCmd, locationCmd, stopCmd} {
		c.Flags().DurationVarP(&sendTimeout, "timeout", "t", 2*time.Minute, "Time to wait for the final response")
		rootCmd.AddCommand(c)
	}
}

func parseUint8(s, name string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return uint8(v), nil
}

func runSend(cmd *cobra.Command, msg protocol.Message) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	conn, opts, err := openLink(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Connection: %s\n", link.Describe(opts))
	fmt.Print(protocol.FormatMessage(&msg))

	ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
	defer cancel()

	responses, err := exchange(ctx, conn, msg, func(rsp protocol.Message) {
		fmt.Printf("[%s] %s", time.Now().Format("15:04:05.000"), protocol.FormatMessage(&rsp))
	})
	if err != nil {
		return err
	}

	last := responses[len(responses)-1]
	if last.ResponseCode() != protocol.RspOk && last.ResponseCode() != protocol.RspComplete {
		return fmt.Errorf("%s failed: %s", protocol.FormatCommand(msg.Command()), protocol.FormatResponseCode(last.ResponseCode()))
	}
	return nil
}

// exchange writes msg and collects responses until the exchange is over:
// a single response for one-phase commands, Ok followed by Complete or
// Error for Move and Pour. onResponse sees each response as it arrives.
// The caller closes conn to release the reader after a timeout.
func exchange(ctx context.Context, conn io.ReadWriter, msg protocol.Message, onResponse func(protocol.Message)) ([]protocol.Message, error) {
	if _, err := conn.Write(msg.Bytes()); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	events := make(chan linkEvent)
	readErr := make(chan error, 1)
	go func() {
		readErr <- readLink(conn, events, ctx.Done())
	}()

	var responses []protocol.Message
	for {
		select {
		case <-ctx.Done():
			return responses, fmt.Errorf("%w for %s: %w", ErrNoResponse, protocol.FormatCommand(msg.Command()), ctx.Err())
		case err := <-readErr:
			return responses, fmt.Errorf("%w for %s: %w", ErrNoResponse, protocol.FormatCommand(msg.Command()), err)
		case ev := <-events:
			if ev.frame == nil || !ev.frame.Message.IsResponse() {
				continue
			}
			rsp := ev.frame.Message
			if onResponse != nil {
				onResponse(rsp)
			}
			responses = append(responses, rsp)

			related := rsp.Command() == msg.Command() || rsp.Command() == protocol.Blank
			if related && rsp.Terminal() {
				return responses, nil
			}
		}
	}
}
