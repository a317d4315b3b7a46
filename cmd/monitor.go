// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/Thermoquad/bartender/pkg/link"
	"github.com/Thermoquad/bartender/pkg/protocol"
	"github.com/spf13/cobra"
)

var monitorStats bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display every frame on the link in human-readable format",
	Long: `Continuously decode and display bartender protocol frames as they arrive.

Each frame is shown with its timestamp, type, command and response code.
Bytes that do not belong to a frame are skipped until the next start
sentinel. With --stats a summary is printed on exit.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().BoolVarP(&monitorStats, "stats", "s", false, "Print statistics on exit")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	conn, opts, err := openLink(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Bartender - Frame Monitor\n")
	fmt.Printf("Connection: %s\n", link.Describe(opts))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := protocol.NewStatistics()

	// Closing the link ends the read loop below
	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt)
	defer signal.Stop(interrupted)
	go func() {
		<-interrupted
		conn.Close()
	}()

	fr := protocol.NewFrameReader(conn)
	for {
		frame, err := fr.Next()
		switch {
		case err == nil:
			if n := fr.Skipped(); n > 0 {
				fmt.Printf("[SKIP] %d bytes outside a frame\n", n)
			}
			stats.Update(frame, nil)
			fmt.Print(protocol.FormatFrame(frame))

		case errors.Is(err, protocol.ErrMalformed):
			stats.Update(nil, err)
			fmt.Printf("[ERROR] %v\n", err)

		default:
			if !errors.Is(err, link.ErrClosed) {
				log.Printf("Read error: %v", err)
			}
			if monitorStats {
				fmt.Print(stats.String())
			}
			return nil
		}
	}
}
