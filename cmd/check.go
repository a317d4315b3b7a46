// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/bartender/pkg/link"
	"github.com/Thermoquad/bartender/pkg/protocol"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Detect malformed frames and protocol anomalies",
	Long: `Track frame errors and protocol anomalies on the link with statistics.

Each frame is validated and the following are reported:
  - Frames with a missing end sentinel
  - Unknown message types, commands and response codes
  - Move commands past the last location
  - Status replies outside the known states
  - Exchanges that break the OK / COMPLETE ordering

By default, only problems are displayed. Use --show-all to display valid
frames too. Statistics are printed at the configured interval.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	checkCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return fmt.Errorf("stats-interval must be positive, got %d", statsInterval)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	conn, opts, err := openLink(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Bartender - Link Check\n")
	fmt.Printf("Connection: %s\n", link.Describe(opts))
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt)
	defer signal.Stop(interrupted)

	done := make(chan struct{})
	defer close(done)

	events := make(chan linkEvent, 16)
	readErr := make(chan error, 1)
	go func() { readErr <- readLink(conn, events, done) }()

	stats := protocol.NewStatistics()
	checker := newLinkChecker(stats)

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case ev := <-events:
			checker.observe(ev, printCheckEvent)

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()

		case err := <-readErr:
			if !errors.Is(err, link.ErrClosed) {
				log.Printf("Read error: %v", err)
			}
			fmt.Print(stats.String())
			return nil

		case <-interrupted:
			fmt.Println()
			fmt.Print(stats.String())
			return nil
		}
	}
}

// checkEvent is one thing the link checker wants reported
type checkEvent struct {
	frame     *protocol.Frame
	decodeErr error
	anomalies []protocol.ValidationError
	synced    bool // first frame after startup
	skipped   int  // bytes lost before the first frame
}

// linkChecker validates each frame read from a link and tracks the exchange
// sequence. Rejected frames before the first good frame count as lost
// bytes, not errors.
type linkChecker struct {
	sequencer    protocol.Sequencer
	stats        *protocol.Statistics
	synchronized bool
	lost         int
}

func newLinkChecker(stats *protocol.Statistics) *linkChecker {
	return &linkChecker{stats: stats}
}

func (c *linkChecker) observe(ev linkEvent, report func(checkEvent)) {
	if ev.decodeErr != nil {
		if !c.synchronized {
			c.lost += protocol.MessageSize
			return
		}
		c.stats.Update(nil, ev.decodeErr)
		report(checkEvent{decodeErr: ev.decodeErr})
		return
	}

	out := checkEvent{frame: ev.frame}
	if !c.synchronized {
		c.synchronized = true
		out.synced = true
		out.skipped = c.lost + ev.skipped
	}

	m := &ev.frame.Message
	out.anomalies = protocol.ValidateMessage(m)
	out.anomalies = append(out.anomalies, c.sequencer.Observe(m)...)
	c.stats.Update(ev.frame, nil)
	c.stats.AddAnomalies(out.anomalies)
	report(out)
}

func printCheckEvent(ev checkEvent) {
	if ev.decodeErr != nil {
		timestamp := time.Now().Format("15:04:05.000")
		fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, ev.decodeErr)
		fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
		return
	}

	if ev.synced {
		if ev.skipped > 0 {
			fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", ev.skipped)
		} else {
			fmt.Printf("[SYNC] Synchronized\n\n")
		}
	}

	if len(ev.anomalies) > 0 {
		printAnomalies(ev.frame, ev.anomalies)
		return
	}
	if showAll {
		fmt.Print(protocol.FormatFrame(ev.frame))
	}
}

func printAnomalies(frame *protocol.Frame, anomalies []protocol.ValidationError) {
	timestamp := frame.Timestamp.Format("15:04:05.000")
	m := &frame.Message

	fmt.Printf("[%s] \033[1;33mANOMALY:\033[0m %s %s\n", timestamp,
		protocol.FormatType(m.Type()), protocol.FormatCommand(m.Command()))
	for i, a := range anomalies {
		color := "\033[1;33m"
		if a.Type == protocol.AnomalyOutOfSequence {
			color = "\033[1;31m"
		}
		fmt.Printf("  Issue %d: %s%s\033[0m (%s)\n", i+1, color, a.Message, a.Type)
	}
	fmt.Printf("  Raw: %s\n\n", protocol.FormatHex(m.Bytes()))
}
