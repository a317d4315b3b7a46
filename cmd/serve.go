// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/bartender/pkg/bartender"
	"github.com/Thermoquad/bartender/pkg/config"
	"github.com/Thermoquad/bartender/pkg/device"
	"github.com/Thermoquad/bartender/pkg/hal"
	"github.com/Thermoquad/bartender/pkg/link"
	"github.com/Thermoquad/bartender/pkg/uart"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bartender on a link with simulated actuators",
	Long: `Run the bartender control core on a serial port or WebSocket bridge.

Frames from the controller are executed one at a time. The carousel stepper
and pour actuator are simulated; their timing comes from the configuration.

Signals:
  SIGUSR1  trip the home limit sensor (interrupts an active move)
  SIGUSR2  emergency stop (machine stays stopped until reset)
  SIGHUP   reset a stopped machine (retract, home, idle)
  SIGINT   shut down`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	machine, stepper, err := buildMachine(cfg, log)
	if err != nil {
		return err
	}
	stepper.OnLimit(func() { machine.Interrupt() })

	transport, err := uart.NewTransport(cfg.Link.RxBuffer, cfg.Link.TxBuffer)
	if err != nil {
		return err
	}

	dev, err := device.New(transport, machine, device.Options{
		Heartbeat: cfg.Heartbeat(),
		Logger:    log.Named("device"),
	})
	if err != nil {
		return err
	}

	// The first open fails the command; later ones are retried
	first, opts, err := openLink(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go handleMachineSignals(ctx, machine, stepper, dev, log)

	// Each opened link gets its own pump over the shared transport, so
	// replies queued while the link was down go out on the next one
	linkErr := make(chan error, 1)
	go func() {
		linkErr <- link.Keep(ctx, link.First(first, reopener(opts)), func(ctx context.Context, l link.Link) error {
			log.Info("link up", zap.String("connection", link.Describe(opts)))
			return uart.NewPump(transport, l, log.Named("pump")).Run(ctx)
		}, linkBackoff(cfg), log.Named("link"))
	}()

	devErr := make(chan error, 1)
	go func() { devErr <- dev.Run(ctx) }()

	log.Info("serving", zap.String("connection", link.Describe(opts)))

	select {
	case err = <-linkErr:
		cancel()
	case err = <-devErr:
		cancel()
		<-linkErr
	case <-ctx.Done():
		<-linkErr
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve: %w", err)
	}
	log.Info("shutdown", zap.Uint8("location", machine.Location()), zap.Stringer("status", machine.Status()))
	return nil
}

// buildMachine creates the machine with simulated actuators
func buildMachine(cfg *config.Config, log *zap.Logger) (*bartender.Machine, *hal.SimStepper, error) {
	calibration, err := cfg.Calibration()
	if err != nil {
		return nil, nil, err
	}

	stepper := hal.NewSimStepper(cfg.StepSettle(), log.Named("stepper"))
	pour := hal.NewSimPour(log.Named("pour"))

	machine, err := bartender.New(stepper, pour, bartender.Config{
		Calibration: calibration,
		PourHold:    cfg.PourHold(),
		Logger:      log.Named("machine"),
	})
	if err != nil {
		return nil, nil, err
	}
	return machine, stepper, nil
}

// handleMachineSignals maps process signals onto the machine's asynchronous
// inputs until ctx is done
func handleMachineSignals(ctx context.Context, machine *bartender.Machine, stepper *hal.SimStepper, dev *device.Device, log *zap.Logger) {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGHUP)
	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			switch sig {
			case syscall.SIGUSR1:
				tripped := machine.Interrupt()
				log.Info("limit sensor", zap.Bool("interrupted", tripped), zap.Int("position", stepper.Position()))
			case syscall.SIGUSR2:
				machine.Stop()
				log.Warn("emergency stop")
			case syscall.SIGHUP:
				log.Info("reset requested")
				dev.RequestReset()
			}
		}
	}
}
