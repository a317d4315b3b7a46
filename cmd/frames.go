// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"io"

	"github.com/Thermoquad/bartender/pkg/protocol"
)

// linkEvent is one frame, or one rejected frame, read from the link
type linkEvent struct {
	frame     *protocol.Frame
	decodeErr error
	skipped   int // bytes discarded before frame
}

// readLink decodes r into events until a read fails or done is closed.
// It returns the read error, or nil once done is closed.
func readLink(r io.Reader, events chan<- linkEvent, done <-chan struct{}) error {
	fr := protocol.NewFrameReader(r)
	for {
		frame, err := fr.Next()

		ev := linkEvent{frame: frame}
		switch {
		case err == nil:
			ev.skipped = fr.Skipped()
		case errors.Is(err, protocol.ErrMalformed):
			ev.decodeErr = err
		default:
			return err
		}

		select {
		case events <- ev:
		case <-done:
			return nil
		}
	}
}
