// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package uart implements the interrupt-fed duplex byte channel between the
// link and the main control flow.
//
// The receive buffer is written only from the interrupt side (OnReceive) and
// read only by the main flow. The transmit buffer is written only by the main
// flow and drained only from the interrupt side (OnTransmitReady). Every
// buffer update on either side runs inside that buffer's critical section.
package uart

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Thermoquad/bartender/pkg/ring"
)

// Default buffer sizes, matching the firmware's USART buffers
const (
	DefaultRxBufferSize = 64
	DefaultTxBufferSize = 64
)

// Transport is a duplex byte channel backed by two ring buffers
type Transport struct {
	rxMu sync.Mutex
	rx   *ring.Buffer[byte]

	txMu    sync.Mutex
	tx      *ring.Buffer[byte]
	txArmed atomic.Bool

	received chan struct{}
	kick     chan struct{}

	rxDropped atomic.Uint64
	txDropped atomic.Uint64
}

// NewTransport creates a transport with the given buffer capacities
func NewTransport(rxSize, txSize int) (*Transport, error) {
	rx, err := ring.New[byte](rxSize)
	if err != nil {
		return nil, fmt.Errorf("receive buffer: %w", err)
	}
	tx, err := ring.New[byte](txSize)
	if err != nil {
		return nil, fmt.Errorf("transmit buffer: %w", err)
	}

	return &Transport{
		rx:       rx,
		tx:       tx,
		received: make(chan struct{}, 1),
		kick:     make(chan struct{}, 1),
	}, nil
}

//////////////////////////////////////////////////////////////
// Main flow
//////////////////////////////////////////////////////////////

// WriteByte queues a byte for transmission and arms the transmit-ready
// interrupt. Returns ring.ErrOverflow if the transmit buffer is full; the
// byte is dropped.
func (t *Transport) WriteByte(b byte) error {
	t.txMu.Lock()
	err := t.tx.Enqueue(b)
	t.txArmed.Store(true)
	t.txMu.Unlock()

	signal(t.kick)

	if err != nil {
		t.txDropped.Add(1)
	}
	return err
}

// WriteChunk writes p byte by byte. It stops at the first overflow and
// reports it; bytes queued before the failure stay queued. The returned count
// is the number of bytes queued.
func (t *Transport) WriteChunk(p []byte) (int, error) {
	for i, b := range p {
		if err := t.WriteByte(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// ReadByte returns the oldest unread byte or ring.ErrEmpty
func (t *Transport) ReadByte() (byte, error) {
	t.rxMu.Lock()
	defer t.rxMu.Unlock()
	return t.rx.Dequeue()
}

// ReadFull fills p from the receive buffer. If fewer than len(p) bytes are
// available nothing is consumed and ring.ErrEmpty is returned.
func (t *Transport) ReadFull(p []byte) error {
	t.rxMu.Lock()
	defer t.rxMu.Unlock()

	if t.rx.Len() < len(p) {
		return ring.ErrEmpty
	}
	for i := range p {
		b, err := t.rx.Dequeue()
		if err != nil {
			return err
		}
		p[i] = b
	}
	return nil
}

// Available returns the number of unread bytes
func (t *Transport) Available() int {
	t.rxMu.Lock()
	defer t.rxMu.Unlock()
	return t.rx.Len()
}

// Received is signalled after the interrupt side stores a byte. The signal
// is coalesced; callers should drain Available() after each wake-up.
func (t *Transport) Received() <-chan struct{} {
	return t.received
}

//////////////////////////////////////////////////////////////
// Interrupt side
//////////////////////////////////////////////////////////////

// OnReceive stores a byte arriving from the link. On overflow the byte is
// dropped, counted, and ring.ErrOverflow is returned.
func (t *Transport) OnReceive(b byte) error {
	t.rxMu.Lock()
	err := t.rx.Enqueue(b)
	t.rxMu.Unlock()

	if err != nil {
		t.rxDropped.Add(1)
		return err
	}

	signal(t.received)
	return nil
}

// OnTransmitReady returns the next byte to put on the link. When the
// transmit buffer is drained the transmit-ready interrupt disables itself
// and false is returned until the next WriteByte re-arms it.
func (t *Transport) OnTransmitReady() (byte, bool) {
	if !t.txArmed.Load() {
		return 0, false
	}

	t.txMu.Lock()
	defer t.txMu.Unlock()

	b, err := t.tx.Dequeue()
	if err != nil {
		t.txArmed.Store(false)
		return 0, false
	}
	return b, true
}

// TransmitArmed reports whether the transmit-ready interrupt is enabled
func (t *Transport) TransmitArmed() bool {
	return t.txArmed.Load()
}

// Kick is signalled whenever WriteByte arms the transmit-ready interrupt
func (t *Transport) Kick() <-chan struct{} {
	return t.kick
}

// Dropped returns the number of bytes lost to receive and transmit overflow
func (t *Transport) Dropped() (rx, tx uint64) {
	return t.rxDropped.Load(), t.txDropped.Load()
}

// signal performs a non-blocking send on a 1-slot channel
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
