// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	dialTimeout      = 15 * time.Second
	closeGrace       = time.Second
)

// wsLink carries the byte stream in binary WebSocket messages. A message
// may hold any number of bytes; frame boundaries are not preserved.
type wsLink struct {
	conn      *websocket.Conn
	keepalive time.Duration

	// reader side
	msg io.Reader

	// writer side
	wmu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

func dialWebSocket(opts Options) (Link, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported url scheme %q (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: opts.SkipVerify}
	}

	header := http.Header{}
	if opts.Username != "" {
		req := http.Request{Header: header}
		req.SetBasicAuth(opts.Username, opts.Password)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s (HTTP %d): %w", opts.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", opts.URL, err)
	}

	return newWSLink(conn, opts.Keepalive), nil
}

// newWSLink wraps an established connection and starts the keepalive
func newWSLink(conn *websocket.Conn, keepalive time.Duration) *wsLink {
	w := &wsLink{
		conn:      conn,
		keepalive: keepalive,
		done:      make(chan struct{}),
	}

	if keepalive > 0 {
		wait := 2 * keepalive
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wait))
		})
		go w.ping()
	}
	return w
}

// ping sends a ping every keepalive period until the link closes
func (w *wsLink) ping() {
	ticker := time.NewTicker(w.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(w.keepalive)
			if err := w.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (w *wsLink) Read(p []byte) (int, error) {
	for {
		if w.msg == nil {
			typ, r, err := w.conn.NextReader()
			if err != nil {
				return 0, w.wrap(err)
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			w.msg = r
		}

		n, err := w.msg.Read(p)
		if errors.Is(err, io.EOF) {
			w.msg = nil
			if n == 0 {
				continue
			}
			return n, nil
		}
		if err != nil {
			return n, w.wrap(err)
		}
		return n, nil
	}
}

func (w *wsLink) Write(p []byte) (int, error) {
	w.wmu.Lock()
	defer w.wmu.Unlock()

	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, w.wrap(err)
	}
	return len(p), nil
}

// Close says goodbye to the bridge and closes the connection
func (w *wsLink) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		err = w.conn.Close()
	})
	return err
}

// wrap maps every terminal connection error onto ErrClosed. Gorilla
// connections do not recover after a read error, including a deadline.
func (w *wsLink) wrap(err error) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	return fmt.Errorf("%w: %v", ErrClosed, err)
}
