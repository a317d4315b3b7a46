// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bridge is a test WebSocket serial bridge. handle runs once per connection.
func bridge(t *testing.T, handle func(conn *websocket.Conn, r *http.Request)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// ============================================================
// Open
// ============================================================

func TestOpen_NoTarget(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}

func TestOpen_BadScheme(t *testing.T) {
	_, err := Open(Options{URL: "http://bridge.local/serial"})
	assert.ErrorContains(t, err, "unsupported url scheme")
}

func TestOpen_MissingSerialPort(t *testing.T) {
	_, err := Open(Options{Port: "/dev/bartender-does-not-exist", Baud: 9600})
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Serial: /dev/ttyUSB0 @ 9600 baud", Describe(Options{Port: "/dev/ttyUSB0", Baud: 9600}))
	assert.Equal(t, "WebSocket: ws://h/s", Describe(Options{Port: "/dev/ttyUSB0", URL: "ws://h/s"}))
}

// ============================================================
// WebSocket link
// ============================================================

func TestWebSocket_StreamAcrossMessages(t *testing.T) {
	url := bridge(t, func(conn *websocket.Conn, r *http.Request) {
		// Bytes split over messages, with a text message in between
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0xFF, 0x01})
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x04, 0x01, 0xFE})

		// Echo one binary message back
		typ, data, err := conn.ReadMessage()
		if err == nil && typ == websocket.BinaryMessage {
			_ = conn.WriteMessage(websocket.BinaryMessage, data)
		}
		_, _, _ = conn.ReadMessage()
	})

	l, err := Open(Options{URL: url})
	require.NoError(t, err)
	defer l.Close()

	got := make([]byte, 5)
	_, err = io.ReadFull(l, got)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0x01, 0x04, 0x01, 0xFE}, got)

	n, err := l.Write([]byte{0xFF, 0x02, 0x05})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	echo := make([]byte, 3)
	_, err = io.ReadFull(l, echo)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0x02, 0x05}, echo)
}

func TestWebSocket_BasicAuth(t *testing.T) {
	creds := make(chan [2]string, 1)
	url := bridge(t, func(conn *websocket.Conn, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		creds <- [2]string{user, pass}
		_, _, _ = conn.ReadMessage()
	})

	l, err := Open(Options{URL: url, Username: "operator", Password: "secret"})
	require.NoError(t, err)
	defer l.Close()

	select {
	case got := <-creds:
		assert.Equal(t, [2]string{"operator", "secret"}, got)
	case <-time.After(time.Second):
		t.Fatal("bridge saw no connection")
	}
}

func TestWebSocket_PeerGone(t *testing.T) {
	url := bridge(t, func(conn *websocket.Conn, r *http.Request) {})

	l, err := Open(Options{URL: url})
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWebSocket_KeepaliveDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	// The bridge never reads, so pings are never answered
	url := bridge(t, func(conn *websocket.Conn, r *http.Request) {
		<-release
	})

	l, err := Open(Options{URL: url, Keepalive: 20 * time.Millisecond})
	require.NoError(t, err)
	defer l.Close()

	start := time.Now()
	_, err = l.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWebSocket_ReadAfterClose(t *testing.T) {
	url := bridge(t, func(conn *websocket.Conn, r *http.Request) {
		_, _, _ = conn.ReadMessage()
	})

	l, err := Open(Options{URL: url})
	require.NoError(t, err)
	require.NoError(t, l.Close())
	assert.NoError(t, l.Close(), "second close is a no-op")

	_, err = l.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrClosed)
}

// ============================================================
// Keep
// ============================================================

type fakeLink struct {
	closed atomic.Bool
}

func (f *fakeLink) Read(p []byte) (int, error)  { return 0, io.EOF }
func (f *fakeLink) Write(p []byte) (int, error) { return len(p), nil }
func (f *fakeLink) Close() error                { f.closed.Store(true); return nil }

var fastBackoff = Backoff{Min: time.Millisecond, Max: 4 * time.Millisecond}

func TestKeep_ReopensAfterLoss(t *testing.T) {
	var mu sync.Mutex
	var opened []*fakeLink
	open := func() (Link, error) {
		mu.Lock()
		defer mu.Unlock()
		l := &fakeLink{}
		opened = append(opened, l)
		return l, nil
	}

	sessions := 0
	session := func(ctx context.Context, l Link) error {
		sessions++
		if sessions < 3 {
			return errors.New("link dropped")
		}
		return nil
	}

	require.NoError(t, Keep(context.Background(), open, session, fastBackoff, nil))
	assert.Equal(t, 3, sessions)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, opened, 3)
	for i, l := range opened {
		assert.True(t, l.closed.Load(), "link %d closed after its session", i)
	}
}

func TestKeep_RetriesFailedOpen(t *testing.T) {
	attempts := 0
	open := func() (Link, error) {
		attempts++
		if attempts < 4 {
			return nil, errors.New("no such port")
		}
		return &fakeLink{}, nil
	}

	err := Keep(context.Background(), open,
		func(context.Context, Link) error { return nil }, fastBackoff, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, attempts)
}

func TestKeep_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	open := func() (Link, error) { return nil, errors.New("unplugged") }
	done := make(chan error, 1)
	go func() {
		done <- Keep(ctx, open, nil, Backoff{Min: time.Hour, Max: time.Hour}, nil)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Keep did not stop")
	}
}

func TestBackoff_Doubles(t *testing.T) {
	b := Backoff{Min: time.Second, Max: 5 * time.Second}
	assert.Equal(t, 2*time.Second, b.next(time.Second))
	assert.Equal(t, 4*time.Second, b.next(2*time.Second))
	assert.Equal(t, 5*time.Second, b.next(4*time.Second))
}

func TestFirst(t *testing.T) {
	first := &fakeLink{}
	calls := 0
	open := First(first, func() (Link, error) {
		calls++
		return &fakeLink{}, nil
	})

	l, err := open()
	require.NoError(t, err)
	assert.Same(t, first, l)
	assert.Zero(t, calls)

	l, err = open()
	require.NoError(t, err)
	assert.NotSame(t, first, l)
	assert.Equal(t, 1, calls)
}
