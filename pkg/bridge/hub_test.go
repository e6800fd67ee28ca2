// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/vescstat/pkg/simulate"
	"github.com/Thermoquad/vescstat/pkg/telemetry"
)

func startHub(t *testing.T, opts Options) (*Hub, string) {
	t.Helper()
	hub := NewHub(opts)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Clients() == n },
		2*time.Second, 10*time.Millisecond)
}

func readBinary(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)
	return data
}

func TestHub_Broadcast(t *testing.T) {
	hub, url := startHub(t, Options{})
	a := dial(t, url, nil)
	b := dial(t, url, nil)
	waitClients(t, hub, 2)

	hub.Write([]byte("abc"))
	hub.Write([]byte("def"))
	hub.Flush()

	assert.Equal(t, []byte("abcdef"), readBinary(t, a))
	assert.Equal(t, []byte("abcdef"), readBinary(t, b))
	assert.Equal(t, uint64(6), hub.Sent())
}

func TestHub_FlushBytes(t *testing.T) {
	hub, url := startHub(t, Options{FlushBytes: 4})
	conn := dial(t, url, nil)
	waitClients(t, hub, 1)

	hub.Write([]byte("12345"))
	assert.Equal(t, []byte("12345"), readBinary(t, conn))
}

func TestHub_WriteCopiesInput(t *testing.T) {
	hub, url := startHub(t, Options{})
	conn := dial(t, url, nil)
	waitClients(t, hub, 1)

	buf := []byte{1}
	hub.Write(buf)
	buf[0] = 2
	hub.Write(buf)
	hub.Flush()

	assert.Equal(t, []byte{1, 2}, readBinary(t, conn))
}

func TestHub_BasicAuth(t *testing.T) {
	_, url := startHub(t, Options{Username: "rider", Password: "hunter2"})

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	bad := http.Header{}
	bad.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("rider:wrong")))
	_, resp, err = websocket.DefaultDialer.Dial(url, bad)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	good := http.Header{}
	good.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("rider:hunter2")))
	dial(t, url, good)
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub, url := startHub(t, Options{})
	conn := dial(t, url, nil)
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub, url := startHub(t, Options{})
	conn := dial(t, url, nil)
	waitClients(t, hub, 1)

	hub.Write([]byte("last"))
	require.NoError(t, hub.Close())

	// Pending bytes are delivered before the close frame
	assert.Equal(t, []byte("last"), readBinary(t, conn))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Zero(t, hub.Clients())

	n, err := hub.Write([]byte("ignored"))
	assert.NoError(t, err)
	assert.Equal(t, 7, n)
}

// TestHub_StreamDecodesAtClient relays a teed stream and decodes it on
// the client side
func TestHub_StreamDecodesAtClient(t *testing.T) {
	hub, url := startHub(t, Options{FlushBytes: 256})
	conn := dial(t, url, nil)
	waitClients(t, hub, 1)

	var stream bytes.Buffer
	require.NoError(t, simulate.New(simulate.Options{Seed: 9}).WriteCycles(&stream, 20))

	telemetry.NewLoop(telemetry.Config{
		Source: telemetry.NewSource(bytes.NewReader(stream.Bytes()), hub),
	}).Run()
	hub.Flush()

	var received []byte
	for len(received) < stream.Len() {
		received = append(received, readBinary(t, conn)...)
	}
	assert.Equal(t, stream.Bytes(), received)

	var frames int
	telemetry.NewLoop(telemetry.Config{
		Source: telemetry.NewSource(bytes.NewReader(received), nil),
		Sink:   telemetry.SinkFuncs{OnReport: func(telemetry.Report) { frames++ }},
	}).Run()
	assert.Equal(t, 100, frames)
}
