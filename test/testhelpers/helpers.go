// Package testhelpers provides common utilities for testing the signaling
// server: spinning up a full server over httptest, dialing WebSocket peers,
// and exchanging protocol frames.
package testhelpers

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cleech/gbplaybook-webrtc-server/internal/server"
)

const frameTimeout = 2 * time.Second

// StartSignalingServer starts a hub and HTTP server for the duration of the
// test and returns the base HTTP URL and the matching ws:// URL.
func StartSignalingServer(t *testing.T) (string, string) {
	t.Helper()

	cfg := server.NewConfig()
	hub := server.NewHub()
	go hub.Run()

	router := server.NewRouter(hub, *cfg)
	testServer := httptest.NewServer(router)

	t.Cleanup(func() {
		testServer.Close()
		_ = hub.Shutdown(2 * time.Second)
	})

	wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http")
	return testServer.URL, wsURL
}

// Dial connects a WebSocket peer. A non-empty uid resumes that identity via
// the soft identity cookie.
func Dial(t *testing.T, wsURL, uid string) (*websocket.Conn, *http.Response) {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	header := http.Header{}
	if uid != "" {
		header.Set("Cookie", (&http.Cookie{Name: "uid", Value: uid}).String())
	}

	conn, resp, err := dialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, resp
}

// ReadFrame reads the next protocol frame, failing the test on timeout.
func ReadFrame(t *testing.T, conn *websocket.Conn) server.Message {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(frameTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	var msg server.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	return msg
}

// ReadInit reads the first frame of a fresh connection, asserts it is the
// init frame, and returns the assigned peer id.
func ReadInit(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	msg := ReadFrame(t, conn)
	if msg.Type != server.TypeInit {
		t.Fatalf("Expected init as the very first frame, got %q", msg.Type)
	}
	if msg.YourPeerID == "" {
		t.Fatal("Init frame carries an empty peer id")
	}
	return msg.YourPeerID
}

// WriteFrame sends one protocol frame.
func WriteFrame(t *testing.T, conn *websocket.Conn, msg server.Message) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("Failed to write %s frame: %v", msg.Type, err)
	}
}

// ExpectNoFrame asserts that no frame arrives within the timeout. A clean
// close from the server also counts as silence.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, payload, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no frame, but received %s", payload)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for silence: %v", err)
}

// ExpectClose asserts the server closed the connection with the given status code.
func ExpectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(frameTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("Expected the connection to be closed, but read a frame")
	}
	if !websocket.IsCloseError(err, code) {
		t.Fatalf("Expected close code %d, got %v", code, err)
	}
}

// AssertSameMembers compares two rosters ignoring order.
func AssertSameMembers(t *testing.T, got, want []string) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("Roster size mismatch: got %v, want %v", got, want)
	}
	seen := make(map[string]int)
	for _, id := range got {
		seen[id]++
	}
	for _, id := range want {
		seen[id]--
		if seen[id] < 0 {
			t.Fatalf("Roster mismatch: got %v, want %v", got, want)
		}
	}
}
