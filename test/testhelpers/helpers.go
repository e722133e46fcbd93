// Package testhelpers provides common utilities and helper functions for
// testing the community chat server.
//
// This package contains reusable test utilities shared across unit and
// integration tests: creating test servers, making HTTP requests, driving
// the WebSocket event protocol, and asserting on received envelopes.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mindcare/community-server/internal/server"
)

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type
// header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket creates a WebSocket connection to the specified URL with
// the given Origin header. It returns the connection or an error if the
// handshake fails.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", origin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendEvent writes one protocol envelope to the connection.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal %s payload: %v", event, err)
	}
	if err := conn.WriteJSON(server.Envelope{Event: event, Data: data}); err != nil {
		t.Fatalf("Failed to send %s event: %v", event, err)
	}
}

// ReadEnvelope reads the next envelope from the connection, failing the test
// if nothing arrives before the timeout.
func ReadEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration) server.Envelope {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	var env server.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("Failed to read envelope: %v", err)
	}
	return env
}

// ReadUntilEvent reads envelopes until one with the given event name arrives,
// discarding anything else. It fails the test when the timeout elapses first.
func ReadUntilEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) server.Envelope {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for %s event", event)
		}
		env := ReadEnvelope(t, conn, remaining)
		if env.Event == event {
			return env
		}
	}
}

// ReadChatMessage reads envelopes until the next message_received event and
// decodes its payload.
func ReadChatMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) server.ChatMessage {
	t.Helper()

	env := ReadUntilEvent(t, conn, server.EventMessageReceived, timeout)
	var msg server.ChatMessage
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		t.Fatalf("Failed to decode chat message: %v", err)
	}
	return msg
}

// ReadCounts reads envelopes until the next user_count_update event and
// decodes its payload.
func ReadCounts(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]int {
	t.Helper()

	env := ReadUntilEvent(t, conn, server.EventUserCountUpdate, timeout)
	var counts map[string]int
	if err := json.Unmarshal(env.Data, &counts); err != nil {
		t.Fatalf("Failed to decode count update: %v", err)
	}
	return counts
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
