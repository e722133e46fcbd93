// Package integration contains integration tests for multi-client room
// scenarios: joins, leaves, message relay, presence counts, and disconnect
// notices observed through real WebSocket connections.
package integration

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mindcare/community-server/internal/server"
	"github.com/mindcare/community-server/test/testhelpers"
)

// expectNoChatMessage reads frames until the timeout and fails if a
// message_received event with the given text arrives. Count updates and other
// traffic are ignored.
func expectNoChatMessage(t *testing.T, conn *websocket.Conn, text string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("Failed to set read deadline: %v", err)
		}

		var env server.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			// Timeout means the message never arrived, which is the success
			// condition here.
			return
		}
		if env.Event != server.EventMessageReceived {
			continue
		}
		var msg server.ChatMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			continue
		}
		if msg.Text == text {
			t.Fatalf("Received chat message %q that should not have been delivered", text)
		}
	}
}

// TestRoomProtocolEndToEnd walks a full two-user session through real
// connections: announce, join, second join, chat, and disconnect.
func TestRoomProtocolEndToEnd(t *testing.T) {
	testServer, wsURL := startTestServer(t)

	alice, err := testhelpers.ConnectWebSocket(wsURL, testServer.URL)
	if err != nil {
		t.Fatalf("Failed to connect alice: %v", err)
	}
	defer func() { _ = alice.Close() }()

	testhelpers.SendEvent(t, alice, server.EventUserConnected, server.AnnouncePayload{Username: "Alice"})
	testhelpers.ReadCounts(t, alice, readTimeout)

	testhelpers.SendEvent(t, alice, server.EventJoinRoom, server.JoinRoomPayload{Room: "general", Username: "Alice"})
	notice := testhelpers.ReadChatMessage(t, alice, readTimeout)
	if notice.Text != "Alice has joined the chat" {
		t.Errorf("Expected join notice for Alice, got %q", notice.Text)
	}
	if notice.Sender != server.SystemSender {
		t.Errorf("Expected notice sender %q, got %q", server.SystemSender, notice.Sender)
	}
	if counts := testhelpers.ReadCounts(t, alice, readTimeout); counts["general"] != 1 {
		t.Errorf("Expected general count 1 after Alice joined, got %d", counts["general"])
	}

	bob, err := testhelpers.ConnectWebSocket(wsURL, testServer.URL)
	if err != nil {
		t.Fatalf("Failed to connect bob: %v", err)
	}
	defer func() { _ = bob.Close() }()

	testhelpers.SendEvent(t, bob, server.EventJoinRoom, server.JoinRoomPayload{Room: "general", Username: "Bob"})

	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		notice := testhelpers.ReadChatMessage(t, conn, readTimeout)
		if notice.Text != "Bob has joined the chat" {
			t.Errorf("%s: expected join notice for Bob, got %q", name, notice.Text)
		}
		if counts := testhelpers.ReadCounts(t, conn, readTimeout); counts["general"] != 2 {
			t.Errorf("%s: expected general count 2, got %d", name, counts["general"])
		}
	}

	testhelpers.SendEvent(t, alice, server.EventSendMessage, server.ChatMessage{
		ID:            time.Now().UnixMilli(),
		Text:          "hi everyone",
		Sender:        "Alice",
		Timestamp:     "2:28 PM",
		Room:          "general",
		IsCurrentUser: true,
	})

	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		msg := testhelpers.ReadChatMessage(t, conn, readTimeout)
		if msg.Text != "hi everyone" {
			t.Errorf("%s: expected relayed message, got %q", name, msg.Text)
		}
		if msg.IsCurrentUser {
			t.Errorf("%s: isCurrentUser must be false on the wire", name)
		}
	}

	if err := testhelpers.CloseWebSocket(bob); err != nil {
		t.Fatalf("Failed to close bob's connection: %v", err)
	}

	notice = testhelpers.ReadChatMessage(t, alice, readTimeout)
	if notice.Text != "Bob has disconnected" {
		t.Errorf("Expected disconnect notice for Bob, got %q", notice.Text)
	}
	if counts := testhelpers.ReadCounts(t, alice, readTimeout); counts["general"] != 1 {
		t.Errorf("Expected general count 1 after Bob disconnected, got %d", counts["general"])
	}
}

// TestLeaveRoomNotice verifies that leaving a room notifies the remaining
// members and refreshes counts.
func TestLeaveRoomNotice(t *testing.T) {
	testServer, wsURL := startTestServer(t)

	ann, err := testhelpers.ConnectWebSocket(wsURL, testServer.URL)
	if err != nil {
		t.Fatalf("Failed to connect ann: %v", err)
	}
	defer func() { _ = ann.Close() }()

	ben, err := testhelpers.ConnectWebSocket(wsURL, testServer.URL)
	if err != nil {
		t.Fatalf("Failed to connect ben: %v", err)
	}
	defer func() { _ = ben.Close() }()

	testhelpers.SendEvent(t, ann, server.EventJoinRoom, server.JoinRoomPayload{Room: "anxiety", Username: "Ann"})
	testhelpers.ReadChatMessage(t, ann, readTimeout)
	testhelpers.SendEvent(t, ben, server.EventJoinRoom, server.JoinRoomPayload{Room: "anxiety", Username: "Ben"})
	testhelpers.ReadChatMessage(t, ben, readTimeout)
	testhelpers.ReadChatMessage(t, ann, readTimeout)

	testhelpers.SendEvent(t, ann, server.EventLeaveRoom, server.LeaveRoomPayload{Room: "anxiety"})

	notice := testhelpers.ReadChatMessage(t, ben, readTimeout)
	if notice.Text != "Ann has left the chat" {
		t.Errorf("Expected leave notice for Ann, got %q", notice.Text)
	}
	if counts := testhelpers.ReadCounts(t, ben, readTimeout); counts["anxiety"] != 1 {
		t.Errorf("Expected anxiety count 1 after Ann left, got %d", counts["anxiety"])
	}
}

// TestBroadcastScoping verifies that a message relayed into one room is never
// delivered to clients occupying a different room.
func TestBroadcastScoping(t *testing.T) {
	testServer, wsURL := startTestServer(t)

	sender, err := testhelpers.ConnectWebSocket(wsURL, testServer.URL)
	if err != nil {
		t.Fatalf("Failed to connect sender: %v", err)
	}
	defer func() { _ = sender.Close() }()

	bystander, err := testhelpers.ConnectWebSocket(wsURL, testServer.URL)
	if err != nil {
		t.Fatalf("Failed to connect bystander: %v", err)
	}
	defer func() { _ = bystander.Close() }()

	testhelpers.SendEvent(t, sender, server.EventJoinRoom, server.JoinRoomPayload{Room: "random", Username: "Rae"})
	testhelpers.ReadChatMessage(t, sender, readTimeout)
	testhelpers.SendEvent(t, bystander, server.EventJoinRoom, server.JoinRoomPayload{Room: "depression", Username: "Dee"})
	testhelpers.ReadChatMessage(t, bystander, readTimeout)

	testhelpers.SendEvent(t, sender, server.EventSendMessage, server.ChatMessage{
		ID: time.Now().UnixMilli(), Text: "random room only", Sender: "Rae", Room: "random",
	})

	if msg := testhelpers.ReadChatMessage(t, sender, readTimeout); msg.Text != "random room only" {
		t.Errorf("Sender's room should receive the message, got %q", msg.Text)
	}
	expectNoChatMessage(t, bystander, "random room only", 500*time.Millisecond)
}

// TestJoinUnknownRoomIsSilentlyIgnored verifies the fail-quiet policy for
// unconfigured room ids.
func TestJoinUnknownRoomIsSilentlyIgnored(t *testing.T) {
	testServer, wsURL := startTestServer(t)

	conn, err := testhelpers.ConnectWebSocket(wsURL, testServer.URL)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = conn.Close() }()

	testhelpers.SendEvent(t, conn, server.EventJoinRoom, server.JoinRoomPayload{Room: "doesNotExist", Username: "Ghost"})
	expectNoChatMessage(t, conn, "Ghost has joined the chat", 500*time.Millisecond)

	// The connection is still healthy and can join a real room.
	testhelpers.SendEvent(t, conn, server.EventJoinRoom, server.JoinRoomPayload{Room: "general", Username: "Ghost"})
	notice := testhelpers.ReadChatMessage(t, conn, readTimeout)
	if notice.Text != "Ghost has joined the chat" {
		t.Errorf("Expected join notice after valid join, got %q", notice.Text)
	}
}
