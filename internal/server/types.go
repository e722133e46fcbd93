// Package server defines the wire protocol shared by clients and the hub:
// the event envelope, the closed set of inbound event kinds, and the chat
// message payload.
package server

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event names multiplexed over the WebSocket connection. The first group is
// sent by clients, the second is produced by the hub.
const (
	EventUserConnected = "user_connected"
	EventJoinRoom      = "join_room"
	EventLeaveRoom     = "leave_room"
	EventSendMessage   = "send_message"

	EventMessageReceived = "message_received"
	EventUserCountUpdate = "user_count_update"
)

// SystemSender is the reserved display name attached to join, leave, and
// disconnect notices.
const SystemSender = "System"

// noticeTimestampLayout matches the hour-and-minute local time strings the
// web client renders for its own messages.
const noticeTimestampLayout = "3:04 PM"

// Envelope frames every message exchanged over the WebSocket connection:
// a named event plus its JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ChatMessage is the payload of send_message and message_received events.
// IsCurrentUser is always false on the wire; the sending client renders its
// own copy locally and suppresses the relayed echo.
type ChatMessage struct {
	ID            int64  `json:"id"`
	Text          string `json:"text"`
	Sender        string `json:"sender"`
	Timestamp     string `json:"timestamp"`
	Room          string `json:"room"`
	IsCurrentUser bool   `json:"isCurrentUser"`
}

// AnnouncePayload carries the display name a client announces after
// connecting. Announcing again with a different name renames the client.
type AnnouncePayload struct {
	Username string `json:"username"`
}

// JoinRoomPayload asks the hub to move the connection into a room.
type JoinRoomPayload struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

// LeaveRoomPayload asks the hub to remove the connection from a room.
type LeaveRoomPayload struct {
	Room string `json:"room"`
}

// InboundEvent is the closed set of client-originated events. Exactly the
// payload types in this file implement it.
type InboundEvent interface {
	inboundEvent()
}

func (AnnouncePayload) inboundEvent()  {}
func (JoinRoomPayload) inboundEvent()  {}
func (LeaveRoomPayload) inboundEvent() {}
func (ChatMessage) inboundEvent()      {}

// DecodeInbound parses a raw frame into one of the known inbound event
// payloads. Unknown event names and malformed payloads yield an error so the
// caller can discard the frame before it reaches the hub.
func DecodeInbound(raw []byte) (InboundEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Event {
	case EventUserConnected:
		var p AnnouncePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", env.Event, err)
		}
		return p, nil

	case EventJoinRoom:
		var p JoinRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", env.Event, err)
		}
		return p, nil

	case EventLeaveRoom:
		var p LeaveRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", env.Event, err)
		}
		return p, nil

	case EventSendMessage:
		var p ChatMessage
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", env.Event, err)
		}
		if p.Room == "" {
			return nil, fmt.Errorf("%s payload is missing a room", env.Event)
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}
}

// EncodeOutbound wraps an outbound payload in the wire envelope.
func EncodeOutbound(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
