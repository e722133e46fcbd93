// Package server implements the room-scoped presence and message-relay core
// of the MindCare community chat.
//
// Clients hold one WebSocket connection each, occupy at most one room at a
// time, exchange messages with everyone in that room, and receive live
// occupancy counts for every configured room. The implementation is organized
// into specialized files for the wire protocol, registry, membership table,
// hub, clients, configuration, routing, and HTTP handlers to keep the
// codebase maintainable and testable as the project grows.
package server
