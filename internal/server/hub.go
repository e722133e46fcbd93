// Package server coordinates connection lifecycle, room membership, presence
// counts, and message relay for the community chat service via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"
)

// clientEvent pairs a decoded inbound event with the connection it arrived on.
type clientEvent struct {
	client *Client
	event  InboundEvent
}

// Hub owns all shared chat state: the set of live connections, the display
// name registry, and the room membership table. Every inbound event is
// funneled through the hub's channels and handled by the single Run loop, so
// each mutation and the broadcasts it triggers form one uninterrupted
// critical section.
type Hub struct {
	clients    map[string]*Client
	registry   *registry
	membership *membershipTable

	events     chan clientEvent
	register   chan *Client
	unregister chan *Client

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub whose room set comes from the active configuration.
// The returned Hub is ready to manage WebSocket connections once Run is
// started.
func NewHub() *Hub {
	return newHubWithRooms(currentConfig().Rooms)
}

func newHubWithRooms(roomIDs []string) *Hub {
	if len(roomIDs) == 0 {
		roomIDs = defaultRooms()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		registry:   newRegistry(),
		membership: newMembershipTable(roomIDs),
		events:     make(chan clientEvent),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

var hub = NewHub()

// Run drives the hub's event loop. Registrations, inbound events, and
// disconnects are handled one at a time, which is what guarantees that a
// membership change and the count broadcast that follows it are never
// interleaved with another event. This method should be called in a separate
// goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}
			h.registerClient(client)

		case client := <-h.unregister:
			h.disconnectClient(client)

		case ev := <-h.events:
			h.handleEvent(ev)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	total := len(h.clients)
	h.mutex.Unlock()
	log.Printf("Client %s connected from %s. Total clients: %d", client.id, client.addr, total)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// handleEvent dispatches one decoded inbound event. Handlers are defensive:
// unknown rooms and missing names degrade to no-ops or best-effort notices,
// never to errors surfaced back to the client.
func (h *Hub) handleEvent(ev clientEvent) {
	c := ev.client

	switch payload := ev.event.(type) {
	case AnnouncePayload:
		h.registry.bind(c.id, payload.Username)
		h.publishCounts()

	case JoinRoomPayload:
		h.registry.bind(c.id, payload.Username)
		if _, ok := h.membership.join(c.id, payload.Room); !ok {
			log.Printf("Client %s tried to join unknown room %q; ignoring", c.id, payload.Room)
			return
		}
		h.systemNotice(payload.Room, payload.Username+" has joined the chat")
		h.publishCounts()

	case LeaveRoomPayload:
		name, _ := h.registry.nameOf(c.id)
		h.membership.leave(c.id, payload.Room)
		h.systemNotice(payload.Room, name+" has left the chat")
		h.publishCounts()

	case ChatMessage:
		// Relayed to the room's current members with no membership check on
		// the sender and no sender exclusion; the client suppresses its own
		// echo when rendering.
		payload.IsCurrentUser = false
		h.deliver(payload)
	}
}

// disconnectClient runs full cleanup for a departed connection: vacate every
// room, drop the name binding, announce the departure to each vacated room,
// and publish fresh counts. Safe to call more than once for the same client.
func (h *Hub) disconnectClient(client *Client) {
	if client == nil {
		return
	}

	h.mutex.Lock()
	current, ok := h.clients[client.id]
	if !ok || current != client {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	client.closed = true
	total := len(h.clients)
	h.mutex.Unlock()
	close(client.send)
	log.Printf("Client %s disconnected from %s. Total clients: %d", client.id, client.addr, total)

	name, _ := h.registry.nameOf(client.id)
	h.registry.unbind(client.id)

	for _, room := range h.membership.removeEverywhere(client.id) {
		h.systemNotice(room, name+" has disconnected")
	}
	h.publishCounts()
}

// deliver fans msg out to every connection currently in msg.Room. Membership
// is read at delivery time, not at submission time. A recipient with a full
// send buffer is dropped rather than allowed to stall the remaining
// recipients.
func (h *Hub) deliver(msg ChatMessage) {
	payload, err := EncodeOutbound(EventMessageReceived, msg)
	if err != nil {
		log.Printf("Error encoding message for room %q: %v", msg.Room, err)
		return
	}

	var failed []*Client
	for _, connID := range h.membership.members(msg.Room) {
		h.mutex.RLock()
		client := h.clients[connID]
		h.mutex.RUnlock()
		if client == nil {
			continue
		}
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}

	h.dropClients(failed)
}

// systemNotice synthesizes a chat message from the reserved System sender and
// relays it to the room. Notices still fire when the subject never announced
// a display name; the text simply carries an empty one.
func (h *Hub) systemNotice(room, text string) {
	now := time.Now()
	h.deliver(ChatMessage{
		ID:        now.UnixMilli(),
		Text:      text,
		Sender:    SystemSender,
		Timestamp: now.Format(noticeTimestampLayout),
		Room:      room,
	})
}

// publishCounts pushes a fresh occupancy snapshot of every configured room to
// every connected client. The room picker shows all counts at once, so the
// update is deliberately not scoped to the rooms a client occupies.
func (h *Hub) publishCounts() {
	payload, err := EncodeOutbound(EventUserCountUpdate, h.membership.counts())
	if err != nil {
		log.Printf("Error encoding count update: %v", err)
		return
	}

	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	var failed []*Client
	for _, client := range clients {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}

	h.dropClients(failed)
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send so the channel cannot be closed
	// out from under the select below.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	current, exists := h.clients[client.id]
	if !exists || current != client || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// dropClients force-disconnects clients whose send buffers were full. Each
// one gets the same cleanup as a normal disconnect so no membership or name
// state is left behind.
func (h *Hub) dropClients(clients []*Client) {
	for _, client := range clients {
		log.Printf("Client %s from %s removed due to full send buffer", client.id, client.addr)
		h.disconnectClient(client)
	}
}

// shutdownClients gracefully closes all active client connections.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Printf("Error closing client connection from %s: %v", client.addr, err)
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to complete. It returns after the event loop has stopped and
// the pumps have finished, or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()

	// Wait for Run() to finish its final iteration.
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
