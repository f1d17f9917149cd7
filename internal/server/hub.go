// Package server coordinates peer registration, room broadcast, signal
// relay, and code pairing for the signaling system via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// inboundFrame carries a decoded message together with its sending client
// into the hub loop.
type inboundFrame struct {
	client *Client
	msg    *Message
}

// Hub owns the three shared structures of the relay: the peer registry,
// the room index, and the pairing table. All three are mutated exclusively
// by the goroutine running Run, which serializes connection callbacks and
// makes join/broadcast, code allocation, and the disconnect cascade atomic
// with respect to each other.
type Hub struct {
	// peers maps peer id to its live connection. Source of truth for
	// "is this peer currently connected".
	peers map[string]*Client

	// rooms maps room id to the room's member set (peer id -> client).
	// An entry exists iff the member set is non-empty.
	rooms map[string]map[string]*Client

	// pairings maps a pending pairing code to the connection that issued it.
	pairings map[int]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame

	metrics *serverMetrics

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub ready to manage connections. Call Run in its own
// goroutine before registering clients.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		peers:      make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		pairings:   make(map[int]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame),
		metrics:    metrics(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Register hands a freshly upgraded client to the hub. The hub assigns the
// final peer id, queues the init frame, and starts the connection pumps.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		client.closeWithReason(websocket.CloseGoingAway, "server shutting down")
	}
}

// Run is the hub's event loop and the single writer of all shared state.
// It runs until Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAllPeers()
			return

		case client := <-h.register:
			h.registerPeer(client)

		case client := <-h.unregister:
			h.dropPeer(client)

		case frame := <-h.inbound:
			h.dispatch(frame.client, frame.msg)
		}
	}
}

// registerPeer inserts the client into the registry, guarantees id
// uniqueness, and sends the init frame before the pumps can deliver
// anything else.
func (h *Hub) registerPeer(client *Client) {
	if client == nil {
		log.Printf("Received nil client registration; skipping")
		return
	}

	if _, taken := h.peers[client.id]; taken {
		// A stale uid cookie resumed an identity that is still connected.
		// Registry uniqueness wins; the init frame below is authoritative.
		fresh := uuid.NewString()
		log.Printf("Peer id %s already connected; assigning %s to %s", client.id, fresh, client.addr)
		client.id = fresh
	}

	h.peers[client.id] = client
	h.metrics.connectedPeers.Inc()
	log.Printf("Peer %s registered from %s. Total peers: %d", client.id, client.addr, len(h.peers))

	// Queued ahead of pump startup, so it is always the first frame the
	// client receives.
	h.sendMessage(client, newInitMessage(client.id))

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

// dropPeer runs the disconnect cascade: room membership, pairing table,
// then registry. Idempotent, so an eviction followed by the read pump's
// unregister is harmless.
func (h *Hub) dropPeer(client *Client) {
	if client == nil || client.closed {
		return
	}
	client.closed = true

	for roomID := range client.rooms {
		members, ok := h.rooms[roomID]
		if !ok {
			continue
		}
		delete(members, client.id)
		if len(members) == 0 {
			delete(h.rooms, roomID)
			h.metrics.activeRooms.Dec()
			log.Printf("Room %s deleted (last member left)", roomID)
		}
	}

	if client.pendingCode >= 0 {
		if owner, ok := h.pairings[client.pendingCode]; ok && owner == client {
			delete(h.pairings, client.pendingCode)
		}
		client.pendingCode = -1
	}

	if h.peers[client.id] == client {
		delete(h.peers, client.id)
	}

	close(client.send)
	h.metrics.connectedPeers.Dec()
	log.Printf("Peer %s unregistered. Total peers: %d", client.id, len(h.peers))
}

// dispatch routes one inbound frame. Unknown types are ignored; every
// known type is handled without touching state outside the hub goroutine.
func (h *Hub) dispatch(client *Client, msg *Message) {
	if client == nil || msg == nil || client.closed {
		return
	}

	client.lastActivity = time.Now()

	// Count known types only, so client-supplied tags cannot grow the
	// label set without bound.
	switch msg.Type {
	case TypeJoin, TypeSignal, TypePing, TypeHandshakeBegin, TypeHandshakeJoin:
		h.metrics.messagesTotal.WithLabelValues(msg.Type).Inc()
	}

	switch msg.Type {
	case TypeJoin:
		h.handleJoin(client, msg)
	case TypeSignal:
		h.handleSignal(client, msg)
	case TypePing:
		// Activity timestamp already refreshed; nothing else to do.
	case TypeHandshakeBegin:
		h.handleHandshakeBegin(client)
	case TypeHandshakeJoin:
		h.handleHandshakeJoin(client, msg)
	default:
		log.Printf("Ignoring unknown message type %q from peer %s", msg.Type, client.id)
	}
}

// handleJoin adds the peer to a room and broadcasts the full roster to
// every member, the joiner included. Room ids must be UUIDs; anything else
// is a protocol violation that closes the connection without mutating the
// room index.
func (h *Hub) handleJoin(client *Client, msg *Message) {
	if err := uuid.Validate(msg.Room); err != nil {
		log.Printf("Peer %s sent invalid room id %q; closing connection", client.id, msg.Room)
		h.closeForViolation(client, "room id must be a UUID")
		return
	}

	members, ok := h.rooms[msg.Room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[msg.Room] = members
		h.metrics.activeRooms.Inc()
		log.Printf("Room %s created", msg.Room)
	}

	members[client.id] = client
	client.rooms[msg.Room] = struct{}{}
	log.Printf("Peer %s joined room %s (%d members)", client.id, msg.Room, len(members))

	roster := make([]string, 0, len(members))
	recipients := make([]*Client, 0, len(members))
	for id, member := range members {
		roster = append(roster, id)
		recipients = append(recipients, member)
	}

	frame := newJoinedMessage(roster)
	for _, member := range recipients {
		h.sendMessage(member, frame)
	}
}

// handleSignal forwards an opaque negotiation frame to its receiver.
// Spoofed sender ids and unknown receivers are silent no-ops.
func (h *Hub) handleSignal(client *Client, msg *Message) {
	if msg.SenderPeerID != client.id {
		log.Printf("Dropping signal from %s claiming sender id %s", client.id, msg.SenderPeerID)
		return
	}

	receiver, ok := h.peers[msg.ReceiverPeerID]
	if !ok {
		log.Printf("Dropping signal from %s to unknown peer %s", client.id, msg.ReceiverPeerID)
		return
	}

	if h.sendMessage(receiver, msg) {
		h.metrics.signalsRelayed.Inc()
	}
}

// handleHandshakeBegin allocates a pairing code for the peer and answers
// with a handshake-response. A re-issue evicts the peer's previous pending
// code so a consumed peer record never leaves a live orphan code behind.
func (h *Hub) handleHandshakeBegin(client *Client) {
	if client.pendingCode >= 0 {
		if owner, ok := h.pairings[client.pendingCode]; ok && owner == client {
			delete(h.pairings, client.pendingCode)
		}
		client.pendingCode = -1
	}

	code, err := h.allocatePairingCode()
	if err != nil {
		log.Printf("handshake-begin failed for peer %s: %v", client.id, err)
		h.metrics.pairingFailures.Inc()
		return
	}

	h.pairings[code] = client
	client.pendingCode = code
	log.Printf("Peer %s issued pairing code %04d", client.id, code)

	h.sendMessage(client, newHandshakeResponseMessage(client.id, code))
}

// handleHandshakeJoin consumes a pending code: both sides learn the other's
// identity and the code leaves the table in the same step. Unknown codes
// are a silent no-op.
func (h *Hub) handleHandshakeJoin(client *Client, msg *Message) {
	if msg.Code == nil {
		return
	}

	owner, ok := h.pairings[*msg.Code]
	if !ok {
		log.Printf("Peer %s tried unknown pairing code %04d", client.id, *msg.Code)
		return
	}

	delete(h.pairings, *msg.Code)
	owner.pendingCode = -1
	log.Printf("Pairing code %04d consumed by peer %s (issuer %s)", *msg.Code, client.id, owner.id)

	h.sendMessage(owner, newHandshakeCompleteMessage(owner.id, client.id))
	h.sendMessage(client, newHandshakeCompleteMessage(client.id, owner.id))
	h.metrics.pairingsCompleted.Inc()
}

// closeForViolation ends a connection for a protocol violation and runs the
// disconnect cascade immediately instead of waiting for the read pump.
func (h *Hub) closeForViolation(client *Client, reason string) {
	client.closeWithReason(websocket.ClosePolicyViolation, reason)
	h.dropPeer(client)
}

// sendMessage queues one frame for a peer. Delivery is best-effort: a full
// send buffer evicts the peer rather than blocking the hub loop, so fan-out
// to one slow subscriber never stalls the others.
func (h *Hub) sendMessage(client *Client, msg *Message) bool {
	if client.closed {
		return false
	}

	payload, err := msg.encode()
	if err != nil {
		log.Printf("Error encoding %s frame for peer %s: %v", msg.Type, client.id, err)
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		log.Printf("Send buffer full for peer %s; dropping connection", client.id)
		h.dropPeer(client)
		return false
	}
}

// closeAllPeers tears down every live connection during shutdown. Dropping
// each peer closes its send channel, which releases the write pump; closing
// the transport releases the read pump.
func (h *Hub) closeAllPeers() {
	log.Println("Shutting down all peer connections...")

	clients := make([]*Client, 0, len(h.peers))
	for _, client := range h.peers {
		clients = append(clients, client)
	}

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Printf("Error closing connection from %s: %v", client.addr, err)
			}
		}
		h.dropPeer(client)
	}

	log.Printf("Closed %d peer connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for the loop and
// all pump goroutines to finish, or for the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
