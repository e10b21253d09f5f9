package ws

import (
	"encoding/json"
	"sync"

	"github.com/cangre-pos/api/internal/service"
	"github.com/google/uuid"
)

// Event types pushed to the kitchen display.
const (
	EventNewOrder    = "new_order"
	EventOrderReady  = "order_ready"
	EventRemoveOrder = "remove_order"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub maintains the set of active kitchen displays and broadcasts order
// events to them. It satisfies service.KitchenNotifier.
type Hub struct {
	// Registered kitchen clients
	clients map[*Client]bool

	// Inbound messages from clients (register/unregister)
	register   chan *Client
	unregister chan *Client

	// Outbound messages to broadcast
	broadcast chan Event

	// Mutex for thread-safe client set access
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 256),
	}
}

// Run starts the hub's main loop
// This should be called as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, exists := h.clients[client]; exists {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			// Marshal event to JSON once
			message, err := json.Marshal(event)
			if err != nil {
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full, close and unregister
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues an event for every connected kitchen display.
// Fire-and-forget: delivery is at-least-once to healthy clients and
// nothing blocks the caller.
func (h *Hub) Broadcast(event Event) {
	h.broadcast <- event
}

// NotifyNewOrder pushes a fresh ticket (or an addition) to the kitchen.
func (h *Hub) NotifyNewOrder(ticket service.KitchenTicket) {
	payload, err := json.Marshal(ticket)
	if err != nil {
		return
	}
	h.Broadcast(Event{Type: EventNewOrder, Payload: payload})
}

// NotifyOrderReady tells displays the kitchen finished an order.
func (h *Hub) NotifyOrderReady(orderID uuid.UUID) {
	h.notifyOrderEvent(EventOrderReady, orderID)
}

// NotifyOrderRemoved tells displays to drop a cancelled order's ticket.
func (h *Hub) NotifyOrderRemoved(orderID uuid.UUID) {
	h.notifyOrderEvent(EventRemoveOrder, orderID)
}

func (h *Hub) notifyOrderEvent(eventType string, orderID uuid.UUID) {
	payload, err := json.Marshal(struct {
		OrderID uuid.UUID `json:"order_id"`
	}{OrderID: orderID})
	if err != nil {
		return
	}
	h.Broadcast(Event{Type: eventType, Payload: payload})
}
