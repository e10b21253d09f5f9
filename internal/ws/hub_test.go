package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cangre-pos/api/internal/service"
	"github.com/google/uuid"
)

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		send: make(chan []byte, 256),
	}
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case msg := <-c.send:
		var event Event
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("invalid event JSON: %v", err)
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestHubRegistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub)
	hub.register <- client

	// Give hub time to process
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if !hub.clients[client] {
		t.Fatal("client not registered")
	}
}

func TestHubUnregistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if hub.clients[client] {
		t.Fatal("client still registered after unregister")
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client1 := mockClient(hub)
	client2 := mockClient(hub)
	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(Event{Type: EventOrderReady, Payload: json.RawMessage(`{}`)})

	for _, c := range []*Client{client1, client2} {
		event := receive(t, c)
		if event.Type != EventOrderReady {
			t.Fatalf("event type = %q, want %q", event.Type, EventOrderReady)
		}
	}
}

func TestNotifyNewOrderPayload(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	orderID := uuid.New()
	hub.NotifyNewOrder(service.KitchenTicket{
		OrderID:      orderID,
		CustomerName: "walk-in",
		IsAddition:   true,
		Items: []service.KitchenTicketItem{
			{ProductName: "Burger", Quantity: 2, Sauces: []string{"aji"}},
		},
	})

	event := receive(t, client)
	if event.Type != EventNewOrder {
		t.Fatalf("event type = %q, want %q", event.Type, EventNewOrder)
	}

	var ticket service.KitchenTicket
	if err := json.Unmarshal(event.Payload, &ticket); err != nil {
		t.Fatalf("invalid ticket payload: %v", err)
	}
	if ticket.OrderID != orderID || !ticket.IsAddition {
		t.Fatalf("unexpected ticket: %+v", ticket)
	}
	if len(ticket.Items) != 1 || ticket.Items[0].ProductName != "Burger" {
		t.Fatalf("unexpected ticket items: %+v", ticket.Items)
	}
}

func TestNotifyOrderRemovedPayload(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	orderID := uuid.New()
	hub.NotifyOrderRemoved(orderID)

	event := receive(t, client)
	if event.Type != EventRemoveOrder {
		t.Fatalf("event type = %q, want %q", event.Type, EventRemoveOrder)
	}

	var payload struct {
		OrderID uuid.UUID `json:"order_id"`
	}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if payload.OrderID != orderID {
		t.Fatalf("order id = %s, want %s", payload.OrderID, orderID)
	}
}

func TestSlowClientDropped(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	slow := &Client{hub: hub, send: make(chan []byte)} // no buffer
	hub.register <- slow
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(Event{Type: EventOrderReady, Payload: json.RawMessage(`{}`)})
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if hub.clients[slow] {
		t.Fatal("slow client not dropped")
	}
}
