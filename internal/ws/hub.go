// Package ws fans scene events out to WebSocket clients. A Hub owns every
// client's send channel from a single goroutine, so a channel is closed at
// most once and never written after close.
package ws

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrHubStopped is returned once the hub's Run loop has exited.
var ErrHubStopped = errors.New("hub stopped")

// BroadcastMessage is one event for a scene's group.
type BroadcastMessage struct {
	SceneID string
	Data    []byte
}

type directMessage struct {
	client *Client
	data   []byte
}

// Hub tracks the connected clients of every scene.
type Hub struct {
	clients    map[string]map[*Client]bool // sceneID -> clients
	register   chan *Client
	unregister chan *Client
	broadcast  chan BroadcastMessage
	direct     chan directMessage
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan BroadcastMessage),
		direct:     make(chan directMessage),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled, then closes every client's send
// channel.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.SceneID] == nil {
				h.clients[client.SceneID] = make(map[*Client]bool)
			}
			h.clients[client.SceneID][client] = true
			h.mu.Unlock()
			log.Printf("[Hub] Client %s subscribed to scene %s", client.UserID, client.SceneID)
		case client := <-h.unregister:
			h.remove(client)
		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for client := range h.clients[msg.SceneID] {
				select {
				case client.Send <- msg.Data:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			for _, client := range slow {
				log.Printf("[Hub] Dropping slow client %s from scene %s", client.UserID, client.SceneID)
				h.remove(client)
			}
		case msg := <-h.direct:
			h.mu.RLock()
			subscribed := h.clients[msg.client.SceneID][msg.client]
			h.mu.RUnlock()
			if !subscribed {
				continue
			}
			select {
			case msg.client.Send <- msg.data:
			default:
				log.Printf("[Hub] Dropping slow client %s from scene %s", msg.client.UserID, msg.client.SceneID)
				h.remove(msg.client)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[client.SceneID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, client.SceneID)
	}
	close(client.Send)
	log.Printf("[Hub] Client %s unsubscribed from scene %s", client.UserID, client.SceneID)
}

func (h *Hub) shutdown() {
	close(h.done)
	h.mu.Lock()
	defer h.mu.Unlock()
	for sceneID, clients := range h.clients {
		for client := range clients {
			close(client.Send)
		}
		delete(h.clients, sceneID)
	}
}

// Register subscribes client to its scene.
func (h *Hub) Register(ctx context.Context, client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unregister removes client from its scene. It is safe to call more than
// once and after the hub has stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish hands data to every client of sceneID. Calls for one scene are
// delivered in the order Publish returns.
func (h *Hub) Publish(ctx context.Context, sceneID string, data []byte) error {
	select {
	case h.broadcast <- BroadcastMessage{SceneID: sceneID, Data: data}:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendTo delivers data to client alone.
func (h *Hub) SendTo(ctx context.Context, client *Client, data []byte) error {
	select {
	case h.direct <- directMessage{client: client, data: data}:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveUsers counts the distinct users connected to sceneID.
func (h *Hub) ActiveUsers(sceneID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make(map[string]struct{})
	for client := range h.clients[sceneID] {
		users[client.UserID] = struct{}{}
	}
	return len(users)
}
