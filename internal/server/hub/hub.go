// Package hub tracks authenticated push-stream connections and routes
// notifications to the users they belong to.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/emberchat/ember/pkg/log"
)

type Hub struct {
	clients    map[string]*Client            // clientID -> client
	users      map[string]map[string]*Client // userID -> clientID -> client
	register   chan *Client
	unregister chan *Client
	push       chan *UserMessage
	mu         sync.RWMutex
}

type UserMessage struct {
	UserID  string // empty means all authenticated clients
	Message []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		users:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		push:       make(chan *UserMessage, 256),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str("client_id", client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for userID, ucClients := range h.users {
					delete(ucClients, client.ID)
					if len(ucClients) == 0 {
						delete(h.users, userID)
					}
				}
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str("client_id", client.ID).Msg("client unregistered")

		case msg := <-h.push:
			h.mu.RLock()
			if msg.UserID == "" {
				for userID := range h.users {
					h.deliverLocked(userID, msg.Message)
				}
			} else {
				h.deliverLocked(msg.UserID, msg.Message)
			}
			h.mu.RUnlock()
		}
	}
}

// deliverLocked fans a payload out to every connection bound to userID.
// Callers hold at least the read lock.
func (h *Hub) deliverLocked(userID string, message []byte) {
	for _, client := range h.users[userID] {
		select {
		case client.Send <- message:
		default:
			go h.removeClient(client)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Bind attaches an authenticated connection to its user so pushes can
// find it. Called once the auth frame validates.
func (h *Hub) Bind(client *Client, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.users[userID]; !ok {
		h.users[userID] = make(map[string]*Client)
	}
	h.users[userID][client.ID] = client
	client.UserID = userID
	l := log.L()
	l.Info().Str("client_id", client.ID).Str(log.FieldUserID, userID).Msg("client authenticated")
}

// PushToUser delivers a notification to every connection of one user.
func (h *Hub) PushToUser(userID string, message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	h.push <- &UserMessage{UserID: userID, Message: data}
	return nil
}

// Broadcast delivers a notification to every authenticated connection.
func (h *Hub) Broadcast(message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	h.push <- &UserMessage{Message: data}
	return nil
}

func (h *Hub) UserClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

func (h *Hub) removeClient(client *Client) {
	h.unregister <- client
}
