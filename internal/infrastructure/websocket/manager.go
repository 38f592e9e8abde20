package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"fixhub/internal/infrastructure/broadcast"
	"fixhub/internal/usecase"
)

// Manager tracks connected clients and conversation rooms. Each room is backed
// by exactly one broadcaster subscription, opened when the first client joins
// and closed when the last one leaves, so the fan-out cost per process is one
// subscription per active conversation regardless of tab count.
type Manager struct {
	messaging   *usecase.MessagingUseCase
	broadcaster broadcast.Broadcaster

	mutex    sync.RWMutex
	clients  map[*Client]struct{}
	rooms    map[string]map[*Client]struct{}
	roomSubs map[string]*broadcast.Subscription

	Register   chan *Client
	Unregister chan *Client
}

func NewManager(messaging *usecase.MessagingUseCase, broadcaster broadcast.Broadcaster) *Manager {
	return &Manager{
		messaging:   messaging,
		broadcaster: broadcaster,
		clients:     make(map[*Client]struct{}),
		rooms:       make(map[string]map[*Client]struct{}),
		roomSubs:    make(map[string]*broadcast.Subscription),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client, 64),
	}
}

// Start runs the registration loop. Call it once, in its own goroutine.
func (m *Manager) Start() {
	for {
		select {
		case client := <-m.Register:
			m.mutex.Lock()
			m.clients[client] = struct{}{}
			m.mutex.Unlock()
			log.Printf("WebSocket: Client connected for participant %s", client.ParticipantID)

		case client := <-m.Unregister:
			m.removeClient(client)
		}
	}
}

func (m *Manager) removeClient(client *Client) {
	m.mutex.Lock()
	if _, ok := m.clients[client]; !ok {
		m.mutex.Unlock()
		return
	}
	delete(m.clients, client)

	var drained []string
	for conversationID, members := range m.rooms {
		if _, ok := members[client]; !ok {
			continue
		}
		delete(members, client)
		if len(members) == 0 {
			drained = append(drained, conversationID)
		}
	}
	subs := make([]*broadcast.Subscription, 0, len(drained))
	for _, conversationID := range drained {
		if sub, ok := m.roomSubs[conversationID]; ok {
			subs = append(subs, sub)
			delete(m.roomSubs, conversationID)
		}
		delete(m.rooms, conversationID)
	}
	m.mutex.Unlock()

	for _, sub := range subs {
		sub.Close()
	}

	// Closing the connection, not the Send channel, lets both pumps exit
	// without racing concurrent enqueues.
	client.Conn.Close()
	log.Printf("WebSocket: Client disconnected for participant %s", client.ParticipantID)
}

// HandleFrame dispatches one client frame. Join is the only authorizing frame:
// typing frames on a room the client never joined still go through the use
// case, which re-checks membership before publishing.
func (m *Manager) HandleFrame(client *Client, frame ClientFrame) {
	ctx := context.Background()

	switch frame.Type {
	case "join":
		m.joinRoom(ctx, client, frame.ConversationID)
	case "leave":
		m.leaveRoom(client, frame.ConversationID)
	case "typing_start":
		m.messaging.HandleTyping(ctx, client.ParticipantID, frame.ConversationID, true)
	case "typing_stop":
		m.messaging.HandleTyping(ctx, client.ParticipantID, frame.ConversationID, false)
	case "ping":
		client.enqueueFrame(ServerFrame{Type: "pong"})
	default:
		log.Printf("WebSocket: Ignoring unknown frame type %q from %s", frame.Type, client.ParticipantID)
	}
}

func (m *Manager) joinRoom(ctx context.Context, client *Client, conversationID string) {
	if conversationID == "" {
		client.enqueueFrame(errorFrame(conversationID, "conversation_id is required"))
		return
	}

	if _, err := m.messaging.GetConversation(ctx, client.ParticipantID, conversationID, true); err != nil {
		log.Printf("WebSocket Error: Join denied for %s on conversation %s: %v", client.ParticipantID, conversationID, err)
		client.enqueueFrame(errorFrame(conversationID, "You cannot join this conversation"))
		return
	}

	m.mutex.Lock()
	members, ok := m.rooms[conversationID]
	if !ok {
		members = make(map[*Client]struct{})
		m.rooms[conversationID] = members
	}
	members[client] = struct{}{}

	if _, ok := m.roomSubs[conversationID]; !ok {
		sub, err := m.broadcaster.Subscribe(broadcast.Topic(conversationID))
		if err != nil {
			delete(members, client)
			if len(members) == 0 {
				delete(m.rooms, conversationID)
			}
			m.mutex.Unlock()
			log.Printf("WebSocket Error: Subscribe failed for conversation %s: %v", conversationID, err)
			client.enqueueFrame(errorFrame(conversationID, "Subscription failed, retry the join"))
			return
		}
		m.roomSubs[conversationID] = sub
		go m.pumpRoom(conversationID, sub)
	}
	m.mutex.Unlock()

	client.enqueueFrame(ServerFrame{Type: "joined", ConversationID: conversationID})
}

func (m *Manager) leaveRoom(client *Client, conversationID string) {
	m.mutex.Lock()
	members, ok := m.rooms[conversationID]
	if !ok {
		m.mutex.Unlock()
		return
	}
	delete(members, client)

	var sub *broadcast.Subscription
	if len(members) == 0 {
		sub = m.roomSubs[conversationID]
		delete(m.roomSubs, conversationID)
		delete(m.rooms, conversationID)
	}
	m.mutex.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// pumpRoom forwards broadcast events to every room member until the
// subscription closes. Self-filtering of typing events happens client-side;
// new_message events intentionally reach the sender's other tabs too.
func (m *Manager) pumpRoom(conversationID string, sub *broadcast.Subscription) {
	for event := range sub.Events() {
		frame := ServerFrame{
			Type:           string(event.Type),
			ConversationID: conversationID,
			Payload:        event.Payload,
		}

		m.mutex.RLock()
		for client := range m.rooms[conversationID] {
			client.enqueueFrame(frame)
		}
		m.mutex.RUnlock()
	}
}

func errorFrame(conversationID, message string) ServerFrame {
	raw, _ := json.Marshal(map[string]string{"message": message})
	return ServerFrame{Type: "error", ConversationID: conversationID, Payload: raw}
}
