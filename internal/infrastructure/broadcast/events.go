package broadcast

import (
	"encoding/json"

	"fixhub/internal/domain/entity"
)

type EventType string

const (
	EventNewMessage    EventType = "new_message"
	EventTypingStarted EventType = "typing_started"
	EventTypingStopped EventType = "typing_stopped"
)

// Event is what travels over a conversation topic. Payload is kept raw so the
// same envelope crosses the in-process hub, Redis, and the websocket wire.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessagePayload carries the full persisted message plus resolved sender
// display fields, so subscribers render without extra lookups.
type NewMessagePayload struct {
	Message      *entity.Message `json:"message"`
	SenderName   string          `json:"sender_name"`
	SenderAvatar string          `json:"sender_avatar,omitempty"`
	SenderRole   entity.Role     `json:"sender_role,omitempty"`
}

type TypingPayload struct {
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
}

// Topic names the broadcast channel for one conversation.
func Topic(conversationID string) string {
	return "chat:" + conversationID
}

func NewMessageEvent(payload NewMessagePayload) Event {
	raw, _ := json.Marshal(payload)
	return Event{Type: EventNewMessage, Payload: raw}
}

func TypingStartedEvent(senderID, senderName string) Event {
	raw, _ := json.Marshal(TypingPayload{SenderID: senderID, SenderName: senderName})
	return Event{Type: EventTypingStarted, Payload: raw}
}

func TypingStoppedEvent(senderID string) Event {
	raw, _ := json.Marshal(TypingPayload{SenderID: senderID})
	return Event{Type: EventTypingStopped, Payload: raw}
}

// DecodeNewMessage unmarshals a new_message payload.
func (e Event) DecodeNewMessage() (NewMessagePayload, error) {
	var payload NewMessagePayload
	err := json.Unmarshal(e.Payload, &payload)
	return payload, err
}

// DecodeTyping unmarshals a typing_started/typing_stopped payload.
func (e Event) DecodeTyping() (TypingPayload, error) {
	var payload TypingPayload
	err := json.Unmarshal(e.Payload, &payload)
	return payload, err
}
