package entity

import (
	"strings"
	"time"
)

type Conversation struct {
	ID             string    `json:"id" firestore:"id"`
	ParticipantIDs []string  `json:"participant_ids" firestore:"participantIds"`
	LastMessage    string    `json:"last_message_preview,omitempty" firestore:"lastMessage,omitempty"`
	LastMessageAt  time.Time `json:"last_message_at" firestore:"lastMessageAt"`
	CreatedAt      time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt      time.Time `json:"updated_at" firestore:"updatedAt"`
}

// HasParticipant reports whether participantID belongs to the conversation.
func (c *Conversation) HasParticipant(participantID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == participantID {
			return true
		}
	}
	return false
}

// DisplayTitle derives the conversation title for the given viewer. Titles are
// never stored: one counterpart means their name, none means the self-notes
// conversation, otherwise the counterpart names joined with commas.
func (c *Conversation) DisplayTitle(selfID string, participants []*Participant) string {
	var others []string
	for _, p := range participants {
		if p.ID != selfID && c.HasParticipant(p.ID) {
			others = append(others, p.DisplayName)
		}
	}

	switch len(others) {
	case 0:
		return "My Notes"
	case 1:
		return others[0]
	default:
		return strings.Join(others, ", ")
	}
}
