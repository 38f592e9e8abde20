package entity

import "time"

// ParticipantActivity records when a participant last opened or polled a
// conversation. It only exists to decide whether to fire an offline
// notification on a new message.
type ParticipantActivity struct {
	ParticipantID  string    `json:"participant_id" firestore:"participantId"`
	ConversationID string    `json:"conversation_id" firestore:"conversationId"`
	LastAccessedAt time.Time `json:"last_accessed_at" firestore:"lastAccessedAt"`
}
