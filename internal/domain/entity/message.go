package entity

import "time"

type Attachment struct {
	URL      string `json:"url" firestore:"url"`
	MimeType string `json:"mime_type,omitempty" firestore:"mimeType,omitempty"`
	Filename string `json:"filename,omitempty" firestore:"filename,omitempty"`
	Size     int64  `json:"size,omitempty" firestore:"size,omitempty"`
}

// Message is immutable once created; there is no edit or delete path.
type Message struct {
	ID             string      `json:"id" firestore:"id"`
	ConversationID string      `json:"conversation_id" firestore:"conversationId"`
	SenderID       string      `json:"sender_id" firestore:"senderId"`
	Content        string      `json:"content,omitempty" firestore:"content,omitempty"`
	Attachment     *Attachment `json:"attachment,omitempty" firestore:"attachment,omitempty"`
	CreatedAt      time.Time   `json:"created_at" firestore:"createdAt"`
}

// IsEmpty reports whether the message carries neither content nor attachment.
// Such messages are rejected before they ever reach the store.
func (m *Message) IsEmpty() bool {
	return m.Content == "" && m.Attachment == nil
}

// Preview returns the denormalized conversation preview for this message:
// truncated text, or the attachment filename placeholder when there is no text.
func (m *Message) Preview() string {
	if m.Content != "" {
		return truncateRunes(m.Content, 120)
	}
	if m.Attachment != nil {
		name := m.Attachment.Filename
		if name == "" {
			name = "attachment"
		}
		return "[" + name + "]"
	}
	return ""
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
