package repository

import (
	"context"
	"time"

	"fixhub/internal/domain/entity"
)

type ConversationRepository interface {
	Create(ctx context.Context, conversation *entity.Conversation) error
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	ListByParticipant(ctx context.Context, participantID string) ([]*entity.Conversation, error)

	// AppendMessage persists the message and updates the conversation's
	// lastMessage/lastMessageAt/updatedAt in a single transaction, so a
	// reader never observes a summary older than the newest message.
	AppendMessage(ctx context.Context, message *entity.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*entity.Message, error)

	TouchActivity(ctx context.Context, participantID, conversationID string, at time.Time) error
	GetActivity(ctx context.Context, conversationID string) (map[string]time.Time, error)
}
