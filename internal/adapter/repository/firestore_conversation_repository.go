package repository

import (
	"context"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"fixhub/internal/domain/entity"
	"fixhub/internal/domain/repository"
	"fixhub/pkg/errors"
)

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	if conversation.ID == "" {
		conversation.ID = uuid.New().String()
	}

	now := time.Now()
	conversation.CreatedAt = now
	conversation.UpdatedAt = now

	_, err := r.client.Collection("conversations").Doc(conversation.ID).Set(ctx, conversation)
	if err != nil {
		return errors.Internal("Failed to create conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.client.Collection("conversations").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.ConversationNotFound(err)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}

	var conversation entity.Conversation
	if err := doc.DataTo(&conversation); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}

	return &conversation, nil
}

func (r *firestoreConversationRepository) ListByParticipant(ctx context.Context, participantID string) ([]*entity.Conversation, error) {
	query := r.client.Collection("conversations").
		Where("participantIds", "array-contains", participantID).
		OrderBy("updatedAt", firestore.Desc)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while fetching conversations for %s: %v", participantID, err)
		return nil, errors.Internal("Failed to fetch conversations", err)
	}

	var conversations []*entity.Conversation
	for _, doc := range docs {
		var conversation entity.Conversation
		if err := doc.DataTo(&conversation); err != nil {
			log.Printf("Error parsing conversation data for %s: %v", participantID, err)
			continue // skip bad data instead of failing the whole list
		}
		conversations = append(conversations, &conversation)
	}

	return conversations, nil
}

// AppendMessage writes the message and the conversation summary update in one
// transaction. A reader can never observe a conversation whose lastMessageAt
// is older than its newest message.
func (r *firestoreConversationRepository) AppendMessage(ctx context.Context, message *entity.Message) error {
	if message.IsEmpty() {
		return errors.EmptyMessage()
	}

	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	message.CreatedAt = time.Now()

	conversationRef := r.client.Collection("conversations").Doc(message.ConversationID)
	messageRef := conversationRef.Collection("messages").Doc(message.ID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(conversationRef); err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.ConversationNotFound(err)
			}
			return err
		}

		if err := tx.Set(messageRef, message); err != nil {
			return err
		}

		return tx.Update(conversationRef, []firestore.Update{
			{Path: "lastMessage", Value: message.Preview()},
			{Path: "lastMessageAt", Value: message.CreatedAt},
			{Path: "updatedAt", Value: message.CreatedAt},
		})
	})
	if err != nil {
		if errors.Is(err, "CONVERSATION_NOT_FOUND") {
			return err
		}
		return errors.Internal("Failed to append message", err)
	}

	return nil
}

func (r *firestoreConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	query := r.client.Collection("conversations").Doc(conversationID).
		Collection("messages").
		OrderBy("createdAt", firestore.Asc)

	iter := query.Documents(ctx)
	var messages []*entity.Message

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Firestore error while iterating messages for conversation %s: %v", conversationID, err)
			return nil, errors.Internal("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			log.Printf("Error parsing message data for conversation %s: %v", conversationID, err)
			return nil, errors.Internal("Failed to parse message data", err)
		}

		messages = append(messages, &message)
	}

	return messages, nil
}

func (r *firestoreConversationRepository) TouchActivity(ctx context.Context, participantID, conversationID string, at time.Time) error {
	activity := entity.ParticipantActivity{
		ParticipantID:  participantID,
		ConversationID: conversationID,
		LastAccessedAt: at,
	}

	_, err := r.client.Collection("conversations").Doc(conversationID).
		Collection("activity").Doc(participantID).Set(ctx, activity)
	if err != nil {
		return errors.Internal("Failed to touch activity", err)
	}

	return nil
}

func (r *firestoreConversationRepository) GetActivity(ctx context.Context, conversationID string) (map[string]time.Time, error) {
	docs, err := r.client.Collection("conversations").Doc(conversationID).
		Collection("activity").Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to fetch activity", err)
	}

	activity := make(map[string]time.Time, len(docs))
	for _, doc := range docs {
		var record entity.ParticipantActivity
		if err := doc.DataTo(&record); err != nil {
			continue
		}
		activity[record.ParticipantID] = record.LastAccessedAt
	}

	return activity, nil
}
