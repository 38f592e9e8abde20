package usecase

import (
	"context"
	"log"
	"time"

	"fixhub/internal/domain/entity"
	"fixhub/internal/domain/repository"
	"fixhub/internal/infrastructure/broadcast"
	"fixhub/internal/infrastructure/task"
	"fixhub/pkg/errors"
)

type MessagingUseCase struct {
	conversationRepo repository.ConversationRepository
	participantRepo  repository.ParticipantRepository
	broadcaster      broadcast.Broadcaster
	enqueuer         task.Enqueuer
	offlineThreshold time.Duration
}

func NewMessagingUseCase(
	conversationRepo repository.ConversationRepository,
	participantRepo repository.ParticipantRepository,
	broadcaster broadcast.Broadcaster,
	enqueuer task.Enqueuer,
	offlineThreshold time.Duration,
) *MessagingUseCase {
	return &MessagingUseCase{
		conversationRepo: conversationRepo,
		participantRepo:  participantRepo,
		broadcaster:      broadcaster,
		enqueuer:         enqueuer,
		offlineThreshold: offlineThreshold,
	}
}

type SendMessageInput struct {
	ConversationID string
	Content        string
	Attachment     *entity.Attachment
}

type CreateConversationInput struct {
	ParticipantIDs []string
	InitialMessage string
}

type MessageResponse struct {
	*entity.Message
	Sender *entity.Participant `json:"sender,omitempty"`
}

type ConversationResponse struct {
	*entity.Conversation
	Participants []*entity.Participant `json:"participants"`
	DisplayTitle string                `json:"display_title"`
}

// SendMessage validates, persists, broadcasts, and kicks off offline
// notification evaluation. Only the persistence step can fail the caller:
// once the message is durable, broadcast and notification problems are
// logged and swallowed.
func (uc *MessagingUseCase) SendMessage(ctx context.Context, senderID string, input SendMessageInput) (*MessageResponse, error) {
	sender, err := uc.participantRepo.GetByID(ctx, senderID)
	if err != nil {
		log.Printf("SendMessage Error: Sender %s not found: %v", senderID, err)
		return nil, errors.NotFound("Sender", err)
	}

	conversation, err := uc.conversationRepo.GetByID(ctx, input.ConversationID)
	if err != nil {
		log.Printf("SendMessage Error: Conversation %s not found: %v", input.ConversationID, err)
		return nil, err
	}

	if !conversation.HasParticipant(senderID) {
		if !sender.Role.CanSendToAnyConversation() {
			log.Printf("SendMessage Error: %s is not a participant of conversation %s", senderID, input.ConversationID)
			return nil, errors.NotAParticipant(nil)
		}
		log.Printf("SendMessage: %s (%s) admitted to conversation %s via cross-conversation exception",
			senderID, sender.Role, input.ConversationID)
	}

	if input.Content == "" && input.Attachment == nil {
		return nil, errors.EmptyMessage()
	}

	message := &entity.Message{
		ConversationID: input.ConversationID,
		SenderID:       senderID,
		Content:        input.Content,
		Attachment:     input.Attachment,
	}

	if err := uc.conversationRepo.AppendMessage(ctx, message); err != nil {
		log.Printf("SendMessage Error: Failed to append message to conversation %s: %v", input.ConversationID, err)
		return nil, err
	}

	event := broadcast.NewMessageEvent(broadcast.NewMessagePayload{
		Message:      message,
		SenderName:   sender.DisplayName,
		SenderAvatar: sender.AvatarURL,
		SenderRole:   sender.Role,
	})
	if err := uc.broadcaster.Publish(ctx, broadcast.Topic(input.ConversationID), event); err != nil {
		// The message is already durable; subscribers pick it up on next poll.
		log.Printf("SendMessage Warning: Broadcast publish failed for conversation %s: %v", input.ConversationID, err)
	}

	go uc.evaluateOfflineParticipants(context.Background(), conversation, sender, message)

	return &MessageResponse{Message: message, Sender: sender}, nil
}

// evaluateOfflineParticipants enqueues a notification task for every other
// participant whose last conversation activity is older than the staleness
// threshold, or who never opened the conversation at all.
func (uc *MessagingUseCase) evaluateOfflineParticipants(ctx context.Context, conversation *entity.Conversation, sender *entity.Participant, message *entity.Message) {
	activity, err := uc.conversationRepo.GetActivity(ctx, conversation.ID)
	if err != nil {
		log.Printf("SendMessage Warning: Failed to load activity for conversation %s: %v", conversation.ID, err)
		return
	}

	now := time.Now()
	for _, participantID := range conversation.ParticipantIDs {
		if participantID == sender.ID {
			continue
		}

		lastAccessed, ok := activity[participantID]
		if ok && now.Sub(lastAccessed) <= uc.offlineThreshold {
			continue
		}

		err := uc.enqueuer.EnqueueOfflineNotification(ctx, task.OfflineNotificationPayload{
			ParticipantID:  participantID,
			SenderName:     sender.DisplayName,
			MessagePreview: message.Preview(),
			ConversationID: conversation.ID,
		})
		if err != nil {
			log.Printf("SendMessage Warning: Failed to enqueue offline notification for %s: %v", participantID, err)
		}
	}
}

// CreateConversation creates a conversation with an explicitly chosen
// participant set. Only staff and workers may do this; customer-initiated
// conversations get their counterpart set from the assignment policy, which
// lives outside this core.
func (uc *MessagingUseCase) CreateConversation(ctx context.Context, initiatorID string, input CreateConversationInput) (*ConversationResponse, error) {
	initiator, err := uc.participantRepo.GetByID(ctx, initiatorID)
	if err != nil {
		log.Printf("CreateConversation Error: Initiator %s not found: %v", initiatorID, err)
		return nil, errors.NotFound("Initiator", err)
	}

	if !initiator.Role.CanInitiateConversation() {
		log.Printf("CreateConversation Error: %s (%s) may not choose a participant set", initiatorID, initiator.Role)
		return nil, errors.Forbidden("Your role cannot start a conversation with a chosen participant set", nil)
	}

	participantIDs := dedupeWithInitiator(initiatorID, input.ParticipantIDs)
	if len(participantIDs) < 2 {
		return nil, errors.InvalidParticipants("A conversation needs at least 2 distinct participants")
	}

	participants, err := uc.participantRepo.GetByIDs(ctx, participantIDs)
	if err != nil {
		log.Printf("CreateConversation Error: Participant lookup failed: %v", err)
		return nil, err
	}

	conversation := &entity.Conversation{
		ParticipantIDs: participantIDs,
	}
	if err := uc.conversationRepo.Create(ctx, conversation); err != nil {
		log.Printf("CreateConversation Error: Failed to create conversation: %v", err)
		return nil, err
	}

	if input.InitialMessage != "" {
		_, err := uc.SendMessage(ctx, initiatorID, SendMessageInput{
			ConversationID: conversation.ID,
			Content:        input.InitialMessage,
		})
		if err != nil {
			log.Printf("CreateConversation Error: Failed to send initial message for conversation %s: %v", conversation.ID, err)
			return nil, err
		}
	}

	return &ConversationResponse{
		Conversation: conversation,
		Participants: participants,
		DisplayTitle: conversation.DisplayTitle(initiatorID, participants),
	}, nil
}

// ListConversations returns the requester's conversations ordered by
// updatedAt descending, with derived titles and resolved participants.
func (uc *MessagingUseCase) ListConversations(ctx context.Context, participantID string) ([]*ConversationResponse, error) {
	conversations, err := uc.conversationRepo.ListByParticipant(ctx, participantID)
	if err != nil {
		log.Printf("ListConversations Error: Failed to list conversations for %s: %v", participantID, err)
		return nil, err
	}

	responses := make([]*ConversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		participants, err := uc.participantRepo.GetByIDs(ctx, conversation.ParticipantIDs)
		if err != nil {
			log.Printf("ListConversations Warning: Participant lookup failed for conversation %s: %v", conversation.ID, err)
			participants = nil
		}

		responses = append(responses, &ConversationResponse{
			Conversation: conversation,
			Participants: participants,
			DisplayTitle: conversation.DisplayTitle(participantID, participants),
		})
	}

	return responses, nil
}

// GetConversation loads a conversation, optionally requiring the requester to
// be a participant. The websocket layer uses it to authorize room joins.
func (uc *MessagingUseCase) GetConversation(ctx context.Context, requesterID, conversationID string, requireParticipant bool) (*entity.Conversation, error) {
	conversation, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if requireParticipant && !conversation.HasParticipant(requesterID) {
		requester, err := uc.participantRepo.GetByID(ctx, requesterID)
		if err != nil || !requester.Role.CanSendToAnyConversation() {
			return nil, errors.NotAParticipant(nil)
		}
	}

	return conversation, nil
}

// GetMessages returns a conversation's history ascending by creation time and
// records the requester's activity, which is what keeps them out of the
// offline-notification set while they are watching the conversation.
func (uc *MessagingUseCase) GetMessages(ctx context.Context, requesterID, conversationID string) ([]*MessageResponse, error) {
	conversation, err := uc.GetConversation(ctx, requesterID, conversationID, true)
	if err != nil {
		log.Printf("GetMessages Error: Conversation %s for %s: %v", conversationID, requesterID, err)
		return nil, err
	}

	messages, err := uc.conversationRepo.ListMessages(ctx, conversation.ID)
	if err != nil {
		log.Printf("GetMessages Error: Failed to list messages for conversation %s: %v", conversationID, err)
		return nil, err
	}

	senders := uc.resolveSenders(ctx, messages)

	responses := make([]*MessageResponse, 0, len(messages))
	for _, message := range messages {
		responses = append(responses, &MessageResponse{
			Message: message,
			Sender:  senders[message.SenderID],
		})
	}

	if err := uc.conversationRepo.TouchActivity(ctx, requesterID, conversationID, time.Now()); err != nil {
		log.Printf("GetMessages Warning: Failed to touch activity for %s on %s: %v", requesterID, conversationID, err)
	}

	return responses, nil
}

func (uc *MessagingUseCase) resolveSenders(ctx context.Context, messages []*entity.Message) map[string]*entity.Participant {
	seen := make(map[string]bool)
	var ids []string
	for _, message := range messages {
		if !seen[message.SenderID] {
			seen[message.SenderID] = true
			ids = append(ids, message.SenderID)
		}
	}

	senders := make(map[string]*entity.Participant, len(ids))
	if len(ids) == 0 {
		return senders
	}

	participants, err := uc.participantRepo.GetByIDs(ctx, ids)
	if err != nil {
		log.Printf("GetMessages Warning: Sender lookup failed: %v", err)
		return senders
	}
	for _, participant := range participants {
		senders[participant.ID] = participant
	}
	return senders
}

// HandleTyping publishes a typing presence event on behalf of senderID.
// Typing is ephemeral: every failure here is silent by design of the channel.
func (uc *MessagingUseCase) HandleTyping(ctx context.Context, senderID, conversationID string, started bool) {
	conversation, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		log.Printf("HandleTyping Error: Conversation %s not found: %v", conversationID, err)
		return
	}

	sender, err := uc.participantRepo.GetByID(ctx, senderID)
	if err != nil {
		log.Printf("HandleTyping Error: Sender %s not found: %v", senderID, err)
		return
	}

	if !conversation.HasParticipant(senderID) && !sender.Role.CanSendToAnyConversation() {
		log.Printf("HandleTyping Error: %s is not a participant of conversation %s", senderID, conversationID)
		return
	}

	var event broadcast.Event
	if started {
		event = broadcast.TypingStartedEvent(senderID, sender.DisplayName)
	} else {
		event = broadcast.TypingStoppedEvent(senderID)
	}

	if err := uc.broadcaster.Publish(ctx, broadcast.Topic(conversationID), event); err != nil {
		log.Printf("HandleTyping Warning: Publish failed for conversation %s: %v", conversationID, err)
	}
}

func dedupeWithInitiator(initiatorID string, ids []string) []string {
	seen := map[string]bool{initiatorID: true}
	result := []string{initiatorID}
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result
}
