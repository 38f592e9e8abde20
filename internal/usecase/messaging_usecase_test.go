package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fixhub/internal/domain/entity"
	"fixhub/internal/infrastructure/broadcast"
	"fixhub/internal/infrastructure/task"
	apperrors "fixhub/pkg/errors"
)

type fakeConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]*entity.Conversation
	messages      map[string][]*entity.Message
	activity      map[string]map[string]time.Time
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		conversations: make(map[string]*entity.Conversation),
		messages:      make(map[string][]*entity.Message),
		activity:      make(map[string]map[string]time.Time),
	}
}

func (r *fakeConversationRepo) Create(ctx context.Context, conversation *entity.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conversation.ID == "" {
		conversation.ID = uuid.New().String()
	}
	now := time.Now()
	conversation.CreatedAt = now
	conversation.UpdatedAt = now
	r.conversations[conversation.ID] = conversation
	return nil
}

func (r *fakeConversationRepo) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversation, ok := r.conversations[id]
	if !ok {
		return nil, apperrors.ConversationNotFound(nil)
	}
	return conversation, nil
}

func (r *fakeConversationRepo) ListByParticipant(ctx context.Context, participantID string) ([]*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Conversation
	for _, conversation := range r.conversations {
		if conversation.HasParticipant(participantID) {
			out = append(out, conversation)
		}
	}
	return out, nil
}

func (r *fakeConversationRepo) AppendMessage(ctx context.Context, message *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if message.IsEmpty() {
		return apperrors.EmptyMessage()
	}
	conversation, ok := r.conversations[message.ConversationID]
	if !ok {
		return apperrors.ConversationNotFound(nil)
	}
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	message.CreatedAt = time.Now()
	r.messages[message.ConversationID] = append(r.messages[message.ConversationID], message)
	conversation.LastMessage = message.Preview()
	conversation.LastMessageAt = message.CreatedAt
	conversation.UpdatedAt = message.CreatedAt
	return nil
}

func (r *fakeConversationRepo) ListMessages(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entity.Message(nil), r.messages[conversationID]...), nil
}

func (r *fakeConversationRepo) TouchActivity(ctx context.Context, participantID, conversationID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activity[conversationID] == nil {
		r.activity[conversationID] = make(map[string]time.Time)
	}
	r.activity[conversationID][participantID] = at
	return nil
}

func (r *fakeConversationRepo) GetActivity(ctx context.Context, conversationID string) (map[string]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]time.Time)
	for id, at := range r.activity[conversationID] {
		out[id] = at
	}
	return out, nil
}

type fakeParticipantRepo struct {
	participants map[string]*entity.Participant
}

func (r *fakeParticipantRepo) GetByID(ctx context.Context, id string) (*entity.Participant, error) {
	participant, ok := r.participants[id]
	if !ok {
		return nil, apperrors.NotFound("Participant", nil)
	}
	return participant, nil
}

func (r *fakeParticipantRepo) GetByIDs(ctx context.Context, ids []string) ([]*entity.Participant, error) {
	out := make([]*entity.Participant, 0, len(ids))
	for _, id := range ids {
		participant, ok := r.participants[id]
		if !ok {
			return nil, apperrors.UnknownParticipant(id)
		}
		out = append(out, participant)
	}
	return out, nil
}

type recordingBroadcaster struct {
	mu        sync.Mutex
	published []broadcast.Event
	topics    []string
	failWith  error
}

func (b *recordingBroadcaster) Publish(ctx context.Context, topic string, event broadcast.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWith != nil {
		return b.failWith
	}
	b.published = append(b.published, event)
	b.topics = append(b.topics, topic)
	return nil
}

func (b *recordingBroadcaster) Subscribe(topic string) (*broadcast.Subscription, error) {
	panic("not used in these tests")
}

func (b *recordingBroadcaster) events() []broadcast.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcast.Event(nil), b.published...)
}

type recordingEnqueuer struct {
	mu       sync.Mutex
	payloads []task.OfflineNotificationPayload
}

func (e *recordingEnqueuer) EnqueueOfflineNotification(ctx context.Context, payload task.OfflineNotificationPayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payloads = append(e.payloads, payload)
	return nil
}

func (e *recordingEnqueuer) enqueued() []task.OfflineNotificationPayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]task.OfflineNotificationPayload(nil), e.payloads...)
}

type fixture struct {
	uc          *MessagingUseCase
	convRepo    *fakeConversationRepo
	broadcaster *recordingBroadcaster
	enqueuer    *recordingEnqueuer
}

func setup(t *testing.T, threshold time.Duration) *fixture {
	t.Helper()

	convRepo := newFakeConversationRepo()
	participantRepo := &fakeParticipantRepo{participants: map[string]*entity.Participant{
		"cust1":   {ID: "cust1", DisplayName: "Dana", Role: entity.RoleCustomer},
		"cust2":   {ID: "cust2", DisplayName: "Morgan", Role: entity.RoleCustomer},
		"staff1":  {ID: "staff1", DisplayName: "Sam", Role: entity.RoleStaff},
		"worker1": {ID: "worker1", DisplayName: "Wes", Role: entity.RoleWorker},
	}}
	broadcaster := &recordingBroadcaster{}
	enqueuer := &recordingEnqueuer{}

	uc := NewMessagingUseCase(convRepo, participantRepo, broadcaster, enqueuer, threshold)
	return &fixture{uc: uc, convRepo: convRepo, broadcaster: broadcaster, enqueuer: enqueuer}
}

func (f *fixture) conversation(t *testing.T, participantIDs ...string) *entity.Conversation {
	t.Helper()
	conversation := &entity.Conversation{ParticipantIDs: participantIDs}
	require.NoError(t, f.convRepo.Create(context.Background(), conversation))
	return conversation
}

func TestSendMessagePersistsAndBroadcasts(t *testing.T) {
	f := setup(t, 5*time.Minute)
	conversation := f.conversation(t, "cust1", "worker1")

	result, err := f.uc.SendMessage(context.Background(), "cust1", SendMessageInput{
		ConversationID: conversation.ID,
		Content:        "The kitchen sink is leaking again",
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, "Dana", result.Sender.DisplayName)

	// Summary must reflect the newly appended message.
	stored, err := f.convRepo.GetByID(context.Background(), conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, "The kitchen sink is leaking again", stored.LastMessage)
	assert.Equal(t, result.CreatedAt, stored.LastMessageAt)

	events := f.broadcaster.events()
	require.Len(t, events, 1)
	assert.Equal(t, broadcast.EventNewMessage, events[0].Type)

	payload, err := events[0].DecodeNewMessage()
	require.NoError(t, err)
	assert.Equal(t, result.ID, payload.Message.ID)
	assert.Equal(t, "Dana", payload.SenderName)
}

func TestSendMessageRejectsEmpty(t *testing.T) {
	f := setup(t, 5*time.Minute)
	conversation := f.conversation(t, "cust1", "worker1")

	_, err := f.uc.SendMessage(context.Background(), "cust1", SendMessageInput{
		ConversationID: conversation.ID,
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, "EMPTY_MESSAGE"))
	assert.Empty(t, f.broadcaster.events())
}

func TestSendMessageUnknownConversation(t *testing.T) {
	f := setup(t, 5*time.Minute)

	_, err := f.uc.SendMessage(context.Background(), "cust1", SendMessageInput{
		ConversationID: "missing",
		Content:        "hello?",
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, "CONVERSATION_NOT_FOUND"))
}

func TestSendMessageCustomerOutsiderRejected(t *testing.T) {
	f := setup(t, 5*time.Minute)
	conversation := f.conversation(t, "cust1", "worker1")

	_, err := f.uc.SendMessage(context.Background(), "cust2", SendMessageInput{
		ConversationID: conversation.ID,
		Content:        "let me in",
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, "NOT_A_PARTICIPANT"))
}

func TestSendMessageWorkerExceptionAdmitted(t *testing.T) {
	f := setup(t, 5*time.Minute)
	conversation := f.conversation(t, "cust1", "staff1")

	result, err := f.uc.SendMessage(context.Background(), "worker1", SendMessageInput{
		ConversationID: conversation.ID,
		Content:        "Picking this job up",
	})
	require.NoError(t, err)
	assert.Equal(t, "worker1", result.SenderID)
}

func TestSendMessageSurvivesBroadcastFailure(t *testing.T) {
	f := setup(t, 5*time.Minute)
	f.broadcaster.failWith = errors.New("redis down")
	conversation := f.conversation(t, "cust1", "worker1")

	result, err := f.uc.SendMessage(context.Background(), "cust1", SendMessageInput{
		ConversationID: conversation.ID,
		Content:        "still goes through",
	})
	require.NoError(t, err)

	messages, err := f.convRepo.ListMessages(context.Background(), conversation.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, result.ID, messages[0].ID)
}

func TestSendMessageNotifiesOfflineParticipants(t *testing.T) {
	f := setup(t, 5*time.Minute)
	conversation := f.conversation(t, "cust1", "cust2", "worker1")

	// cust2 was active moments ago; worker1 has been away for an hour.
	now := time.Now()
	require.NoError(t, f.convRepo.TouchActivity(context.Background(), "cust2", conversation.ID, now))
	require.NoError(t, f.convRepo.TouchActivity(context.Background(), "worker1", conversation.ID, now.Add(-time.Hour)))

	_, err := f.uc.SendMessage(context.Background(), "cust1", SendMessageInput{
		ConversationID: conversation.ID,
		Content:        "Anyone there?",
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(f.enqueuer.enqueued()) == 1
	}, time.Second, 10*time.Millisecond)

	payloads := f.enqueuer.enqueued()
	require.Len(t, payloads, 1)
	assert.Equal(t, "worker1", payloads[0].ParticipantID)
	assert.Equal(t, "Dana", payloads[0].SenderName)
	assert.Equal(t, "Anyone there?", payloads[0].MessagePreview)
}

func TestSendMessageNotifiesParticipantWithNoActivityRecord(t *testing.T) {
	f := setup(t, 5*time.Minute)
	conversation := f.conversation(t, "cust1", "cust2")

	_, err := f.uc.SendMessage(context.Background(), "cust1", SendMessageInput{
		ConversationID: conversation.ID,
		Content:        "first contact",
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		payloads := f.enqueuer.enqueued()
		return len(payloads) == 1 && payloads[0].ParticipantID == "cust2"
	}, time.Second, 10*time.Millisecond)
}

func TestSendMessageNeverNotifiesSender(t *testing.T) {
	f := setup(t, 5*time.Minute)
	conversation := f.conversation(t, "cust1", "cust2")

	// Both stale; only the non-sender should be notified.
	stale := time.Now().Add(-time.Hour)
	require.NoError(t, f.convRepo.TouchActivity(context.Background(), "cust1", conversation.ID, stale))
	require.NoError(t, f.convRepo.TouchActivity(context.Background(), "cust2", conversation.ID, stale))

	_, err := f.uc.SendMessage(context.Background(), "cust1", SendMessageInput{
		ConversationID: conversation.ID,
		Content:        "ping",
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(f.enqueuer.enqueued()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "cust2", f.enqueuer.enqueued()[0].ParticipantID)
}

func TestCreateConversationDedupesAndTitles(t *testing.T) {
	f := setup(t, 5*time.Minute)

	result, err := f.uc.CreateConversation(context.Background(), "staff1", CreateConversationInput{
		ParticipantIDs: []string{"cust1", "staff1", "cust1"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"staff1", "cust1"}, result.ParticipantIDs)
	assert.Equal(t, "Dana", result.DisplayTitle)
}

func TestCreateConversationRejectsInitiatorOnly(t *testing.T) {
	f := setup(t, 5*time.Minute)

	_, err := f.uc.CreateConversation(context.Background(), "staff1", CreateConversationInput{
		ParticipantIDs: []string{"staff1", "staff1"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, "INVALID_PARTICIPANTS"))
}

func TestCreateConversationRejectsUnknownParticipant(t *testing.T) {
	f := setup(t, 5*time.Minute)

	_, err := f.uc.CreateConversation(context.Background(), "staff1", CreateConversationInput{
		ParticipantIDs: []string{"ghost"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, "UNKNOWN_PARTICIPANT"))
}

func TestCreateConversationCustomerForbidden(t *testing.T) {
	f := setup(t, 5*time.Minute)

	_, err := f.uc.CreateConversation(context.Background(), "cust1", CreateConversationInput{
		ParticipantIDs: []string{"cust2"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, "FORBIDDEN"))
}

func TestCreateConversationSendsInitialMessage(t *testing.T) {
	f := setup(t, 5*time.Minute)

	result, err := f.uc.CreateConversation(context.Background(), "staff1", CreateConversationInput{
		ParticipantIDs: []string{"cust1"},
		InitialMessage: "Your appointment is confirmed",
	})
	require.NoError(t, err)

	messages, err := f.convRepo.ListMessages(context.Background(), result.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "staff1", messages[0].SenderID)
	assert.Equal(t, "Your appointment is confirmed", messages[0].Content)
}

func TestGetMessagesAscendingAndTouchesActivity(t *testing.T) {
	f := setup(t, 5*time.Minute)
	conversation := f.conversation(t, "cust1", "worker1")

	for _, content := range []string{"first", "second", "third"} {
		_, err := f.uc.SendMessage(context.Background(), "cust1", SendMessageInput{
			ConversationID: conversation.ID,
			Content:        content,
		})
		require.NoError(t, err)
	}

	messages, err := f.uc.GetMessages(context.Background(), "worker1", conversation.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "third", messages[2].Content)
	assert.Equal(t, "Dana", messages[0].Sender.DisplayName)

	activity, err := f.convRepo.GetActivity(context.Background(), conversation.ID)
	require.NoError(t, err)
	assert.Contains(t, activity, "worker1")
}

func TestGetMessagesOutsiderForbidden(t *testing.T) {
	f := setup(t, 5*time.Minute)
	conversation := f.conversation(t, "cust1", "worker1")

	_, err := f.uc.GetMessages(context.Background(), "cust2", conversation.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, "NOT_A_PARTICIPANT"))
}

func TestHandleTypingPublishes(t *testing.T) {
	f := setup(t, 5*time.Minute)
	conversation := f.conversation(t, "cust1", "worker1")

	f.uc.HandleTyping(context.Background(), "cust1", conversation.ID, true)
	f.uc.HandleTyping(context.Background(), "cust1", conversation.ID, false)

	events := f.broadcaster.events()
	require.Len(t, events, 2)
	assert.Equal(t, broadcast.EventTypingStarted, events[0].Type)
	assert.Equal(t, broadcast.EventTypingStopped, events[1].Type)

	payload, err := events[0].DecodeTyping()
	require.NoError(t, err)
	assert.Equal(t, "Dana", payload.SenderName)
}

func TestHandleTypingOutsiderDropped(t *testing.T) {
	f := setup(t, 5*time.Minute)
	conversation := f.conversation(t, "cust1", "worker1")

	f.uc.HandleTyping(context.Background(), "cust2", conversation.ID, true)

	assert.Empty(t, f.broadcaster.events())
}
