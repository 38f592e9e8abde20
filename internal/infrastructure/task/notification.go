package task

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"fixhub/internal/domain/repository"
	"fixhub/internal/domain/service"
	"fixhub/pkg/logger"
)

// TypeOfflineNotification is the queue task name for notifying a participant
// who was offline when a message arrived.
const TypeOfflineNotification = "notification:offline_message"

const notificationQueue = "notifications"

type OfflineNotificationPayload struct {
	ParticipantID  string `json:"participant_id"`
	SenderName     string `json:"sender_name"`
	MessagePreview string `json:"message_preview"`
	ConversationID string `json:"conversation_id"`
}

// Enqueuer hands offline notifications off to the background queue. The send
// path only enqueues; actual delivery happens in the worker.
type Enqueuer interface {
	EnqueueOfflineNotification(ctx context.Context, payload OfflineNotificationPayload) error
}

type asynqEnqueuer struct {
	client *asynq.Client
}

func NewAsynqEnqueuer(redisAddr string) Enqueuer {
	return &asynqEnqueuer{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
	}
}

func (e *asynqEnqueuer) EnqueueOfflineNotification(ctx context.Context, payload OfflineNotificationPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TypeOfflineNotification, raw)
	_, err = e.client.EnqueueContext(ctx, t, asynq.Queue(notificationQueue), asynq.MaxRetry(3))
	return err
}

// NotificationWorker consumes offline-notification tasks and invokes the mail
// collaborator. Notifier failures are logged and swallowed: the side channel
// is best-effort and a failed email must never resurface as a task retry storm.
type NotificationWorker struct {
	server          *asynq.Server
	mux             *asynq.ServeMux
	notifier        service.OfflineNotifier
	participantRepo repository.ParticipantRepository
}

func NewNotificationWorker(redisAddr string, notifier service.OfflineNotifier, participantRepo repository.ParticipantRepository) *NotificationWorker {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: 5,
			Queues:      map[string]int{notificationQueue: 1},
		},
	)

	w := &NotificationWorker{
		server:          server,
		mux:             asynq.NewServeMux(),
		notifier:        notifier,
		participantRepo: participantRepo,
	}
	w.mux.HandleFunc(TypeOfflineNotification, w.handleOfflineNotification)
	return w
}

func (w *NotificationWorker) handleOfflineNotification(ctx context.Context, t *asynq.Task) error {
	var payload OfflineNotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logger.Error("Notification worker: malformed payload: %v", err)
		return nil // retrying will not fix a bad payload
	}

	participant, err := w.participantRepo.GetByID(ctx, payload.ParticipantID)
	if err != nil {
		logger.Error("Notification worker: participant %s lookup failed: %v", payload.ParticipantID, err)
		return nil
	}

	err = w.notifier.NotifyOfflineParticipant(ctx, service.OfflineNotification{
		Participant:    participant,
		SenderName:     payload.SenderName,
		MessagePreview: payload.MessagePreview,
		ConversationID: payload.ConversationID,
	})
	if err != nil {
		logger.Error("Notification worker: notify %s for conversation %s failed: %v",
			payload.ParticipantID, payload.ConversationID, err)
	}
	return nil
}

// Start runs the worker until the context is canceled.
func (w *NotificationWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()
	return nil
}
