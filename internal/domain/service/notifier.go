package service

import (
	"context"

	"fixhub/internal/domain/entity"
	"fixhub/pkg/logger"
)

// OfflineNotification is handed to the notifier when a message arrives for a
// participant who has not looked at the conversation recently.
type OfflineNotification struct {
	Participant    *entity.Participant
	SenderName     string
	MessagePreview string
	ConversationID string
}

// OfflineNotifier is the outbound email collaborator. Delivery is fire and
// forget; a failure never affects the send that triggered it.
type OfflineNotifier interface {
	NotifyOfflineParticipant(ctx context.Context, notification OfflineNotification) error
}

type logOfflineNotifier struct{}

// NewLogOfflineNotifier returns a notifier that only logs. It stands in for
// the mail service in development and in tests.
func NewLogOfflineNotifier() OfflineNotifier {
	return &logOfflineNotifier{}
}

func (n *logOfflineNotifier) NotifyOfflineParticipant(ctx context.Context, notification OfflineNotification) error {
	logger.Info("Offline notification: participant=%s sender=%s conversation=%s preview=%q",
		notification.Participant.ID, notification.SenderName, notification.ConversationID, notification.MessagePreview)
	return nil
}
