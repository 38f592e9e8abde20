package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"fixhub/internal/domain/entity"
	"fixhub/internal/domain/repository"
	"fixhub/pkg/errors"
)

type firestoreParticipantRepository struct {
	client *firestore.Client
}

func NewFirestoreParticipantRepository(client *firestore.Client) repository.ParticipantRepository {
	return &firestoreParticipantRepository{
		client: client,
	}
}

func (r *firestoreParticipantRepository) GetByID(ctx context.Context, id string) (*entity.Participant, error) {
	doc, err := r.client.Collection("participants").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Participant", err)
		}
		return nil, errors.Internal("Failed to get participant", err)
	}

	var participant entity.Participant
	if err := doc.DataTo(&participant); err != nil {
		return nil, errors.Internal("Failed to parse participant data", err)
	}

	return &participant, nil
}

// GetByIDs resolves every id or fails with UNKNOWN_PARTICIPANT naming the
// first id that does not exist. Conversation creation relies on this being
// all-or-nothing.
func (r *firestoreParticipantRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.Participant, error) {
	participants := make([]*entity.Participant, 0, len(ids))

	for _, id := range ids {
		participant, err := r.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, "NOT_FOUND") {
				return nil, errors.UnknownParticipant(id)
			}
			return nil, err
		}
		participants = append(participants, participant)
	}

	return participants, nil
}
