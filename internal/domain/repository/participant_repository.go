package repository

import (
	"context"

	"fixhub/internal/domain/entity"
)

type ParticipantRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Participant, error)
	GetByIDs(ctx context.Context, ids []string) ([]*entity.Participant, error)
}
