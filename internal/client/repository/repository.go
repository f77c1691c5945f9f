package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/smallbiznis/recurring/internal/client/domain"
	"github.com/smallbiznis/recurring/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	clients repository.Repository[domain.Client]
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{clients: repository.ProvideStore[domain.Client](db)}
}

func (r *repo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	return r.clients.FindOne(ctx, &domain.Client{ID: id})
}
