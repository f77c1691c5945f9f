package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/recurring/internal/clock"
	"github.com/smallbiznis/recurring/internal/recurring/domain"
	"github.com/smallbiznis/recurring/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock `optional:"true"`
}

type Repository struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock

	profiles repository.Repository[domain.Profile]
}

func New(p Params) domain.ProfileRepository {
	if p.Clock == nil {
		p.Clock = clock.SystemClock{}
	}
	return &Repository{
		db:       p.DB,
		log:      p.Log.Named("recurring.repository"),
		clock:    p.Clock,
		profiles: repository.ProvideStore[domain.Profile](p.DB),
	}
}

func (r *Repository) FindDueProfiles(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("status = ? AND next_due_date <= ?", domain.StatusActive, civil(asOf)).
		Order("next_due_date ASC, id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, domain.Unavailable("find_due_profiles", err)
	}
	return ids, nil
}

func (r *Repository) Load(ctx context.Context, id uuid.UUID) (*domain.Profile, domain.LockToken, error) {
	profile, err := r.profiles.FindOne(ctx, &domain.Profile{ID: id},
		repository.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }),
	)
	if err != nil {
		return nil, 0, domain.Unavailable("load_profile", err)
	}
	if profile == nil {
		return nil, 0, domain.ErrProfileNotFound
	}
	return profile, domain.LockToken(profile.Version), nil
}

// Save is a compare-and-set on version. Only the fields the generation
// engine owns are written; line items and user-editable settings are left
// untouched.
func (r *Repository) Save(ctx context.Context, profile *domain.Profile, expected domain.LockToken) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ? AND version = ?", profile.ID, int64(expected)).
		Updates(map[string]any{
			"next_due_date":         civil(profile.NextDueDate),
			"occurrences_generated": profile.OccurrencesGenerated,
			"last_generated_at":     profile.LastGeneratedAt,
			"status":                profile.Status,
			"version":               gorm.Expr("version + 1"),
			"updated_at":            r.clock.Now().UTC(),
		})
	if result.Error != nil {
		return domain.Unavailable("save_profile", result.Error)
	}
	if result.RowsAffected == 0 {
		r.log.Debug("recurring.profile.stale_lock",
			zap.String("profile_id", profile.ID.String()),
			zap.Int64("expected_version", int64(expected)),
		)
		return domain.ErrConflict
	}
	profile.Version = int64(expected) + 1
	return nil
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
