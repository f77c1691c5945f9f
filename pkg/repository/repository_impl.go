package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (r *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	return &store[T]{db: tx}
}

func (r *store[T]) Find(ctx context.Context, query *T, scopes ...Scope) ([]*T, error) {
	var result []*T
	err := r.buildQuery(ctx, query, scopes...).Find(&result).Error
	return result, err
}

// FindOne returns nil, nil when nothing matches.
func (r *store[T]) FindOne(ctx context.Context, query *T, scopes ...Scope) (*T, error) {
	var result T
	err := r.buildQuery(ctx, query, scopes...).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *store[T]) Create(ctx context.Context, resource *T) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

func (r *store[T]) Count(ctx context.Context, query *T) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(new(T)).Where(query).Count(&count).Error
	return count, err
}

func (r *store[T]) buildQuery(ctx context.Context, filter *T, scopes ...Scope) *gorm.DB {
	db := r.db.WithContext(ctx).Where(filter)
	for _, scope := range scopes {
		db = scope(db)
	}
	return db
}
