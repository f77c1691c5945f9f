package repository

import (
	"context"

	"gorm.io/gorm"
)

// Scope narrows or decorates a query, e.g. ordering or preloading.
type Scope func(*gorm.DB) *gorm.DB

// Repository is a thin generic gorm store for simple lookups. Anything with
// concurrency semantics goes through hand-written SQL in the owning package.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, scopes ...Scope) ([]*T, error)
	FindOne(ctx context.Context, query *T, scopes ...Scope) (*T, error)
	Create(ctx context.Context, resource *T) error
	Count(ctx context.Context, query *T) (int64, error)
}

// OrderBy returns a Scope sorting by the given column expression.
func OrderBy(expr string) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Order(expr) }
}

// Preload returns a Scope eager-loading an association.
func Preload(assoc string, args ...interface{}) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Preload(assoc, args...) }
}
