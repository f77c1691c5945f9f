package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm translated", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{"pg unique", &pgconn.PgError{Code: "23505"}, true},
		{"pg other", &pgconn.PgError{Code: "40001"}, false},
		{"sqlite", errors.New("UNIQUE constraint failed: invoices.profile_id, invoices.occurrence_index"), true},
		{"mysql", errors.New("Error 1062 (23000): Duplicate entry"), true},
		{"other", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDuplicateKeyErr(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestDialectRejectsUnknownType(t *testing.T) {
	if _, err := Dialect(Config{Type: "oracle"}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}
