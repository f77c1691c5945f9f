package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/recurring/internal/clock"
	invoicedomain "github.com/smallbiznis/recurring/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2026, 1, 31, 6, 0, 0, 0, time.UTC)

func setupRepository(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&invoicedomain.InvoiceSequence{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := New(Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clock.NewFakeClock(fixedNow)}).(*Repository)
	return repo, db
}

func testDraft(accountID uuid.UUID) invoicedomain.Draft {
	issue := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	return invoicedomain.Draft{
		AccountID:   accountID,
		ClientID:    uuid.New(),
		ProfileID:   uuid.New(),
		ProfileName: "Monthly Retainer",
		Currency:    "EUR",
		IssueDate:   issue,
		DueDate:     issue.AddDate(0, 0, 14),
		Items: []invoicedomain.DraftItem{
			{Position: 1, Description: "Design", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.RequireFromString("33.33"), VatRate: decimal.NewFromInt(20), LineTotal: decimal.RequireFromString("99.99")},
			{Position: 2, Description: "Hosting", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10), VatRate: decimal.Zero, LineTotal: decimal.NewFromInt(10)},
		},
		Subtotal:       decimal.RequireFromString("109.99"),
		TaxAmount:      decimal.RequireFromString("20.00"),
		DiscountAmount: decimal.Zero,
		Total:          decimal.RequireFromString("129.99"),
		Metadata:       map[string]any{"frequency": "monthly"},
	}
}

func TestCreateAndFindByIdempotencyKey(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	draft := testDraft(uuid.New())
	key := invoicedomain.IdempotencyKey{ProfileID: draft.ProfileID, OccurrenceIndex: 1}

	_, found, err := repo.FindByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	id, err := repo.Create(ctx, draft, key)
	require.NoError(t, err)
	require.NotZero(t, id)

	got, found, err := repo.FindByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, id, got)

	invoice, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, invoice.Status)
	assert.Equal(t, int64(1), invoice.InvoiceNumber)
	assert.Equal(t, "monthly-retainer-1", invoice.Reference)
	assert.Equal(t, 1, invoice.OccurrenceIndex)
	assert.True(t, invoice.TotalAmount.Equal(decimal.RequireFromString("129.99")))
	assert.Equal(t, draft.DueDate.Format(time.DateOnly), invoice.DueDate.Format(time.DateOnly))
	assert.Equal(t, key.String(), invoice.Metadata["idempotency_key"])
	require.Len(t, invoice.Items, 2)
	assert.Equal(t, "Design", invoice.Items[0].Description)
	assert.True(t, invoice.Items[0].LineTotal.Equal(decimal.RequireFromString("99.99")))
}

func TestCreateDuplicateOccurrence(t *testing.T) {
	repo, db := setupRepository(t)
	ctx := context.Background()

	accountID := uuid.New()
	draft := testDraft(accountID)
	key := invoicedomain.IdempotencyKey{ProfileID: draft.ProfileID, OccurrenceIndex: 1}

	_, err := repo.Create(ctx, draft, key)
	require.NoError(t, err)

	_, err = repo.Create(ctx, draft, key)
	require.ErrorIs(t, err, invoicedomain.ErrDuplicateOccurrence)

	var count int64
	require.NoError(t, db.Model(&invoicedomain.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var seq invoicedomain.InvoiceSequence
	require.NoError(t, db.First(&seq, "account_id = ?", accountID).Error)
	assert.Equal(t, int64(1), seq.LastNumber, "a rejected duplicate must not consume a number")
}

func TestInvoiceNumbersArePerAccount(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	accountA, accountB := uuid.New(), uuid.New()
	numbers := func(accountID uuid.UUID) int64 {
		draft := testDraft(accountID)
		id, err := repo.Create(ctx, draft, invoicedomain.IdempotencyKey{ProfileID: draft.ProfileID, OccurrenceIndex: 1})
		require.NoError(t, err)
		invoice, err := repo.Get(ctx, id)
		require.NoError(t, err)
		return invoice.InvoiceNumber
	}

	assert.Equal(t, int64(1), numbers(accountA))
	assert.Equal(t, int64(2), numbers(accountA))
	assert.Equal(t, int64(1), numbers(accountB))
	assert.Equal(t, int64(3), numbers(accountA))
}

func TestCreateRejectsMismatchedKey(t *testing.T) {
	repo, _ := setupRepository(t)

	draft := testDraft(uuid.New())
	_, err := repo.Create(context.Background(), draft, invoicedomain.IdempotencyKey{ProfileID: uuid.New(), OccurrenceIndex: 1})
	require.Error(t, err)
}

func TestMarkSentOnlyFromDraft(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	draft := testDraft(uuid.New())
	id, err := repo.Create(ctx, draft, invoicedomain.IdempotencyKey{ProfileID: draft.ProfileID, OccurrenceIndex: 1})
	require.NoError(t, err)

	sentAt := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	ok, err := repo.MarkSent(ctx, id, sentAt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkSent(ctx, id, sentAt)
	require.NoError(t, err)
	assert.False(t, ok)

	invoice, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusSent, invoice.Status)
	require.NotNil(t, invoice.SentAt)
}

func TestGetMissingInvoice(t *testing.T) {
	repo, _ := setupRepository(t)
	_, err := repo.Get(context.Background(), snowflake.ID(42))
	require.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestCreateMapsUniqueViolationToDuplicateOccurrence(t *testing.T) {
	repo, db := setupRepository(t)
	ctx := context.Background()
	accountID := uuid.New()

	// A row already holds number 1 for the account, so the sequence
	// hands out a number the unique index rejects.
	require.NoError(t, db.Create(&invoicedomain.Invoice{
		ID:              repo.genID.Generate(),
		AccountID:       accountID,
		ClientID:        uuid.New(),
		ProfileID:       uuid.New(),
		OccurrenceIndex: 1,
		InvoiceNumber:   1,
		Reference:       "imported-1",
		Status:          invoicedomain.InvoiceStatusDraft,
		Currency:        "EUR",
		IssueDate:       fixedNow,
		DueDate:         fixedNow,
		Metadata:        datatypes.JSONMap{},
		CreatedAt:       fixedNow,
		UpdatedAt:       fixedNow,
	}).Error)

	draft := testDraft(accountID)
	_, err := repo.Create(ctx, draft, invoicedomain.IdempotencyKey{ProfileID: draft.ProfileID, OccurrenceIndex: 1})
	assert.ErrorIs(t, err, invoicedomain.ErrDuplicateOccurrence)

	var n int64
	require.NoError(t, db.Model(&invoicedomain.Invoice{}).Where("profile_id = ?", draft.ProfileID).Count(&n).Error)
	assert.Zero(t, n)
}

func TestCreateStampsTimestampsFromClock(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	draft := testDraft(uuid.New())
	id, err := repo.Create(ctx, draft, invoicedomain.IdempotencyKey{ProfileID: draft.ProfileID, OccurrenceIndex: 1})
	require.NoError(t, err)

	inv, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, fixedNow.Equal(inv.CreatedAt), inv.CreatedAt)
	assert.True(t, fixedNow.Equal(inv.UpdatedAt), inv.UpdatedAt)
}
