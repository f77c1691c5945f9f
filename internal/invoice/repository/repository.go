package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/recurring/internal/clock"
	invoicedomain "github.com/smallbiznis/recurring/internal/invoice/domain"
	"github.com/smallbiznis/recurring/pkg/db"
	"github.com/smallbiznis/recurring/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock `optional:"true"`
}

type Repository struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	invoices repository.Repository[invoicedomain.Invoice]
}

func New(p Params) invoicedomain.Repository {
	if p.Clock == nil {
		p.Clock = clock.SystemClock{}
	}
	return &Repository{
		db:       p.DB,
		log:      p.Log.Named("invoice.repository"),
		genID:    p.GenID,
		clock:    p.Clock,
		invoices: repository.ProvideStore[invoicedomain.Invoice](p.DB),
	}
}

func (r *Repository) FindByIdempotencyKey(ctx context.Context, key invoicedomain.IdempotencyKey) (snowflake.ID, bool, error) {
	id, err := r.findByKey(ctx, r.db, key)
	if err != nil {
		return 0, false, err
	}
	return id, id != 0, nil
}

// Create stores the draft as a DRAFT invoice with the next account invoice
// number. It returns ErrDuplicateOccurrence when the key is already taken
// or any unique index rejects the row, in which case nothing is written.
func (r *Repository) Create(ctx context.Context, draft invoicedomain.Draft, key invoicedomain.IdempotencyKey) (snowflake.ID, error) {
	if key.ProfileID != draft.ProfileID {
		return 0, errors.New("idempotency key does not match draft profile")
	}

	var created snowflake.ID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := r.findByKey(ctx, tx, key)
		if err != nil {
			return err
		}
		if existing != 0 {
			return invoicedomain.ErrDuplicateOccurrence
		}

		number, err := r.nextInvoiceNumber(ctx, tx, draft.AccountID)
		if err != nil {
			return err
		}

		now := r.clock.Now().UTC()
		invoice := invoicedomain.Invoice{
			ID:              r.genID.Generate(),
			AccountID:       draft.AccountID,
			ClientID:        draft.ClientID,
			ProfileID:       draft.ProfileID,
			OccurrenceIndex: key.OccurrenceIndex,
			InvoiceNumber:   number,
			Reference:       reference(draft.ProfileName, key.OccurrenceIndex),
			Status:          invoicedomain.InvoiceStatusDraft,
			Currency:        draft.Currency,
			IssueDate:       draft.IssueDate,
			DueDate:         draft.DueDate,
			SubtotalAmount:  draft.Subtotal,
			TaxAmount:       draft.TaxAmount,
			DiscountAmount:  draft.DiscountAmount,
			TotalAmount:     draft.Total,
			TaxRate:         draft.TaxRate,
			DiscountPercent: draft.DiscountPercent,
			Metadata:        metadata(draft.Metadata, key),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		inserted, err := r.insertInvoice(ctx, tx, invoice)
		if err != nil {
			return err
		}
		if !inserted {
			return invoicedomain.ErrDuplicateOccurrence
		}

		if len(draft.Items) > 0 {
			items := make([]invoicedomain.InvoiceItem, 0, len(draft.Items))
			for _, item := range draft.Items {
				items = append(items, invoicedomain.InvoiceItem{
					ID:          r.genID.Generate(),
					InvoiceID:   invoice.ID,
					Position:    item.Position,
					Description: item.Description,
					Quantity:    item.Quantity,
					UnitPrice:   item.UnitPrice,
					VatRate:     item.VatRate,
					LineTotal:   item.LineTotal,
				})
			}
			if err := tx.WithContext(ctx).Create(&items).Error; err != nil {
				return err
			}
		}

		created = invoice.ID
		return nil
	})
	if db.IsDuplicateKeyErr(err) {
		r.log.Debug("invoice.create.duplicate",
			zap.String("idempotency_key", key.String()),
			zap.Error(err),
		)
		return 0, invoicedomain.ErrDuplicateOccurrence
	}
	if err != nil {
		return 0, err
	}

	r.log.Debug("invoice.created",
		zap.String("invoice_id", created.String()),
		zap.String("idempotency_key", key.String()),
	)
	return created, nil
}

func (r *Repository) Get(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := r.invoices.FindOne(ctx, &invoicedomain.Invoice{ID: id},
		repository.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }),
	)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (r *Repository) MarkSent(ctx context.Context, id snowflake.ID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("id = ? AND status = ?", id, invoicedomain.InvoiceStatusDraft).
		Updates(map[string]any{
			"status":     invoicedomain.InvoiceStatusSent,
			"sent_at":    at.UTC(),
			"updated_at": r.clock.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) findByKey(ctx context.Context, tx *gorm.DB, key invoicedomain.IdempotencyKey) (snowflake.ID, error) {
	var id snowflake.ID
	err := tx.WithContext(ctx).Raw(
		`SELECT id
		 FROM invoices
		 WHERE profile_id = ? AND occurrence_index = ?
		 LIMIT 1`,
		key.ProfileID,
		key.OccurrenceIndex,
	).Scan(&id).Error
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Repository) nextInvoiceNumber(ctx context.Context, tx *gorm.DB, accountID uuid.UUID) (int64, error) {
	var next int64
	err := tx.WithContext(ctx).Raw(
		`INSERT INTO invoice_sequences (account_id, last_number)
		 VALUES (?, 1)
		 ON CONFLICT (account_id) DO UPDATE SET last_number = invoice_sequences.last_number + 1
		 RETURNING last_number`,
		accountID,
	).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *Repository) insertInvoice(ctx context.Context, tx *gorm.DB, invoice invoicedomain.Invoice) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, account_id, client_id, profile_id, occurrence_index, invoice_number,
			reference, status, currency, issue_date, due_date,
			subtotal_amount, tax_amount, discount_amount, total_amount,
			tax_rate, discount_percent, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (profile_id, occurrence_index) DO NOTHING`,
		invoice.ID,
		invoice.AccountID,
		invoice.ClientID,
		invoice.ProfileID,
		invoice.OccurrenceIndex,
		invoice.InvoiceNumber,
		invoice.Reference,
		invoice.Status,
		invoice.Currency,
		invoice.IssueDate,
		invoice.DueDate,
		invoice.SubtotalAmount,
		invoice.TaxAmount,
		invoice.DiscountAmount,
		invoice.TotalAmount,
		invoice.TaxRate,
		invoice.DiscountPercent,
		invoice.Metadata,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func reference(profileName string, occurrence int) string {
	base := slug.Make(profileName)
	if base == "" {
		base = "invoice"
	}
	return base + "-" + strconv.Itoa(occurrence)
}

func metadata(src map[string]any, key invoicedomain.IdempotencyKey) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range src {
		out[k] = v
	}
	out["idempotency_key"] = key.String()
	return out
}
