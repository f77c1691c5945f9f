// Package generation runs one generation attempt for one recurring profile.
//
// A run walks load, eligibility, idempotency check, assemble and create,
// advance and commit, then notify, strictly in that order. Exactly-once
// effect under repeated or concurrent runs comes from two checks: the
// invoice idempotency key (profile id, occurrence index) and the profile
// version compared at commit.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/recurring/internal/clock"
	invoicedomain "github.com/smallbiznis/recurring/internal/invoice/domain"
	obscontext "github.com/smallbiznis/recurring/internal/observability/context"
	obsmetrics "github.com/smallbiznis/recurring/internal/observability/metrics"
	"github.com/smallbiznis/recurring/internal/recurring/assembler"
	"github.com/smallbiznis/recurring/internal/recurring/cadence"
	"github.com/smallbiznis/recurring/internal/recurring/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_generation_config")

const (
	completedReasonEndDate = "end_date"
	completedReasonCap     = "max_occurrences"
)

type Params struct {
	fx.In

	Profiles domain.ProfileRepository
	Invoices invoicedomain.Repository
	Notifier domain.Notifier
	Clock    clock.Clock
	Log      *zap.Logger
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Task struct {
	profiles domain.ProfileRepository
	invoices invoicedomain.Repository
	notifier domain.Notifier
	clock    clock.Clock
	log      *zap.Logger
	metrics  *obsmetrics.Metrics
	tracer   trace.Tracer
}

func New(p Params) (*Task, error) {
	if p.Profiles == nil || p.Invoices == nil || p.Notifier == nil || p.Clock == nil || p.Log == nil {
		return nil, ErrInvalidConfig
	}
	return &Task{
		profiles: p.Profiles,
		invoices: p.Invoices,
		notifier: p.Notifier,
		clock:    p.Clock,
		log:      p.Log.Named("recurring.generation"),
		metrics:  p.Metrics,
		tracer:   otel.Tracer("github.com/smallbiznis/recurring/internal/recurring/generation"),
	}, nil
}

// Run performs one generation attempt for profileID as of the civil date
// asOf. It never returns without an outcome; errors are carried in it.
func (t *Task) Run(ctx context.Context, profileID uuid.UUID, asOf time.Time) domain.Outcome {
	ctx = obscontext.WithProfileID(ctx, profileID.String())
	ctx, span := t.tracer.Start(ctx, "recurring.generation.run",
		trace.WithAttributes(
			attribute.String("profile.id", profileID.String()),
			attribute.String("as_of", asOf.Format(time.DateOnly)),
		),
	)
	defer span.End()

	var out domain.Outcome
	profile, token, err := t.profiles.Load(ctx, profileID)
	if err != nil {
		out = failed(domain.Outcome{ProfileID: profileID}, err)
	} else {
		ctx = obscontext.WithAccountID(ctx, profile.AccountID.String())
		span.SetAttributes(attribute.String("account.id", profile.AccountID.String()))
		out = t.run(ctx, profile, token, civil(asOf))
	}

	span.SetAttributes(attribute.String("outcome", string(out.Kind)))
	if out.InvoiceID != 0 {
		span.SetAttributes(attribute.String("invoice.id", out.InvoiceID.String()))
	}
	if out.Failed() && !out.Conflict() {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
	}
	t.logOutcome(ctx, out)
	return out
}

func (t *Task) run(ctx context.Context, profile *domain.Profile, token domain.LockToken, asOf time.Time) domain.Outcome {
	out := domain.Outcome{ProfileID: profile.ID}

	if profile.Status != domain.StatusActive {
		out.Kind = domain.OutcomeSkippedTerminalStatus
		return out
	}
	if profile.NextDueDate.After(asOf) {
		out.Kind = domain.OutcomeSkippedNotDue
		return out
	}
	if profile.PastEnd(profile.NextDueDate) {
		return t.complete(ctx, out, profile, token, completedReasonEndDate)
	}
	if profile.CapReached() {
		return t.complete(ctx, out, profile, token, completedReasonCap)
	}
	if !profile.Frequency.Valid() {
		return failed(out, &domain.AssemblyError{
			ProfileID: profile.ID,
			Reason:    fmt.Sprintf("unsupported frequency %q", profile.Frequency),
		})
	}

	key := invoicedomain.IdempotencyKey{
		ProfileID:       profile.ID,
		OccurrenceIndex: profile.OccurrencesGenerated + 1,
	}
	out.OccurrenceIndex = key.OccurrenceIndex

	existing, found, err := t.invoices.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return failed(out, domain.Unavailable("find_invoice", err))
	}

	var draft invoicedomain.Draft
	if found {
		out.Kind = domain.OutcomeSkippedAlreadyGenerated
		out.InvoiceID = existing
	} else {
		draft, err = assembler.Assemble(profile, profile.NextDueDate)
		if err != nil {
			return failed(out, err)
		}
		id, err := t.invoices.Create(ctx, draft, key)
		switch {
		case errors.Is(err, invoicedomain.ErrDuplicateOccurrence):
			// Another worker created it between our check and insert.
			existing, found, ferr := t.invoices.FindByIdempotencyKey(ctx, key)
			if ferr != nil {
				return failed(out, domain.Unavailable("find_invoice", ferr))
			}
			if !found {
				return failed(out, domain.Unavailable("create_invoice", err))
			}
			out.Kind = domain.OutcomeSkippedAlreadyGenerated
			out.InvoiceID = existing
		case err != nil:
			return failed(out, domain.Unavailable("create_invoice", err))
		default:
			out.Kind = domain.OutcomeGenerated
			out.InvoiceID = id
		}
	}

	completedReason := advance(profile, t.clock.Now())
	if err := t.profiles.Save(ctx, profile, token); err != nil {
		return failed(out, err)
	}

	if out.Kind == domain.OutcomeGenerated {
		t.metrics.RecordInvoiceGenerated(ctx, draft.Currency)
	}
	if completedReason != "" {
		t.metrics.RecordProfileCompleted(ctx, completedReason)
	}

	t.notify(ctx, &out, profile)
	return out
}

// advance moves the profile past the occurrence just generated and reports
// why it completed, if it did.
func advance(profile *domain.Profile, now time.Time) string {
	next := cadence.NextDueDate(profile.Frequency, profile.NextDueDate, profile.DayOfMonth)
	profile.OccurrencesGenerated++
	profile.LastGeneratedAt = &now
	profile.NextDueDate = next

	switch {
	case profile.CapReached():
		profile.Status = domain.StatusCompleted
		return completedReasonCap
	case profile.PastEnd(next):
		profile.Status = domain.StatusCompleted
		return completedReasonEndDate
	}
	return ""
}

func (t *Task) complete(ctx context.Context, out domain.Outcome, profile *domain.Profile, token domain.LockToken, reason string) domain.Outcome {
	profile.Status = domain.StatusCompleted
	if err := t.profiles.Save(ctx, profile, token); err != nil {
		return failed(out, err)
	}
	t.metrics.RecordProfileCompleted(ctx, reason)
	out.Kind = domain.OutcomeSkippedTerminalStatus
	return out
}

// notify runs after the commit. Its failures degrade the outcome but never
// undo the generation.
func (t *Task) notify(ctx context.Context, out *domain.Outcome, profile *domain.Profile) {
	var errs []error
	if profile.AutoSend {
		if err := t.notifier.RequestSend(ctx, out.InvoiceID); err != nil {
			t.metrics.RecordNotifyFailure(ctx, "send")
			errs = append(errs, fmt.Errorf("request send: %w", err))
		}
	}
	if err := t.notifier.NotifyGenerated(ctx, profile.ID, out.InvoiceID); err != nil {
		t.metrics.RecordNotifyFailure(ctx, "generated")
		errs = append(errs, fmt.Errorf("notify generated: %w", err))
	}
	if len(errs) > 0 {
		out.Degraded = true
		out.NotifyErr = errors.Join(errs...)
	}
}

func failed(out domain.Outcome, err error) domain.Outcome {
	out.Kind = domain.OutcomeFailed
	out.Err = err
	return out
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
