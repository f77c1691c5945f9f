package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/recurring/internal/clock"
	invoicedomain "github.com/smallbiznis/recurring/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/recurring/internal/invoice/repository"
	"github.com/smallbiznis/recurring/internal/recurring/domain"
	profilerepo "github.com/smallbiznis/recurring/internal/recurring/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) RequestSend(ctx context.Context, invoiceID snowflake.ID) error {
	return m.Called(invoiceID).Error(0)
}

func (m *mockNotifier) NotifyGenerated(ctx context.Context, profileID uuid.UUID, invoiceID snowflake.ID) error {
	return m.Called(profileID, invoiceID).Error(0)
}

// bumpingRepository simulates a concurrent commit landing between Load and Save.
type bumpingRepository struct {
	domain.ProfileRepository
	db *gorm.DB
}

func (r *bumpingRepository) Save(ctx context.Context, profile *domain.Profile, expected domain.LockToken) error {
	if err := r.db.Exec("UPDATE recurring_profiles SET version = version + 1 WHERE id = ?", profile.ID).Error; err != nil {
		return err
	}
	return r.ProfileRepository.Save(ctx, profile, expected)
}

// interleavingRepository runs a competing generation once, after the first
// Load returns and before that caller commits.
type interleavingRepository struct {
	domain.ProfileRepository
	once  sync.Once
	other func()
}

func (r *interleavingRepository) Load(ctx context.Context, id uuid.UUID) (*domain.Profile, domain.LockToken, error) {
	profile, token, err := r.ProfileRepository.Load(ctx, id)
	if err == nil {
		r.once.Do(r.other)
	}
	return profile, token, err
}

type harness struct {
	db       *gorm.DB
	profiles domain.ProfileRepository
	invoices invoicedomain.Repository
	notifier *mockNotifier
	clock    *clock.FakeClock
}

func setup(t *testing.T) *harness {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&domain.Profile{},
		&domain.LineItemTemplate{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&invoicedomain.InvoiceSequence{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 1, 31, 6, 0, 0, 0, time.UTC))
	return &harness{
		db:       db,
		profiles: profilerepo.New(profilerepo.Params{DB: db, Log: zap.NewNop(), Clock: fake}),
		invoices: invoicerepo.New(invoicerepo.Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: fake}),
		notifier: &mockNotifier{},
		clock:    fake,
	}
}

func (h *harness) task(t *testing.T) *Task {
	t.Helper()
	return h.taskWith(t, h.profiles)
}

func (h *harness) taskWith(t *testing.T, profiles domain.ProfileRepository) *Task {
	t.Helper()
	return h.taskWithLog(t, profiles, zap.NewNop())
}

func (h *harness) taskWithLog(t *testing.T, profiles domain.ProfileRepository, log *zap.Logger) *Task {
	t.Helper()
	task, err := New(Params{
		Profiles: profiles,
		Invoices: h.invoices,
		Notifier: h.notifier,
		Clock:    h.clock,
		Log:      log,
	})
	require.NoError(t, err)
	return task
}

func (h *harness) allowNotifications() {
	h.notifier.On("RequestSend", mock.Anything).Return(nil).Maybe()
	h.notifier.On("NotifyGenerated", mock.Anything, mock.Anything).Return(nil).Maybe()
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seed(t *testing.T, db *gorm.DB, mutate func(*domain.Profile)) *domain.Profile {
	t.Helper()
	dom := 31
	p := &domain.Profile{
		AccountID:        uuid.New(),
		ClientID:         uuid.New(),
		Name:             "Monthly Retainer",
		Frequency:        domain.FrequencyMonthly,
		StartDate:        date(2026, 1, 31),
		NextDueDate:      date(2026, 1, 31),
		DayOfMonth:       &dom,
		PaymentTermsDays: 14,
		Status:           domain.StatusActive,
		Currency:         "EUR",
		Items: []domain.LineItemTemplate{
			{Position: 1, Description: "Design", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.RequireFromString("33.33"), VatRate: decimal.NewFromInt(20)},
		},
	}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) domain.Profile {
	t.Helper()
	var p domain.Profile
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	return p
}

func countInvoices(t *testing.T, db *gorm.DB, profileID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&invoicedomain.Invoice{}).Where("profile_id = ?", profileID).Count(&n).Error)
	return n
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunGeneratesAndAdvances(t *testing.T) {
	h := setup(t)
	h.allowNotifications()
	p := seed(t, h.db, nil)

	out := h.task(t).Run(context.Background(), p.ID, date(2026, 1, 31))

	require.Equal(t, domain.OutcomeGenerated, out.Kind, out.Err)
	assert.NotZero(t, out.InvoiceID)
	assert.Equal(t, 1, out.OccurrenceIndex)
	assert.False(t, out.Degraded)

	stored := reload(t, h.db, p.ID)
	assert.Equal(t, 1, stored.OccurrencesGenerated)
	assert.True(t, date(2026, 2, 28).Equal(stored.NextDueDate), stored.NextDueDate)
	assert.Equal(t, domain.StatusActive, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
	require.NotNil(t, stored.LastGeneratedAt)

	inv, err := h.invoices.Get(context.Background(), out.InvoiceID)
	require.NoError(t, err)
	assert.True(t, inv.TotalAmount.Equal(decimal.RequireFromString("119.99")), inv.TotalAmount.String())

	h.notifier.AssertCalled(t, "NotifyGenerated", p.ID, out.InvoiceID)
	h.notifier.AssertNotCalled(t, "RequestSend", mock.Anything)
}

func TestRunIsIdempotentForSameDate(t *testing.T) {
	h := setup(t)
	h.allowNotifications()
	p := seed(t, h.db, nil)
	task := h.task(t)

	first := task.Run(context.Background(), p.ID, date(2026, 1, 31))
	require.Equal(t, domain.OutcomeGenerated, first.Kind, first.Err)

	second := task.Run(context.Background(), p.ID, date(2026, 1, 31))
	assert.Equal(t, domain.OutcomeSkippedNotDue, second.Kind)

	assert.Equal(t, int64(1), countInvoices(t, h.db, p.ID))
	assert.Equal(t, 1, reload(t, h.db, p.ID).OccurrencesGenerated)
}

func TestRunIndefiniteProfileAcrossPeriods(t *testing.T) {
	h := setup(t)
	h.allowNotifications()
	p := seed(t, h.db, nil)
	task := h.task(t)

	for _, asOf := range []time.Time{date(2026, 1, 31), date(2026, 2, 28), date(2026, 3, 31)} {
		out := task.Run(context.Background(), p.ID, asOf)
		require.Equal(t, domain.OutcomeGenerated, out.Kind, out.Err)
	}

	stored := reload(t, h.db, p.ID)
	assert.Equal(t, 3, stored.OccurrencesGenerated)
	assert.True(t, date(2026, 4, 30).Equal(stored.NextDueDate), stored.NextDueDate)
	assert.Equal(t, int64(3), countInvoices(t, h.db, p.ID))
}

func TestRunCompletesAtCap(t *testing.T) {
	h := setup(t)
	h.allowNotifications()
	p := seed(t, h.db, func(p *domain.Profile) {
		limit := 1
		p.MaxOccurrences = &limit
	})

	out := h.task(t).Run(context.Background(), p.ID, date(2026, 1, 31))
	require.Equal(t, domain.OutcomeGenerated, out.Kind, out.Err)

	stored := reload(t, h.db, p.ID)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.OccurrencesGenerated)

	again := h.task(t).Run(context.Background(), p.ID, date(2026, 3, 1))
	assert.Equal(t, domain.OutcomeSkippedTerminalStatus, again.Kind)
	assert.Equal(t, int64(1), countInvoices(t, h.db, p.ID))
}

func TestRunCompletesWhenNextDuePassesEndDate(t *testing.T) {
	h := setup(t)
	h.allowNotifications()
	p := seed(t, h.db, func(p *domain.Profile) {
		end := date(2026, 2, 15)
		p.EndDate = &end
	})

	out := h.task(t).Run(context.Background(), p.ID, date(2026, 1, 31))
	require.Equal(t, domain.OutcomeGenerated, out.Kind, out.Err)
	assert.Equal(t, domain.StatusCompleted, reload(t, h.db, p.ID).Status)
}

func TestRunCompletesWithoutInvoiceWhenAlreadyPastEnd(t *testing.T) {
	h := setup(t)
	p := seed(t, h.db, func(p *domain.Profile) {
		end := date(2026, 1, 15)
		p.EndDate = &end
	})

	out := h.task(t).Run(context.Background(), p.ID, date(2026, 1, 31))
	assert.Equal(t, domain.OutcomeSkippedTerminalStatus, out.Kind)
	assert.Equal(t, domain.StatusCompleted, reload(t, h.db, p.ID).Status)
	assert.Zero(t, countInvoices(t, h.db, p.ID))
	h.notifier.AssertNotCalled(t, "NotifyGenerated", mock.Anything, mock.Anything)
}

func TestRunSkipsNotDue(t *testing.T) {
	h := setup(t)
	p := seed(t, h.db, nil)

	out := h.task(t).Run(context.Background(), p.ID, date(2026, 1, 30))
	assert.Equal(t, domain.OutcomeSkippedNotDue, out.Kind)
	assert.Equal(t, int64(1), reload(t, h.db, p.ID).Version)
}

func TestRunSkipsInactiveStatuses(t *testing.T) {
	for _, status := range []domain.Status{domain.StatusPaused, domain.StatusCompleted, domain.StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			h := setup(t)
			p := seed(t, h.db, func(p *domain.Profile) { p.Status = status })

			out := h.task(t).Run(context.Background(), p.ID, date(2026, 1, 31))
			assert.Equal(t, domain.OutcomeSkippedTerminalStatus, out.Kind)
			assert.Equal(t, status, reload(t, h.db, p.ID).Status)
		})
	}
}

func TestRunMissingProfileFails(t *testing.T) {
	h := setup(t)

	out := h.task(t).Run(context.Background(), uuid.New(), date(2026, 1, 31))
	assert.True(t, out.Failed())
	assert.ErrorIs(t, out.Err, domain.ErrProfileNotFound)
}

func TestRunAssemblyErrorLeavesProfileUntouched(t *testing.T) {
	h := setup(t)
	p := seed(t, h.db, func(p *domain.Profile) { p.Items = nil })

	out := h.task(t).Run(context.Background(), p.ID, date(2026, 1, 31))
	require.True(t, out.Failed())
	assert.True(t, domain.IsAssemblyError(out.Err))

	stored := reload(t, h.db, p.ID)
	assert.Equal(t, 0, stored.OccurrencesGenerated)
	assert.Equal(t, int64(1), stored.Version)
	assert.Zero(t, countInvoices(t, h.db, p.ID))
}

func TestRunInvalidFrequencyIsAssemblyError(t *testing.T) {
	h := setup(t)
	p := seed(t, h.db, func(p *domain.Profile) { p.Frequency = "fortnightly" })

	out := h.task(t).Run(context.Background(), p.ID, date(2026, 1, 31))
	require.True(t, out.Failed())
	assert.True(t, domain.IsAssemblyError(out.Err))
}

func TestRunConflictDoesNotRetry(t *testing.T) {
	h := setup(t)
	p := seed(t, h.db, nil)

	task := h.taskWith(t, &bumpingRepository{ProfileRepository: h.profiles, db: h.db})
	out := task.Run(context.Background(), p.ID, date(2026, 1, 31))

	assert.True(t, out.Conflict())
	stored := reload(t, h.db, p.ID)
	assert.Equal(t, 0, stored.OccurrencesGenerated)
	assert.True(t, date(2026, 1, 31).Equal(stored.NextDueDate))
	h.notifier.AssertNotCalled(t, "NotifyGenerated", mock.Anything, mock.Anything)

	// The invoice persisted before the lost commit is picked up on the next run.
	h.allowNotifications()
	retry := h.task(t).Run(context.Background(), p.ID, date(2026, 1, 31))
	require.Equal(t, domain.OutcomeSkippedAlreadyGenerated, retry.Kind, retry.Err)
	assert.Equal(t, int64(1), countInvoices(t, h.db, p.ID))
	assert.Equal(t, 1, reload(t, h.db, p.ID).OccurrencesGenerated)
}

func TestRunConcurrentTriggersGenerateOnce(t *testing.T) {
	h := setup(t)
	h.allowNotifications()
	p := seed(t, h.db, nil)
	task := h.task(t)

	var wg sync.WaitGroup
	outcomes := make([]domain.Outcome, 2)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = task.Run(context.Background(), p.ID, date(2026, 1, 31))
		}(i)
	}
	wg.Wait()

	committed := 0
	for _, out := range outcomes {
		switch {
		case out.Kind == domain.OutcomeGenerated, out.Kind == domain.OutcomeSkippedAlreadyGenerated:
			committed++
		default:
			assert.True(t, out.Conflict() || out.Kind == domain.OutcomeSkippedNotDue, out)
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, int64(1), countInvoices(t, h.db, p.ID))
	assert.Equal(t, 1, reload(t, h.db, p.ID).OccurrencesGenerated)
}

func TestRunLoserOfInterleavedCommitConflicts(t *testing.T) {
	h := setup(t)
	h.allowNotifications()
	p := seed(t, h.db, nil)

	var winner domain.Outcome
	repo := &interleavingRepository{ProfileRepository: h.profiles}
	repo.other = func() {
		winner = h.task(t).Run(context.Background(), p.ID, date(2026, 1, 31))
	}

	loser := h.taskWith(t, repo).Run(context.Background(), p.ID, date(2026, 1, 31))

	require.Equal(t, domain.OutcomeGenerated, winner.Kind, winner.Err)
	assert.True(t, loser.Conflict(), loser)
	assert.Equal(t, winner.InvoiceID, loser.InvoiceID)
	assert.Equal(t, int64(1), countInvoices(t, h.db, p.ID))

	stored := reload(t, h.db, p.ID)
	assert.Equal(t, 1, stored.OccurrencesGenerated)
	assert.True(t, date(2026, 2, 28).Equal(stored.NextDueDate), stored.NextDueDate)
	h.notifier.AssertNumberOfCalls(t, "NotifyGenerated", 1)
}

func TestRunLogsAccountID(t *testing.T) {
	h := setup(t)
	h.allowNotifications()
	p := seed(t, h.db, nil)

	core, logs := observer.New(zap.DebugLevel)
	out := h.taskWithLog(t, h.profiles, zap.New(core)).Run(context.Background(), p.ID, date(2026, 1, 31))
	require.Equal(t, domain.OutcomeGenerated, out.Kind, out.Err)

	entries := logs.FilterMessage("recurring.task.generated").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, p.AccountID.String(), fields["account_id"])
	assert.Equal(t, p.ID.String(), fields["profile_id"])
}

func TestRunAutoSendRequestsDelivery(t *testing.T) {
	h := setup(t)
	h.allowNotifications()
	p := seed(t, h.db, func(p *domain.Profile) { p.AutoSend = true })

	out := h.task(t).Run(context.Background(), p.ID, date(2026, 1, 31))
	require.Equal(t, domain.OutcomeGenerated, out.Kind, out.Err)
	h.notifier.AssertCalled(t, "RequestSend", out.InvoiceID)
}

func TestRunNotifierFailureDegradesOutcome(t *testing.T) {
	h := setup(t)
	h.notifier.On("RequestSend", mock.Anything).Return(errors.New("queue down"))
	h.notifier.On("NotifyGenerated", mock.Anything, mock.Anything).Return(errors.New("queue down"))
	p := seed(t, h.db, func(p *domain.Profile) { p.AutoSend = true })

	out := h.task(t).Run(context.Background(), p.ID, date(2026, 1, 31))

	assert.Equal(t, domain.OutcomeGenerated, out.Kind)
	assert.True(t, out.Degraded)
	require.Error(t, out.NotifyErr)
	assert.Contains(t, out.NotifyErr.Error(), "request send")
	assert.Contains(t, out.NotifyErr.Error(), "notify generated")
	assert.Equal(t, 1, reload(t, h.db, p.ID).OccurrencesGenerated)
}

func TestAdvance(t *testing.T) {
	now := time.Date(2026, 1, 31, 6, 0, 0, 0, time.UTC)
	limit := 2
	p := &domain.Profile{
		Frequency:            domain.FrequencyWeekly,
		NextDueDate:          date(2026, 1, 31),
		Status:               domain.StatusActive,
		MaxOccurrences:       &limit,
		OccurrencesGenerated: 1,
	}

	reason := advance(p, now)

	assert.Equal(t, completedReasonCap, reason)
	assert.Equal(t, domain.StatusCompleted, p.Status)
	assert.Equal(t, 2, p.OccurrencesGenerated)
	assert.True(t, date(2026, 2, 7).Equal(p.NextDueDate))
	assert.Equal(t, now, *p.LastGeneratedAt)
}
