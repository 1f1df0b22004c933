package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet_saga/internal/db/dbtest"
	"wallet_saga/internal/domain"
	"wallet_saga/internal/users"
)

func nullLog() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

// stubRepo wraps the gorm repository and lets a test inject store errors
type stubRepo struct {
	Repository
	createErr  func(tx *domain.Transaction) error
	saveErr    error
	listErr    error
	insertOnce bool // createErr simulates a racing insert of the same row
}

func (s *stubRepo) Create(ctx context.Context, tx *domain.Transaction) error {
	if s.createErr != nil {
		if s.insertOnce {
			_ = s.Repository.Create(ctx, tx)
		}
		return s.createErr(tx)
	}
	return s.Repository.Create(ctx, tx)
}

func (s *stubRepo) Save(ctx context.Context, tx *domain.Transaction) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Repository.Save(ctx, tx)
}

func (s *stubRepo) ListPending(ctx context.Context) ([]domain.Transaction, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Repository.ListPending(ctx)
}

type issued struct {
	txID  uuid.UUID
	email string
}

type recordingIssuer struct {
	mu    sync.Mutex
	calls []issued
	err   error
}

func (r *recordingIssuer) Issue(_ context.Context, txID, _ uuid.UUID, email string, _ domain.TransactionType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, issued{txID, email})
	return r.err
}

type fixture struct {
	repo     *stubRepo
	users    *users.Directory
	issuer   *recordingIssuer
	service  *Service
	consumer *Consumer
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := dbtest.New(t)
	f := &fixture{
		repo:   &stubRepo{Repository: NewGormRepository(gdb)},
		users:  users.NewDirectory(gdb),
		issuer: &recordingIssuer{},
		now:    time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.service = NewService(f.repo, nullLog())
	f.consumer = NewConsumer(f.repo, f.service, f.issuer, ConsumerOptions{
		Users: f.users,
		Now:   func() time.Time { return f.now },
	}, nullLog())
	return f
}

func createdEvent(email string) domain.TransactionCreated {
	w := uuid.New()
	return domain.TransactionCreated{
		TransactionID:    uuid.New(),
		UserID:           uuid.New(),
		SenderWalletID:   w,
		ReceiverWalletID: w,
		Amount:           decimal.NewFromInt(100),
		TransactionType:  domain.TransactionTypeWithdraw,
		Remarks:          "withdrawal transaction",
		UserEmail:        email,
	}
}

func TestOnTransactionCreatedPersistsPendingAndIssues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := createdEvent("test@example.com")

	require.NoError(t, f.consumer.OnTransactionCreated(ctx, ev))

	tx, err := f.service.Get(ctx, ev.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, tx.Status)
	assert.True(t, decimal.NewFromInt(100).Equal(tx.Amount))
	assert.Equal(t, "withdrawal transaction", tx.Remarks)
	require.NotNil(t, tx.TransactionDate)
	assert.True(t, f.now.Equal(*tx.TransactionDate))

	require.Len(t, f.issuer.calls, 1)
	assert.Equal(t, "test@example.com", f.issuer.calls[0].email)
}

func TestOnTransactionCreatedRedeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := createdEvent("test@example.com")

	for i := 0; i < 3; i++ {
		require.NoError(t, f.consumer.OnTransactionCreated(ctx, ev))
	}

	_, total, err := f.repo.List(ctx, Filter{Kind: KindAll, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, f.issuer.calls, 1)
}

func TestOnTransactionCreatedAbsorbsUniquenessConflict(t *testing.T) {
	f := newFixture(t)
	f.repo.createErr = func(tx *domain.Transaction) error {
		return domain.ErrConflict
	}
	require.NoError(t, f.consumer.OnTransactionCreated(context.Background(), createdEvent("")))
	assert.Empty(t, f.issuer.calls)
}

func TestOnTransactionCreatedRealDuplicateInsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := createdEvent("")
	now := f.now
	require.NoError(t, f.repo.Repository.Create(ctx, &domain.Transaction{
		ID: ev.TransactionID, Amount: ev.Amount, Type: ev.TransactionType,
		Status: domain.StatusPending, TransactionDate: &now,
	}))

	err := f.repo.Repository.Create(ctx, &domain.Transaction{ID: ev.TransactionID, Amount: ev.Amount, Type: ev.TransactionType, Status: domain.StatusPending})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestOnTransactionCreatedOptimisticConflictWithRow(t *testing.T) {
	f := newFixture(t)
	f.repo.insertOnce = true
	f.repo.createErr = func(*domain.Transaction) error {
		return domain.ErrStale
	}
	assert.NoError(t, f.consumer.OnTransactionCreated(context.Background(), createdEvent("")))
	assert.Empty(t, f.issuer.calls)
}

func TestOnTransactionCreatedUnexplainedOptimisticConflictIsFatal(t *testing.T) {
	f := newFixture(t)
	f.repo.createErr = func(*domain.Transaction) error {
		return domain.ErrStale
	}
	err := f.consumer.OnTransactionCreated(context.Background(), createdEvent(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFatal)
	assert.Contains(t, err.Error(), "Optimistic locking failure")
}

func TestOnTransactionCreatedPropagatesOtherErrors(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("Database error")
	f.repo.createErr = func(*domain.Transaction) error { return boom }
	err := f.consumer.OnTransactionCreated(context.Background(), createdEvent(""))
	assert.ErrorIs(t, err, boom)
}

func TestOnTransactionCreatedEmailResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	withUser := createdEvent("  ")
	require.NoError(t, f.users.Upsert(ctx, &domain.User{ID: withUser.UserID, Email: "owner@example.com"}))
	require.NoError(t, f.consumer.OnTransactionCreated(ctx, withUser))

	unknown := createdEvent("")
	require.NoError(t, f.consumer.OnTransactionCreated(ctx, unknown))

	require.Len(t, f.issuer.calls, 2)
	assert.Equal(t, "owner@example.com", f.issuer.calls[0].email)
	assert.Equal(t, "user@example.com", f.issuer.calls[1].email)
}

func TestOnTransactionCreatedIssueFailureFailsRow(t *testing.T) {
	f := newFixture(t)
	f.issuer.err = errors.New("Email error")
	ctx := context.Background()
	ev := createdEvent("a@b.c")

	require.NoError(t, f.consumer.OnTransactionCreated(ctx, ev))
	tx, err := f.service.Get(ctx, ev.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, tx.Status)
}

func TestOnTransactionCreatedDropsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := createdEvent("")
	ev.Amount = decimal.Zero

	require.NoError(t, f.consumer.OnTransactionCreated(ctx, ev))
	_, err := f.service.Get(ctx, ev.TransactionID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOnTransactionCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := createdEvent("")
	require.NoError(t, f.consumer.OnTransactionCreated(ctx, ev))

	done := domain.TransactionCompleted{TransactionID: ev.TransactionID, Status: domain.StatusSuccess, Remarks: "Transaction completed"}
	require.NoError(t, f.consumer.OnTransactionCompleted(ctx, done))
	require.NoError(t, f.consumer.OnTransactionCompleted(ctx, done))

	tx, err := f.service.Get(ctx, ev.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, tx.Status)
	assert.Equal(t, "Transaction completed", tx.Remarks)

	// a late FAILED never moves a terminal row backward
	require.NoError(t, f.consumer.OnTransactionCompleted(ctx, domain.TransactionCompleted{
		TransactionID: ev.TransactionID, Status: domain.StatusFailed,
	}))
	tx, _ = f.service.Get(ctx, ev.TransactionID)
	assert.Equal(t, domain.StatusSuccess, tx.Status)
}

func TestOnTransactionCompletedNeverFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.NoError(t, f.consumer.OnTransactionCompleted(ctx, domain.TransactionCompleted{
		TransactionID: uuid.New(), Status: domain.StatusSuccess,
	}))

	ev := createdEvent("")
	require.NoError(t, f.consumer.OnTransactionCreated(ctx, ev))
	f.repo.saveErr = errors.New("Database error")
	assert.NoError(t, f.consumer.OnTransactionCompleted(ctx, domain.TransactionCompleted{
		TransactionID: ev.TransactionID, Status: domain.StatusSuccess,
	}))
}
