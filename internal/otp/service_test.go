package otp

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
	"golang.org/x/crypto/bcrypt"

	"wallet_saga/internal/domain"
	"wallet_saga/internal/events"
)

type stubLedger struct {
	mu     sync.Mutex
	txs    map[uuid.UUID]*domain.Transaction
	failed map[uuid.UUID]string
}

func newStubLedger() *stubLedger {
	return &stubLedger{txs: map[uuid.UUID]*domain.Transaction{}, failed: map[uuid.UUID]string{}}
}

func (l *stubLedger) Get(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.txs[id]
	if !ok {
		return nil, domain.NotFoundf("transaction %s not found", id)
	}
	return tx, nil
}

func (l *stubLedger) MarkFailed(_ context.Context, id uuid.UUID, remarks string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.txs[id]; !ok {
		return domain.NotFoundf("transaction %s not found", id)
	}
	l.failed[id] = remarks
	return nil
}

type sentMessage struct{ email, subject, body string }

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (r *recordingSender) Send(_ context.Context, email, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentMessage{email, subject, body})
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, payload)
	return nil
}

type fixture struct {
	svc    *Service
	store  *MemoryStore
	ledger *stubLedger
	sender *recordingSender
	pub    *recordingPublisher
	now    time.Time
	tx     *domain.Transaction
}

const code = "123456"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger: newStubLedger(),
		sender: &recordingSender{},
		pub:    &recordingPublisher{},
		now:    time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.store = NewMemoryStore(clock)
	l, _ := test.NewNullLogger()
	f.svc = NewService(f.store, f.ledger, f.sender, f.pub, Options{
		TTL:         5 * time.Minute,
		MaxAttempts: domain.MaxOtpAttempts,
		HashCost:    bcrypt.MinCost,
		Now:         clock,
		Generate:    func() (string, error) { return code, nil },
	}, logrus.NewEntry(l))

	sender := uuid.New()
	f.tx = &domain.Transaction{
		ID:               uuid.New(),
		SenderWalletID:   sender,
		ReceiverWalletID: sender,
		Amount:           decimal.NewFromInt(100),
		Type:             domain.TransactionTypeWithdraw,
		Status:           domain.StatusPending,
	}
	f.ledger.txs[f.tx.ID] = f.tx
	return f
}

func (f *fixture) issue(t *testing.T) {
	t.Helper()
	require.NoError(t, f.svc.Issue(context.Background(), f.tx.ID, uuid.New(), "test@example.com", f.tx.Type))
}

func TestIssueStoresHashAndSendsCode(t *testing.T) {
	f := newFixture(t)
	f.issue(t)

	c, err := f.store.Get(context.Background(), f.tx.ID)
	require.NoError(t, err)
	assert.NotEqual(t, code, c.HashedCode)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(c.HashedCode), []byte(code)))
	assert.Equal(t, 0, c.Attempts)
	assert.Equal(t, domain.OtpIssued, c.State)

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "test@example.com", f.sender.sent[0].email)
	assert.Contains(t, f.sender.sent[0].body, code)
}

func TestIssueSendFailure(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("smtp down")
	err := f.svc.Issue(context.Background(), f.tx.ID, uuid.New(), "a@b.c", f.tx.Type)
	assert.Error(t, err)
}

func TestVerifyCorrectCodeOnce(t *testing.T) {
	f := newFixture(t)
	f.issue(t)
	ctx := context.Background()

	ok, err := f.svc.Verify(ctx, f.tx.ID, code)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, events.TopicOtpVerified, f.pub.topics[0])
	ev := f.pub.events[0].(domain.OtpVerified)
	assert.Equal(t, f.tx.ID, ev.TransactionID)
	assert.Equal(t, f.tx.SenderWalletID, ev.SenderWalletID)
	assert.True(t, f.tx.Amount.Equal(ev.Amount))
	assert.Equal(t, domain.TransactionTypeWithdraw, ev.TransactionType)

	for _, again := range []string{code, "000000"} {
		ok, err = f.svc.Verify(ctx, f.tx.ID, again)
		assert.False(t, ok)
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Contains(t, err.Error(), "already verified")
	}
	assert.Len(t, f.pub.events, 1)
}

func TestVerifyWrongCodesExhaustAtThree(t *testing.T) {
	f := newFixture(t)
	f.issue(t)
	ctx := context.Background()

	_, err := f.svc.Verify(ctx, f.tx.ID, "000000")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "Attempts remaining: 2")
	c, _ := f.store.Get(ctx, f.tx.ID)
	assert.Equal(t, 1, c.Attempts)
	assert.Empty(t, f.ledger.failed)

	_, err = f.svc.Verify(ctx, f.tx.ID, "000000")
	assert.Contains(t, err.Error(), "Attempts remaining: 1")
	assert.Empty(t, f.ledger.failed)

	_, err = f.svc.Verify(ctx, f.tx.ID, "000000")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, MsgExhausted, err.Error())
	assert.Contains(t, f.ledger.failed, f.tx.ID)

	_, err = f.svc.Verify(ctx, f.tx.ID, code)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.pub.events)
}

func TestVerifyExhaustedEntryFailsTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := domain.NewOtpChallenge(f.tx.ID, uuid.New(), "", f.tx.Type, "hash", f.now)
	c.Attempts = domain.MaxOtpAttempts
	require.NoError(t, f.store.Create(ctx, c, time.Minute))

	_, err := f.svc.Verify(ctx, f.tx.ID, code)
	assert.Equal(t, MsgExhausted, err.Error())
	assert.Contains(t, f.ledger.failed, f.tx.ID)
	assert.Equal(t, 0, f.store.Len())
}

func TestVerifyExhaustedToleratesMissingTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orphan := uuid.New()
	c := domain.NewOtpChallenge(orphan, uuid.New(), "", f.tx.Type, "hash", f.now)
	c.Attempts = domain.MaxOtpAttempts
	require.NoError(t, f.store.Create(ctx, c, time.Minute))

	_, err := f.svc.Verify(ctx, orphan, code)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, f.store.Len())
}

func TestVerifyUnknownAndExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Verify(ctx, uuid.New(), code)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f.issue(t)
	f.now = f.now.Add(6 * time.Minute)
	_, err = f.svc.Verify(ctx, f.tx.ID, code)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyMissingTransaction(t *testing.T) {
	f := newFixture(t)
	f.issue(t)
	delete(f.ledger.txs, f.tx.ID)

	ok, err := f.svc.Verify(context.Background(), f.tx.ID, code)
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.pub.events)
}

func TestVerifyRejectsClosedTransaction(t *testing.T) {
	f := newFixture(t)
	f.issue(t)
	ctx := context.Background()
	f.tx.Status = domain.StatusFailed

	ok, err := f.svc.Verify(ctx, f.tx.ID, code)
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, MsgNotPending, err.Error())
	assert.Empty(t, f.pub.events)
	assert.Equal(t, 0, f.store.Len())

	_, err = f.svc.Verify(ctx, f.tx.ID, code)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyPublishFailureAllowsRetry(t *testing.T) {
	f := newFixture(t)
	f.issue(t)
	ctx := context.Background()

	f.pub.err = errors.New("broker down")
	ok, err := f.svc.Verify(ctx, f.tx.ID, code)
	assert.False(t, ok)
	assert.Error(t, err)

	f.pub.err = nil
	ok, err = f.svc.Verify(ctx, f.tx.ID, code)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyConcurrentWrongCodesDoNotLoseAttempts(t *testing.T) {
	f := newFixture(t)
	f.svc.opts.MaxAttempts = 100
	f.issue(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Verify(ctx, f.tx.ID, "000000")
		}()
	}
	wg.Wait()

	c, err := f.store.Get(ctx, f.tx.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, c.Attempts)
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		c, err := GenerateCode()
		require.NoError(t, err)
		assert.Len(t, c, 6)
		for _, r := range c {
			assert.True(t, r >= '0' && r <= '9')
		}
	}
}
