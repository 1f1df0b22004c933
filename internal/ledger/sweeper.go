package ledger

import (
	"context" // Cancellation and deadlines
	"time"    // Time durations

	"github.com/sirupsen/logrus" // Structured logging

	"wallet_saga/internal/domain" // Domain models
)

const expiredRemarks = "OTP verification window expired"

// Sweeper fails PENDING transactions whose challenge window lapsed.
// Sweep is one tick and can be called directly; Run calls it on an interval.
type Sweeper struct {
	repo   Repository
	window time.Duration
	now    func() time.Time
	log    *logrus.Entry
}

func NewSweeper(repo Repository, window time.Duration, now func() time.Time, log *logrus.Entry) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		repo:   repo,
		window: window,
		now:    now,
		log:    log.WithField("component", "ledger.sweeper"),
	}
}

// Sweep runs one pass and returns how many transactions it failed. Errors are logged.
func (s *Sweeper) Sweep(ctx context.Context) int {
	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to list pending transactions")
		return 0
	}

	cutoff := s.now().Add(-s.window)
	failed := 0
	for i := range pending {
		tx := &pending[i]
		l := s.log.WithField("transaction_id", tx.ID)
		if tx.TransactionDate == nil {
			l.Warn("Pending transaction without date skipped")
			continue
		}
		if !tx.TransactionDate.Before(cutoff) {
			continue
		}
		tx.Status = domain.StatusFailed
		tx.Remarks = expiredRemarks
		if err := s.repo.Save(ctx, tx); err != nil {
			l.WithError(err).Error("Failed to expire transaction")
			continue
		}
		l.Info("Expired pending transaction")
		failed++
	}
	return failed
}

// Run sweeps every interval until ctx is done
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	s.log.WithField("interval", interval).Info("Sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Sweeper stopped")
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("Sweep panicked")
		}
	}()
	if n := s.Sweep(ctx); n > 0 {
		s.log.WithField("failed", n).Info("Sweep finished")
	}
}
