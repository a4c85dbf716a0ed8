package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/first-seller/ozon-assist/internal/errs"
)

// Service maintains the append-only ledger and the materialized balance,
// always inside one DB transaction so the two stay in lockstep.
type Service struct {
	db   *gorm.DB
	repo *Repo
	log  *zap.Logger
}

func NewService(db *gorm.DB, repo *Repo, log *zap.Logger) *Service {
	return &Service{db: db, repo: repo, log: log.Named("billing")}
}

const swapRetries = 5

// Credit adds amount to the user's balance and appends a topup entry.
func (s *Service) Credit(ctx context.Context, userID uint64, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := s.withRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			nb, err := s.ApplyCredit(ctx, tx, userID, amount, description)
			if err != nil {
				return err
			}
			newBalance = nb
			return nil
		})
	})
	return newBalance, err
}

// Debit subtracts amount, rejecting with InsufficientBalance before the
// balance would go negative. The check and the write happen atomically.
func (s *Service) Debit(ctx context.Context, userID uint64, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := s.withRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			nb, err := s.ApplyDebit(ctx, tx, userID, amount, description)
			if err != nil {
				return err
			}
			newBalance = nb
			return nil
		})
	})
	return newBalance, err
}

// ApplyCredit runs the credit inside the caller's transaction. Callers owning
// the transaction are responsible for retrying on errs.ErrConflict.
func (s *Service) ApplyCredit(ctx context.Context, tx *gorm.DB, userID uint64, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	return s.apply(ctx, tx, userID, KindTopup, amount, description)
}

// ApplyDebit runs the debit inside the caller's transaction; the ledger row
// carries the negated amount.
func (s *Service) ApplyDebit(ctx context.Context, tx *gorm.DB, userID uint64, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	return s.apply(ctx, tx, userID, KindUsage, amount.Neg(), description)
}

// apply re-reads the balance inside the transaction, enforces the non-negative
// invariant, then compare-and-swaps the materialized balance and appends the
// ledger row. signed is positive for credits, negative for debits.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, userID uint64, kind Kind, signed decimal.Decimal, description string) (decimal.Decimal, error) {
	user, err := s.repo.GetUser(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, errs.ErrNotFound
		}
		return decimal.Zero, err
	}

	newBalance := user.Balance.Add(signed)
	if newBalance.IsNegative() {
		return decimal.Zero, &errs.InsufficientBalanceError{
			Required:  signed.Abs(),
			Available: user.Balance,
		}
	}

	swapped, err := s.repo.SwapBalance(ctx, tx, userID, user.Balance, newBalance)
	if err != nil {
		return decimal.Zero, err
	}
	if !swapped {
		return decimal.Zero, errs.ErrConflict
	}

	entry := &Transaction{
		UserID:      userID,
		Kind:        kind,
		Amount:      signed,
		Description: description,
	}
	if err := s.repo.InsertTransaction(ctx, tx, entry); err != nil {
		return decimal.Zero, err
	}
	return newBalance, nil
}

// Usage returns the user's ledger page plus current-month aggregates.
func (s *Service) Usage(ctx context.Context, userID uint64, limit, offset int) ([]Transaction, UsageStats, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	entries, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, UsageStats{}, err
	}
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	stats, err := s.repo.MonthlyUsage(ctx, userID, monthStart)
	if err != nil {
		return nil, UsageStats{}, err
	}
	return entries, stats, nil
}

func (s *Service) withRetry(op func() error) error {
	var err error
	for i := 0; i < swapRetries; i++ {
		err = op()
		if !errors.Is(err, errs.ErrConflict) {
			return err
		}
		s.log.Debug("balance swap conflict, retrying", zap.Int("attempt", i+1))
	}
	return err
}
