package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/first-seller/ozon-assist/internal/models"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetUser(ctx context.Context, tx *gorm.DB, userID uint64) (*models.User, error) {
	var u models.User
	if err := tx.WithContext(ctx).First(&u, userID).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// SwapBalance performs a compare-and-swap on the materialized balance. It
// reports false when another transaction changed the balance since it was
// read, in which case the caller must re-read and retry.
func (r *Repo) SwapBalance(ctx context.Context, tx *gorm.DB, userID uint64, old, new decimal.Decimal) (bool, error) {
	res := tx.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND balance = ?", userID, old).
		Update("balance", new)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) InsertTransaction(ctx context.Context, tx *gorm.DB, t *Transaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

// ListByUser returns entries newest first.
func (r *Repo) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]Transaction, error) {
	var out []Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, err
}

// MonthlyUsage sums usage debits since the start of the current month.
func (r *Repo) MonthlyUsage(ctx context.Context, userID uint64, since time.Time) (UsageStats, error) {
	var rows []Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND created_at >= ?", userID, KindUsage, since).
		Find(&rows).Error
	if err != nil {
		return UsageStats{}, err
	}
	stats := UsageStats{MonthlySpent: decimal.Zero, MonthlyRequests: int64(len(rows))}
	for _, t := range rows {
		stats.MonthlySpent = stats.MonthlySpent.Add(t.Amount.Abs())
	}
	return stats, nil
}

// SumByKind totals entry amounts of one kind across all users.
func (r *Repo) SumByKind(ctx context.Context, kind Kind) (decimal.Decimal, error) {
	var rows []Transaction
	if err := r.db.WithContext(ctx).Where("kind = ?", kind).Find(&rows).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, t := range rows {
		total = total.Add(t.Amount)
	}
	return total, nil
}

// ListRecent returns the newest entries across all users, for the admin surface.
func (r *Repo) ListRecent(ctx context.Context, limit int) ([]Transaction, error) {
	var out []Transaction
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}
