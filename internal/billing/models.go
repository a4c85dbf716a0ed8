package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindTopup Kind = "topup"
	KindUsage Kind = "usage"
)

// Transaction is an immutable ledger entry. Top-ups carry a positive amount,
// usage debits a negative one; the sum of a user's entries reconciles with the
// materialized balance because both are written in the same DB transaction.
type Transaction struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint64          `gorm:"index;not null" json:"user_id"`
	Kind        Kind            `gorm:"type:varchar(16);index;not null" json:"type"`
	Amount      decimal.Decimal `gorm:"type:decimal(15,6);not null" json:"amount"`
	Description string          `gorm:"type:varchar(255);not null" json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (Transaction) TableName() string { return "transactions" }

// UsageStats aggregates the current calendar month.
type UsageStats struct {
	MonthlySpent    decimal.Decimal `json:"monthly_spent"`
	MonthlyRequests int64           `json:"monthly_requests"`
}
