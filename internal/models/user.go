package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is both an identity and a wallet. At least one of Email or TelegramID
// is always present; balance never goes negative (enforced at debit time, not
// by a database constraint).
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	Email        *string `gorm:"type:varchar(255);uniqueIndex" json:"email,omitempty"`
	PasswordHash *string `gorm:"type:varchar(100)" json:"-"`

	TelegramID *string `gorm:"type:varchar(32);uniqueIndex" json:"telegram_id,omitempty"`
	FirstName  string  `gorm:"type:varchar(64)" json:"first_name,omitempty"`
	LastName   string  `gorm:"type:varchar(64)" json:"last_name,omitempty"`
	Username   string  `gorm:"type:varchar(64)" json:"username,omitempty"`

	Balance decimal.Decimal `gorm:"type:decimal(15,6);not null" json:"balance"`

	IsBlocked bool `gorm:"not null;default:false" json:"is_blocked"`
	IsAdmin   bool `gorm:"not null;default:false" json:"is_admin"`

	// API keys are never stored in cleartext: the fingerprint is a non-secret
	// derived identifier used for lookup, the hash does the actual verification.
	APIKeyHash        *string `gorm:"type:varchar(100)" json:"-"`
	APIKeyFingerprint *string `gorm:"type:char(64);index" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
