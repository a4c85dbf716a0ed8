package chat

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session is one conversation thread scoped to exactly one (user, domain)
// pair. At most one session per pair is active at any instant.
type Session struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"session_id"`
	UserID    uint64    `gorm:"not null;index:idx_chat_sessions_user_domain,priority:1" json:"-"`
	Domain    string    `gorm:"type:varchar(32);not null;index:idx_chat_sessions_user_domain,priority:2" json:"domain"`
	IsActive  bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

// Message is one turn. Snapshot fields are set on user turns only, token
// counts and cost on assistant turns only.
type Message struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string `gorm:"type:varchar(26);not null;index" json:"session_id"`
	Role      string `gorm:"type:varchar(16);not null" json:"role"`
	Content   string `gorm:"type:text;not null" json:"content"`

	PageURL  *string `gorm:"type:varchar(2048)" json:"page_url,omitempty"`
	PageData *string `gorm:"type:text" json:"page_data,omitempty"`

	InputTokens  *int             `json:"input_tokens,omitempty"`
	OutputTokens *int             `json:"output_tokens,omitempty"`
	Cost         *decimal.Decimal `gorm:"type:decimal(15,6)" json:"cost,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }

// TurnReceipt records a settled turn keyed by (user, idempotency key) so a
// retried request replays the original response instead of billing twice.
type TurnReceipt struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserID    uint64    `gorm:"not null;uniqueIndex:ux_turn_receipts_user_key,priority:1"`
	Key       string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_turn_receipts_user_key,priority:2"`
	SessionID string    `gorm:"type:varchar(26);not null"`
	Response  string    `gorm:"type:text;not null"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index"`
}

func (TurnReceipt) TableName() string { return "chat_turn_receipts" }
