package chat

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetSessionBySessionID(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) CreateSession(ctx context.Context, tx *gorm.DB, s *Session) error {
	return tx.WithContext(ctx).Create(s).Error
}

// DeactivateSessions clears the active flag for every active session of the
// (user, domain) pair.
func (r *Repo) DeactivateSessions(ctx context.Context, tx *gorm.DB, userID uint64, domain string) error {
	return tx.WithContext(ctx).Model(&Session{}).
		Where("user_id = ? AND domain = ? AND is_active = ?", userID, domain, true).
		Update("is_active", false).Error
}

// DeactivateSessionByID clears the active flag of one owned, still-active
// session. Returns the number of rows matched so callers can tell unknown or
// already-cleared ids apart from a real clear.
func (r *Repo) DeactivateSessionByID(ctx context.Context, userID uint64, sessionID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ? AND user_id = ? AND is_active = ?", sessionID, userID, true).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

// TouchSession bumps the session's updated timestamp.
func (r *Repo) TouchSession(ctx context.Context, tx *gorm.DB, sessionID string) error {
	return tx.WithContext(ctx).Model(&Session{}).
		Where("session_id = ?", sessionID).
		Update("updated_at", time.Now()).Error
}

// ListSessions returns the user's sessions, most recently updated first.
func (r *Repo) ListSessions(ctx context.Context, userID uint64, limit int) ([]Session, error) {
	var out []Session
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *Repo) InsertMessage(ctx context.Context, tx *gorm.DB, m *Message) error {
	return tx.WithContext(ctx).Create(m).Error
}

// ListMessages returns every message of a session in creation order.
func (r *Repo) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var out []Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// ListRecentMessagesDesc returns the most recent messages newest first.
func (r *Repo) ListRecentMessagesDesc(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountMessages returns per-session message counts for the given sessions.
func (r *Repo) CountMessages(ctx context.Context, sessionIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return counts, nil
	}
	type row struct {
		SessionID string
		N         int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&Message{}).
		Select("session_id, COUNT(*) AS n").
		Where("session_id IN ?", sessionIDs).
		Group("session_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, rr := range rows {
		counts[rr.SessionID] = rr.N
	}
	return counts, nil
}

// GetReceipt returns an unexpired turn receipt for (user, key), if any.
func (r *Repo) GetReceipt(ctx context.Context, userID uint64, key string) (*TurnReceipt, error) {
	var t TurnReceipt
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND `key` = ? AND expires_at > ?", userID, key, time.Now()).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// InsertReceipt claims the idempotency key inside the settlement transaction.
// A unique-index violation here means a concurrent duplicate already settled.
func (r *Repo) InsertReceipt(ctx context.Context, tx *gorm.DB, t *TurnReceipt) error {
	return tx.WithContext(ctx).Create(t).Error
}

// PurgeExpiredReceipts drops receipts past their window.
func (r *Repo) PurgeExpiredReceipts(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&TurnReceipt{}).Error
}
