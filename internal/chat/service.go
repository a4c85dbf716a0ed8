package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/first-seller/ozon-assist/internal/ai"
	"github.com/first-seller/ozon-assist/internal/billing"
	"github.com/first-seller/ozon-assist/internal/common"
	"github.com/first-seller/ozon-assist/internal/errs"
)

// UsageEvent describes one settled, billed turn. Published best-effort after
// commit; it never participates in the billing transaction.
type UsageEvent struct {
	UserID       uint64    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         string    `json:"cost"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type UsagePublisher interface {
	PublishUsage(ctx context.Context, ev UsageEvent) error
}

// Options carries the tuning knobs the orchestrator needs, built once from
// config and passed in explicitly.
type Options struct {
	Provider string
	Model    string

	ContextWindow int

	PriceInPerMillion  decimal.Decimal
	PriceOutPerMillion decimal.Decimal
	PriceMultiplier    decimal.Decimal

	SellerConsoleHost string
	PublicSiteHost    string

	ReceiptTTL time.Duration
}

// Service is the chat orchestrator: it resolves the session, assembles
// history, invokes the LLM gateway, prices the answer and settles the turn
// (message writes + ledger debit) as one atomic unit of work.
type Service struct {
	db       *gorm.DB
	repo     *Repo
	billing  *billing.Service
	registry *ai.Registry
	events   UsagePublisher
	log      *zap.Logger
	opts     Options
}

func NewService(db *gorm.DB, repo *Repo, billingSvc *billing.Service, registry *ai.Registry, events UsagePublisher, log *zap.Logger, opts Options) *Service {
	if opts.ContextWindow <= 0 || opts.ContextWindow > 100 {
		opts.ContextWindow = 20
	}
	if opts.ReceiptTTL <= 0 {
		opts.ReceiptTTL = 24 * time.Hour
	}
	return &Service{
		db:       db,
		repo:     repo,
		billing:  billingSvc,
		registry: registry,
		events:   events,
		log:      log.Named("chat"),
		opts:     opts,
	}
}

// TurnRequest is one incoming chat turn.
type TurnRequest struct {
	Message        string
	Snapshot       PageSnapshot
	SessionID      string
	IdempotencyKey string
}

// TokenUsage summarizes the turn for the client. Amounts are rounded to four
// places here, at the presentation boundary only.
type TokenUsage struct {
	InputTokens      int             `json:"input_tokens"`
	OutputTokens     int             `json:"output_tokens"`
	Cost             decimal.Decimal `json:"cost"`
	BalanceRemaining decimal.Decimal `json:"balance_remaining"`
}

type TurnResult struct {
	Answer    string     `json:"answer"`
	SessionID string     `json:"session_id"`
	Usage     TokenUsage `json:"usage"`
	Replayed  bool       `json:"replayed,omitempty"`
}

// HandleTurn executes the full chat workflow. On insufficient balance at
// settlement time the generated answer is discarded and nothing is persisted;
// upstream failures likewise leave no trace.
func (s *Service) HandleTurn(ctx context.Context, userID uint64, req TurnRequest) (*TurnResult, error) {
	if req.IdempotencyKey != "" {
		if res, ok := s.replay(ctx, userID, req.IdempotencyKey); ok {
			return res, nil
		}
	}

	domain := DomainFromURL(req.Snapshot.URL, s.opts.SellerConsoleHost, s.opts.PublicSiteHost)

	session, err := s.ResolveOrCreateSession(ctx, userID, domain, req.SessionID)
	if err != nil {
		return nil, err
	}

	history, err := s.loadHistory(ctx, session.SessionID)
	if err != nil {
		return nil, err
	}

	req.Snapshot.Clamp()
	userTurn := BuildUserTurn(&req.Snapshot, req.Message)

	gateway, err := s.registry.Resolve(ctx, s.opts.Provider, s.opts.Model)
	if err != nil {
		return nil, err
	}
	answer, err := gateway.Complete(ctx, SystemPrompt, history, userTurn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUpstream, err)
	}

	cost := s.costOf(answer.InputTokens, answer.OutputTokens)

	result, err := s.settle(ctx, userID, session.SessionID, req, answer, cost)
	if err != nil {
		return nil, err
	}

	s.publishUsage(ctx, userID, session.SessionID, answer, cost)
	return result, nil
}

// settle runs the atomic unit of work: both message inserts, the ledger debit
// with its authoritative balance re-check, and the idempotency receipt. All
// succeed or none do.
func (s *Service) settle(ctx context.Context, userID uint64, sessionID string, req TurnRequest, answer *ai.Result, cost decimal.Decimal) (*TurnResult, error) {
	var result *TurnResult

	settleOnce := func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			description := fmt.Sprintf("request: %d in / %d out", answer.InputTokens, answer.OutputTokens)
			newBalance, err := s.billing.ApplyDebit(ctx, tx, userID, cost, description)
			if err != nil {
				return err
			}

			pageURL := req.Snapshot.URL
			snapshotJSON, err := json.Marshal(req.Snapshot)
			if err != nil {
				return err
			}
			pageData := string(snapshotJSON)
			userMsg := &Message{
				SessionID: sessionID,
				Role:      RoleUser,
				Content:   req.Message,
				PageURL:   &pageURL,
				PageData:  &pageData,
			}
			if err := s.repo.InsertMessage(ctx, tx, userMsg); err != nil {
				return err
			}

			in, out := answer.InputTokens, answer.OutputTokens
			storedCost := cost.Round(6)
			assistantMsg := &Message{
				SessionID:    sessionID,
				Role:         RoleAssistant,
				Content:      answer.Content,
				InputTokens:  &in,
				OutputTokens: &out,
				Cost:         &storedCost,
			}
			if err := s.repo.InsertMessage(ctx, tx, assistantMsg); err != nil {
				return err
			}

			if err := s.repo.TouchSession(ctx, tx, sessionID); err != nil {
				return err
			}

			result = &TurnResult{
				Answer:    answer.Content,
				SessionID: sessionID,
				Usage: TokenUsage{
					InputTokens:      answer.InputTokens,
					OutputTokens:     answer.OutputTokens,
					Cost:             cost.Round(4),
					BalanceRemaining: newBalance.Round(4),
				},
			}

			if req.IdempotencyKey != "" {
				body, err := json.Marshal(result)
				if err != nil {
					return err
				}
				receipt := &TurnReceipt{
					UserID:    userID,
					Key:       req.IdempotencyKey,
					SessionID: sessionID,
					Response:  string(body),
					ExpiresAt: time.Now().Add(s.opts.ReceiptTTL),
				}
				if err := s.repo.InsertReceipt(ctx, tx, receipt); err != nil {
					// Unique violation: a concurrent duplicate settled first.
					return fmt.Errorf("%w: claim idempotency key: %v", errs.ErrConflict, err)
				}
			}
			return nil
		})
	}

	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = settleOnce()
		if !errors.Is(err, errs.ErrConflict) {
			break
		}
		// A duplicate may have settled concurrently; replay it if so.
		if req.IdempotencyKey != "" {
			if res, ok := s.replay(ctx, userID, req.IdempotencyKey); ok {
				return res, nil
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) replay(ctx context.Context, userID uint64, key string) (*TurnResult, bool) {
	receipt, err := s.repo.GetReceipt(ctx, userID, key)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("receipt lookup failed", zap.Error(err))
		}
		return nil, false
	}
	var res TurnResult
	if err := json.Unmarshal([]byte(receipt.Response), &res); err != nil {
		s.log.Warn("stored receipt is unreadable", zap.Uint64("user_id", userID), zap.Error(err))
		return nil, false
	}
	res.Replayed = true
	return &res, true
}

// ResolveOrCreateSession reuses the requested session when it is active,
// owned by the user and in the same domain. Otherwise it atomically
// deactivates every active session of the (user, domain) pair and creates a
// fresh one, preserving the single-active-session invariant even against
// stale client-held ids.
func (s *Service) ResolveOrCreateSession(ctx context.Context, userID uint64, domain, requestedID string) (*Session, error) {
	if requestedID != "" {
		existing, err := s.repo.GetSessionBySessionID(ctx, requestedID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if existing != nil && existing.UserID == userID && existing.Domain == domain && existing.IsActive {
			return existing, nil
		}
	}

	sid, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	session := &Session{
		SessionID: sid,
		UserID:    userID,
		Domain:    domain,
		IsActive:  true,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.DeactivateSessions(ctx, tx, userID, domain); err != nil {
			return err
		}
		return s.repo.CreateSession(ctx, tx, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// History returns the session and its messages in creation order. Unknown and
// unowned ids are indistinguishable.
func (s *Service) History(ctx context.Context, userID uint64, sessionID string) (*Session, []Message, error) {
	session, err := s.repo.GetSessionBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errs.ErrNotFound
		}
		return nil, nil, err
	}
	if session.UserID != userID {
		return nil, nil, errs.ErrNotFound
	}
	msgs, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return session, msgs, nil
}

// ClearSession deactivates the session; history stays queryable by id but is
// no longer resumed by default.
func (s *Service) ClearSession(ctx context.Context, userID uint64, sessionID string) error {
	affected, err := s.repo.DeactivateSessionByID(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SessionSummary is a session plus its message count, for the account surface.
type SessionSummary struct {
	Session
	MessageCount int64 `json:"message_count"`
}

func (s *Service) ListSessions(ctx context.Context, userID uint64, limit int) ([]SessionSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	sessions, err := s.repo.ListSessions(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.SessionID)
	}
	counts, err := s.repo.CountMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, SessionSummary{Session: sess, MessageCount: counts[sess.SessionID]})
	}
	return out, nil
}

// PurgeExpiredReceipts drops idempotency receipts past their replay window.
// Meant to run periodically.
func (s *Service) PurgeExpiredReceipts(ctx context.Context) error {
	return s.repo.PurgeExpiredReceipts(ctx)
}

func (s *Service) loadHistory(ctx context.Context, sessionID string) ([]ai.Message, error) {
	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, sessionID, s.opts.ContextWindow)
	if err != nil {
		return nil, err
	}
	// reverse to ASC (oldest -> newest)
	history := make([]ai.Message, 0, len(recentDesc))
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		history = append(history, ai.Message{Role: m.Role, Content: m.Content})
	}
	return history, nil
}

// costOf prices the turn: tokens/1e6 * vendor price * markup multiplier,
// in exact decimal arithmetic.
func (s *Service) costOf(inputTokens, outputTokens int) decimal.Decimal {
	million := decimal.NewFromInt(1_000_000)
	in := decimal.NewFromInt(int64(inputTokens)).
		Mul(s.opts.PriceInPerMillion).
		Mul(s.opts.PriceMultiplier).
		Div(million)
	out := decimal.NewFromInt(int64(outputTokens)).
		Mul(s.opts.PriceOutPerMillion).
		Mul(s.opts.PriceMultiplier).
		Div(million)
	return in.Add(out)
}

func (s *Service) publishUsage(ctx context.Context, userID uint64, sessionID string, answer *ai.Result, cost decimal.Decimal) {
	if s.events == nil {
		return
	}
	ev := UsageEvent{
		UserID:       userID,
		SessionID:    sessionID,
		InputTokens:  answer.InputTokens,
		OutputTokens: answer.OutputTokens,
		Cost:         cost.Round(6).String(),
		OccurredAt:   time.Now(),
	}
	if err := s.events.PublishUsage(ctx, ev); err != nil {
		s.log.Warn("usage event publish failed",
			zap.Uint64("user_id", userID),
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}
