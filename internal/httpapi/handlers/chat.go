package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/first-seller/ozon-assist/internal/chat"
	"github.com/first-seller/ozon-assist/internal/common"
	"github.com/first-seller/ozon-assist/internal/errs"
	"github.com/first-seller/ozon-assist/internal/httpapi/middleware"
)

const maxIdempotencyKeyLen = 128

type sendMessageRequest struct {
	Message   string            `json:"message" binding:"required"`
	PageData  chat.PageSnapshot `json:"pageData"`
	SessionID string            `json:"sessionId"`
}

// SendMessage runs one metered chat turn for the extension. An optional
// Idempotency-Key header lets the client retry safely: a replayed key
// returns the stored answer without a second debit.
func (h *Handler) SendMessage(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid request: "+err.Error())
		return
	}

	key := c.GetHeader("Idempotency-Key")
	if len(key) > maxIdempotencyKeyLen {
		common.Fail(c, http.StatusBadRequest, 40002, "idempotency key too long")
		return
	}

	result, err := h.ChatSvc.HandleTurn(c.Request.Context(), user.ID, chat.TurnRequest{
		Message:        req.Message,
		Snapshot:       req.PageData,
		SessionID:      req.SessionID,
		IdempotencyKey: key,
	})
	if err != nil {
		h.failTurn(c, err)
		return
	}

	common.OK(c, result)
}

func (h *Handler) failTurn(c *gin.Context, err error) {
	var insufficient *errs.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		common.FailData(c, http.StatusPaymentRequired, 40201, "insufficient balance", gin.H{
			"required": insufficient.Required.Round(4).String(),
			"balance":  insufficient.Available.Round(4).String(),
		})
	case errors.Is(err, errs.ErrUpstream):
		h.Log.Error("upstream completion failed", zap.Error(err))
		common.Fail(c, http.StatusBadGateway, 50201, "ai provider unavailable")
	case errors.Is(err, errs.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "session not found")
	default:
		h.Log.Error("chat turn failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
	}
}

func (h *Handler) ListSessions(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	sessions, err := h.ChatSvc.ListSessions(c.Request.Context(), user.ID, limit)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "database error")
		return
	}
	common.OK(c, gin.H{"sessions": sessions})
}

func (h *Handler) History(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sessionID := c.Param("sessionId")
	session, messages, err := h.ChatSvc.History(c.Request.Context(), user.ID, sessionID)
	if errors.Is(err, errs.ErrNotFound) {
		common.Fail(c, http.StatusNotFound, 40401, "session not found")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "database error")
		return
	}
	common.OK(c, gin.H{"session": session, "messages": messages})
}

// DeleteSession deactivates a session. History stays readable; the next
// message on that domain starts a fresh session.
func (h *Handler) DeleteSession(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sessionID := c.Param("sessionId")
	err := h.ChatSvc.ClearSession(c.Request.Context(), user.ID, sessionID)
	if errors.Is(err, errs.ErrNotFound) {
		common.Fail(c, http.StatusNotFound, 40401, "session not found")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "database error")
		return
	}
	common.OK(c, gin.H{"cleared": true})
}
