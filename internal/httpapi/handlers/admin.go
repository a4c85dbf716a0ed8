package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/first-seller/ozon-assist/internal/billing"
	"github.com/first-seller/ozon-assist/internal/common"
	"github.com/first-seller/ozon-assist/internal/errs"
	"github.com/first-seller/ozon-assist/internal/models"
)

type topUpRequest struct {
	UserID      uint64 `json:"userId" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	Description string `json:"description"`
}

type blockRequest struct {
	UserID  uint64 `json:"userId" binding:"required"`
	Blocked bool   `json:"blocked"`
}

func (h *Handler) AdminStats(c *gin.Context) {
	ctx := c.Request.Context()

	var totalUsers, blockedUsers, totalRequests int64
	if err := h.DB.WithContext(ctx).Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "database error")
		return
	}
	if err := h.DB.WithContext(ctx).Model(&models.User{}).
		Where("is_blocked = ?", true).Count(&blockedUsers).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "database error")
		return
	}
	if err := h.DB.WithContext(ctx).Model(&billing.Transaction{}).
		Where("kind = ?", billing.KindUsage).Count(&totalRequests).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "database error")
		return
	}

	repo := billing.NewRepo(h.DB)
	totalSpent, err := repo.SumByKind(ctx, billing.KindUsage)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "database error")
		return
	}
	totalTopup, err := repo.SumByKind(ctx, billing.KindTopup)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "database error")
		return
	}

	common.OK(c, gin.H{
		"totalUsers":    totalUsers,
		"blockedUsers":  blockedUsers,
		"totalRequests": totalRequests,
		"totalSpent":    totalSpent.Abs().Round(4).String(),
		"totalTopup":    totalTopup.Round(4).String(),
	})
}

func (h *Handler) AdminUsers(c *gin.Context) {
	var users []models.User
	err := h.DB.WithContext(c.Request.Context()).
		Order("created_at DESC").Limit(100).Find(&users).Error
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "database error")
		return
	}

	views := make([]gin.H, 0, len(users))
	for i := range users {
		views = append(views, userView(&users[i]))
	}
	common.OK(c, gin.H{"users": views})
}

func (h *Handler) AdminTransactions(c *gin.Context) {
	repo := billing.NewRepo(h.DB)
	transactions, err := repo.ListRecent(c.Request.Context(), 100)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "database error")
		return
	}
	common.OK(c, gin.H{"transactions": transactions})
}

// AdminTopUp credits a user's balance. Amount is a decimal string and must
// be strictly positive.
func (h *Handler) AdminTopUp(c *gin.Context) {
	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid request: "+err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		common.Fail(c, http.StatusBadRequest, 40003, "amount must be a positive decimal")
		return
	}

	description := req.Description
	if description == "" {
		description = "admin top-up"
	}

	newBalance, err := h.BillingSvc.Credit(c.Request.Context(), req.UserID, amount, description)
	if errors.Is(err, errs.ErrNotFound) {
		common.Fail(c, http.StatusNotFound, 40402, "user not found")
		return
	}
	if err != nil {
		h.Log.Error("top-up failed", zap.Uint64("user_id", req.UserID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "failed to credit balance")
		return
	}

	common.OK(c, gin.H{"userId": req.UserID, "balance": newBalance.Round(4).String()})
}

func (h *Handler) AdminBlock(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid request: "+err.Error())
		return
	}

	res := h.DB.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", req.UserID).Update("is_blocked", req.Blocked)
	if res.Error != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "database error")
		return
	}
	if res.RowsAffected == 0 {
		common.Fail(c, http.StatusNotFound, 40402, "user not found")
		return
	}

	common.OK(c, gin.H{"userId": req.UserID, "blocked": req.Blocked})
}
