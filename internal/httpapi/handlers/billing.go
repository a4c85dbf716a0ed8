package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/first-seller/ozon-assist/internal/common"
	"github.com/first-seller/ozon-assist/internal/httpapi/middleware"
)

func (h *Handler) Balance(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	common.OK(c, gin.H{"balance": user.Balance.Round(4).String()})
}

// Usage returns the recent transaction ledger plus current-month totals.
func (h *Handler) Usage(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	transactions, stats, err := h.BillingSvc.Usage(c.Request.Context(), user.ID, limit, offset)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "database error")
		return
	}

	common.OK(c, gin.H{
		"balance":         user.Balance.Round(4).String(),
		"monthlySpent":    stats.MonthlySpent.Round(4).String(),
		"monthlyRequests": stats.MonthlyRequests,
		"transactions":    transactions,
	})
}
