package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/first-seller/ozon-assist/internal/common"
	"github.com/first-seller/ozon-assist/internal/config"
	"github.com/first-seller/ozon-assist/internal/httpapi/handlers"
	"github.com/first-seller/ozon-assist/internal/httpapi/middleware"
	"github.com/first-seller/ozon-assist/internal/store/redisstore"
)

// NewRouter wires the full HTTP surface. Passing a nil rate-limit store
// disables rate limiting (local development, tests).
func NewRouter(h *handlers.Handler, db *gorm.DB, cfg config.Config, log *zap.Logger, limiter *redisstore.Store) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.AccessLog(log))
	if limiter != nil {
		r.Use(middleware.RateLimit(limiter, cfg.RateLimitMax, cfg.RateLimitWindow, log))
	}

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/health", h.Health)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/telegram", h.TelegramAuth)

		jwtOnly := authGroup.Group("", middleware.AuthRequired(db, cfg.JWTSecret))
		jwtOnly.POST("/api-key", h.GenerateAPIKey)
		jwtOnly.GET("/me", h.Me)
	}

	keyed := r.Group("", middleware.APIKeyRequired(db, log))
	{
		keyed.GET("/billing/balance", h.Balance)
		keyed.GET("/billing/usage", h.Usage)

		keyed.POST("/chat/message", h.SendMessage)
		keyed.GET("/chat/sessions", h.ListSessions)
		keyed.GET("/chat/history/:sessionId", h.History)
		keyed.DELETE("/chat/session/:sessionId", h.DeleteSession)
	}

	admin := r.Group("/admin", middleware.AuthRequired(db, cfg.JWTSecret), middleware.AdminRequired())
	{
		admin.GET("/stats", h.AdminStats)
		admin.GET("/users", h.AdminUsers)
		admin.GET("/transactions", h.AdminTransactions)
		admin.POST("/topup", h.AdminTopUp)
		admin.POST("/block", h.AdminBlock)
	}

	return r
}
