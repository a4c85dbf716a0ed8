package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/first-seller/ozon-assist/internal/billing"
	"github.com/first-seller/ozon-assist/internal/chat"
	"github.com/first-seller/ozon-assist/internal/common"
	"github.com/first-seller/ozon-assist/internal/config"
)

type Handler struct {
	DB         *gorm.DB
	Cfg        config.Config
	Log        *zap.Logger
	ChatSvc    *chat.Service
	BillingSvc *billing.Service
}

func NewHandler(db *gorm.DB, cfg config.Config, log *zap.Logger, chatSvc *chat.Service, billingSvc *billing.Service) *Handler {
	return &Handler{
		DB:         db,
		Cfg:        cfg,
		Log:        log.Named("http"),
		ChatSvc:    chatSvc,
		BillingSvc: billingSvc,
	}
}

func (h *Handler) Health(c *gin.Context) {
	common.OK(c, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
