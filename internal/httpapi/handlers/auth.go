package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/first-seller/ozon-assist/internal/auth"
	"github.com/first-seller/ozon-assist/internal/common"
	"github.com/first-seller/ozon-assist/internal/errs"
	"github.com/first-seller/ozon-assist/internal/httpapi/middleware"
	"github.com/first-seller/ozon-assist/internal/models"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type telegramAuthRequest struct {
	InitData string `json:"initData"`

	TelegramID string `json:"telegramId" binding:"required"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Username   string `json:"username"`
}

func userView(u *models.User) gin.H {
	v := gin.H{
		"id":        u.ID,
		"balance":   u.Balance.Round(4).String(),
		"isBlocked": u.IsBlocked,
		"isAdmin":   u.IsAdmin,
		"createdAt": u.CreatedAt,
	}
	if u.Email != nil {
		v["email"] = *u.Email
	}
	if u.TelegramID != nil {
		v["telegramId"] = *u.TelegramID
	}
	if u.Username != "" {
		v["username"] = u.Username
	}
	if u.FirstName != "" {
		v["firstName"] = u.FirstName
	}
	v["hasApiKey"] = u.APIKeyHash != nil
	return v
}

// Register creates an email/password account and credits the welcome bonus
// in the same transaction, so either both exist or neither does.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid request: "+err.Error())
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "failed to hash password")
		return
	}

	// The unique index on email is the single source of truth for duplicates;
	// a pre-check would race with concurrent registrations.
	user := &models.User{Email: &email, PasswordHash: &hash}
	err = h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errs.ErrAlreadyExists
			}
			return err
		}
		if h.Cfg.WelcomeBonus.IsPositive() {
			_, err := h.BillingSvc.ApplyCredit(c.Request.Context(), tx, user.ID, h.Cfg.WelcomeBonus, "welcome bonus")
			return err
		}
		return nil
	})
	if errors.Is(err, errs.ErrAlreadyExists) {
		common.Fail(c, http.StatusConflict, 40901, "email already registered")
		return
	}
	if err != nil {
		h.Log.Error("register failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "failed to create user")
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, h.Cfg.JWTTTL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "failed to sign token")
		return
	}

	// Balance was credited inside the transaction; reload for the response.
	if err := h.DB.WithContext(c.Request.Context()).First(user, user.ID).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "database error")
		return
	}

	common.Created(c, gin.H{"token": token, "user": userView(user)})
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid request: "+err.Error())
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	err := h.DB.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid credentials")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "database error")
		return
	}
	if user.PasswordHash == nil || !auth.VerifyPassword(req.Password, *user.PasswordHash) {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid credentials")
		return
	}
	if user.IsBlocked {
		common.Fail(c, http.StatusForbidden, 40301, "account is blocked")
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, h.Cfg.JWTTTL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "failed to sign token")
		return
	}

	common.OK(c, gin.H{"token": token, "user": userView(&user)})
}

// TelegramAuth signs in (or signs up) a Telegram WebApp user. When a bot
// token is configured the initData signature is verified; otherwise the
// profile fields are trusted as-is, which is only acceptable in development.
func (h *Handler) TelegramAuth(c *gin.Context) {
	var req telegramAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid request: "+err.Error())
		return
	}

	if h.Cfg.BotToken != "" {
		if req.InitData == "" || !auth.VerifyTelegramInitData(req.InitData, h.Cfg.BotToken) {
			common.Fail(c, http.StatusUnauthorized, 40103, "invalid telegram signature")
			return
		}
	}

	var user models.User
	err := h.DB.WithContext(c.Request.Context()).Where("telegram_id = ?", req.TelegramID).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{TelegramID: &req.TelegramID}
		setTelegramProfile(&user, req)
		err = h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			if h.Cfg.WelcomeBonus.IsPositive() {
				_, err := h.BillingSvc.ApplyCredit(c.Request.Context(), tx, user.ID, h.Cfg.WelcomeBonus, "welcome bonus")
				return err
			}
			return nil
		})
		if err != nil {
			h.Log.Error("telegram signup failed", zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50000, "failed to create user")
			return
		}
		if err := h.DB.WithContext(c.Request.Context()).First(&user, user.ID).Error; err != nil {
			common.Fail(c, http.StatusInternalServerError, 50000, "database error")
			return
		}
	case err != nil:
		common.Fail(c, http.StatusInternalServerError, 50000, "database error")
		return
	default:
		if user.IsBlocked {
			common.Fail(c, http.StatusForbidden, 40301, "account is blocked")
			return
		}
		setTelegramProfile(&user, req)
		if err := h.DB.WithContext(c.Request.Context()).Save(&user).Error; err != nil {
			common.Fail(c, http.StatusInternalServerError, 50000, "database error")
			return
		}
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, h.Cfg.JWTTTL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "failed to sign token")
		return
	}

	common.OK(c, gin.H{"token": token, "user": userView(&user)})
}

func setTelegramProfile(u *models.User, req telegramAuthRequest) {
	if req.FirstName != "" {
		u.FirstName = req.FirstName
	}
	if req.LastName != "" {
		u.LastName = req.LastName
	}
	if req.Username != "" {
		u.Username = req.Username
	}
}

// GenerateAPIKey mints a fresh extension key for the caller. The plaintext
// is returned exactly once; only the bcrypt hash and a lookup fingerprint
// are stored, and any previous key stops working immediately.
func (h *Handler) GenerateAPIKey(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	key := auth.NewAPIKey()
	hash, err := auth.HashAPIKey(key)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "failed to hash key")
		return
	}
	fp := auth.FingerprintAPIKey(key)

	err = h.DB.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{"api_key_hash": hash, "api_key_fingerprint": fp}).Error
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50000, "database error")
		return
	}

	common.OK(c, gin.H{"apiKey": key})
}

func (h *Handler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	common.OK(c, userView(user))
}
