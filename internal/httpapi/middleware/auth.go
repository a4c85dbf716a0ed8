// Package middleware holds the request-pipeline guards: credential
// resolution, the admin capability check, rate limiting and recovery.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/first-seller/ozon-assist/internal/auth"
	"github.com/first-seller/ozon-assist/internal/common"
	"github.com/first-seller/ozon-assist/internal/models"
)

const (
	UserIDKey = "auth.user_id"
	UserKey   = "auth.user"
)

// CurrentUser returns the identity resolved by AuthRequired or APIKeyRequired.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok
}

// AuthRequired resolves a signed session token. Used by the first-party
// web/admin surface; it does not gate on balance.
func AuthRequired(db *gorm.DB, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			common.Fail(c, http.StatusUnauthorized, 40101, "authorization required")
			c.Abort()
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		userID, err := auth.ParseJWT(token, secret)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40101, "invalid token")
			c.Abort()
			return
		}

		var user models.User
		if err := db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
			common.Fail(c, http.StatusUnauthorized, 40101, "invalid token")
			c.Abort()
			return
		}
		if user.IsBlocked {
			common.Fail(c, http.StatusForbidden, 40301, "account is blocked")
			c.Abort()
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set(UserKey, &user)
		c.Next()
	}
}

// APIKeyRequired resolves the long-lived opaque key the extension presents.
// The key is located by its non-secret fingerprint, then verified against the
// stored hash. Only this path gates on balance, because only API-key callers
// consume paid LLM calls.
func APIKeyRequired(db *gorm.DB, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			common.Fail(c, http.StatusUnauthorized, 40101, "api key required")
			c.Abort()
			return
		}
		if !auth.HasAPIKeyPrefix(key) {
			common.Fail(c, http.StatusUnauthorized, 40101, "invalid api key format")
			c.Abort()
			return
		}

		fingerprint := auth.FingerprintAPIKey(key)
		var user models.User
		err := db.WithContext(c.Request.Context()).
			Where("api_key_fingerprint = ?", fingerprint).
			First(&user).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Error("api key lookup failed", zap.Error(err))
				common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
				c.Abort()
				return
			}
			common.Fail(c, http.StatusUnauthorized, 40101, "invalid api key")
			c.Abort()
			return
		}
		if user.APIKeyHash == nil || !auth.VerifyAPIKey(key, *user.APIKeyHash) {
			common.Fail(c, http.StatusUnauthorized, 40101, "invalid api key")
			c.Abort()
			return
		}
		if user.IsBlocked {
			common.Fail(c, http.StatusForbidden, 40301, "account is blocked")
			c.Abort()
			return
		}
		if !user.Balance.IsPositive() {
			common.FailData(c, http.StatusPaymentRequired, 40201, "insufficient balance",
				gin.H{"balance": user.Balance.Round(4)})
			c.Abort()
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set(UserKey, &user)
		c.Next()
	}
}

// AdminRequired is the capability guard composed after AuthRequired on admin
// routes.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || !user.IsAdmin {
			common.Fail(c, http.StatusForbidden, 40302, "access denied")
			c.Abort()
			return
		}
		c.Next()
	}
}
