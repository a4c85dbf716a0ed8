package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/first-seller/ozon-assist/internal/ai"
	"github.com/first-seller/ozon-assist/internal/billing"
	"github.com/first-seller/ozon-assist/internal/chat"
	"github.com/first-seller/ozon-assist/internal/config"
	"github.com/first-seller/ozon-assist/internal/db"
	"github.com/first-seller/ozon-assist/internal/httpapi"
	"github.com/first-seller/ozon-assist/internal/httpapi/handlers"
	"github.com/first-seller/ozon-assist/internal/models"
)

type fakeGateway struct {
	content      string
	inputTokens  int
	outputTokens int
}

func (f *fakeGateway) Complete(context.Context, string, []ai.Message, string) (*ai.Result, error) {
	return &ai.Result{Content: f.content, InputTokens: f.inputTokens, OutputTokens: f.outputTokens}, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	gw     *fakeGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Connect("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(gdb))

	cfg := config.Config{
		JWTSecret:          "test-secret",
		JWTTTL:             time.Hour,
		WelcomeBonus:       decimal.NewFromInt(1),
		PriceInPerMillion:  decimal.NewFromInt(1),
		PriceOutPerMillion: decimal.NewFromInt(1),
		PriceMultiplier:    decimal.NewFromInt(1),
		SellerConsoleHost:  "seller.ozon.ru",
		PublicSiteHost:     "ozon.ru",
	}

	gw := &fakeGateway{content: "the answer", inputTokens: 100_000, outputTokens: 100_000}
	registry := ai.NewRegistry()
	registry.Register("fake", func(context.Context, string) (ai.Gateway, error) { return gw, nil })

	log := zap.NewNop()
	billingSvc := billing.NewService(gdb, billing.NewRepo(gdb), log)
	chatSvc := chat.NewService(gdb, chat.NewRepo(gdb), billingSvc, registry, nil, log, chat.Options{
		Provider:           "fake",
		Model:              "test-model",
		PriceInPerMillion:  cfg.PriceInPerMillion,
		PriceOutPerMillion: cfg.PriceOutPerMillion,
		PriceMultiplier:    cfg.PriceMultiplier,
		SellerConsoleHost:  cfg.SellerConsoleHost,
		PublicSiteHost:     cfg.PublicSiteHost,
	})

	h := handlers.NewHandler(gdb, cfg, log, chatSvc, billingSvc)
	return &testServer{
		router: httpapi.NewRouter(h, gdb, cfg, log, nil),
		db:     gdb,
		gw:     gw,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	return rec, env
}

func (ts *testServer) register(t *testing.T, email string) string {
	t.Helper()
	rec, env := ts.do(t, http.MethodPost, "/auth/register", gin.H{
		"email":    email,
		"password": "super-secret-1",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func (ts *testServer) issueAPIKey(t *testing.T, token string) string {
	t.Helper()
	rec, env := ts.do(t, http.MethodPost, "/auth/api-key", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var data struct {
		APIKey string `json:"apiKey"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.APIKey)
	return data.APIKey
}

func TestRegisterGrantsWelcomeBonus(t *testing.T) {
	ts := newTestServer(t)
	rec, env := ts.do(t, http.MethodPost, "/auth/register", gin.H{
		"email":    "seller@example.com",
		"password": "super-secret-1",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 0, env.Code)

	var data struct {
		Token string `json:"token"`
		User  struct {
			Balance string `json:"balance"`
			Email   string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.NotEmpty(t, data.Token)
	assert.Equal(t, "seller@example.com", data.User.Email)
	assert.Equal(t, "1", data.User.Balance)

	var n int64
	require.NoError(t, ts.db.Model(&billing.Transaction{}).Where("kind = ?", billing.KindTopup).Count(&n).Error)
	assert.EqualValues(t, 1, n, "welcome bonus appears in the ledger")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "dup@example.com")
	rec, env := ts.do(t, http.MethodPost, "/auth/register", gin.H{
		"email":    "dup@example.com",
		"password": "super-secret-1",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 40901, env.Code)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "login@example.com")

	rec, _ := ts.do(t, http.MethodPost, "/auth/login", gin.H{
		"email":    "login@example.com",
		"password": "super-secret-1",
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := ts.do(t, http.MethodPost, "/auth/login", gin.H{
		"email":    "login@example.com",
		"password": "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 40102, env.Code)
}

func TestAPIKeyProtectsExtensionSurface(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "key@example.com")
	apiKey := ts.issueAPIKey(t, token)
	assert.Contains(t, apiKey, "oaa_")

	// No key.
	rec, _ := ts.do(t, http.MethodGet, "/billing/balance", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Bad key.
	rec, _ = ts.do(t, http.MethodGet, "/billing/balance", nil, map[string]string{"X-API-Key": "oaa_deadbeef"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Good key.
	rec, env := ts.do(t, http.MethodGet, "/billing/balance", nil, map[string]string{"X-API-Key": apiKey})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	var data struct {
		Balance string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "1", data.Balance)
}

func TestRotatingAPIKeyInvalidatesOldOne(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "rotate@example.com")
	oldKey := ts.issueAPIKey(t, token)
	newKey := ts.issueAPIKey(t, token)
	require.NotEqual(t, oldKey, newKey)

	rec, _ := ts.do(t, http.MethodGet, "/billing/balance", nil, map[string]string{"X-API-Key": oldKey})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = ts.do(t, http.MethodGet, "/billing/balance", nil, map[string]string{"X-API-Key": newKey})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatMessageEndToEnd(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "chat@example.com")
	apiKey := ts.issueAPIKey(t, token)

	rec, env := ts.do(t, http.MethodPost, "/chat/message", gin.H{
		"message": "why did sales drop?",
		"pageData": gin.H{
			"url":       "https://seller.ozon.ru/app/analytics",
			"pageTitle": "Analytics",
		},
	}, map[string]string{"X-API-Key": apiKey})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var data struct {
		Answer    string `json:"answer"`
		SessionID string `json:"session_id"`
		Usage     struct {
			InputTokens      int    `json:"input_tokens"`
			OutputTokens     int    `json:"output_tokens"`
			Cost             string `json:"cost"`
			BalanceRemaining string `json:"balance_remaining"`
		} `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "the answer", data.Answer)
	assert.NotEmpty(t, data.SessionID)
	assert.Equal(t, 100_000, data.Usage.InputTokens)
	// (100000 + 100000) / 1e6 = 0.2; welcome bonus 1 - 0.2 = 0.8
	assert.Equal(t, "0.2", data.Usage.Cost)
	assert.Equal(t, "0.8", data.Usage.BalanceRemaining)

	// History via the same surface.
	rec, env = ts.do(t, http.MethodGet, "/chat/history/"+data.SessionID, nil, map[string]string{"X-API-Key": apiKey})
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, "user", hist.Messages[0].Role)
	assert.Equal(t, "assistant", hist.Messages[1].Role)
}

func TestChatMessageInsufficientBalance(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "poor@example.com")
	apiKey := ts.issueAPIKey(t, token)

	// 3M output tokens -> cost 3, welcome bonus is 1.
	ts.gw.outputTokens = 3_000_000

	rec, env := ts.do(t, http.MethodPost, "/chat/message", gin.H{
		"message":  "analyze everything",
		"pageData": gin.H{"url": "https://seller.ozon.ru/app/analytics"},
	}, map[string]string{"X-API-Key": apiKey})
	require.Equal(t, http.StatusPaymentRequired, rec.Code, "body: %s", rec.Body.String())
	assert.Equal(t, 40201, env.Code)

	var data struct {
		Required string `json:"required"`
		Balance  string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "3.1", data.Required)
	assert.Equal(t, "1", data.Balance)
}

func TestTelegramAuthCreatesUserWithBonus(t *testing.T) {
	ts := newTestServer(t)

	// No bot token configured: signature verification is off.
	rec, env := ts.do(t, http.MethodPost, "/auth/telegram", gin.H{
		"telegramId": "777",
		"firstName":  "Ada",
		"username":   "ada",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var data struct {
		Token string `json:"token"`
		User  struct {
			TelegramID string `json:"telegramId"`
			Balance    string `json:"balance"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.NotEmpty(t, data.Token)
	assert.Equal(t, "777", data.User.TelegramID)
	assert.Equal(t, "1", data.User.Balance)

	// Signing in again must not grant a second bonus.
	rec, env = ts.do(t, http.MethodPost, "/auth/telegram", gin.H{
		"telegramId": "777",
		"firstName":  "Ada L.",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "1", data.User.Balance)

	var n int64
	require.NoError(t, ts.db.Model(&models.User{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestAdminSurfaceRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "user@example.com")

	rec, env := ts.do(t, http.MethodGet, "/admin/stats", nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 40302, env.Code)

	require.NoError(t, ts.db.Model(&models.User{}).Where("1 = 1").Update("is_admin", true).Error)

	rec, _ = ts.do(t, http.MethodGet, "/admin/stats", nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminTopUp(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.register(t, "admin@example.com")
	require.NoError(t, ts.db.Model(&models.User{}).Where("1 = 1").Update("is_admin", true).Error)

	var target models.User
	require.NoError(t, ts.db.First(&target).Error)

	rec, env := ts.do(t, http.MethodPost, "/admin/topup", gin.H{
		"userId": target.ID,
		"amount": "25.50",
	}, map[string]string{"Authorization": "Bearer " + adminToken})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var data struct {
		Balance string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "26.5", data.Balance)

	// Rejects non-positive amounts.
	rec, _ = ts.do(t, http.MethodPost, "/admin/topup", gin.H{
		"userId": target.ID,
		"amount": "-5",
	}, map[string]string{"Authorization": "Bearer " + adminToken})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlockedUserIsRejected(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "blocked@example.com")
	apiKey := ts.issueAPIKey(t, token)

	require.NoError(t, ts.db.Model(&models.User{}).Where("1 = 1").Update("is_blocked", true).Error)

	rec, env := ts.do(t, http.MethodGet, "/billing/balance", nil, map[string]string{"X-API-Key": apiKey})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 40301, env.Code)

	rec, _ = ts.do(t, http.MethodGet, "/auth/me", nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownRouteEnvelope(t *testing.T) {
	ts := newTestServer(t)
	rec, env := ts.do(t, http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 40400, env.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec, env := ts.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.Code)
}
