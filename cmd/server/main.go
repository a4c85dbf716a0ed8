package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/first-seller/ozon-assist/internal/ai"
	"github.com/first-seller/ozon-assist/internal/billing"
	"github.com/first-seller/ozon-assist/internal/chat"
	"github.com/first-seller/ozon-assist/internal/config"
	"github.com/first-seller/ozon-assist/internal/db"
	"github.com/first-seller/ozon-assist/internal/httpapi"
	"github.com/first-seller/ozon-assist/internal/httpapi/handlers"
	"github.com/first-seller/ozon-assist/internal/logger"
	"github.com/first-seller/ozon-assist/internal/store/rabbitmq"
	"github.com/first-seller/ozon-assist/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("database connect failed", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	if err := db.AutoMigrate(gdb); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var limiter *redisstore.Store
	if cfg.RedisAddr != "" {
		limiter = redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := limiter.Ping(ctx); err != nil {
			log.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
			limiter = nil
		} else {
			defer limiter.Close() //nolint:errcheck
		}
	}

	var events chat.UsagePublisher
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Warn("rabbitmq unavailable, usage events disabled", zap.Error(err))
		} else {
			defer pub.Close() //nolint:errcheck
			events = pub
		}
	}

	registry := ai.NewRegistry()
	registry.Register("anthropic", func(ctx context.Context, model string) (ai.Gateway, error) {
		return ai.NewAnthropicProvider(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, model, cfg.AnthropicMaxTokens, cfg.UpstreamTimeout), nil
	})

	billingSvc := billing.NewService(gdb, billing.NewRepo(gdb), log)
	chatSvc := chat.NewService(gdb, chat.NewRepo(gdb), billingSvc, registry, events, log, chat.Options{
		Provider:           cfg.AIProvider,
		Model:              cfg.AnthropicModel,
		ContextWindow:      cfg.ChatContextWindowSize,
		PriceInPerMillion:  cfg.PriceInPerMillion,
		PriceOutPerMillion: cfg.PriceOutPerMillion,
		PriceMultiplier:    cfg.PriceMultiplier,
		SellerConsoleHost:  cfg.SellerConsoleHost,
		PublicSiteHost:     cfg.PublicSiteHost,
	})

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := chatSvc.PurgeExpiredReceipts(ctx); err != nil {
					log.Warn("receipt purge failed", zap.Error(err))
				}
			}
		}
	}()

	h := handlers.NewHandler(gdb, cfg, log, chatSvc, billingSvc)
	router := httpapi.NewRouter(h, gdb, cfg, log, limiter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("bye")
}
